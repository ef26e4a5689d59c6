// Package web provides the embedded web UI for browsing stored programs
// and their runs.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/minic/pkg/store"
	"github.com/lemonberrylabs/minic/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New creates a new web UI handler.
func New(s *store.Store) *Handler {
	return &Handler{
		store: s,
		funcMap: template.FuncMap{
			"timeAgo":     timeAgo,
			"formatTime":  formatTime,
			"duration":    duration,
			"stateClass":  stateClass,
			"stateIcon":   stateIcon,
			"truncate":    truncate,
			"countLines":  countLines,
			"sourceLines": sourceLines,
			"number":      number,
			"args":        args,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout on its own so define blocks
	// never clash across pages.
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	pd := pageData{
		NavActive: navActive,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/programs/:id", h.programDetail)
	app.Get("/ui/runs/:id", h.runDetail)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Programs       []*programView
	RecentRuns     []*runView
	ActiveCount    int
	SucceededCount int
	FailedCount    int
}

type programView struct {
	*store.Program
	RunCount int
}

type runView struct {
	*store.Run
	ProgramName string
}

type programDetailContent struct {
	Program *store.Program
	Runs    []*store.Run
}

type runDetailContent struct {
	Run     *store.Run
	Program *store.Program
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	programs := h.store.ListPrograms()
	sort.SliceStable(programs, func(i, j int) bool {
		return programs[i].UpdateTime.After(programs[j].UpdateTime)
	})

	names := make(map[string]string, len(programs))
	views := make([]*programView, len(programs))
	for i, p := range programs {
		names[p.ID] = p.Name
		views[i] = &programView{Program: p, RunCount: len(h.store.ListRuns(p.ID))}
	}

	var runs []*runView
	var active, succeeded, failed int
	for _, r := range h.store.ListRuns("") {
		runs = append(runs, &runView{Run: r, ProgramName: names[r.ProgramID]})
		switch r.State {
		case store.RunActive:
			active++
		case store.RunSucceeded:
			succeeded++
		case store.RunFailed:
			failed++
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if len(runs) > 10 {
		runs = runs[:10]
	}

	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Programs:       views,
		RecentRuns:     runs,
		ActiveCount:    active,
		SucceededCount: succeeded,
		FailedCount:    failed,
	})
}

func (h *Handler) programDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	p, err := h.store.GetProgram(id)
	if err != nil {
		c.Status(fiber.StatusNotFound)
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Program '%s' not found", id),
		})
	}

	runs := h.store.ListRuns(id)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})

	return h.render(c, "program_detail.html", "programs", programDetailContent{
		Program: p,
		Runs:    runs,
	})
}

func (h *Handler) runDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	r, err := h.store.GetRun(id)
	if err != nil {
		c.Status(fiber.StatusNotFound)
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Run '%s' not found", id),
		})
	}

	// The program may have been deleted since; the run page still renders.
	p, _ := h.store.GetProgram(r.ProgramID)

	return h.render(c, "run_detail.html", "programs", runDetailContent{
		Run:     r,
		Program: p,
	})
}

// --- Template Helpers ---

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return fmt.Sprintf("%s (running)", formatDuration(time.Since(start)))
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stateClass(state store.RunState) string {
	switch state {
	case store.RunActive:
		return "state-active"
	case store.RunSucceeded:
		return "state-succeeded"
	case store.RunFailed:
		return "state-failed"
	default:
		return ""
	}
}

func stateIcon(state store.RunState) template.HTML {
	switch state {
	case store.RunActive:
		return "&#9654;"
	case store.RunSucceeded:
		return "&#10003;"
	case store.RunFailed:
		return "&#10007;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}

type sourceLine struct {
	N    int
	Text string
}

// sourceLines numbers the lines of a program for display.
func sourceLines(src string) []sourceLine {
	src = strings.TrimSuffix(src, "\n")
	if src == "" {
		return nil
	}
	parts := strings.Split(src, "\n")
	out := make([]sourceLine, len(parts))
	for i, text := range parts {
		out[i] = sourceLine{N: i + 1, Text: text}
	}
	return out
}

func number(n types.Number) string {
	return types.FormatNumber(float64(n))
}

// args renders a call's arguments, e.g. "3, 4".
func args(ns []types.Number) string {
	return types.FormatNumbers(types.Floats(ns))
}
