// Package api implements the minic REST API: stored programs, function
// calls against them, and one-shot evaluation.
package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/config"
	"github.com/lemonberrylabs/minic/pkg/lexer"
	"github.com/lemonberrylabs/minic/pkg/parser"
	"github.com/lemonberrylabs/minic/pkg/service"
	"github.com/lemonberrylabs/minic/pkg/store"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	app *fiber.App
	svc *service.Service
}

// New creates a new API server.
func New(svc *service.Service, cfg config.ServerConfig) *Server {
	srv := &Server{svc: svc}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             parser.MaxSourceSize + 64*1024,
	})
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	// Programs API
	app.Post("/v1/programs", srv.createProgram)
	app.Get("/v1/programs", srv.listPrograms)
	app.Get("/v1/programs/:id", srv.getProgram)
	app.Put("/v1/programs/:id", srv.updateProgram)
	app.Delete("/v1/programs/:id", srv.deleteProgram)

	// Runs API
	app.Post("/v1/programs/:id/calls", srv.callFunction)
	app.Get("/v1/programs/:id/runs", srv.listRuns)
	app.Get("/v1/runs/:id", srv.getRun)

	// Stateless
	app.Post("/v1/eval", srv.eval)
	app.Post("/v1/tokens", srv.tokens)
	app.Post("/v1/ast", srv.dumpAST)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Program Handlers ---

type createProgramRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (s *Server) createProgram(c *fiber.Ctx) error {
	var req createProgramRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if req.Name == "" {
		return invalidArgument(c, "name is required")
	}

	p, err := s.svc.Compile(c.UserContext(), req.Name, req.Source)
	if err != nil {
		return writeError(c, err, req.Source)
	}
	return c.Status(fiber.StatusOK).JSON(programToJSON(p))
}

func (s *Server) getProgram(c *fiber.Ctx) error {
	p, err := s.svc.Store().GetProgram(c.Params("id"))
	if err != nil {
		return writeError(c, err, "")
	}
	return c.JSON(programToJSON(p))
}

func (s *Server) listPrograms(c *fiber.Ctx) error {
	programs := s.svc.Store().ListPrograms()

	items := make([]fiber.Map, len(programs))
	for i, p := range programs {
		items[i] = programToJSON(p)
	}
	return c.JSON(fiber.Map{
		"programs": items,
	})
}

type updateProgramRequest struct {
	Source string `json:"source"`
}

func (s *Server) updateProgram(c *fiber.Ctx) error {
	var req updateProgramRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	p, err := s.svc.Update(c.UserContext(), c.Params("id"), req.Source)
	if err != nil {
		return writeError(c, err, req.Source)
	}
	return c.JSON(programToJSON(p))
}

func (s *Server) deleteProgram(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.svc.Delete(id); err != nil {
		return writeError(c, err, "")
	}
	return c.JSON(fiber.Map{
		"id":      id,
		"deleted": true,
	})
}

// --- Run Handlers ---

type callRequest struct {
	Function string         `json:"function"`
	Args     []types.Number `json:"args"`
}

func (s *Server) callFunction(c *fiber.Ctx) error {
	var req callRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if req.Function == "" {
		return invalidArgument(c, "function is required")
	}

	run, err := s.svc.Call(c.UserContext(), c.Params("id"), req.Function, types.Floats(req.Args))
	if err != nil {
		if run == nil {
			return writeError(c, err, "")
		}
		code, status := runStatus(err)
		body := errorBody(code, status, err.Error(), service.ErrorKind(err))
		body["run"] = runToJSON(run)
		return c.Status(code).JSON(body)
	}
	return c.JSON(runToJSON(run))
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.svc.Store().GetProgram(id); err != nil {
		return writeError(c, err, "")
	}

	runs := s.svc.Store().ListRuns(id)
	items := make([]fiber.Map, len(runs))
	for i, r := range runs {
		items[i] = runToJSON(r)
	}
	return c.JSON(fiber.Map{
		"runs": items,
	})
}

func (s *Server) getRun(c *fiber.Ctx) error {
	run, err := s.svc.Store().GetRun(c.Params("id"))
	if err != nil {
		return writeError(c, err, "")
	}
	return c.JSON(runToJSON(run))
}

// --- Stateless Handlers ---

type evalRequest struct {
	Source   string         `json:"source"`
	Function string         `json:"function"`
	Args     []types.Number `json:"args"`
}

func (s *Server) eval(c *fiber.Ctx) error {
	var req evalRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	res, err := s.svc.Eval(c.UserContext(), req.Source, req.Function, types.Floats(req.Args))
	if err != nil {
		if service.IsSourceError(err) {
			return writeError(c, err, req.Source)
		}
		code, status := runStatus(err)
		body := errorBody(code, status, err.Error(), service.ErrorKind(err))
		body["output"] = res.Output
		return c.Status(code).JSON(body)
	}

	out := fiber.Map{
		"output": res.Output,
		"called": res.Called,
	}
	if res.Called {
		out["function"] = req.Function
		out["result"] = types.Number(res.Value)
	}
	return c.JSON(out)
}

type sourceRequest struct {
	Source string `json:"source"`
}

func (s *Server) tokens(c *fiber.Ctx) error {
	var req sourceRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	toks, err := lexer.New(req.Source).Tokenize()
	if err != nil {
		return writeError(c, err, req.Source)
	}

	items := make([]fiber.Map, len(toks))
	for i, tok := range toks {
		line, col := lexer.LineCol(req.Source, tok.Pos)
		items[i] = fiber.Map{
			"kind":   tok.Kind.String(),
			"lexeme": tok.Lexeme,
			"pos":    tok.Pos,
			"line":   line,
			"column": col,
		}
	}
	return c.JSON(fiber.Map{
		"tokens": items,
	})
}

func (s *Server) dumpAST(c *fiber.Ctx) error {
	var req sourceRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	prog, err := parser.Parse(req.Source)
	if err != nil {
		return writeError(c, err, req.Source)
	}

	var sb strings.Builder
	if err := ast.FprintProgram(&sb, prog); err != nil {
		return writeError(c, err, "")
	}
	return c.JSON(fiber.Map{
		"items": len(prog.Items),
		"tree":  sb.String(),
	})
}

// --- Errors ---

func errorBody(code int, status, message, kind string) fiber.Map {
	e := fiber.Map{
		"code":    code,
		"message": message,
		"status":  status,
	}
	if kind != "" {
		e["kind"] = kind
	}
	return fiber.Map{"error": e}
}

func invalidArgument(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody(fiber.StatusBadRequest, "INVALID_ARGUMENT", message, ""))
}

func invalidBody(c *fiber.Ctx, err error) error {
	return invalidArgument(c, fmt.Sprintf("invalid request body: %v", err))
}

// writeError maps a service error to its HTTP status. source, when set,
// lets lex and parse errors report a line and column.
func writeError(c *fiber.Ctx, err error, source string) error {
	switch {
	case service.IsSourceError(err):
		body := errorBody(fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), service.ErrorKind(err))
		if pos, ok := service.Position(err); ok {
			e := body["error"].(fiber.Map)
			e["position"] = pos
			if source != "" {
				e["line"], e["column"] = lexer.LineCol(source, pos)
			}
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.Is(err, service.ErrInvalidName):
		return invalidArgument(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody(fiber.StatusNotFound, "NOT_FOUND", err.Error(), ""))
	case errors.Is(err, store.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(errorBody(fiber.StatusConflict, "ALREADY_EXISTS", err.Error(), ""))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(fiber.StatusInternalServerError, "INTERNAL", err.Error(), service.ErrorKind(err)))
	}
}

// runStatus maps an error that ended a run.
func runStatus(err error) (int, string) {
	switch service.ErrorKind(err) {
	case service.KindDeadlineExceeded:
		return fiber.StatusGatewayTimeout, "DEADLINE_EXCEEDED"
	case service.KindCancelled:
		return fiber.StatusRequestTimeout, "CANCELLED"
	case service.KindInternal:
		return fiber.StatusInternalServerError, "INTERNAL"
	case service.KindLexError, service.KindParseError:
		return fiber.StatusBadRequest, "INVALID_ARGUMENT"
	default:
		return fiber.StatusUnprocessableEntity, "FAILED_PRECONDITION"
	}
}

// --- Helpers ---

func programToJSON(p *store.Program) fiber.Map {
	return fiber.Map{
		"id":         p.ID,
		"name":       p.Name,
		"source":     p.Source,
		"revision":   p.Revision,
		"createTime": p.CreateTime.Format(time.RFC3339),
		"updateTime": p.UpdateTime.Format(time.RFC3339),
	}
}

func runToJSON(r *store.Run) fiber.Map {
	result := fiber.Map{
		"id":        r.ID,
		"programId": r.ProgramID,
		"revision":  r.Revision,
		"function":  r.Function,
		"args":      r.Args,
		"state":     r.State,
		"output":    r.Output,
		"startTime": r.StartTime.Format(time.RFC3339),
	}
	if r.State == store.RunSucceeded {
		result["result"] = r.Result
	}
	if r.Error != nil {
		result["error"] = fiber.Map{
			"kind":    r.Error.Kind,
			"message": r.Error.Message,
		}
	}
	if !r.EndTime.IsZero() {
		result["endTime"] = r.EndTime.Format(time.RFC3339)
	}
	return result
}
