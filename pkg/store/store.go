// Package store provides in-memory storage for programs and their runs.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/minic/pkg/types"
)

// Errors returned (wrapped) by Store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// RunState represents the state of a function call run.
type RunState string

const (
	RunActive    RunState = "ACTIVE"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
)

// Program is a stored program source.
type Program struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Revision   int64     `json:"revision"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// Run records one call of a program function.
type Run struct {
	ID        string         `json:"id"`
	ProgramID string         `json:"programId"`
	Revision  int64          `json:"revision"`
	Function  string         `json:"function"`
	Args      []types.Number `json:"args"`
	State     RunState       `json:"state"`
	Result    types.Number   `json:"result"`
	Output    []string       `json:"output"`
	Error     *RunError      `json:"error,omitempty"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime,omitempty"`
}

// RunError describes why a run failed.
type RunError struct {
	// Kind is a types.ErrorKind, or "ParseError", "LexError" or
	// "InternalError" for failures outside the interpreter.
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Store is a thread-safe in-memory storage for programs and runs. Getters
// return copies, so callers may hold results without locking.
type Store struct {
	mu       sync.RWMutex
	programs map[string]*Program
	runs     map[string]*Run

	now func() time.Time
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		programs: make(map[string]*Program),
		runs:     make(map[string]*Run),
		now:      time.Now,
	}
}

// CreateProgram stores a new program. Names must be unique.
func (s *Store) CreateProgram(name, source string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.programs {
		if p.Name == name {
			return nil, fmt.Errorf("program '%s' %w", name, ErrAlreadyExists)
		}
	}

	now := s.now()
	p := &Program{
		ID:         uuid.NewString(),
		Name:       name,
		Source:     source,
		Revision:   1,
		CreateTime: now,
		UpdateTime: now,
	}
	s.programs[p.ID] = p
	return copyProgram(p), nil
}

// GetProgram retrieves a program by id.
func (s *Store) GetProgram(id string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[id]
	if !ok {
		return nil, fmt.Errorf("program '%s' %w", id, ErrNotFound)
	}
	return copyProgram(p), nil
}

// ListPrograms returns all programs ordered by creation time.
func (s *Store) ListPrograms() []*Program {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Program, 0, len(s.programs))
	for _, p := range s.programs {
		result = append(result, copyProgram(p))
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreateTime.Equal(result[j].CreateTime) {
			return result[i].Name < result[j].Name
		}
		return result[i].CreateTime.Before(result[j].CreateTime)
	})
	return result
}

// UpdateProgram replaces a program's source and bumps its revision.
func (s *Store) UpdateProgram(id, source string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[id]
	if !ok {
		return nil, fmt.Errorf("program '%s' %w", id, ErrNotFound)
	}
	p.Source = source
	p.Revision++
	p.UpdateTime = s.now()
	return copyProgram(p), nil
}

// DeleteProgram removes a program and all of its runs.
func (s *Store) DeleteProgram(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[id]; !ok {
		return fmt.Errorf("program '%s' %w", id, ErrNotFound)
	}
	delete(s.programs, id)
	for runID, r := range s.runs {
		if r.ProgramID == id {
			delete(s.runs, runID)
		}
	}
	return nil
}

// CreateRun records the start of a call against the program's current revision.
func (s *Store) CreateRun(programID, function string, args []float64) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[programID]
	if !ok {
		return nil, fmt.Errorf("program '%s' %w", programID, ErrNotFound)
	}

	r := &Run{
		ID:        uuid.NewString(),
		ProgramID: programID,
		Revision:  p.Revision,
		Function:  function,
		Args:      types.Numbers(args),
		State:     RunActive,
		StartTime: s.now(),
	}
	s.runs[r.ID] = r
	return copyRun(r), nil
}

// CompleteRun marks a run as succeeded.
func (s *Store) CompleteRun(id string, result float64, output []string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.activeRun(id)
	if err != nil {
		return nil, err
	}
	r.State = RunSucceeded
	r.Result = types.Number(result)
	r.Output = append([]string(nil), output...)
	r.EndTime = s.now()
	return copyRun(r), nil
}

// FailRun marks a run as failed. Output printed before the failure is kept.
func (s *Store) FailRun(id string, runErr RunError, output []string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.activeRun(id)
	if err != nil {
		return nil, err
	}
	r.State = RunFailed
	r.Error = &runErr
	r.Output = append([]string(nil), output...)
	r.EndTime = s.now()
	return copyRun(r), nil
}

func (s *Store) activeRun(id string) (*Run, error) {
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run '%s' %w", id, ErrNotFound)
	}
	if r.State != RunActive {
		return nil, fmt.Errorf("run '%s' is not active (state: %s)", id, r.State)
	}
	return r, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run '%s' %w", id, ErrNotFound)
	}
	return copyRun(r), nil
}

// ListRuns returns the runs of a program ordered by start time. An empty
// programID lists every run.
func (s *Store) ListRuns(programID string) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Run
	for _, r := range s.runs {
		if programID == "" || r.ProgramID == programID {
			result = append(result, copyRun(r))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

func copyProgram(p *Program) *Program {
	cp := *p
	return &cp
}

func copyRun(r *Run) *Run {
	cp := *r
	cp.Args = make([]types.Number, len(r.Args))
	copy(cp.Args, r.Args)
	cp.Output = make([]string, len(r.Output))
	copy(cp.Output, r.Output)
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return &cp
}
