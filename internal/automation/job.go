package automation

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an automation job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Kind names what the automation should do in the web app.
type Kind string

const (
	KindAddItem        Kind = "add_item"
	KindUpdateQuantity Kind = "update_quantity"
	KindAdjustOrder    Kind = "adjust_order"
)

var (
	// ErrJobNotFound is returned for unknown operation ids.
	ErrJobNotFound = errors.New("automation job not found")
	// ErrQueueFull is returned when no more jobs can be accepted.
	ErrQueueFull = errors.New("automation queue full")
)

// Job is a unit of work handed to the UI-automation runner.
type Job struct {
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// LogEntry is one progress line of a job.
type LogEntry struct {
	At   time.Time      `json:"t"`
	Msg  string         `json:"msg"`
	Meta map[string]any `json:"meta,omitempty"`
}

// JobState is a snapshot of a job.
type JobState struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Status    Status         `json:"status"`
	Request   map[string]any `json:"request,omitempty"`
	Log       []LogEntry     `json:"log"`
	Result    any            `json:"result,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// Runner starts jobs and reports their state.
type Runner interface {
	Start(ctx context.Context, job Job) (string, error)
	Status(ctx context.Context, id string) (JobState, error)
}

// LogFunc appends a progress line to the running job.
type LogFunc func(msg string, meta map[string]any)

// Handler performs a job.
type Handler interface {
	Run(ctx context.Context, job Job, logf LogFunc) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job, logf LogFunc) (any, error)

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, job Job, logf LogFunc) (any, error) {
	return f(ctx, job, logf)
}
