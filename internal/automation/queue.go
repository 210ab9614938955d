package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

// QueueOptions sizes a Queue.
type QueueOptions struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// Queue runs jobs on a fixed set of workers and keeps their state in memory.
// It implements Runner.
type Queue struct {
	handler Handler
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*JobState

	pending chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewQueue starts opts.Workers workers executing handler.
func NewQueue(handler Handler, opts QueueOptions, logger *slog.Logger) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Size < 1 {
		opts.Size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		handler: handler,
		timeout: opts.JobTimeout,
		logger:  utils.Component(logger, "automation-queue"),
		now:     time.Now,
		jobs:    make(map[string]*JobState),
		pending: make(chan string, opts.Size),
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	return q
}

// Start enqueues job and returns its operation id.
func (q *Queue) Start(_ context.Context, job Job) (string, error) {
	if job.Kind == "" {
		return "", utils.NewAppError("automation.Start", "job kind required", nil)
	}
	id := uuid.NewString()
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueFull
	}
	state := &JobState{
		ID:        id,
		Kind:      job.Kind,
		Status:    StatusQueued,
		Request:   job.Payload,
		Log:       []LogEntry{{At: now, Msg: "job_queued"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	select {
	case q.pending <- id:
	default:
		return "", ErrQueueFull
	}
	q.jobs[id] = state
	q.logger.Info("automation job queued", slog.String("id", id), slog.String("kind", string(job.Kind)))
	return id, nil
}

// Status returns a copy of the job's current state.
func (q *Queue) Status(_ context.Context, id string) (JobState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.jobs[id]
	if !ok {
		return JobState{}, ErrJobNotFound
	}
	out := *state
	out.Log = append([]LogEntry(nil), state.Log...)
	return out, nil
}

// Close stops the workers after their current job and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			q.run(ctx, id)
		}
	}
}

func (q *Queue) run(ctx context.Context, id string) {
	var job Job
	q.update(id, func(s *JobState) {
		s.Status = StatusRunning
		s.Log = append(s.Log, LogEntry{At: q.now(), Msg: "job_started"})
		job = Job{Kind: s.Kind, Payload: s.Request}
	})

	runCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	logf := func(msg string, meta map[string]any) {
		q.update(id, func(s *JobState) {
			s.Log = append(s.Log, LogEntry{At: q.now(), Msg: msg, Meta: meta})
		})
	}
	result, err := q.safeRun(runCtx, job, logf)

	q.update(id, func(s *JobState) {
		s.Result = result
		if err != nil {
			s.Status = StatusError
			s.Error = err.Error()
			s.Log = append(s.Log, LogEntry{At: q.now(), Msg: "job_failed", Meta: map[string]any{"error": err.Error()}})
			return
		}
		s.Status = StatusDone
		s.Success = true
		s.Log = append(s.Log, LogEntry{At: q.now(), Msg: "job_done"})
	})

	status := StatusDone
	if err != nil {
		status = StatusError
		q.logger.Warn("automation job failed", slog.String("id", id), slog.String("kind", string(job.Kind)), slog.Any("error", err))
	}
	metrics.ObserveJob(string(job.Kind), string(status))
}

func (q *Queue) safeRun(ctx context.Context, job Job, logf LogFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler.Run(ctx, job, logf)
}

func (q *Queue) update(id string, fn func(*JobState)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.jobs[id]; ok {
		fn(s)
		s.UpdatedAt = q.now()
	}
}
