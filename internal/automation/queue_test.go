package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, q *Queue, id string, want Status) JobState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := q.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return JobState{}
}

func TestQueueRunsJobs(t *testing.T) {
	q := NewQueue(HandlerFunc(func(ctx context.Context, job Job, logf LogFunc) (any, error) {
		logf("step", map[string]any{"order_id": job.Payload["order_id"]})
		return map[string]any{"ok": true}, nil
	}), QueueOptions{Workers: 2, Size: 4}, nil)
	defer q.Close()

	id, err := q.Start(context.Background(), Job{Kind: KindAdjustOrder, Payload: map[string]any{"order_id": "o-1"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitFor(t, q, id, StatusDone)
	if !state.Success || !state.Terminal() || state.Kind != KindAdjustOrder {
		t.Fatalf("unexpected state: %+v", state)
	}
	var msgs []string
	for _, e := range state.Log {
		msgs = append(msgs, e.Msg)
	}
	if len(msgs) != 4 || msgs[0] != "job_queued" || msgs[2] != "step" || msgs[3] != "job_done" {
		t.Fatalf("unexpected log: %v", msgs)
	}
}

func TestQueueRecordsHandlerErrors(t *testing.T) {
	q := NewQueue(HandlerFunc(func(ctx context.Context, job Job, logf LogFunc) (any, error) {
		if job.Kind == KindAddItem {
			panic("boom")
		}
		return nil, errors.New("selector not found")
	}), QueueOptions{Workers: 1, Size: 4}, nil)
	defer q.Close()

	id, _ := q.Start(context.Background(), Job{Kind: KindUpdateQuantity})
	state := waitFor(t, q, id, StatusError)
	if state.Success || state.Error != "selector not found" {
		t.Fatalf("unexpected state: %+v", state)
	}

	id, _ = q.Start(context.Background(), Job{Kind: KindAddItem})
	if state := waitFor(t, q, id, StatusError); state.Error == "" {
		t.Fatalf("panic should be reported as an error")
	}
}

func TestQueueFullAndUnknownJob(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(HandlerFunc(func(ctx context.Context, job Job, logf LogFunc) (any, error) {
		<-release
		return nil, nil
	}), QueueOptions{Workers: 1, Size: 1}, nil)
	defer q.Close()
	defer close(release)

	first, err := q.Start(context.Background(), Job{Kind: KindAddItem})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	waitFor(t, q, first, StatusRunning)
	if _, err := q.Start(context.Background(), Job{Kind: KindAddItem}); err != nil {
		t.Fatalf("second job should fit the buffer: %v", err)
	}
	if _, err := q.Start(context.Background(), Job{Kind: KindAddItem}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, err := q.Status(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := q.Start(context.Background(), Job{}); err == nil {
		t.Fatalf("expected error for job without kind")
	}
}
