package reconcile

import (
	"context"
	"errors"

	"github.com/trialsignup/signup/internal/domain"
)

// ErrQueueFull is returned when the in-process queue cannot take another job.
var ErrQueueFull = errors.New("sync queue full")

// Queue accepts sync jobs from the webhook path.
type Queue interface {
	Enqueue(ctx context.Context, job domain.SyncJob) error
}

// Source delivers sync jobs to the worker until ctx is cancelled.
type Source interface {
	Consume(ctx context.Context, handle func(context.Context, domain.SyncJob)) error
}

// MemoryQueue is the in-process queue used when no broker is configured.
// Jobs still queued at shutdown are lost.
type MemoryQueue struct {
	jobs chan domain.SyncJob
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan domain.SyncJob, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handle func(context.Context, domain.SyncJob)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			handle(ctx, job)
		}
	}
}
