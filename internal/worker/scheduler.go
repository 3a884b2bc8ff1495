package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/ctxutil"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/sentry"
)

// Scheduler runs worker invocations as fire-and-forget tasks with bounded
// concurrency and a bounded retry on failure. Tasks coordinate only
// through the durable queue, so retrying a whole drain is safe: entries
// completed by the failed attempt are already gone.
type Scheduler struct {
	worker     *Worker
	registry   *bot.Registry
	sem        *semaphore.Weighted
	maxRetries int
	log        *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler allowing concurrency parallel worker
// runs, each retried at most maxRetries times after its first failure.
func NewScheduler(w *Worker, registry *bot.Registry, concurrency int, maxRetries int, log *logger.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		worker:     w,
		registry:   registry,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		maxRetries: maxRetries,
		log:        log.WithModule("scheduler"),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Schedule enqueues a worker run for (botID, userID, kind) and returns
// immediately. The run executes on its own goroutine; failures are retried
// and, when retries are exhausted, logged and reported rather than
// surfaced to the caller.
func (s *Scheduler) Schedule(botID, userID string, kind queue.Kind) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
			return // shutting down
		}
		defer s.sem.Release(1)

		s.run(botID, userID, kind)
	}()
}

func (s *Scheduler) run(botID, userID string, kind queue.Kind) {
	b, err := s.registry.Resolve(botID)
	if err != nil {
		s.log.WithError(err).Errorf("scheduled run for unknown bot %s", botID)
		return
	}

	ctx := ctxutil.WithBotID(s.baseCtx, botID)
	ctx = ctxutil.WithNamespace(ctx, b.Namespace)
	ctx = ctxutil.WithUserID(ctx, userID)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = s.worker.Run(ctx, b, userID, kind)
		if lastErr == nil {
			return
		}
		s.log.WithError(lastErr).
			WithField("attempt", attempt+1).
			Warnf("worker run failed for %s/%s", b.Namespace, userID)
	}

	sentry.CaptureDispatchError(ctx, lastErr)
	s.log.WithError(lastErr).Errorf("worker run exhausted retries for %s/%s", b.Namespace, userID)
}

// Shutdown stops accepting semaphore slots and waits for in-flight runs,
// up to the context deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	s.cancel()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
