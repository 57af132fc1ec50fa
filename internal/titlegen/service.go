package titlegen

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/policyvoice/server/internal/logger"
)

// TitleStore persists generated titles onto conversations.
type TitleStore interface {
	// SetTitleIfUntitled writes the title only when the conversation still has
	// none, so a manual rename during generation wins.
	SetTitleIfUntitled(ctx context.Context, conversationID, title string) error
}

// Job is one queued title generation request.
type Job struct {
	UserID         string
	ConversationID string
	Messages       []Message
}

// Service generates and persists titles asynchronously so that message
// ingestion never waits on the LLM.
type Service struct {
	logger     *logger.Logger
	generator  *Generator
	store      TitleStore
	jobs       chan Job
	workerPool sync.WaitGroup
	shutdown   chan struct{}
	closed     atomic.Bool
	timeout    time.Duration
}

// NewService creates a title service and starts its worker pool.
func NewService(log *logger.Logger, generator *Generator, store TitleStore, workers, queueSize int, timeout time.Duration) *Service {
	s := &Service{
		logger:    log.WithComponent("title_service"),
		generator: generator,
		store:     store,
		jobs:      make(chan Job, queueSize),
		shutdown:  make(chan struct{}),
		timeout:   timeout,
	}

	for i := 0; i < workers; i++ {
		s.workerPool.Add(1)
		go s.worker()
	}

	s.logger.Info("title service started", slog.Int("worker_pool_size", workers))

	return s
}

// worker processes title generation jobs until shutdown, then drains the queue.
func (s *Service) worker() {
	defer s.workerPool.Done()

	for {
		select {
		case job := <-s.jobs:
			s.handleJob(job)
		case <-s.shutdown:
			for {
				select {
				case job := <-s.jobs:
					s.handleJob(job)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) handleJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ctx = logger.WithUserID(ctx, job.UserID)
	ctx = logger.WithConversationID(ctx, job.ConversationID)
	log := s.logger.WithContext(ctx)

	title := s.generator.Generate(ctx, job.Messages, "")
	if title == DefaultTitle {
		log.Debug("skipping default title")
		return
	}

	if err := s.store.SetTitleIfUntitled(ctx, job.ConversationID, title); err != nil {
		log.Error("failed to persist generated title", slog.String("error", err.Error()))
		return
	}

	log.Info("title generated", slog.String("title", title))
}

// Enqueue queues a title generation job. Jobs are dropped with a warning when
// the queue is full; a missing title is recoverable from the UI.
func (s *Service) Enqueue(ctx context.Context, job Job) {
	if s.closed.Load() {
		s.logger.Warn("service is shutting down, cannot queue title generation")
		return
	}

	select {
	case s.jobs <- job:
		s.logger.WithContext(ctx).Debug("title generation queued",
			slog.String("conversation_id", job.ConversationID))
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("context cancelled, cannot queue title generation")
	default:
		s.logger.WithContext(ctx).Warn("title generation queue full, dropping request",
			slog.String("conversation_id", job.ConversationID))
	}
}

// Shutdown stops accepting jobs and waits for the workers to drain the queue.
func (s *Service) Shutdown() {
	s.logger.Info("shutting down title service")
	s.closed.Store(true)
	close(s.shutdown)
	s.workerPool.Wait()
	close(s.jobs)
	s.logger.Info("title service shutdown complete")
}
