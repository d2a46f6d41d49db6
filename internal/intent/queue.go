package intent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
)

var (
	ErrQueueFull   = errors.New("intent queue full")
	ErrQueueClosed = errors.New("intent queue closed")
)

const defaultJobTimeout = 45 * time.Second

// Job is one extraction request. Client carries the model the originating
// request was bound to.
type Job struct {
	ConversationID string
	Message        string
	History        []domain.Message
	Client         llm.Client
}

type EventRecorder interface {
	Record(ctx context.Context, eventType, conversationID string, data map[string]any) error
}

type ExtractFunc func(ctx context.Context, client llm.Client, message string, history []domain.Message) (Result, error)

// Queue runs extractions on a fixed pool of workers. Submit never blocks;
// a full queue drops the job.
type Queue struct {
	jobs       chan Job
	workers    int
	extract    ExtractFunc
	events     EventRecorder
	logger     *zap.Logger
	jobTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewQueue(size, workers int, events EventRecorder, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		jobs:       make(chan Job, size),
		workers:    workers,
		extract:    Extract,
		events:     events,
		logger:     logger,
		jobTimeout: defaultJobTimeout,
	}
}

// WithExtractor replaces the extraction step. Used by tests.
func (q *Queue) WithExtractor(fn ExtractFunc) *Queue {
	q.extract = fn
	return q
}

// Start launches the workers. They run until Close or until ctx is done.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.logger.Warn("intent queue full, dropping job", zap.String("conversation_id", job.ConversationID))
		return ErrQueueFull
	}
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs and waits for queued jobs to finish. If ctx
// expires first the in-flight work is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	cancel := q.cancel
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("intent extraction panicked", zap.String("conversation_id", job.ConversationID), zap.Any("panic", r))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.jobTimeout)
	defer cancel()

	res, err := q.extract(jobCtx, job.Client, job.Message, job.History)
	if err != nil {
		q.logger.Debug("intent extraction failed", zap.String("conversation_id", job.ConversationID), zap.Error(err))
		return
	}
	if q.events == nil {
		return
	}
	data := map[string]any{
		"intentSignals":       res.IntentSignals,
		"zeroPartyData":       res.ZeroPartyData,
		"conversationOutcome": res.ConversationOutcome,
	}
	if err := q.events.Record(jobCtx, domain.EventIntentSignal, job.ConversationID, data); err != nil {
		q.logger.Warn("record intent signal failed", zap.String("conversation_id", job.ConversationID), zap.Error(err))
		return
	}
	q.logger.Info("intent signals captured",
		zap.String("conversation_id", job.ConversationID),
		zap.Int("signals", len(res.IntentSignals)),
		zap.String("outcome", res.ConversationOutcome),
	)
}
