package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/docconv/internal/correction"
	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/extraction"
	"github.com/cuongbtq/docconv/internal/queue"
	"github.com/cuongbtq/docconv/internal/render"
	"github.com/cuongbtq/docconv/internal/store"
)

// JobStore is the subset of the task store used by the worker
type JobStore interface {
	Read(ctx context.Context, filter store.Filter) ([]domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, id string, upd store.Update) error
	ClaimJob(ctx context.Context, id string) (*domain.Job, error)
	ResetStatus(ctx context.Context, from, to domain.Status) (int64, error)
}

// Extractor runs the extraction tool for one document
type Extractor interface {
	Extract(ctx context.Context, inputPath, outputDir string) error
}

// EventPublisher publishes job status events
type EventPublisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Store       JobStore
	Queue       *queue.Queue
	Extractor   Extractor
	Corrector   correction.Corrector // nil disables correction
	Renderer    render.Renderer
	Publisher   EventPublisher // optional
	Concurrency int

	// PollInterval is the dispatcher tick; zero leaves the dispatcher off
	PollInterval time.Duration

	// LocateArtifacts defaults to extraction.LocateArtifacts
	LocateArtifacts func(outputDir string) (extraction.Artifacts, error)
}

// Worker owns the dispatcher and the consumer pool
type Worker struct {
	logger      *slog.Logger
	store       JobStore
	queue       *queue.Queue
	extractor   Extractor
	corrector   correction.Corrector
	renderer    render.Renderer
	publisher   EventPublisher
	locate      func(outputDir string) (extraction.Artifacts, error)
	dispatcher  *Dispatcher
	concurrency int
	workerID    string
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	locate := cfg.LocateArtifacts
	if locate == nil {
		locate = extraction.LocateArtifacts
	}

	w := &Worker{
		logger:      cfg.Logger,
		store:       cfg.Store,
		queue:       cfg.Queue,
		extractor:   cfg.Extractor,
		corrector:   cfg.Corrector,
		renderer:    cfg.Renderer,
		publisher:   cfg.Publisher,
		locate:      locate,
		concurrency: concurrency,
		workerID:    uuid.New().String(),
		stopChan:    make(chan struct{}),
	}

	if cfg.PollInterval > 0 {
		w.dispatcher = NewDispatcher(cfg.Store, cfg.Queue, cfg.PollInterval, cfg.Logger)
	}

	return w
}

// Start runs the dispatcher and the consumer pool until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("queue_capacity", w.queue.Cap()),
		slog.Bool("correction_enabled", w.corrector != nil),
	)

	w.spawnWorkerPool(ctx)

	if w.dispatcher != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.dispatcher.Run(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop waits for the dispatcher and every consumer to return. A job that
// is being processed runs to completion first.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
