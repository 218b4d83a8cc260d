// Package service wires the ingestion pipeline together and exposes the
// operations the HTTP API and CLI need.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/satobs/internal/adapters/ephemeris"
	"github.com/okian/satobs/internal/adapters/mq/queue"
	"github.com/okian/satobs/internal/adapters/mq/worker"
	"github.com/okian/satobs/internal/adapters/notify"
	"github.com/okian/satobs/internal/adapters/progress"
	"github.com/okian/satobs/internal/adapters/repository"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/resolve"
	"github.com/okian/satobs/internal/domain/verify"
	"github.com/okian/satobs/pkg/logger"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Submission is a batch as received from a client.
type Submission struct {
	Records          []model.Record
	NotifyAddress    string
	SendConfirmation bool
}

// Service owns the pipeline components.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	ownsStore  bool
	eph        verify.Ephemeris
	tracker    *progress.Tracker
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	orch       *batch.Orchestrator
	publisher  *progress.MQTTPublisher
	dispatcher *notify.Dispatcher

	workerCount  int
	queueSize    int
	maxBatchSize int
	storeDriver  string
	sqlitePath   string
	ephemerisCfg ephemeris.Config
	progressTTL  time.Duration
	notifyURL    string
	mqttCfg      progress.MQTTConfig

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of batches processed concurrently.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many accepted batches may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxBatchSize sets the record limit per batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithStoreDriver selects memory or sqlite storage.
func WithStoreDriver(driver, sqlitePath string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		s.sqlitePath = sqlitePath
	}
}

// WithStore injects a ready store; the driver setting is then ignored. The
// caller closes it; Stop leaves it open so the service can be restarted.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithEphemerisConfig configures the HTTP ephemeris client.
func WithEphemerisConfig(cfg ephemeris.Config) Option {
	return func(s *Service) {
		s.ephemerisCfg = cfg
	}
}

// WithEphemeris injects an ephemeris handle instead of the HTTP client.
func WithEphemeris(eph verify.Ephemeris) Option {
	return func(s *Service) {
		s.eph = eph
	}
}

// WithProgressTTL sets how long finished batches stay pollable.
func WithProgressTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.progressTTL = ttl
		}
	}
}

// WithNotifyURL enables confirmations through a shoutrrr service URL.
func WithNotifyURL(u string) Option {
	return func(s *Service) {
		s.notifyURL = u
	}
}

// WithMQTT mirrors progress to an MQTT broker.
func WithMQTT(cfg progress.MQTTConfig) Option {
	return func(s *Service) {
		s.mqttCfg = cfg
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    64,
		maxBatchSize: batch.DefaultMaxBatchSize,
		storeDriver:  StoreMemory,
		ephemerisCfg: ephemeris.DefaultConfig(),
		progressTTL:  progress.DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	return s.start(ctx, true)
}

// Open builds the components without a queue or workers, for one-shot runs
// through Run.
func (s *Service) Open(ctx context.Context) error {
	return s.start(ctx, false)
}

func (s *Service) start(ctx context.Context, withWorkers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting ingestion service...")

	if s.store == nil {
		store, err := openStore(s.storeDriver, s.sqlitePath)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}
	if s.eph == nil {
		s.eph = ephemeris.New(s.ephemerisCfg)
	}

	s.tracker = progress.NewTracker(s.progressTTL)
	sinks := progress.Multi{s.tracker}
	if s.mqttCfg.Broker != "" {
		pub, err := progress.DialMQTT(ctx, s.mqttCfg)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		s.publisher = pub
		sinks = append(sinks, pub)
	}

	opts := []batch.Option{
		batch.WithProgressSink(sinks),
		batch.WithHealthChecker(s.store),
		batch.WithMaxBatchSize(s.maxBatchSize),
	}
	if s.notifyURL != "" {
		d, err := notify.New(s.notifyURL)
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		s.dispatcher = d
		opts = append(opts, batch.WithDispatcher(d))
	}
	s.orch = batch.NewOrchestrator(verify.New(s.eph), resolve.New(s.store), opts...)

	if withWorkers {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.pool = worker.NewPool(s.workerCount, s.queue, s.orch)
		// Workers outlive ctx; Stop drains the queue.
		s.pool.Start(context.WithoutCancel(ctx))
	}

	s.started = true
	s.logger.Info(ctx, "ingestion service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("max_batch_size", s.maxBatchSize),
		logger.String("store", s.storeDriver),
		logger.Bool("mqtt", s.publisher != nil),
		logger.Bool("notify", s.dispatcher != nil),
	)
	return nil
}

func openStore(driver, path string) (repository.Store, error) {
	switch driver {
	case StoreMemory:
		return repository.NewMemoryStore(), nil
	case StoreSQLite:
		store, err := repository.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Stop drains queued batches and releases resources.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ingestion service...")

	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Shutdown(ctx))
	}
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.ownsStore {
		errs = append(errs, s.store.Close())
		s.store = nil
		s.ownsStore = false
	}
	s.pool, s.queue = nil, nil
	s.publisher, s.dispatcher = nil, nil

	s.started = false
	s.logger.Info(ctx, "ingestion service stopped")
	return errors.Join(errs...)
}

// Submit accepts a batch for asynchronous processing and returns its ID.
func (s *Service) Submit(ctx context.Context, sub Submission) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.queue == nil {
		return "", ErrNotStarted
	}
	if len(sub.Records) > s.maxBatchSize {
		return "", fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(sub.Records), s.maxBatchSize)
	}

	b := s.newBatch(sub)
	s.tracker.Pending(b.ID, len(b.Records))
	if err := s.queue.Enqueue(ctx, b); err != nil {
		s.tracker.Forget(b.ID)
		return "", err
	}
	s.logger.Debug(ctx, "batch accepted",
		logger.String("batch_id", b.ID),
		logger.Int("records", len(b.Records)),
	)
	return b.ID, nil
}

// Run processes a batch synchronously.
func (s *Service) Run(ctx context.Context, sub Submission) (batch.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return batch.Result{}, ErrNotStarted
	}
	return s.orch.Run(ctx, s.newBatch(sub)), nil
}

func (s *Service) newBatch(sub Submission) batch.Batch {
	return batch.Batch{
		ID:               uuid.NewString(),
		Records:          sub.Records,
		CreatedAt:        time.Now().UTC(),
		NotifyAddress:    sub.NotifyAddress,
		SendConfirmation: sub.SendConfirmation,
	}
}

// Status returns the progress of a batch.
func (s *Service) Status(_ context.Context, batchID string) (progress.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return progress.Snapshot{}, ErrNotStarted
	}
	snap, ok := s.tracker.Get(batchID)
	if !ok {
		return progress.Snapshot{}, ErrBatchNotFound
	}
	return snap, nil
}

// Observation returns a stored observation.
func (s *Service) Observation(ctx context.Context, id uint64) (model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Observation{}, ErrNotStarted
	}
	return s.store.Observation(ctx, id)
}

// MaxBatchSize returns the record limit per batch.
func (s *Service) MaxBatchSize() int {
	return s.maxBatchSize
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"maxBatchSize": s.maxBatchSize,
		"storeDriver":  s.storeDriver,
	}
	if !s.started {
		return stats
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len()
	}
	stats["trackedBatches"] = s.tracker.Len()
	if counts, err := s.store.Counts(ctx); err == nil {
		stats["satellites"] = counts.Satellites
		stats["locations"] = counts.Locations
		stats["observations"] = counts.Observations
	}
	return stats
}
