package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"travelchat/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages
	DefaultBlockTimeout = 5 * time.Second
)

// Manager runs worker goroutines that consume the uploads stream.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	logger      *log.Logger
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	errBackoff  time.Duration
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int           // Number of worker goroutines
	BatchSize    int64         // Messages per read
	BlockTimeout time.Duration // Block time for XREADGROUP
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig, logger *log.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		logger:      logger.WithPrefix("Manager"),
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		errBackoff:  time.Second,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all of them have returned.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.consumer.EnsureGroup(ctx, queue.StreamUploads, queue.ConsumerGroupUploads); err != nil {
		return err
	}

	m.logger.Info("starting workers", "count", m.workerCount, "stream", queue.StreamUploads, "group", queue.ConsumerGroupUploads)

	var wg sync.WaitGroup
	for i := 1; i <= m.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.runWorker(ctx, workerID, consumerNameForWorker(workerID))
		}(i)
	}

	wg.Wait()
	m.logger.Info("all workers stopped")
	return nil
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(ctx context.Context, workerID int, consumerName string) {
	logger := m.logger.With("worker", workerID)
	logger.Debug("started", "consumer", consumerName)

	// Crash recovery: finish what a previous run left unacknowledged.
	m.processPending(ctx, logger, consumerName)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("shutting down")
			return
		default:
			m.processMessages(ctx, logger, consumerName)
		}
	}
}

// processPending handles messages that were delivered but not acknowledged.
func (m *Manager) processPending(ctx context.Context, logger *log.Logger, consumerName string) {
	for ctx.Err() == nil {
		messages, err := m.consumer.ReadPending(ctx, queue.StreamUploads, queue.ConsumerGroupUploads, consumerName, m.batchSize)
		if err != nil {
			logger.Error("read pending failed", "err", err)
			return
		}
		if len(messages) == 0 {
			return
		}

		logger.Info("processing pending messages", "count", len(messages))
		m.handleMessages(ctx, logger, messages)
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(ctx context.Context, logger *log.Logger, consumerName string) {
	messages, err := m.consumer.Read(ctx, queue.StreamUploads, queue.ConsumerGroupUploads, consumerName, m.batchSize, m.blockTime)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("read failed", "err", err)
		select {
		case <-ctx.Done():
		case <-time.After(m.errBackoff):
		}
		return
	}

	if len(messages) > 0 {
		m.handleMessages(ctx, logger, messages)
	}
}

// handleMessages processes a batch of messages and acknowledges them.
func (m *Manager) handleMessages(ctx context.Context, logger *log.Logger, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(ctx, msg.Event); err != nil {
			// Still ACK to prevent infinite retry loops
			logger.Error("handler error", "msgID", msg.ID, "err", err)
		}

		if err := m.consumer.Ack(ctx, queue.StreamUploads, queue.ConsumerGroupUploads, msg.ID); err != nil {
			logger.Error("ack error", "msgID", msg.ID, "err", err)
		}
	}
}

// consumerNameForWorker generates a unique consumer name for each worker.
func consumerNameForWorker(workerID int) string {
	return fmt.Sprintf("worker-%d", workerID)
}
