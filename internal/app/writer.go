package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/internal/ports"
	"github.com/bft-labs/voltship/pkg/log"
)

// Default writer settings.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultPrecision     = 3
)

// WriterConfig contains configuration for the persistence writer.
type WriterConfig struct {
	// BatchSize is the number of records appended per write. Smaller batches
	// shrink the loss window on a crash; larger ones cut I/O.
	BatchSize int

	// FlushInterval bounds how long fewer than BatchSize readings may sit
	// in the queue.
	FlushInterval time.Duration

	// Precision is the number of decimals written per record.
	Precision int
}

// FlushEventEmitter is called after each appended batch.
type FlushEventEmitter interface {
	OnFlush(records int, duration time.Duration)
}

// Writer drains the queue in batches and appends them to the durable log.
// It exclusively owns the log store while running: clear and drain requests
// from the controller are executed on the writer's goroutine.
type Writer struct {
	config   WriterConfig
	queue    *SampleQueue
	store    ports.LogStore
	sessions ports.SessionRepository
	logger   log.Logger
	emitter  FlushEventEmitter
	onFault  func(error)

	drainReq chan chan error
	clearReq chan chan error
	done     chan struct{}

	mu      sync.Mutex
	session domain.Session

	flushed atomic.Int64
	buf     []byte
}

// NewWriter creates a writer. onFault is called once with a
// *domain.PersistenceError if an append fails; the writer stops afterwards.
func NewWriter(
	config WriterConfig,
	queue *SampleQueue,
	store ports.LogStore,
	sessions ports.SessionRepository,
	logger log.Logger,
	emitter FlushEventEmitter,
	onFault func(error),
) *Writer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.Precision < 0 {
		config.Precision = DefaultPrecision
	}
	return &Writer{
		config:   config,
		queue:    queue,
		store:    store,
		sessions: sessions,
		logger:   logger,
		emitter:  emitter,
		onFault:  onFault,
		drainReq: make(chan chan error),
		clearReq: make(chan chan error),
		done:     make(chan struct{}),
	}
}

// Run executes the flush loop until ctx is canceled or an append fails.
// On cancellation it flushes whatever is still queued before returning.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.flushAll()

		case <-w.queue.Ready():
			if err := w.flushFull(); err != nil {
				return err
			}

		case <-w.queue.FlushRequested():
			if err := w.flushAll(); err != nil {
				return err
			}

		case <-ticker.C:
			if err := w.flushAll(); err != nil {
				return err
			}

		case reply := <-w.drainReq:
			err := w.drain()
			reply <- err
			if err != nil {
				return err
			}

		case reply := <-w.clearReq:
			reply <- w.truncate()
		}
	}
}

// Drain flushes every queued reading and confirms the queue is empty.
// The controller calls it after the acquisition loop finished its final read.
func (w *Writer) Drain(ctx context.Context) error {
	return w.request(ctx, w.drainReq)
}

// Clear truncates the durable log on the writer's goroutine.
func (w *Writer) Clear(ctx context.Context) error {
	return w.request(ctx, w.clearReq)
}

func (w *Writer) request(ctx context.Context, ch chan chan error) error {
	reply := make(chan error, 1)
	select {
	case ch <- reply:
	case <-w.done:
		return domain.ErrWriterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// BeginSession starts counting flushed records for a new acquisition run.
func (w *Writer) BeginSession(s domain.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s.TotalRecords = w.session.TotalRecords
	w.session = s
}

// Resume restores bookkeeping from a previous writer, counters included.
func (w *Writer) Resume(s domain.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = s
}

// Session returns a copy of the current session bookkeeping.
func (w *Writer) Session() domain.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Flushed returns the number of records appended since the writer was created.
func (w *Writer) Flushed() int64 {
	return w.flushed.Load()
}

// flushFull appends complete batches only.
func (w *Writer) flushFull() error {
	for w.queue.Len() >= w.config.BatchSize {
		if err := w.write(w.queue.DequeueBatch(w.config.BatchSize)); err != nil {
			return err
		}
	}
	return nil
}

// flushAll appends everything queued, BatchSize records at a time.
func (w *Writer) flushAll() error {
	for {
		batch := w.queue.DequeueBatch(w.config.BatchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := w.write(batch); err != nil {
			return err
		}
	}
}

func (w *Writer) drain() error {
	if err := w.flushAll(); err != nil {
		return err
	}
	// The producer is quiescent by now; anything left is a bug upstream,
	// but it is still persisted rather than lost.
	if rest := w.queue.DrainAll(); len(rest) > 0 {
		w.logger.Warn("readings queued after final drain", log.Int("records", len(rest)))
		if err := w.write(rest); err != nil {
			return err
		}
	}
	w.logger.Info("drain complete", log.Int64("flushed", w.flushed.Load()))
	return nil
}

// write serializes one batch and appends it with a single store call.
func (w *Writer) write(batch []domain.VoltageReading) error {
	if len(batch) == 0 {
		return nil
	}

	w.buf = w.buf[:0]
	for _, r := range batch {
		w.buf = appendVolts(w.buf, r.Volts, w.config.Precision)
		w.buf = append(w.buf, '\n')
	}

	start := time.Now()
	if err := w.store.Append(w.buf); err != nil {
		perr := &domain.PersistenceError{Path: w.store.Path(), Op: "append", Err: err}
		w.logger.Error("append failed",
			log.Err(err),
			log.Int("records", len(batch)),
			log.Int("bytes", len(w.buf)),
		)
		w.queue.Close()
		if w.onFault != nil {
			w.onFault(perr)
		}
		return perr
	}
	duration := time.Since(start)

	w.flushed.Add(int64(len(batch)))
	w.logger.Debug("batch flushed",
		log.Int("records", len(batch)),
		log.Int("bytes", len(w.buf)),
		log.Duration("duration", duration),
	)
	if w.emitter != nil {
		w.emitter.OnFlush(len(batch), duration)
	}

	w.mu.Lock()
	w.session.RecordFlush(len(batch))
	session := w.session
	w.mu.Unlock()

	if w.sessions != nil && !session.IsEmpty() {
		if err := w.sessions.Save(context.Background(), session); err != nil {
			w.logger.Error("failed to save session", log.Err(err))
		}
	}
	return nil
}

// truncate empties the log. Readings still queued belong to the cleared
// log and are discarded with it.
func (w *Writer) truncate() error {
	if dropped := len(w.queue.DrainAll()); dropped > 0 {
		w.logger.Debug("discarded queued readings", log.Int("count", dropped))
	}
	if err := w.store.Truncate(); err != nil {
		return &domain.PersistenceError{Path: w.store.Path(), Op: "truncate", Err: err}
	}
	w.logger.Info("log cleared", log.Path(w.store.Path()))
	return nil
}
