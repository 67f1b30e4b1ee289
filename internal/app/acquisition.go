package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/internal/ports"
	"github.com/bft-labs/voltship/pkg/log"
)

// Default acquisition timings.
const (
	DefaultIdleInterval   = time.Second
	DefaultEnqueueTimeout = 2 * time.Second
)

// Coordinator is the acquisition loop's view of the controller. The loop
// never changes state itself; it reads it and reports back.
type Coordinator interface {
	// Snapshot returns the current state and its epoch.
	Snapshot() (State, uint64)

	// AcquisitionDrained reports that the final read for the Stopping phase
	// identified by epoch has been enqueued.
	AcquisitionDrained(epoch uint64)

	// Fault reports a transport or persistence failure.
	Fault(err error)
}

// AcquisitionConfig contains configuration for the acquisition loop.
type AcquisitionConfig struct {
	Calibration    Calibration
	Precision      int
	IdleInterval   time.Duration
	EnqueueTimeout time.Duration
}

// Acquisition reads frames from one serial connection, converts them, and
// feeds the queue. It exclusively owns the connection.
type Acquisition struct {
	config   AcquisitionConfig
	conn     ports.Connection
	queue    *SampleQueue
	coord    Coordinator
	observer ports.Observer
	logger   log.Logger
	wake     chan struct{}

	// haltReported is set once the closed queue has been announced and
	// cleared by the next successful enqueue. Loop goroutine only.
	haltReported bool

	decoded  atomic.Int64
	rejected atomic.Int64
}

// NewAcquisition creates a loop bound to conn.
func NewAcquisition(
	config AcquisitionConfig,
	conn ports.Connection,
	queue *SampleQueue,
	coord Coordinator,
	observer ports.Observer,
	logger log.Logger,
) *Acquisition {
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultIdleInterval
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = DefaultEnqueueTimeout
	}
	return &Acquisition{
		config:   config,
		conn:     conn,
		queue:    queue,
		coord:    coord,
		observer: observer,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Wake cuts the current idle sleep short so a state change is seen promptly.
func (a *Acquisition) Wake() {
	signal(a.wake)
}

// Run executes the loop until ctx is canceled or the transport fails.
// A transport failure is reported to the coordinator and returned; the loop
// does not reconnect.
func (a *Acquisition) Run(ctx context.Context) error {
	var drainedEpoch uint64

	for {
		if ctx.Err() != nil {
			return nil
		}

		state, epoch := a.coord.Snapshot()
		switch state {
		case StateRunning:
			line, err := a.conn.ReadLine()
			if errors.Is(err, ports.ErrNoLine) {
				continue
			}
			if err != nil {
				return a.fail("read", err)
			}
			a.process(ctx, line, true)

		case StateStopping:
			if epoch == drainedEpoch {
				a.idle(ctx)
				continue
			}
			if err := a.finalRead(ctx); err != nil {
				return err
			}
			drainedEpoch = epoch
			a.coord.AcquisitionDrained(epoch)

		default:
			a.idle(ctx)
		}
	}
}

// finalRead decodes every byte already buffered on the wire, once.
func (a *Acquisition) finalRead(ctx context.Context) error {
	chunk, err := a.conn.ReadAvailable()
	if err != nil {
		return a.fail("drain", err)
	}

	frames, rest := splitFrames(chunk)
	if len(frames) > 0 || len(rest) > 0 {
		a.notify(domain.EventProgress, "Stop Request Received. Data logging still in progress")
		a.notify(domain.EventProgress, "Do not export or save until data logging is complete")
	}
	for _, frame := range frames {
		a.process(ctx, frame, false)
	}
	if len(rest) > 0 {
		a.rejected.Add(1)
		a.notify(domain.EventDecodeError, fmt.Sprintf("Incomplete frame discarded at stop: %q", rest))
	}

	a.logger.Debug("final read complete",
		log.Int("frames", len(frames)),
		log.Int("bytes", len(chunk)),
	)
	return nil
}

// process decodes, converts, and enqueues one frame.
func (a *Acquisition) process(ctx context.Context, line []byte, display bool) {
	sample, err := Decode(line)
	if err != nil {
		a.rejected.Add(1)
		var de *domain.DecodeError
		if errors.As(err, &de) {
			a.notify(domain.EventDecodeError, fmt.Sprintf("Invalid data received: %q", de.Line))
		}
		a.logger.Debug("frame rejected", log.Err(err))
		return
	}

	reading := domain.VoltageReading{
		Volts:     a.config.Calibration.Convert(sample.Raw),
		Timestamp: sample.Timestamp,
	}
	if !a.enqueue(ctx, reading) {
		return
	}
	a.decoded.Add(1)

	if display && a.observer != nil {
		a.observer.Notify(domain.Event{
			Kind:    domain.EventSample,
			Message: fmt.Sprintf("Voltage = %s V", FormatVolts(reading.Volts, a.config.Precision)),
			Volts:   reading.Volts,
			At:      reading.Timestamp,
		})
	}
}

// enqueue applies backpressure: while the writer is stalled it keeps retrying
// instead of dropping the reading. It gives up only when the queue is closed
// (persistence halted) or ctx ends, and says so. A closed queue is announced
// once until readings flow again.
func (a *Acquisition) enqueue(ctx context.Context, r domain.VoltageReading) bool {
	for {
		err := a.queue.Enqueue(r, a.config.EnqueueTimeout)
		switch {
		case err == nil:
			a.haltReported = false
			return true
		case errors.Is(err, domain.ErrQueueFull):
			a.logger.Warn("queue full, writer stalled",
				log.Int("capacity", a.queue.Cap()),
				log.Duration("waited", a.config.EnqueueTimeout),
			)
			a.notify(domain.EventProgress, "Writer stalled: sample queue full, waiting")
			if ctx.Err() != nil {
				a.notify(domain.EventPersistenceError, "Reading not persisted: acquisition canceled while queue full")
				return false
			}
		default:
			if !a.haltReported {
				a.haltReported = true
				a.logger.Warn("log writer halted, dropping readings", log.Err(err))
				a.notify(domain.EventPersistenceError, "Reading not persisted: log writer halted")
			}
			return false
		}
	}
}

func (a *Acquisition) fail(op string, err error) error {
	terr := &domain.TransportError{Port: a.conn.Port(), Op: op, Err: err}
	a.logger.Error("serial transport failed", log.Err(terr))
	a.coord.Fault(terr)
	return terr
}

func (a *Acquisition) idle(ctx context.Context) {
	t := time.NewTimer(a.config.IdleInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-a.wake:
	case <-t.C:
	}
}

func (a *Acquisition) notify(kind domain.EventKind, msg string) {
	if a.observer != nil {
		a.observer.Notify(domain.NewEvent(kind, msg))
	}
}

// Stats returns the number of frames enqueued and rejected so far.
func (a *Acquisition) Stats() (decoded, rejected int64) {
	return a.decoded.Load(), a.rejected.Load()
}
