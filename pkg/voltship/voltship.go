package voltship

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/voltship/internal/adapters/fs"
	serialAdapter "github.com/bft-labs/voltship/internal/adapters/serial"
	"github.com/bft-labs/voltship/internal/adapters/xlsx"
	"github.com/bft-labs/voltship/internal/app"
	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/internal/ports"
	"github.com/bft-labs/voltship/pkg/log"
)

// ExportResult summarizes one workbook export.
type ExportResult = xlsx.Result

// Voltship is a serial voltage acquisition pipeline that can be embedded in
// other applications. Use New() to create an instance, Connect() to open the
// device, then Start() and Stop() to record.
//
// Operations are serialized; Status and the observer may be used from any
// goroutine.
type Voltship struct {
	config     Config
	logger     log.Logger
	observer   ports.Observer
	dialer     ports.Dialer
	discoverer ports.Discoverer
	store      ports.LogStore
	sessions   ports.SessionRepository
	exporter   *xlsx.Exporter
	queue      *app.SampleQueue
	lifecycle  *app.Lifecycle
	emitter    *eventEmitter

	ctx    context.Context
	cancel context.CancelFunc

	drained chan uint64
	faults  chan error

	opMu sync.Mutex

	mu          sync.RWMutex
	conn        ports.Connection
	acq         *app.Acquisition
	acqCancel   context.CancelFunc
	acqDone     chan struct{}
	writer      *app.Writer
	calibration app.Calibration
	closed      bool
}

// New creates a Voltship instance in StateIdle with no device connected.
// The voltage log is opened (or created) immediately and the writer started.
// Returns an error if configuration is invalid or the log cannot be opened.
func New(cfg Config, opts ...Option) (*Voltship, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	observer := o.observer
	if observer == nil {
		observer = ports.ObserverFunc(func(domain.Event) {})
	}
	dialer := o.dialer
	if dialer == nil {
		dialer = serialAdapter.NewDialer(cfg.BaudRate, cfg.PollTimeout)
	}
	discoverer := o.discoverer
	if discoverer == nil {
		discoverer = serialAdapter.NewDiscoverer(cfg.Match)
	}
	sessions := o.sessions
	if sessions == nil {
		sessions = fs.NewSessionFileRepository(cfg.StateDir)
	}
	store := o.store
	if store == nil {
		f, err := fs.OpenLogFile(cfg.LogPath)
		if err != nil {
			return nil, &domain.PersistenceError{Path: cfg.LogPath, Op: "open", Err: err}
		}
		store = f
	}

	v := &Voltship{
		config:      cfg,
		logger:      logger,
		observer:    observer,
		dialer:      dialer,
		discoverer:  discoverer,
		store:       store,
		sessions:    sessions,
		exporter:    xlsx.NewExporter(logger),
		queue:       app.NewSampleQueue(cfg.QueueCapacity),
		drained:     make(chan uint64, 4),
		faults:      make(chan error, 1),
		calibration: cfg.calibration(),
	}
	v.emitter = &eventEmitter{v: v}
	v.lifecycle = app.NewLifecycle(logger, v.emitter)
	v.ctx, v.cancel = context.WithCancel(context.Background())

	last, err := sessions.Load(v.ctx)
	if err != nil {
		logger.Warn("failed to load last session", log.Err(err))
		last = domain.Session{}
	} else if !last.IsEmpty() {
		logger.Info("resuming session totals",
			log.String("id", last.ID),
			log.Int64("records", last.Records),
			log.Int64("total_records", last.TotalRecords),
			log.Port(last.Port),
		)
	}

	v.mu.Lock()
	v.startWriterLocked(last)
	v.mu.Unlock()

	return v, nil
}

// Connect opens the serial device. An empty port runs discovery. Any
// earlier connection is closed first. From StateStopped or StateError the
// pipeline returns to StateIdle. Returns ErrBusy while acquiring.
func (v *Voltship) Connect(ctx context.Context, port string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return domain.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.lifecycle.Active() {
		return domain.ErrBusy
	}

	if port == "" {
		found, err := v.discoverer.Discover()
		if err != nil {
			if errors.Is(err, domain.ErrDeviceNotFound) {
				v.notify(domain.EventTransportError, "Microcontroller Not Found")
			} else {
				v.notify(domain.EventTransportError, fmt.Sprintf("Port discovery failed: %v", err))
			}
			return err
		}
		port = found
		v.notify(domain.EventStatus, fmt.Sprintf("STM32 port is %s.\nMicrocontroller Connected", port))
	}

	v.disconnect()

	conn, err := v.dialer.Dial(port)
	if err != nil {
		terr := &domain.TransportError{Port: port, Op: "open", Err: err}
		v.logger.Error("connect failed", log.Err(terr))
		v.notify(domain.EventTransportError, fmt.Sprintf("Serial error: %v", terr))
		return terr
	}
	v.notify(domain.EventStatus, fmt.Sprintf("Serial port %s is open.", port))

	switch v.lifecycle.State() {
	case app.StateStopped, app.StateError:
		if err := v.lifecycle.TransitionTo(app.StateIdle, "connected to "+port); err != nil {
			conn.Close()
			return err
		}
	}

	v.mu.Lock()
	if !v.writerAliveLocked() {
		v.startWriterLocked(v.writer.Session())
	}
	v.conn = conn
	cal := v.calibration
	v.startAcquisitionLocked(conn, cal)
	v.mu.Unlock()

	v.logger.Info("connected",
		log.Port(port),
		log.Float64("v_ref", cal.VRef),
		log.Int("resolution", cal.Resolution),
		log.Float64("offset", cal.Offset),
	)
	return nil
}

// Start begins acquisition on the connected device and opens a new session.
// Returns ErrNotConnected without a live connection, ErrAlreadyRunning while
// Running or Stopping, and ErrInvalidTransition from StateError.
func (v *Voltship) Start(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return domain.ErrClosed
	}

	switch v.lifecycle.State() {
	case app.StateRunning, app.StateStopping:
		return domain.ErrAlreadyRunning
	case app.StateError:
		return fmt.Errorf("%w: reconnect before starting", domain.ErrInvalidTransition)
	}

	v.mu.Lock()
	if v.conn == nil || v.acq == nil || closedChan(v.acqDone) {
		v.mu.Unlock()
		v.notify(domain.EventTransportError, "No Device Found")
		return domain.ErrNotConnected
	}
	if !v.writerAliveLocked() {
		v.startWriterLocked(v.writer.Session())
	}
	acq, conn, w := v.acq, v.conn, v.writer
	v.mu.Unlock()

	// Readings still queued from an earlier run belong to that session.
	if err := w.Drain(ctx); err != nil {
		v.logger.Error("failed to flush previous session", log.Err(err))
		return err
	}

	w.BeginSession(domain.Session{
		ID:        uuid.NewString(),
		Port:      conn.Port(),
		StartedAt: time.Now(),
	})
	if err := v.sessions.Save(ctx, w.Session()); err != nil {
		v.logger.Warn("failed to save session", log.Err(err))
	}

	v.clearSignals()
	if err := v.lifecycle.TransitionTo(app.StateRunning, "start requested"); err != nil {
		return err
	}
	acq.Wake()

	v.notify(domain.EventStatus, "Reading sensor data")
	return nil
}

// Stop ends acquisition without losing data: the loop performs one final
// read of bytes already received, the writer drains the queue, and only then
// does the pipeline report StateStopped. If a fault occurs while draining the
// pipeline moves to StateError and the fault is returned.
func (v *Voltship) Stop(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return domain.ErrClosed
	}
	return v.stopLocked(ctx)
}

func (v *Voltship) stopLocked(ctx context.Context) error {
	switch v.lifecycle.State() {
	case app.StateRunning:
	case app.StateError:
		if f := v.lifecycle.Fault(); f != nil {
			return fmt.Errorf("%w: %v", domain.ErrNotRunning, f)
		}
		return domain.ErrNotRunning
	default:
		return domain.ErrNotRunning
	}

	v.mu.RLock()
	acq, done, w := v.acq, v.acqDone, v.writer
	v.mu.RUnlock()

	if err := v.lifecycle.TransitionTo(app.StateStopping, "stop requested"); err != nil {
		return err
	}
	_, epoch := v.lifecycle.Snapshot()
	acq.Wake()

	if err := v.awaitDrained(ctx, epoch, done); err != nil {
		return err
	}

	if err := w.Drain(ctx); err != nil {
		if f := v.lifecycle.Fault(); f != nil {
			return f
		}
		v.lifecycle.Fail(err)
		return err
	}

	if err := v.lifecycle.TransitionTo(app.StateStopped, "drain complete"); err != nil {
		if f := v.lifecycle.Fault(); f != nil {
			return f
		}
		return err
	}
	v.notify(domain.EventStatus, "Data Logging is Complete")
	return nil
}

// awaitDrained waits for the acquisition loop to finish its final read for
// the Stopping phase identified by epoch.
func (v *Voltship) awaitDrained(ctx context.Context, epoch uint64, done <-chan struct{}) error {
	for {
		select {
		case e := <-v.drained:
			if e == epoch {
				return nil
			}
		case err := <-v.faults:
			return err
		case <-done:
			if f := v.lifecycle.Fault(); f != nil {
				return f
			}
			return domain.ErrNotConnected
		case <-ctx.Done():
			err := fmt.Errorf("stop aborted: %w", ctx.Err())
			v.lifecycle.Fail(err)
			return err
		}
	}
}

// Clear empties the voltage log. Returns ErrBusy while acquiring.
func (v *Voltship) Clear(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return domain.ErrClosed
	}
	if v.lifecycle.Active() {
		return domain.ErrBusy
	}

	v.mu.RLock()
	w := v.writer
	v.mu.RUnlock()

	err := w.Clear(ctx)
	if errors.Is(err, domain.ErrWriterStopped) {
		// Nobody owns the store while the writer is down.
		if terr := v.store.Truncate(); terr != nil {
			err = &domain.PersistenceError{Path: v.store.Path(), Op: "truncate", Err: terr}
		} else {
			err = nil
		}
	}
	if err != nil {
		v.notify(domain.EventPersistenceError, fmt.Sprintf("Clear failed: %v", err))
		return err
	}
	v.notify(domain.EventStatus, "Data cleared")
	return nil
}

// Export writes the voltage log to an Excel workbook at path, or appends to
// the existing workbook when appendTo is set. Unparsable log lines are
// skipped and reported one event each. Returns ErrBusy while acquiring.
func (v *Voltship) Export(ctx context.Context, path string, appendTo bool) (ExportResult, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return ExportResult{}, domain.ErrClosed
	}
	if v.lifecycle.Active() {
		v.notify(domain.EventExportError, "Do not export or save until data logging is complete")
		return ExportResult{}, domain.ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return ExportResult{}, err
	}

	lines, err := fs.ReadLines(v.store.Path())
	if err != nil {
		eerr := &domain.ExportError{Text: v.store.Path(), Err: err}
		v.notify(domain.EventExportError, fmt.Sprintf("An error occurred: %v", eerr))
		return ExportResult{}, eerr
	}

	res, err := v.exporter.Export(path, lines, appendTo, func(lineErr error) {
		v.notify(domain.EventExportError, lineErr.Error())
	})
	if err != nil {
		v.notify(domain.EventExportError, fmt.Sprintf("An error occurred: %v", err))
		return res, err
	}

	if appendTo {
		v.notify(domain.EventStatus, fmt.Sprintf("Data appended and exported to %s", path))
	} else {
		v.notify(domain.EventStatus, fmt.Sprintf("Data exported to %s", path))
	}
	return res, nil
}

// SetCalibration replaces the conversion constants. Calibration is fixed for
// the lifetime of a connection, so the values apply from the next Connect.
func (v *Voltship) SetCalibration(c Calibration) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	v.mu.Lock()
	changed := v.calibration != app.Calibration(c)
	v.calibration = app.Calibration(c)
	v.mu.Unlock()

	if changed {
		v.notify(domain.EventStatus, fmt.Sprintf(
			"Calibration updated (v_ref=%g, resolution=%d, offset=%g); takes effect at next connect",
			c.VRef, c.Resolution, c.Offset))
	}
	return nil
}

// Status returns a snapshot of the pipeline.
// Safe to call concurrently from any goroutine.
func (v *Voltship) Status() Status {
	st := Status{
		State:      convertState(v.lifecycle.State()),
		Reason:     v.lifecycle.Reason(),
		Fault:      v.lifecycle.Fault(),
		QueueDepth: v.queue.Len(),
		At:         time.Now(),
	}

	v.mu.RLock()
	conn, acq, w := v.conn, v.acq, v.writer
	v.mu.RUnlock()

	if conn != nil {
		st.Port = conn.Port()
	}
	if acq != nil {
		st.Decoded, st.Rejected = acq.Stats()
	}
	if w != nil {
		st.Session = w.Session()
		st.Flushed = st.Session.TotalRecords
	}
	return st
}

// LogPath returns the location of the voltage log.
func (v *Voltship) LogPath() string {
	return v.store.Path()
}

// Shutdown stops acquisition with a full drain if it is running, closes the
// device, stops the writer, and waits for workers up to the configured
// shutdown timeout (or ctx's deadline, whichever is sooner). It returns
// ErrShutdownTimeout if workers did not exit. Further calls are no-ops.
func (v *Voltship) Shutdown(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.isClosed() {
		return nil
	}

	var errs []error
	if v.lifecycle.State() == app.StateRunning {
		if err := v.stopLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	v.disconnect()

	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	// Writers flush whatever is still queued when canceled.
	v.cancel()

	timeout := v.config.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if err := v.lifecycle.WaitWithTimeout(timeout); err != nil {
		errs = append(errs, err)
	}

	if err := v.store.Close(); err != nil {
		errs = append(errs, &domain.PersistenceError{Path: v.store.Path(), Op: "close", Err: err})
	}

	v.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// startWriterLocked launches a writer over the shared queue that continues
// the counters of prev. Caller holds v.mu.
func (v *Voltship) startWriterLocked(prev domain.Session) {
	v.queue.Reopen()
	w := app.NewWriter(app.WriterConfig{
		BatchSize:     v.config.BatchSize,
		FlushInterval: v.config.FlushInterval,
		Precision:     v.config.Precision,
	}, v.queue, v.store, v.sessions, v.logger, v.emitter, v.fault)
	w.Resume(prev)
	v.writer = w

	ctx, cancel := context.WithCancel(v.ctx)
	v.lifecycle.AddWorker()
	go func() {
		defer v.lifecycle.WorkerDone()
		defer cancel()
		if err := w.Run(ctx); err != nil {
			v.logger.Error("writer stopped", log.Err(err))
		}
	}()
}

func (v *Voltship) writerAliveLocked() bool {
	return v.writer != nil && !closedChan(v.writer.Done())
}

// startAcquisitionLocked launches the read loop for conn. Caller holds v.mu.
func (v *Voltship) startAcquisitionLocked(conn ports.Connection, cal app.Calibration) {
	acq := app.NewAcquisition(app.AcquisitionConfig{
		Calibration:    cal,
		Precision:      v.config.Precision,
		IdleInterval:   v.config.IdleInterval,
		EnqueueTimeout: v.config.EnqueueTimeout,
	}, conn, v.queue, coordinator{v}, v.observer, v.logger)

	ctx, cancel := context.WithCancel(v.ctx)
	done := make(chan struct{})
	v.acq, v.acqCancel, v.acqDone = acq, cancel, done

	v.lifecycle.AddWorker()
	go func() {
		defer v.lifecycle.WorkerDone()
		defer close(done)
		// Transport faults reach the controller through the coordinator.
		_ = acq.Run(ctx)
	}()
}

// disconnect stops the read loop and closes the device. Caller holds opMu
// and the pipeline is not acquiring.
func (v *Voltship) disconnect() {
	v.mu.Lock()
	conn, acq, cancel, done := v.conn, v.acq, v.acqCancel, v.acqDone
	v.conn, v.acq, v.acqCancel, v.acqDone = nil, nil, nil, nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
		acq.Wake()
		<-done
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			v.logger.Warn("failed to close serial port", log.Port(conn.Port()), log.Err(err))
		}
	}
}

// fault handles a transport or persistence failure reported by a worker.
func (v *Voltship) fault(err error) {
	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		v.notify(domain.EventPersistenceError, fmt.Sprintf("Log write failed: %v", err))
	} else {
		v.notify(domain.EventTransportError, fmt.Sprintf("Serial error: %v", err))
	}

	v.lifecycle.Fail(err)

	select {
	case v.faults <- err:
	default:
	}
}

func (v *Voltship) clearSignals() {
	for {
		select {
		case <-v.drained:
		case <-v.faults:
		default:
			return
		}
	}
}

func (v *Voltship) isClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

func (v *Voltship) notify(kind domain.EventKind, msg string) {
	v.observer.Notify(domain.NewEvent(kind, msg))
}

func closedChan(ch <-chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// coordinator is the acquisition loop's handle on the controller.
type coordinator struct {
	v *Voltship
}

func (c coordinator) Snapshot() (app.State, uint64) {
	return c.v.lifecycle.Snapshot()
}

func (c coordinator) AcquisitionDrained(epoch uint64) {
	select {
	case c.v.drained <- epoch:
	default:
		c.v.logger.Warn("drain report dropped", log.Int64("epoch", int64(epoch)))
	}
}

func (c coordinator) Fault(err error) {
	c.v.fault(err)
}

// eventEmitter adapts lifecycle and writer callbacks to observer events.
type eventEmitter struct {
	v *Voltship
}

func (e *eventEmitter) OnStateChange(previous, current app.State, reason string) {
	msg := fmt.Sprintf("State: %s -> %s", previous, current)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	e.v.notify(domain.EventStateChange, msg)
}

func (e *eventEmitter) OnFlush(records int, duration time.Duration) {
	if e.v.lifecycle.State() == app.StateStopping {
		e.v.notify(domain.EventProgress, fmt.Sprintf("Saved %d readings", records))
	}
}
