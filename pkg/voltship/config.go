package voltship

import (
	"fmt"
	"time"

	"github.com/bft-labs/voltship/internal/app"
	"github.com/bft-labs/voltship/internal/domain"
)

// Config holds the pipeline settings. Start from DefaultConfig: zero Offset
// and Precision are meaningful, so SetDefaults does not fill them.
type Config struct {
	// LogPath is the durable voltage log. Existing content is kept.
	LogPath string

	// StateDir holds status.json.
	StateDir string

	// Match is the port description substring used by discovery.
	Match string

	// BaudRate and PollTimeout configure the serial dialer.
	BaudRate    int
	PollTimeout time.Duration

	// Calibration constants, fixed for the lifetime of a connection.
	VRef       float64
	Resolution int
	Offset     float64

	// Precision is the number of decimals per log record.
	Precision int

	BatchSize       int
	QueueCapacity   int
	FlushInterval   time.Duration
	IdleInterval    time.Duration
	EnqueueTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	cal := app.DefaultCalibration()
	return Config{
		LogPath:         "voltage_data.txt",
		StateDir:        ".voltship",
		Match:           "STM",
		BaudRate:        115200,
		PollTimeout:     100 * time.Millisecond,
		VRef:            cal.VRef,
		Resolution:      cal.Resolution,
		Offset:          cal.Offset,
		Precision:       app.DefaultPrecision,
		BatchSize:       app.DefaultBatchSize,
		QueueCapacity:   app.DefaultQueueCapacity,
		FlushInterval:   app.DefaultFlushInterval,
		IdleInterval:    app.DefaultIdleInterval,
		EnqueueTimeout:  app.DefaultEnqueueTimeout,
		ShutdownTimeout: app.ShutdownTimeout,
	}
}

// SetDefaults fills zero-valued fields that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.Match == "" {
		c.Match = d.Match
	}
	if c.BaudRate == 0 {
		c.BaudRate = d.BaudRate
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.VRef == 0 {
		c.VRef = d.VRef
	}
	if c.Resolution == 0 {
		c.Resolution = d.Resolution
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = c.BatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.IdleInterval == 0 {
		c.IdleInterval = d.IdleInterval
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = d.EnqueueTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// Validate reports the first invalid field, wrapped in domain.ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.calibration().Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	switch {
	case c.LogPath == "":
		return fmt.Errorf("%w: log path is required", domain.ErrInvalidConfig)
	case c.Precision < 0:
		return fmt.Errorf("%w: precision must not be negative", domain.ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", domain.ErrInvalidConfig)
	case c.QueueCapacity < c.BatchSize:
		return fmt.Errorf("%w: queue capacity %d below batch size %d",
			domain.ErrInvalidConfig, c.QueueCapacity, c.BatchSize)
	case c.FlushInterval <= 0, c.IdleInterval <= 0, c.EnqueueTimeout <= 0, c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: intervals and timeouts must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

func (c Config) calibration() app.Calibration {
	return app.Calibration{VRef: c.VRef, Resolution: c.Resolution, Offset: c.Offset}
}

// Calibration is the conversion constants applied to raw ADC values.
type Calibration struct {
	VRef       float64
	Resolution int
	Offset     float64
}

// Validate checks that the calibration can be used for conversion.
func (c Calibration) Validate() error {
	return app.Calibration(c).Validate()
}
