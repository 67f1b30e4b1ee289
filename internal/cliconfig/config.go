package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultLogPath is the durable voltage log, relative to the working directory.
const DefaultLogPath = "voltage_data.txt"

// Config holds CLI configuration for voltship.
type Config struct {
	Port     string
	Match    string
	BaudRate int

	LogPath  string
	StateDir string

	VRef       float64
	Resolution int
	Offset     float64
	Precision  int

	BatchSize     int
	QueueCapacity int

	FlushInterval   time.Duration
	IdleInterval    time.Duration
	PollTimeout     time.Duration
	EnqueueTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Match:           "STM",
		BaudRate:        115200,
		LogPath:         DefaultLogPath,
		StateDir:        "", // Derived from the home directory during Validate
		VRef:            4.0,
		Resolution:      4095,
		Offset:          2.0,
		Precision:       3,
		BatchSize:       100,
		QueueCapacity:   100,
		FlushInterval:   time.Second,
		IdleInterval:    time.Second,
		PollTimeout:     100 * time.Millisecond,
		EnqueueTimeout:  2 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.LogPath == "" {
		return fmt.Errorf("log path is required")
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}

	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive")
	}
	if c.VRef <= 0 {
		return fmt.Errorf("v_ref must be positive")
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive")
	}
	if c.Precision < 0 {
		return fmt.Errorf("precision must not be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.QueueCapacity < c.BatchSize {
		return fmt.Errorf("queue capacity %d is below batch size %d", c.QueueCapacity, c.BatchSize)
	}

	for name, d := range map[string]time.Duration{
		"flush interval":   c.FlushInterval,
		"idle interval":    c.IdleInterval,
		"poll timeout":     c.PollTimeout,
		"enqueue timeout":  c.EnqueueTimeout,
		"shutdown timeout": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DefaultStateDir returns ~/.voltship, or .voltship when the home directory
// is not accessible.
func DefaultStateDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".voltship")
	}
	return ".voltship"
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, zero included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloatPtr sets a float64 value from a pointer, zero and negatives included.
func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setNonNegIntFromString is setIntFromString but accepts zero.
func (s *configSetter) setNonNegIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setAnyFloatFromString parses any float64, zero and negatives included.
func (s *configSetter) setAnyFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}
