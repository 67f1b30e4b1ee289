package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Offset and precision are pointers because zero is a meaningful value.
type FileConfig struct {
	Port            string   `toml:"port"`
	Match           string   `toml:"match"`
	BaudRate        int      `toml:"baud_rate"`
	LogPath         string   `toml:"log_path"`
	StateDir        string   `toml:"state_dir"`
	VRef            float64  `toml:"v_ref"`
	Resolution      int      `toml:"resolution"`
	Offset          *float64 `toml:"offset"`
	Precision       *int     `toml:"precision"`
	BatchSize       int      `toml:"batch_size"`
	QueueCapacity   int      `toml:"queue_capacity"`
	FlushInterval   string   `toml:"flush_interval"`
	IdleInterval    string   `toml:"idle_interval"`
	PollTimeout     string   `toml:"poll_timeout"`
	EnqueueTimeout  string   `toml:"enqueue_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	LogLevel        string   `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.voltship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".voltship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", fc.Port, &cfg.Port)
	s.setString("match", fc.Match, &cfg.Match)
	s.setString("log", fc.LogPath, &cfg.LogPath)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("baud", fc.BaudRate, &cfg.BaudRate)
	s.setInt("resolution", fc.Resolution, &cfg.Resolution)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	s.setIntPtr("precision", fc.Precision, &cfg.Precision)

	s.setFloat("v-ref", fc.VRef, &cfg.VRef)
	s.setFloatPtr("offset", fc.Offset, &cfg.Offset)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"flush-interval", fc.FlushInterval, &cfg.FlushInterval},
		{"idle-interval", fc.IdleInterval, &cfg.IdleInterval},
		{"poll-timeout", fc.PollTimeout, &cfg.PollTimeout},
		{"enqueue-timeout", fc.EnqueueTimeout, &cfg.EnqueueTimeout},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load layers the config file (path, or the default location when empty),
// the .env file, and the environment onto cfg, then validates it. A missing
// file at the default location is skipped. It returns the file path used.
func Load(cfg *Config, path string, changed map[string]bool) (string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if path != "" && (explicit || FileExists(path)) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
	}

	if err := LoadDotEnv(); err != nil {
		return "", fmt.Errorf("load .env: %w", err)
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return path, nil
}
