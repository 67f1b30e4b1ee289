package cliconfig

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "VOLTSHIP_"

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Variables that are already set win. A missing
// file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnvConfig applies VOLTSHIP_* environment variables to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("port", env("PORT"), &cfg.Port)
	s.setString("match", env("MATCH"), &cfg.Match)
	s.setString("log", env("LOG_PATH"), &cfg.LogPath)
	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	ints := []struct {
		flag string
		name string
		dst  *int
	}{
		{"baud", "BAUD_RATE", &cfg.BaudRate},
		{"resolution", "RESOLUTION", &cfg.Resolution},
		{"batch-size", "BATCH_SIZE", &cfg.BatchSize},
		{"queue-capacity", "QUEUE_CAPACITY", &cfg.QueueCapacity},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.name), i.dst); err != nil {
			return err
		}
	}
	if err := s.setNonNegIntFromString("precision", env("PRECISION"), &cfg.Precision); err != nil {
		return err
	}

	if err := s.setFloatFromString("v-ref", env("V_REF"), &cfg.VRef); err != nil {
		return err
	}
	if err := s.setAnyFloatFromString("offset", env("OFFSET"), &cfg.Offset); err != nil {
		return err
	}

	durations := []struct {
		flag string
		name string
		dst  *time.Duration
	}{
		{"flush-interval", "FLUSH_INTERVAL", &cfg.FlushInterval},
		{"idle-interval", "IDLE_INTERVAL", &cfg.IdleInterval},
		{"poll-timeout", "POLL_TIMEOUT", &cfg.PollTimeout},
		{"enqueue-timeout", "ENQUEUE_TIMEOUT", &cfg.EnqueueTimeout},
		{"shutdown-timeout", "SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	return nil
}
