// Package log provides the logging abstraction used by voltship components.
//
// Components depend only on the Logger interface. The CLI wires a zerolog
// backed adapter; tests use the no-op logger.
//
// # Usage
//
//	logger := log.NewZerologAdapter(os.Stderr, zerolog.InfoLevel)
//	logger.Info("batch flushed", log.Int("records", 100))
//
// Diagnostics go through this package. Operator-facing messages (sample
// voltages, decode notices, stop progress) are display events and travel
// through the observer feed instead.
package log
