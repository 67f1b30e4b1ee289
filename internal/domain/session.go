package domain

import "time"

// Session is persisted after each flushed batch so an operator (or a later
// process) can see what the last acquisition run wrote.
type Session struct {
	// ID identifies one Start..Stop run.
	ID string `json:"id"`

	// Port is the serial device the run read from.
	Port string `json:"port"`

	// StartedAt is when the run entered Running.
	StartedAt time.Time `json:"started_at"`

	// Records is the number of records flushed during this run.
	Records int64 `json:"records"`

	// TotalRecords counts records flushed across runs, carried over from the
	// last saved session when the pipeline is created.
	TotalRecords int64 `json:"total_records"`

	// LastFlushAt is the time of the last successful batch append.
	LastFlushAt time.Time `json:"last_flush_at"`
}

// IsEmpty returns true if the session has not been started.
func (s Session) IsEmpty() bool {
	return s.ID == ""
}

// RecordFlush updates the counters after a batch of n records was appended.
func (s *Session) RecordFlush(n int) {
	s.Records += int64(n)
	s.TotalRecords += int64(n)
	s.LastFlushAt = time.Now()
}
