package ports

// LogStore is the append-only durable voltage log.
// Only the persistence writer calls Append and Truncate while the pipeline runs.
type LogStore interface {
	// Append writes p with a single write call and syncs it to stable
	// storage before returning. On failure no partial record may remain.
	Append(p []byte) error

	// Truncate empties the log. Used only for an explicit clear.
	Truncate() error

	// Path returns the file location for diagnostics and export.
	Path() string

	// Close releases the underlying file.
	Close() error
}
