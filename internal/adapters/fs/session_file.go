package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bft-labs/voltship/internal/domain"
)

const sessionFileName = "status.json"

// SessionFileRepository implements ports.SessionRepository using a JSON file.
type SessionFileRepository struct {
	dir string
}

// NewSessionFileRepository creates a repository storing status.json in dir.
func NewSessionFileRepository(dir string) *SessionFileRepository {
	return &SessionFileRepository{dir: dir}
}

// Load retrieves the last saved session from disk.
// Returns an empty session and nil error if no file exists.
func (r *SessionFileRepository) Load(ctx context.Context) (domain.Session, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Session{}, nil
		}
		return domain.Session{}, err
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// Save writes the session to a temp file and renames it into place.
func (r *SessionFileRepository) Save(ctx context.Context, s domain.Session) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the status file.
func (r *SessionFileRepository) Path() string {
	return filepath.Join(r.dir, sessionFileName)
}
