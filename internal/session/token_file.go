package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
)

// record is the single persisted session document: the token plus a minimal
// user snapshot. It is overwritten wholesale on login and removed wholesale
// on logout.
type record struct {
	AccessToken string          `json:"access_token"`
	User        dto.UserPayload `json:"user"`
	SavedAt     time.Time       `json:"saved_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

var errNoRecord = errors.New("no persisted session")

// tokenFile stores the record on disk. Writes go to a temp file in the same
// directory followed by an atomic rename, so a crash mid-write never leaves
// a half-written record.
type tokenFile struct {
	path string
}

func (f tokenFile) load() (record, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record{}, errNoRecord
		}
		return record{}, fmt.Errorf("read session file: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, fmt.Errorf("decode session file: %w", err)
	}
	if rec.AccessToken == "" {
		return record{}, errNoRecord
	}
	return rec, nil
}

func (f tokenFile) save(rec record) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f tokenFile) clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
