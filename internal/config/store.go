package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStatePath is where the last-user record is kept.
const DefaultStatePath = "/var/lib/greetui/last-user.json"

// Store persists the last successfully authenticated username. The record is
// written exactly once per process, on the session hand-off.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultStatePath
	}
	return &Store{path: path}
}

type lastUserRecord struct {
	LastUser  string `json:"last_user"`
	UpdatedAt string `json:"updated_at"`
}

// LastUser returns the persisted username, or "" if none has been recorded.
func (s *Store) LastUser() string {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	var rec lastUserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ""
	}
	return strings.TrimSpace(rec.LastUser)
}

// SaveLastUser writes the username record atomically: temp file in the target
// directory, fsync, rename.
func (s *Store) SaveLastUser(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("config: empty username")
	}
	rec := lastUserRecord{
		LastUser:  username,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".greetui-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Autofill resolves the username to prefill: the persisted last user wins,
// then default_user, unless autofill is disabled.
func (s *Store) Autofill(cfg Config) string {
	if cfg.DisableAutofill {
		return ""
	}
	if u := s.LastUser(); u != "" {
		return u
	}
	return strings.TrimSpace(cfg.DefaultUser)
}
