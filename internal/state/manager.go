// Package state persists the bot's recoverable snapshot atomically and
// reconciles it against exchange truth on startup.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kestrel/internal/logger"
)

// ErrNoState signals that no snapshot exists yet; the caller initializes
// fresh. Absence of the file is not a failure.
var ErrNoState = errors.New("state: no snapshot on disk")

const backupSuffix = ".bak"

// Manager owns the snapshot file. All reads and writes are serialized under
// one lock; a waiting reader observes either the pre- or post-write snapshot,
// never a mix.
type Manager struct {
	mu   sync.Mutex
	path string
}

func NewManager(path string) (*Manager, error) {
	if path == "" {
		return nil, fmt.Errorf("state: snapshot path cannot be empty")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: creating snapshot dir failed: %w", err)
		}
	}
	return &Manager{path: path}, nil
}

func (m *Manager) Path() string       { return m.path }
func (m *Manager) BackupPath() string { return m.path + backupSuffix }

// SaveState writes the snapshot: back up the current primary, serialize to a
// temp file, then atomically rename over the primary. A crash mid-save leaves
// at most an orphaned temp file or the previous primary intact, never a
// half-written primary.
func (m *Manager) SaveState(ctx context.Context, s *BotState) error {
	if s == nil {
		return fmt.Errorf("state: nil snapshot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.LastUpdate = time.Now().UTC()
	s.Version = CurrentVersion

	if _, err := os.Stat(m.path); err == nil {
		if err := copyFile(m.path, m.BackupPath()); err != nil {
			return fmt.Errorf("state: backing up snapshot failed: %w", err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding snapshot failed: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: writing temp snapshot failed: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("state: replacing snapshot failed: %w", err)
	}
	return nil
}

// LoadState reads the primary snapshot. A corrupt primary falls back to the
// backup copy; a missing primary yields ErrNoState.
func (m *Manager) LoadState(ctx context.Context) (*BotState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := decodeStateFile(m.path)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}

	logger.Warnf("state: primary snapshot unreadable (%v), trying backup", err)
	backup, backupErr := decodeStateFile(m.BackupPath())
	if backupErr != nil {
		if errors.Is(backupErr, os.ErrNotExist) {
			return nil, fmt.Errorf("state: primary corrupt and no backup: %w", err)
		}
		return nil, fmt.Errorf("state: primary corrupt and backup unreadable: %w", backupErr)
	}
	logger.Warnf("state: recovered from backup snapshot (last_update=%s)", backup.LastUpdate.Format(time.RFC3339))
	return backup, nil
}

// LoadBackup reads the backup snapshot directly.
func (m *Manager) LoadBackup(ctx context.Context) (*BotState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := decodeStateFile(m.BackupPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	return s, err
}

// CreateBackup copies the current primary to the backup path.
func (m *Manager) CreateBackup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoState
		}
		return err
	}
	return copyFile(m.path, m.BackupPath())
}

// DeleteState removes both primary and backup snapshots.
func (m *Manager) DeleteState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range []string{m.path, m.BackupPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("state: removing %s failed: %w", p, err)
		}
	}
	return nil
}

func decodeStateFile(path string) (*BotState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s BotState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s failed: %w", filepath.Base(path), err)
	}
	return &s, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
