package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists sessions across process restarts.
// SaveAll replaces the stored set with the given sessions.
type Store interface {
	SaveAll(ctx context.Context, sessions []Session) error
	LoadAll(ctx context.Context) ([]Session, error)
	Close() error
}

// FileStore keeps one JSON file per session.
type FileStore struct {
	basePath string
}

// NewFileStore creates a new session store.
// configPath is typically the user config dir for chatbridge.
func NewFileStore(configPath string) *FileStore {
	return &FileStore{
		basePath: filepath.Join(configPath, "sessions"),
	}
}

// fileName returns a filesystem-safe name for a session id.
// Channel ids (wx "@…", feishu "ou_…") are not safe path components.
func (s *FileStore) fileName(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])[:16] + ".json"
}

// Save persists a session to disk.
func (s *FileStore) Save(session *Session) error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	filename := filepath.Join(s.basePath, s.fileName(session.ID))
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// Load retrieves a specific session.
func (s *FileStore) Load(id string) (*Session, error) {
	filename := filepath.Join(s.basePath, s.fileName(id))

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// SaveAll implements Store. Files of sessions not in the set are removed.
func (s *FileStore) SaveAll(ctx context.Context, sessions []Session) error {
	keep := make(map[string]bool, len(sessions))
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Save(&sessions[i]); err != nil {
			return err
		}
		keep[s.fileName(sessions[i].ID)] = true
	}

	entries, err := os.ReadDir(s.basePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list session directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || keep[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale session file: %w", err)
		}
	}
	return nil
}

// LoadAll implements Store. Sessions are sorted by UpdatedAt (newest first).
func (s *FileStore) LoadAll(ctx context.Context) ([]Session, error) {
	entries, err := os.ReadDir(s.basePath)
	if os.IsNotExist(err) {
		return []Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	var sessions []Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue // Skip invalid files
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
