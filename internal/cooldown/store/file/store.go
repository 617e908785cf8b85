// Package file persists cooldown records in a single local file. The whole
// mapping is loaded at startup and rewritten atomically on every write.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"enlist/internal/cooldown/models"
	"enlist/pkg/domain"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = "cooldowns-*.tmp"
	schemaVersion   = 1
)

// Format selects the on-disk encoding.
type Format int

const (
	// FormatJSON is a flat {"<identity id>": <epoch ms>} object, the layout of
	// the historic cooldowns.json.
	FormatJSON Format = iota
	// FormatTOML stores the same mapping under a versioned [cooldowns] table.
	FormatTOML
)

// FormatForPath picks TOML for .toml files and JSON otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

type tomlSchema struct {
	Version   int              `toml:"version"`
	Cooldowns map[string]int64 `toml:"cooldowns"`
}

// Store is a file-backed models.Store.
type Store struct {
	mu      sync.Mutex
	path    string
	format  Format
	records map[string]int64
}

// Open loads path, creating an empty mapping when the file does not exist.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("cooldown file path is required")
	}
	s := &Store{path: path, format: FormatForPath(path)}
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	s.records = records
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(ctx context.Context, id domain.IdentityID) (*models.CooldownRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.records[id.String()]
	if !ok {
		return nil, nil
	}
	return &models.CooldownRecord{IdentityID: id, LastActionAt: time.UnixMilli(ms).UTC()}, nil
}

func (s *Store) Set(ctx context.Context, id domain.IdentityID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(id, at)
}

func (s *Store) Execute(ctx context.Context, id domain.IdentityID, validate func(*models.CooldownRecord) error, at time.Time) (*models.CooldownRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := &models.CooldownRecord{IdentityID: id}
	if ms, ok := s.records[id.String()]; ok {
		current.LastActionAt = time.UnixMilli(ms).UTC()
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	if err := s.setLocked(id, at); err != nil {
		return nil, err
	}
	return &models.CooldownRecord{IdentityID: id, LastActionAt: time.UnixMilli(s.records[id.String()]).UTC()}, nil
}

// setLocked updates the map and flushes it. On flush failure the previous
// entry is restored so memory never runs ahead of disk.
func (s *Store) setLocked(id domain.IdentityID, at time.Time) error {
	key := id.String()
	ms := at.UnixMilli()
	prev, existed := s.records[key]
	if existed && prev > ms {
		return nil
	}

	s.records[key] = ms
	if err := s.flush(); err != nil {
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return fmt.Errorf("persist cooldown for %s: %w", key, err)
	}
	return nil
}

func (s *Store) read() (map[string]int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]int64), nil
		}
		return nil, fmt.Errorf("read cooldown file: %w", err)
	}
	records := make(map[string]int64)
	if len(strings.TrimSpace(string(data))) == 0 {
		return records, nil
	}

	switch s.format {
	case FormatTOML:
		var file tomlSchema
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode cooldown file: %w", err)
		}
		if file.Version > schemaVersion {
			return nil, fmt.Errorf("unsupported cooldown file version %d", file.Version)
		}
		maps.Copy(records, file.Cooldowns)
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode cooldown file: %w", err)
		}
	}
	return records, nil
}

func (s *Store) encode() ([]byte, error) {
	if s.format == FormatTOML {
		return toml.Marshal(tomlSchema{Version: schemaVersion, Cooldowns: s.records})
	}
	return json.MarshalIndent(s.records, "", "  ")
}

// flush writes the full mapping to a temp file in the same directory, syncs
// it and renames it over the target.
func (s *Store) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := s.encode()
	if err != nil {
		return fmt.Errorf("encode cooldowns: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	cleanup = false
	return nil
}
