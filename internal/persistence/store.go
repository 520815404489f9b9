// Package persistence provides the market snapshot stores: in-memory,
// local file (optionally zstd-compressed), SQLite and S3.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/realm-market/internal/snapshot"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Store loads and saves whole snapshots. Load returns snapshot.ErrNotFound
// when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	Save(ctx context.Context, snap *snapshot.Snapshot) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string   `yaml:"backend"`
	Path    string   `yaml:"path"` // file or sqlite database path
	S3      S3Config `yaml:"s3"`
}

// Open creates the store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store: path is required")
		}
		return NewFileStore(cfg.Path), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store: path is required")
		}
		return OpenSQLite(cfg.Path)
	case BackendS3:
		return OpenS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// decodeRaw validates and decodes stored bytes, logging their size.
func decodeRaw(store string, raw []byte) (*snapshot.Snapshot, error) {
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug("snapshot loaded", "store", store, "size", humanize.Bytes(uint64(len(raw))))
	return snap, nil
}
