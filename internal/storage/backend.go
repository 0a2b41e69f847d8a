// Package storage implements the byte-oriented backends that hold
// record content: a local-disk, file-per-key backend and an
// S3-compatible object-store backend.
package storage

import (
	"context"

	"github.com/lucko/bytebin/internal/content"
)

// Backend is the capability set the coordinator depends on. Load
// returns (nil, nil) on a clean miss; List streams metadata only
// (Content is nil on every record it yields).
type Backend interface {
	BackendID() string
	Load(ctx context.Context, key string) (*content.Record, error)
	Save(ctx context.Context, rec *content.Record) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*content.Record, error)
	ListKeys(ctx context.Context) ([]string, error)
}
