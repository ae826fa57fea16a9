// Package storage keeps dump artifacts on the local filesystem or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("object not found")

// Store writes and reads named artifacts. Put returns where the artifact
// ended up; Get accepts either a bare name or a location returned by Put.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (location string, err error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// Linker is implemented by stores that can hand out a temporary download
// link for a stored artifact.
type Linker interface {
	Link(ctx context.Context, location string, ttl time.Duration) (string, error)
}
