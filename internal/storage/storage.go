package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ustoz-edu/apiserver/config"
)

// ErrNotConfigured is returned by uploads when no backend is configured.
var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
	Bucket() string
}

// Storage wraps an optional ObjectStorage backend with a stable API. Without
// a backend, objects are addressed relative to the media URL.
type Storage struct {
	backend  ObjectStorage
	mediaURL string
}

// NewStorage constructs a Storage wrapper for the provided backend, which
// may be nil.
func NewStorage(backend ObjectStorage, mediaURL string) *Storage {
	return &Storage{backend: backend, mediaURL: mediaURL}
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Backend {
	case "":
	case "minio":
		client, err := NewMinioClient(cfg.Minio, cfg.PublicURL)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS, cfg.PublicURL)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	return NewStorage(backend, cfg.MediaURL), nil
}

// Configured reports whether uploads are possible.
func (s *Storage) Configured() bool {
	return s != nil && s.backend != nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	if !s.Configured() {
		return nil
	}
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	return s.backend.Delete(ctx, key)
}

// URL resolves key into an address clients can fetch.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("empty object key")
	}
	if s.Configured() {
		return s.backend.URL(ctx, key)
	}
	var mediaURL string
	if s != nil {
		mediaURL = s.mediaURL
	}
	return joinURL(mediaURL, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	if !s.Configured() {
		return ""
	}
	return s.backend.Bucket()
}

func joinURL(base, key string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = "/"
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid media url: %w", err)
	}
	return strings.TrimRight(base, "/") + "/" + key, nil
}
