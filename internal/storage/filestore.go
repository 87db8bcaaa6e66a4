// Package storage keeps attachment bytes addressable by a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrInvalidKey is returned for keys that do not name a file
var ErrInvalidKey = errors.New("invalid object key")

// FileStore stores objects as files below a base directory
type FileStore struct {
	fs            afero.Fs
	publicBaseURL string
	logger        *slog.Logger
}

// NewFileStore creates a store backed by the directory dir
func NewFileStore(dir, publicBaseURL string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return NewFileStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir), publicBaseURL, logger), nil
}

// NewFileStoreFs creates a store on an arbitrary afero filesystem
func NewFileStoreFs(fs afero.Fs, publicBaseURL string, logger *slog.Logger) *FileStore {
	return &FileStore{
		fs:            fs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("component", "storage"),
	}
}

// Put writes data under key and returns its public URL.
// The object becomes visible only once fully written.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(path.Dir(name), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp := path.Join(path.Dir(name), "."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	if err := s.fs.Rename(tmp, name); err != nil {
		s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to commit object: %w", err)
	}

	s.logger.Debug("stored object", "key", name, "size", len(data), "content_type", contentType)
	return s.URL(name), nil
}

// Get reads the object stored under key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// FileSystem exposes the stored objects for serving over HTTP
func (s *FileStore) FileSystem() http.FileSystem {
	return afero.NewHttpFs(s.fs)
}

// URL returns the public URL of key
func (s *FileStore) URL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

func cleanKey(key string) (string, error) {
	name := strings.TrimLeft(path.Clean("/"+key), "/")
	if name == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, nil
}

// SanitizeName makes an attachment filename safe to use as the last key segment
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r < 0x20:
			return '_'
		default:
			return r
		}
	}, name)

	name = strings.Trim(name, ". ")
	if name == "" {
		return "attachment"
	}
	return name
}
