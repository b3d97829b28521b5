package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists files on disk under a base directory and signs download links.
type LocalStorage struct {
	baseDir    string
	signer     *DownloadSigner
	downloadAt string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// downloadAt is the public route prefix that serves signed tokens, e.g. "/api/v1/downloads".
func NewLocalStorage(baseDir string, signer *DownloadSigner, downloadAt string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./reports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, signer: signer, downloadAt: strings.TrimRight(downloadAt, "/")}, nil
}

// Put writes the given bytes under the key relative to the base dir.
func (s *LocalStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stored file: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// DownloadURL signs the key into a token served by the download route.
func (s *LocalStorage) DownloadURL(_ context.Context, key string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, fmt.Errorf("download signer not configured")
	}
	token, expiresAt, err := s.signer.Sign(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.downloadAt + "/" + token, expiresAt, nil
}

// ResolveToken validates a signed download token and returns the stored key.
func (s *LocalStorage) ResolveToken(token string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("download signer not configured")
	}
	return s.signer.Verify(token)
}

func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}
