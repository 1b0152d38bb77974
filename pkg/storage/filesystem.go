package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for bucket or object names that would escape the base directory.
var ErrInvalidKey = errors.New("invalid object key")

// LocalStorage keeps objects on disk as <baseDir>/<bucket>/<key>.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data as bucket/key.
func (s *LocalStorage) Save(bucket, key string, data []byte) error {
	path, err := s.prepare(bucket, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// SaveStream copies r into bucket/key and returns the bytes written.
// A partially written object is removed when the copy fails.
func (s *LocalStorage) SaveStream(bucket, key string, r io.Reader) (int64, error) {
	path, err := s.prepare(bucket, key)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create object: %w", err)
	}
	n, err := io.Copy(file, r)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write object stream: %w", err)
	}
	return n, nil
}

// Open returns a read-only handle. Missing objects satisfy errors.Is(err, os.ErrNotExist).
func (s *LocalStorage) Open(bucket, key string) (*os.File, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return file, nil
}

// Exists reports whether bucket/key is stored.
func (s *LocalStorage) Exists(bucket, key string) bool {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes an object if present.
func (s *LocalStorage) Delete(bucket, key string) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *LocalStorage) prepare(bucket, key string) (string, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare bucket directory: %w", err)
	}
	return path, nil
}

func (s *LocalStorage) resolve(bucket, key string) (string, error) {
	if !validName(bucket) || key == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if !validName(part) {
			return "", ErrInvalidKey
		}
	}
	return filepath.Join(s.baseDir, bucket, filepath.FromSlash(key)), nil
}

func validName(part string) bool {
	return part != "" && part != "." && part != ".." && !strings.ContainsAny(part, `\:`) && !strings.HasPrefix(part, ".")
}
