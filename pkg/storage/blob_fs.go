package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// FSBlobStore stages raw page bytes as files under a base directory
type FSBlobStore struct {
	baseDir string
}

// NewFSBlobStore creates the base directory if needed
func NewFSBlobStore(baseDir string) (*FSBlobStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("%w: blob base directory is required", utils.ErrConfigValidation)
	}
	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("%w: creating blob directory %s: %w", utils.ErrFilesystem, baseDir, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: stat blob directory %s: %w", utils.ErrFilesystem, baseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: blob path %s is not a directory", utils.ErrFilesystem, baseDir)
	}
	return &FSBlobStore{baseDir: filepath.Clean(baseDir)}, nil
}

// resolve maps a slash-separated key to a path inside baseDir, rejecting traversal
func (s *FSBlobStore) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty blob key", utils.ErrFilesystem)
	}
	full := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: blob key %q escapes base directory", utils.ErrFilesystem, key)
	}
	return full, nil
}

// Put writes data through a temp file and rename so readers never see a partial blob
func (s *FSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: creating %s: %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %w", utils.ErrFilesystem, dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing blob %s: %w", utils.ErrFilesystem, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing blob %s: %w", utils.ErrFilesystem, key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming blob %s: %w", utils.ErrFilesystem, key, err)
	}
	return nil
}

func (s *FSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s", utils.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading blob %s: %w", utils.ErrFilesystem, key, err)
	}
	return data, nil
}

func (s *FSBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat blob %s: %w", utils.ErrFilesystem, key, err)
	}
	return true, nil
}

// Delete removes the blob; a missing blob is not an error
func (s *FSBlobStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: deleting blob %s: %w", utils.ErrFilesystem, key, err)
	}
	return nil
}
