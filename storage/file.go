package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// File is a Store persisted as one JSON object. Every write rewrites the
// document through a temporary file and a rename, so readers never observe
// a partial file.
type File struct {
	fs     afero.Fs
	path   string
	limits Limits
	logger *zap.Logger

	mu   sync.Mutex
	data map[string]string
}

// OpenFile loads path from fs. A missing file is an empty store; so is a
// file that does not parse, which is logged and overwritten on the next
// write.
func OpenFile(fs afero.Fs, path string, logger *zap.Logger, opts ...Option) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &File{
		fs:     fs,
		path:   path,
		limits: buildLimits(opts),
		logger: logger,
		data:   make(map[string]string),
	}

	raw, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn("ignoring corrupt store", zap.String("path", path), zap.Error(err))
		s.data = make(map[string]string)
	}
	return s, nil
}

func (s *File) Path() string { return s.path }

func (s *File) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *File) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limits.check(s.data, key, value); err != nil {
		return err
	}
	prev, had := s.data[key]
	s.data[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *File) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// flush must be called with s.mu held.
func (s *File) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		s.fs.Remove(name)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(name)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := s.fs.Rename(name, s.path); err != nil {
		s.fs.Remove(name)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
