// Package filestore keeps small JSON documents on disk behind one mutex per
// document, so every read-modify-write on a document is atomic within the process.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Path resolves a document name relative to the store root.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *Store) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Load decodes the document into v. A missing or corrupt document leaves v
// untouched and reports found=false.
func (s *Store) Load(name string, v any) (bool, error) {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()
	return s.read(name, v)
}

func (s *Store) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) Save(name string, v any) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()
	return s.write(name, v)
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Update runs fn on the current document value under the document lock and
// persists the result. ptr must be a pointer; it is left zeroed when the
// document does not exist yet.
func (s *Store) Update(name string, ptr any, fn func() error) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	if _, err := s.read(name, ptr); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.write(name, ptr)
}

// ModTime reports the document's modification time, zero when it is missing.
func (s *Store) ModTime(name string) time.Time {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// AppendCapped appends items to a JSON array document and keeps only the last max entries.
func AppendCapped[T any](s *Store, name string, max int, items ...T) error {
	var list []T
	return s.Update(name, &list, func() error {
		list = append(list, items...)
		if max > 0 && len(list) > max {
			list = append([]T(nil), list[len(list)-max:]...)
		}
		return nil
	})
}

// LoadList returns the JSON array document, empty when missing.
func LoadList[T any](s *Store, name string) ([]T, error) {
	var list []T
	if _, err := s.Load(name, &list); err != nil {
		return nil, err
	}
	return list, nil
}
