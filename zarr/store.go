package zarr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	MemoryStoreType   = "MemoryStore"
	LocalStoreType    = "LocalStore"
	dirPermissionBits = 0755
)

var ErrNotfound = errors.New("not found")

// Store is a key/value store holding metadata documents and chunks under
// "/"-separated keys. Get and Delete return an error wrapping ErrNotfound
// for missing keys.
type Store interface {
	Get(key string) (io.ReadCloser, error)
	Put(key string, val io.Reader) error
	Delete(key string) error
	Type() string
}

type MemoryStore struct {
	lk   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) Get(key string) (io.ReadCloser, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (s *MemoryStore) Put(key string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = d

	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	delete(s.data, key)
	return nil
}

// Len is the number of stored keys.
func (s *MemoryStore) Len() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.data)
}

// LocalStore keeps every key as a file below a base directory.
type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, err
	}

	return &LocalStore{
		base: base,
	}, nil
}

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.base, filepath.FromSlash(key))
}

func (s *LocalStore) Get(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return f, err
}

func (s *LocalStore) Put(key string, val io.Reader) (err error) {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := io.Copy(f, val); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if c, ok := val.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *LocalStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return err
}
