package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by a backend that holds no payload yet.
var ErrNotFound = errors.New("state not found")

// ErrPersist wraps failures to write the state payload.
var ErrPersist = errors.New("persisting state")

// Backend reads and writes the raw persisted payload.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Load reads and decodes the document held by b. A missing payload yields a
// fresh document.
func Load(ctx context.Context, b Backend) (Document, error) {
	data, err := b.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewDocument(), nil
		}
		return Document{}, err
	}
	return Decode(data)
}

// Save encodes doc and writes it to b.
func Save(ctx context.Context, b Backend, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := b.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// FileBackend stores the payload in a local JSON file.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// Load implements Backend.
func (b *FileBackend) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state %s: %w", b.Path, err)
	}
	return data, nil
}

// Save implements Backend. The file is replaced atomically.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := writeFileAtomic(b.Path, data, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", b.Path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%s.%d", base, os.Getpid()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}
