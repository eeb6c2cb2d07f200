package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotExist is returned when a named object is not in the bucket.
var ErrNotExist = errors.New("media: object does not exist")

// Object describes one stored file.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Bucket is a flat namespace of uploaded images, thumbnails and report PDFs.
// Names never contain path separators.
type Bucket interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Exists(ctx context.Context, name string) (bool, error)
	Rename(ctx context.Context, from, to string) error
	Delete(ctx context.Context, name string) error
	// List returns every object sorted by name.
	List(ctx context.Context) ([]Object, error)
}

// ValidName reports whether name is a plain file name usable as an object key.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && filepath.IsLocal(name)
}

// FSBucket stores objects as files in a single directory.
type FSBucket struct {
	dir string
}

// NewFSBucket creates the directory if needed.
func NewFSBucket(dir string) (*FSBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir: %w", err)
	}
	return &FSBucket{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *FSBucket) Dir() string { return b.dir }

func (b *FSBucket) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("media: invalid object name %q", name)
	}
	return filepath.Join(b.dir, name), nil
}

func (b *FSBucket) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("media: create %s: %w", name, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("media: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("media: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("media: store %s: %w", name, err)
	}
	return nil
}

func (b *FSBucket) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return f, err
}

func (b *FSBucket) Exists(_ context.Context, name string) (bool, error) {
	p, err := b.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (b *FSBucket) Rename(_ context.Context, from, to string) error {
	src, err := b.path(from)
	if err != nil {
		return err
	}
	dst, err := b.path(to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("media: rename %s: %w", from, err)
	}
	return nil
}

func (b *FSBucket) Delete(_ context.Context, name string) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media: delete %s: %w", name, err)
	}
	return nil
}

func (b *FSBucket) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("media: list %s: %w", b.dir, err)
	}
	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
