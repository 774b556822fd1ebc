package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects under a directory on disk. Every key is resolved
// inside baseDir.
type Local struct {
	baseDir string
	baseURL string
}

// NewLocal creates baseDir if needed. baseURL prefixes public URLs, e.g. "/files/".
func NewLocal(baseDir, baseURL string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("%w: base directory is required", ErrInvalidConfig)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWrite, err)
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Local{baseDir: abs, baseURL: baseURL}, nil
}

// Put writes r to key through a temporary file, so readers never observe a
// partial object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	key, abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWrite, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToWrite, err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWrite, err)
	}

	return &Object{Key: key, Size: size, ContentType: contentType}, nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key, abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToRead, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return f, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	key, abs, err := l.resolve(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToDelete, err)
	}
	return nil
}

func (l *Local) DeleteDir(_ context.Context, prefix string) error {
	prefix, abs, err := l.resolve(prefix)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, prefix)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToDelete, err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, abs, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrFailedToRead, err)
	}
}

// List returns the entries directly under dir. A missing directory lists as empty.
func (l *Local) List(_ context.Context, dir string) ([]Entry, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}
	abs := filepath.Join(l.baseDir, filepath.FromSlash(dir))

	items, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToList, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if strings.HasPrefix(item.Name(), ".upload-") {
			continue
		}
		e := Entry{Name: item.Name(), Key: joinKey(dir, item.Name()), IsDir: item.IsDir()}
		if !e.IsDir {
			if info, err := item.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *Local) URL(_ context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return l.baseURL + key, nil
}

func (l *Local) resolve(key string) (string, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	abs := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(abs, l.baseDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, abs, nil
}

func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
