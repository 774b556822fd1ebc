package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
)

// Object describes a stored object.
type Object struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Entry is one item of a non-recursive listing.
type Entry struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Storage is implemented by Local, S3 and Scoped.
// Keys are slash-separated and relative; "..", absolute and empty keys are rejected.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DeleteDir removes every object under prefix.
	DeleteDir(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, dir string) ([]Entry, error)
	URL(ctx context.Context, key string) (string, error)
}

// CleanKey normalizes key and rejects keys escaping the storage root.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" || strings.Contains(key, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// cleanDir is CleanKey for listing prefixes, where the root is allowed.
func cleanDir(dir string) (string, error) {
	if strings.Trim(strings.TrimSpace(dir), "/") == "" {
		return "", nil
	}
	return CleanKey(dir)
}

// SanitizeFilename strips path components and NUL bytes from a client-supplied name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.ReplaceAll(path.Base(name), "\x00", "")
	if name == "." || name == ".." || name == "/" || name == "" {
		return "unnamed"
	}
	return name
}

// SaveUpload stores a multipart upload as dir/<sanitized filename>, detecting
// the content type from the first 512 bytes.
func SaveUpload(ctx context.Context, s Storage, fh *multipart.FileHeader, dir string) (*Object, error) {
	if fh == nil {
		return nil, fmt.Errorf("%w: nil file header", ErrInvalidKey)
	}
	key := SanitizeFilename(fh.Filename)
	if d := strings.Trim(dir, "/"); d != "" {
		key = d + "/" + key
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToRead, err)
	}
	defer func() { _ = src.Close() }()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrFailedToRead, err)
	}
	contentType := http.DetectContentType(head[:n])

	return s.Put(ctx, key, io.MultiReader(bytes.NewReader(head[:n]), src), contentType)
}
