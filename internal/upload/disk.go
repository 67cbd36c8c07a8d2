package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes objects below a local directory that the server exposes
// at publicURL. It is meant for development.
type DiskStore struct {
	dir       string
	publicURL string
}

// NewDiskStore returns a DiskStore rooted at dir.
func NewDiskStore(dir, publicURL string) *DiskStore {
	return &DiskStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *DiskStore) Name() string { return "disk" }

// Dir is the directory objects are written to.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Put(ctx context.Context, key string, content []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean("/" + key)
	target := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return s.publicURL + filepath.ToSlash(clean), nil
}
