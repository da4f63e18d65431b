package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const UPLOADS_DIR = "uploads"

// Entries is a set of files addressed by relative slash path.
type Entries interface {
	Paths() []string
	File(path string) ([]byte, bool)
}

// WorkFolders stores extracted archives, one directory per work folder under Root.
type WorkFolders struct {
	Root string
}

// NewWorkFolders returns the work folder storage rooted at root, UPLOADS_DIR when empty.
func NewWorkFolders(root string) *WorkFolders {
	if root == "" {
		root = UPLOADS_DIR
	}
	return &WorkFolders{Root: root}
}

// Save writes data to filepath, creating the parent directories.
func Save(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Path resolves a relative path inside a work folder. Paths escaping the folder are rejected.
func (w *WorkFolders) Path(workFolder, rel string) (string, error) {
	if workFolder == "" || strings.ContainsAny(workFolder, `/\`) || workFolder == "." || workFolder == ".." {
		return "", fmt.Errorf("invalid work folder %q", workFolder)
	}
	dir := filepath.Join(w.Root, workFolder)
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if p != dir && !strings.HasPrefix(p, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes work folder", rel)
	}
	return p, nil
}

// Extract writes every entry into the work folder.
func (w *WorkFolders) Extract(workFolder string, entries Entries) error {
	for _, rel := range entries.Paths() {
		data, _ := entries.File(rel)
		p, err := w.Path(workFolder, rel)
		if err != nil {
			return err
		}
		if err := Save(p, data); err != nil {
			return fmt.Errorf("extract %s: %w", rel, err)
		}
	}
	return nil
}

// FetchImage reads one extracted image.
func (w *WorkFolders) FetchImage(ctx context.Context, workFolder, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := w.Path(workFolder, rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Remove deletes a work folder and its content.
func (w *WorkFolders) Remove(workFolder string) error {
	p, err := w.Path(workFolder, "")
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}
