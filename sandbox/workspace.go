// Package sandbox confines file access and command execution to a single directory tree.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrOutsideWorkspace = errors.New("path escapes the workspace")

// MaxListEntries bounds List so a huge tree cannot flood the model context.
const MaxListEntries = 500

// Workspace is a directory tree that tools may read and write.
type Workspace struct {
	root string
}

// NewWorkspace creates root if needed and returns a workspace over it.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// ValidateRelPath resolves rel against the workspace root. rel must be relative and must not
// climb out of the root.
func (w *Workspace) ValidateRelPath(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrOutsideWorkspace, rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	full := filepath.Join(w.root, clean)
	if full != w.root && !strings.HasPrefix(full, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	return full, nil
}

func (w *Workspace) ReadFile(rel string) (string, error) {
	full, err := w.ValidateRelPath(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes data to rel, creating parent directories.
func (w *Workspace) WriteFile(rel, data string) error {
	full, err := w.ValidateRelPath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(data), 0o644)
}

type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// List walks rel ("" or "." for the root) and returns its entries with workspace-relative paths.
func (w *Workspace) List(rel string) ([]Entry, error) {
	start := w.root
	if rel != "" && rel != "." {
		full, err := w.ValidateRelPath(rel)
		if err != nil {
			return nil, err
		}
		start = full
	}

	entries := []Entry{}
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == start {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "__pycache__") {
			return filepath.SkipDir
		}
		if len(entries) >= MaxListEntries {
			return filepath.SkipAll
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		entry := Entry{Path: filepath.ToSlash(relPath), Dir: d.IsDir()}
		if !d.IsDir() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
