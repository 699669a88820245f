package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace is the per-run directory tree. Runs never share a workspace, so
// resetting or removing one cannot disturb another run.
type Workspace struct {
	Root      string
	Uploads   string
	Processed string
	Accepted  string
	Rejected  string
	// Crops holds detector output, one subdirectory per certificate ID.
	Crops string
}

// NewWorkspace lays out a workspace under root and creates its directories.
func NewWorkspace(root string) (Workspace, error) {
	ws := Workspace{
		Root:      root,
		Uploads:   filepath.Join(root, "certificates"),
		Processed: filepath.Join(root, "processed_certificates"),
		Accepted:  filepath.Join(root, "accepted_certificates"),
		Rejected:  filepath.Join(root, "rejected_certificates"),
		Crops:     filepath.Join(root, "crops"),
	}
	for _, dir := range ws.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	return ws, nil
}

func (w Workspace) dirs() []string {
	return []string{w.Uploads, w.Processed, w.Accepted, w.Rejected, w.Crops}
}

// Reset empties every workspace directory.
func (w Workspace) Reset() error {
	for _, dir := range w.dirs() {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", dir, err)
		}
	}
	return nil
}

// Remove deletes the whole workspace.
func (w Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// ProcessedImages lists the normalized PNG files, sorted by name.
func (w Workspace) ProcessedImages() ([]string, error) {
	entries, err := os.ReadDir(w.Processed)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// claim moves a file into dir under its base name, or under <stem>_<n><ext>
// when that name is already taken, and returns the new path.
func claim(src, dir string) (string, error) {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dst := filepath.Join(dir, base)
	for n := 2; ; n++ {
		if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
			break
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}
