package services

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CreateZip writes every regular file under srcDir into a deflated archive at
// zipPath and returns the number of files added. An empty or missing srcDir
// produces no archive.
func CreateZip(srcDir, zipPath string) (int, error) {
	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) || (err == nil && len(files) == 0) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", srcDir, err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	for _, path := range files {
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			_ = out.Close()
			return 0, err
		}
		if err := addToZip(zw, path, filepath.ToSlash(rel)); err != nil {
			_ = out.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return len(files), out.Close()
}

func addToZip(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	_, err = io.Copy(w, in)
	return err
}

// ExtractZip expands the regular files of the archive at zipPath into
// destDir, flattening directories. A name already present in destDir is
// extracted as <stem>_<n><ext>. Hidden entries and entries that would escape
// destDir are ignored. It returns the extracted file names.
func ExtractZip(zipPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.Contains(f.Name, "__MACOSX") {
			continue
		}
		dest := freeName(destDir, name)
		if err := extractEntry(f, dest); err != nil {
			return nil, err
		}
		names = append(names, filepath.Base(dest))
	}
	return names, nil
}

// freeName returns destDir/name, or the first destDir/<stem>_<n><ext> that does not exist.
func freeName(destDir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(destDir, name)
	for n := 2; ; n++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path
		}
		path = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read %s from archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
