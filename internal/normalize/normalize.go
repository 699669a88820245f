// Package normalize turns uploaded documents into the PNG images the
// pipeline classifies.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrUnsupported marks a document that cannot be turned into an image.
var ErrUnsupported = errors.New("unsupported document type")

var rasterExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Skip records a source file that produced no image.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report summarizes a directory normalization.
type Report struct {
	Processed []string
	Skipped   []Skip
}

// Directory normalizes every visible file in srcDir into dstDir.
// Per-file failures are reported, not returned.
func Directory(ctx context.Context, srcDir, dstDir string) (*Report, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	report := &Report{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := File(filepath.Join(srcDir, name), dstDir)
		if err != nil {
			slog.Warn("Skipping document.", "file", name, "error", err)
			report.Skipped = append(report.Skipped, Skip{Name: name, Reason: err.Error()})
			continue
		}
		report.Processed = append(report.Processed, filepath.Base(out))
	}
	return report, nil
}

// File converts one document into a PNG inside dstDir and returns its path.
func File(srcPath, dstDir string) (string, error) {
	name := filepath.Base(srcPath)
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	dst := uniquePNG(dstDir, stem)

	switch {
	case ext == ".png":
		return dst, copyFile(srcPath, dst)
	case rasterExtensions[ext]:
		img, _, err := imaging.Load(srcPath)
		if err != nil {
			return "", err
		}
		return dst, imaging.SavePNG(dst, img)
	case ext == ".pdf":
		img, err := firstPageImage(srcPath)
		if err != nil {
			return "", err
		}
		return dst, imaging.SavePNG(dst, img)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
}

// uniquePNG picks <stem>.png, or <stem>_<n>.png when that name is taken.
func uniquePNG(dir, stem string) string {
	path := filepath.Join(dir, stem+".png")
	for n := 2; ; n++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.png", stem, n))
	}
}

// firstPageImage returns the largest image placed on the first page of a PDF.
func firstPageImage(pdfPath string) (image.Image, error) {
	tmp, err := os.MkdirTemp("", "normalize-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	optimized := filepath.Join(tmp, "optimized.pdf")
	if err := api.OptimizeFile(pdfPath, optimized, conf); err != nil {
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, errors.New("pdf has no pages")
	}

	imagesDir := filepath.Join(tmp, "images")
	if err := os.Mkdir(imagesDir, 0o755); err != nil {
		return nil, err
	}
	if err := api.ExtractImagesFile(optimized, imagesDir, []string{"1"}, conf); err != nil {
		return nil, fmt.Errorf("failed to extract page images: %w", err)
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, err
	}
	var best image.Image
	for _, e := range entries {
		img, _, err := imaging.Load(filepath.Join(imagesDir, e.Name()))
		if err != nil {
			slog.Debug("Skipping undecodable PDF image.", "image", e.Name(), "error", err)
			continue
		}
		if best == nil || area(img) > area(best) {
			best = img
		}
	}
	if best == nil {
		return nil, errors.New("no decodable image on the first page")
	}
	return best, nil
}

func area(img image.Image) int {
	s := img.Bounds().Size()
	return s.X * s.Y
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
