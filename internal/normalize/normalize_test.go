package normalize

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h/2; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

func TestFilePNGIsCopied(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	in := filepath.Join(src, "a.png")
	require.NoError(t, imaging.SavePNG(in, testImage(20, 10)))

	out, err := File(in, dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dst, "a.png"), out)

	want, _ := os.ReadFile(in)
	got, _ := os.ReadFile(out)
	assert.Equal(t, want, got)
}

func TestFileJPEGIsConverted(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	in := filepath.Join(src, "scan.JPG")
	writeJPEG(t, in, testImage(30, 20))

	out, err := File(in, dst)
	require.NoError(t, err)
	assert.Equal(t, "scan.png", filepath.Base(out))

	img, format, err := imaging.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Pt(30, 20), img.Bounds().Size())
}

func TestFileUnsupported(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"letter.docx", "letter.doc", "notes.txt"} {
		in := filepath.Join(src, name)
		require.NoError(t, os.WriteFile(in, []byte("x"), 0o644))
		_, err := File(in, t.TempDir())
		assert.ErrorIs(t, err, ErrUnsupported, name)
	}
}

func TestFilePDFFirstPageImage(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	pngPath := filepath.Join(src, "page.png")
	require.NoError(t, imaging.SavePNG(pngPath, testImage(60, 40)))
	pdfPath := filepath.Join(src, "cert.pdf")
	require.NoError(t, api.ImportImagesFile([]string{pngPath}, pdfPath, nil, nil))

	out, err := File(pdfPath, dst)
	require.NoError(t, err)
	assert.Equal(t, "cert.png", filepath.Base(out))

	img, _, err := imaging.Load(out)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(60, 40), img.Bounds().Size())
}

func TestFileCorruptPDF(t *testing.T) {
	in := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(in, []byte("%PDF-1.4 nonsense"), 0o644))
	_, err := File(in, t.TempDir())
	assert.Error(t, err)
}

func TestDirectory(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	require.NoError(t, imaging.SavePNG(filepath.Join(src, "a.png"), testImage(10, 10)))
	writeJPEG(t, filepath.Join(src, "a.jpeg"), testImage(12, 12))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.docx"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested"), 0o755))

	report, err := Directory(context.Background(), src, dst)
	require.NoError(t, err)

	// a.jpeg sorts first and claims a.png.
	assert.Equal(t, []string{"a.png", "a_2.png"}, report.Processed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "b.docx", report.Skipped[0].Name)
}

func TestDirectoryMissing(t *testing.T) {
	_, err := Directory(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir())
	assert.Error(t, err)
}
