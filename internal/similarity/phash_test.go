package similarity

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halves paints the left half white and the right half black (or the reverse),
// giving the low-frequency DCT terms a clear sign.
func halves(w, h int, invert bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x < w/2) != invert {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func save(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.SavePNG(path, img))
	return path
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		distance int
		want     float64
	}{
		{0, 1},
		{64, 0},
		{32, 0.5},
		{16, 0.75},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, Score(tc.distance), 1e-9, "distance %d", tc.distance)
	}
}

func TestReference_IdenticalImageScoresOne(t *testing.T) {
	tpl := save(t, "template.png", halves(256, 128, false))
	same := save(t, "same.png", halves(256, 128, false))

	ref, err := NewPHashScorer().Reference(tpl)
	require.NoError(t, err)

	score, err := ref.Similarity(same)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestReference_InvertedImageScoresLower(t *testing.T) {
	tpl := save(t, "template.png", halves(256, 128, false))
	inverted := save(t, "inverted.png", halves(256, 128, true))

	ref, err := NewPHashScorer().Reference(tpl)
	require.NoError(t, err)

	score, err := ref.Similarity(inverted)
	require.NoError(t, err)
	assert.Less(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestReference_MissingTemplate(t *testing.T) {
	_, err := NewPHashScorer().Reference(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestReference_UnreadableCandidate(t *testing.T) {
	tpl := save(t, "template.png", halves(64, 64, false))
	ref, err := NewPHashScorer().Reference(tpl)
	require.NoError(t, err)

	_, err = ref.Similarity(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
