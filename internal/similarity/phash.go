// Package similarity scores certificate images against a reference template
// with perceptual hashing.
package similarity

import (
	"fmt"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"github.com/corona10/goimagehash"
)

// hashBits is the length of a pHash (8x8 DCT low frequencies).
const hashBits = 64

// PHashScorer implements pipeline.Scorer with goimagehash perception hashes.
type PHashScorer struct{}

// NewPHashScorer returns a scorer.
func NewPHashScorer() *PHashScorer {
	return &PHashScorer{}
}

// Reference hashes the template at path once for all later comparisons.
func (s *PHashScorer) Reference(path string) (pipeline.Reference, error) {
	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return &reference{hash: hash}, nil
}

type reference struct {
	hash *goimagehash.ImageHash
}

// Similarity returns 1 - hamming/64 between the template and the image.
func (r *reference) Similarity(imagePath string) (float64, error) {
	hash, err := hashFile(imagePath)
	if err != nil {
		return 0, err
	}
	dist, err := r.hash.Distance(hash)
	if err != nil {
		return 0, fmt.Errorf("hash distance: %w", err)
	}
	return Score(dist), nil
}

// Score converts a Hamming distance between two pHashes into a similarity in [0,1].
func Score(distance int) float64 {
	return 1 - float64(distance)/hashBits
}

func hashFile(path string) (*goimagehash.ImageHash, error) {
	img, _, err := imaging.Load(path)
	if err != nil {
		return nil, err
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("perception hash %s: %w", path, err)
	}
	return hash, nil
}
