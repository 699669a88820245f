//go:build !tesseract

package ocr

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/certificateflow/internal/pipeline"
)

// Tesseract is unavailable in builds without the tesseract tag.
type Tesseract struct {
	languages []string
}

func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{languages: languages}
}

// NewReader always fails, sending the run down the extraction fallback.
func (t *Tesseract) NewReader(context.Context) (pipeline.TextReader, error) {
	return nil, fmt.Errorf("built without tesseract support: %w", pipeline.ErrEngineUnavailable)
}
