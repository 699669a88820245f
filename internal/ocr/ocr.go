// Package ocr provides the text extraction engines consumed by the pipeline.
package ocr

import (
	"fmt"
	"iter"
	"strings"

	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
)

const (
	EngineGemini    = "gemini"
	EngineTesseract = "tesseract"
)

// NewEngine selects an engine by name. vc is required for the Gemini engine.
func NewEngine(name string, vc *gcp.VertexClient) (pipeline.OCREngine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineGemini:
		if vc == nil {
			return nil, fmt.Errorf("ocr engine %q requires a vertex client", EngineGemini)
		}
		return NewGemini(vc.OCRModel), nil
	case EngineTesseract:
		return NewTesseract("eng"), nil
	}
	return nil, fmt.Errorf("unknown ocr engine %q", name)
}

// Lines yields the non-blank lines of text, trimmed.
func Lines(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for line := range strings.SplitSeq(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Spans adapts a slice of detected spans, dropping blank ones.
func Spans(spans []string) iter.Seq[string] {
	return Lines(strings.Join(spans, "\n"))
}
