//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract reads text with a local Tesseract installation via gosseract.
type Tesseract struct {
	languages []string
}

// NewTesseract configures the engine for the given Tesseract language codes.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{languages: languages}
}

// NewReader starts one Tesseract client for the batch.
func (t *Tesseract) NewReader(context.Context) (pipeline.TextReader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(t.languages...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tesseract languages %v: %w: %w", t.languages, pipeline.ErrEngineUnavailable, err)
	}
	return &tesseractReader{client: client}, nil
}

// tesseractReader serializes access to one gosseract client, which is not
// safe for concurrent use.
type tesseractReader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func (r *tesseractReader) ReadText(ctx context.Context, imagePath string) (iter.Seq[string], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("tesseract load %s: %w", imagePath, err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognize %s: %w", imagePath, err)
	}
	spans := make([]string, 0, len(boxes))
	for _, b := range boxes {
		spans = append(spans, b.Word)
	}
	return Spans(spans), nil
}

func (r *tesseractReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
