package ocr

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// generator is the subset of *genai.GenerativeModel used for transcription.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini transcribes certificate images with a multimodal Gemini model.
type Gemini struct {
	model generator
}

// NewGemini wraps a model configured with the OCR system instruction.
func NewGemini(model generator) *Gemini {
	return &Gemini{model: model}
}

// NewReader returns a reader over the shared model. Gemini readers hold no
// per-batch resources.
func (g *Gemini) NewReader(context.Context) (pipeline.TextReader, error) {
	if g.model == nil {
		return nil, fmt.Errorf("gemini model not configured: %w", pipeline.ErrEngineUnavailable)
	}
	return geminiReader{g}, nil
}

type geminiReader struct{ g *Gemini }

func (r geminiReader) ReadText(ctx context.Context, imagePath string) (iter.Seq[string], error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(imagePath), err)
	}
	resp, err := r.g.model.GenerateContent(ctx,
		genai.Blob{MIMEType: http.DetectContentType(data), Data: data},
		genai.Text(gcp.OCRUserPrompt),
	)
	if err != nil {
		if engineDown(err) {
			return nil, fmt.Errorf("gemini transcription: %w: %w", pipeline.ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("gemini transcription failed for %s: %w", filepath.Base(imagePath), err)
	}

	text := gcp.StripCodeFence(gcp.ResponseText(resp))
	if gcp.IsRefusal(text) {
		return nil, fmt.Errorf("gemini response indicates refusal for %s", filepath.Base(imagePath))
	}
	return Lines(text), nil
}

func (geminiReader) Close() error { return nil }

// engineDown reports errors that will fail every image, not just this one.
func engineDown(err error) bool {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.Unimplemented:
		return true
	}
	return strings.Contains(err.Error(), "could not find default credentials")
}
