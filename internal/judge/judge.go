// Package judge implements the pipeline's judgment calls on Vertex AI Gemini
// models: certificate classification, field extraction and record comparison.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"golang.org/x/time/rate"
)

// generator is the subset of *genai.GenerativeModel the judge calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexJudge answers judgment calls with pre-configured Gemini models.
// All calls share one rate limiter.
type VertexJudge struct {
	classifier generator
	extractor  generator
	comparator generator
	limiter    *rate.Limiter
}

var _ pipeline.Judge = (*VertexJudge)(nil)

// NewVertexJudge builds a judge over vc's models, allowing rps requests per
// second. A non-positive rps disables limiting.
func NewVertexJudge(vc *gcp.VertexClient, rps float64) *VertexJudge {
	return newJudge(vc.ClassifierModel, vc.ExtractorModel, vc.ComparatorModel, newLimiter(rps))
}

func newJudge(classifier, extractor, comparator generator, limiter *rate.Limiter) *VertexJudge {
	return &VertexJudge{
		classifier: classifier,
		extractor:  extractor,
		comparator: comparator,
		limiter:    limiter,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (j *VertexJudge) generate(ctx context.Context, model generator, parts ...genai.Part) (string, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return gcp.ResponseText(resp), nil
}

// Classify returns the model's free-text label for img.
func (j *VertexJudge) Classify(ctx context.Context, img pipeline.ImageInput) (string, error) {
	label, err := j.generate(ctx, j.classifier,
		genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
		genai.Text(gcp.ClassifierUserPrompt),
	)
	if err != nil {
		return "", err
	}
	if label == "" {
		return "", errors.New("empty classification response")
	}
	slog.Debug("Certificate classified.", "file", img.Name, "label", label)
	return label, nil
}

// ExtractFields asks the model for the structured fields in text.
func (j *VertexJudge) ExtractFields(ctx context.Context, text string) (models.CertificateRecord, error) {
	raw, err := j.generate(ctx, j.extractor, genai.Text(text))
	if err != nil {
		return models.CertificateRecord{}, err
	}
	return ParseFields(raw)
}

// CompareRecords asks the model whether cert agrees with the trusted record.
func (j *VertexJudge) CompareRecords(ctx context.Context, db models.DatabaseRecord, cert models.CertificateRecord) (bool, error) {
	dbJSON, err := json.Marshal(db)
	if err != nil {
		return false, fmt.Errorf("failed to marshal database record: %w", err)
	}
	certJSON, err := json.Marshal(cert)
	if err != nil {
		return false, fmt.Errorf("failed to marshal certificate record: %w", err)
	}
	prompt := fmt.Sprintf("Certificate Data: %s\nDatabase Data: %s", certJSON, dbJSON)

	verdict, err := j.generate(ctx, j.comparator, genai.Text(prompt))
	if err != nil {
		return false, err
	}
	if gcp.IsRefusal(verdict) {
		return false, fmt.Errorf("gemini response indicates refusal: %q", verdict)
	}
	return ParseVerdict(verdict), nil
}
