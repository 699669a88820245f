package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Classifier Model Prompts ---
const ClassifierSystemPrompt = "You are an assistant that classifies certificate type. Don't give me any extra information, just tell me whether the certificate is ecertificate or normal human clicked image of the certificate."
const ClassifierUserPrompt = "Classify this certificate:"

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = `You are an assistant that extracts structured fields from OCR text of certificates.
Return only valid JSON with fields: EnrollmentNo, Name, Course, CGPA.
Use null for any field that does not appear in the text.`

// --- Comparator Model Prompts ---
const ComparatorSystemPrompt = `You are a checking AI. Check whether the data in the certificate and the data in database are same or not. If same then return true, else return false.
Have strict checking for key sections like enrollment number, but you can be slightly lenient for names and other non-important sections.`

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are an OCR engine. You transcribe the text visible in an image exactly as printed, without translating, correcting or summarizing it."
const OCRUserPrompt = `Transcribe every piece of text in this certificate image.
Output one detected text line per line, in reading order. Output nothing else.`

// VertexConfig selects the models backing each judgment.
type VertexConfig struct {
	ProjectID       string
	Region          string
	ClassifierModel string
	TextModel       string
}

// VertexClient holds all pre-configured generative models for our app.
type VertexClient struct {
	ClassifierModel *genai.GenerativeModel
	ExtractorModel  *genai.GenerativeModel
	ComparatorModel *genai.GenerativeModel
	OCRModel        *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = "gemini-1.5-flash"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the classifier model ---
	classifierModel := baseClient.GenerativeModel(cfg.ClassifierModel)
	classifierModel.SystemInstruction = systemInstruction(ClassifierSystemPrompt)
	classifierModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	// --- Configure the extractor model ---
	extractorModel := baseClient.GenerativeModel(cfg.TextModel)
	extractorModel.SystemInstruction = systemInstruction(ExtractorSystemPrompt)
	extractorModel.GenerationConfig = genai.GenerationConfig{
		// Field extraction is parsed as JSON downstream.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	// --- Configure the comparator model ---
	comparatorModel := baseClient.GenerativeModel(cfg.TextModel)
	comparatorModel.SystemInstruction = systemInstruction(ComparatorSystemPrompt)
	comparatorModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	// --- Configure the OCR model ---
	ocrModel := baseClient.GenerativeModel(cfg.ClassifierModel)
	ocrModel.SystemInstruction = systemInstruction(OCRSystemPrompt)
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	// Certificates carry names and grades; nothing here should be blocked.
	ocrModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ClassifierModel: classifierModel,
		ExtractorModel:  extractorModel,
		ComparatorModel: comparatorModel,
		OCRModel:        ocrModel,
		baseClient:      baseClient,
	}, nil
}

func systemInstruction(prompt string) *genai.Content {
	return &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// StripCodeFence removes a surrounding markdown code fence, with or without a
// language tag.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[\"") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// IsRefusal reports whether a model response reads as a refusal to answer.
func IsRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
