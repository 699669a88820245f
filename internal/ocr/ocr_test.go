package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeModel struct {
	reply string
	err   error
	mime  string
}

func (m *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if blob, ok := parts[0].(genai.Blob); ok {
		m.mime = blob.MIMEType
	}
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(m.reply)}}}},
	}, nil
}

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cert.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))
	return path
}

func read(t *testing.T, m *fakeModel, path string) ([]string, error) {
	t.Helper()
	r, err := NewGemini(m).NewReader(context.Background())
	require.NoError(t, err)
	defer r.Close()
	spans, err := r.ReadText(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return slices.Collect(spans), nil
}

func TestLines(t *testing.T) {
	got := slices.Collect(Lines("  CERTIFICATE \n\n of Completion\r\n  \nA123"))
	assert.Equal(t, []string{"CERTIFICATE", "of Completion", "A123"}, got)
	assert.Empty(t, slices.Collect(Lines(" \n ")))
}

func TestSpansStopsEarly(t *testing.T) {
	var got []string
	for s := range Spans([]string{"a", "", "b", "c"}) {
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestGeminiReadText(t *testing.T) {
	m := &fakeModel{reply: "```\nUNIVERSITY\nEnrollment No: A123\n```"}
	spans, err := read(t, m, writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"UNIVERSITY", "Enrollment No: A123"}, spans)
	assert.Equal(t, "image/png", m.mime)
	assert.Equal(t, "UNIVERSITY Enrollment No: A123", pipeline.JoinSpans(slices.Values(spans)))
}

func TestGeminiRefusal(t *testing.T) {
	_, err := read(t, &fakeModel{reply: "I cannot provide a transcription."}, writeImage(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrEngineUnavailable)
}

func TestGeminiErrorClassification(t *testing.T) {
	path := writeImage(t)

	_, err := read(t, &fakeModel{err: status.Error(codes.PermissionDenied, "denied")}, path)
	assert.ErrorIs(t, err, pipeline.ErrEngineUnavailable)

	_, err = read(t, &fakeModel{err: status.Error(codes.ResourceExhausted, "quota")}, path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrEngineUnavailable)

	_, err = read(t, &fakeModel{err: errors.New("unexpected EOF")}, path)
	assert.NotErrorIs(t, err, pipeline.ErrEngineUnavailable)
}

func TestGeminiMissingFile(t *testing.T) {
	_, err := read(t, &fakeModel{reply: "x"}, filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestGeminiWithoutModel(t *testing.T) {
	_, err := NewGemini(nil).NewReader(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrEngineUnavailable)
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine("gemini", nil)
	assert.Error(t, err)

	_, err = NewEngine("paddle", nil)
	assert.Error(t, err)

	eng, err := NewEngine(" Tesseract ", nil)
	require.NoError(t, err)
	assert.IsType(t, &Tesseract{}, eng)
}
