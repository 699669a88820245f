package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeModel struct {
	reply string
	err   error
	parts []genai.Part
}

func (m *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m.parts = parts
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(m.reply)}}}},
	}, nil
}

func strPtr(s string) *string { return &s }

func TestClassifySendsImage(t *testing.T) {
	m := &fakeModel{reply: "ecertificate\n"}
	j := newJudge(m, nil, nil, newLimiter(0))

	label, err := j.Classify(context.Background(), pipeline.ImageInput{Name: "a.png", Data: []byte{1, 2}, MIMEType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "ecertificate", label)
	require.Len(t, m.parts, 2)
	blob, ok := m.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
}

func TestClassifyEmptyResponse(t *testing.T) {
	j := newJudge(&fakeModel{reply: "  "}, nil, nil, newLimiter(0))
	_, err := j.Classify(context.Background(), pipeline.ImageInput{})
	assert.Error(t, err)
}

func TestExtractFields(t *testing.T) {
	m := &fakeModel{reply: "```json\n{\"EnrollmentNo\": \"A123\", \"Name\": \"Alice\", \"Course\": null, \"CGPA\": 8.5}\n```"}
	j := newJudge(nil, m, nil, newLimiter(0))

	rec, err := j.ExtractFields(context.Background(), "ocr text")
	require.NoError(t, err)
	assert.Equal(t, "A123", *rec.EnrollmentNo)
	assert.Equal(t, "Alice", *rec.Name)
	assert.Nil(t, rec.Course)
	assert.InDelta(t, 8.5, *rec.Grade, 1e-9)
}

func TestExtractFieldsCallError(t *testing.T) {
	boom := errors.New("quota")
	j := newJudge(nil, &fakeModel{err: boom}, nil, newLimiter(0))
	_, err := j.ExtractFields(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestCompareRecords(t *testing.T) {
	tests := []struct {
		reply   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"True, the records match.", true, false},
		{"false", false, false},
		{"I am unable to compare these records.", false, true},
	}
	for _, tt := range tests {
		m := &fakeModel{reply: tt.reply}
		j := newJudge(nil, nil, m, newLimiter(0))
		got, err := j.CompareRecords(context.Background(),
			models.DatabaseRecord{EnrollmentNo: "A1", Name: "Alice"},
			models.CertificateRecord{EnrollmentNo: strPtr("A1"), Name: strPtr("Alice")},
		)
		if tt.wantErr {
			assert.Error(t, err, tt.reply)
			continue
		}
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, got, tt.reply)

		prompt := string(m.parts[0].(genai.Text))
		assert.True(t, strings.Contains(prompt, `"enrollmentNo":"A1"`), prompt)
	}
}

func TestLimiterHonorsContext(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, limiter.Allow())
	j := newJudge(&fakeModel{reply: "x"}, nil, nil, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := j.Classify(ctx, pipeline.ImageInput{})
	assert.Error(t, err)
}
