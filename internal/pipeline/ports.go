package pipeline

import (
	"context"
	"errors"
	"iter"

	"github.com/Lllllllleong/certificateflow/internal/models"
)

// ErrEngineUnavailable marks an OCR failure that affects the whole batch
// rather than a single image.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// ErrNoTemplate reports that the reference template could not be loaded.
var ErrNoTemplate = errors.New("reference template unavailable")

// ImageInput is an image prepared for a multimodal judgment call.
type ImageInput struct {
	Name     string // file name, for diagnostics
	Data     []byte
	MIMEType string
}

// Judge groups the language-model judgment calls the pipeline depends on.
type Judge interface {
	// Classify returns a short label describing the certificate type.
	Classify(ctx context.Context, image ImageInput) (string, error)
	// ExtractFields parses OCR text into a certificate record. Malformed model
	// output yields an all-nil record, not an error.
	ExtractFields(ctx context.Context, text string) (models.CertificateRecord, error)
	// CompareRecords reports whether the certificate matches the database record,
	// strict on the enrollment number and lenient on descriptive fields.
	CompareRecords(ctx context.Context, db models.DatabaseRecord, cert models.CertificateRecord) (bool, error)
}

// Detector isolates certificate regions inside a photograph.
// It writes each crop into outputDir and returns the crop paths; an empty
// result means no region was found.
type Detector interface {
	DetectAndCrop(ctx context.Context, imagePath, outputDir string) ([]string, error)
}

// OCREngine creates a reader for one extraction stage.
type OCREngine interface {
	NewReader(ctx context.Context) (TextReader, error)
}

// TextReader yields the text spans detected in an image. The returned
// sequence is finite and may only be consumed once.
type TextReader interface {
	ReadText(ctx context.Context, imagePath string) (iter.Seq[string], error)
	Close() error
}

// Scorer builds perceptual-similarity references.
type Scorer interface {
	Reference(path string) (Reference, error)
}

// Reference scores candidate images against a loaded template, in [0,1].
type Reference interface {
	Similarity(imagePath string) (float64, error)
}

// RecordLookup reads trusted records. A missing record is (nil, nil).
type RecordLookup interface {
	LookupRecord(ctx context.Context, enrollmentNo string) (*models.DatabaseRecord, error)
}
