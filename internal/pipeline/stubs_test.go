package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/stretchr/testify/require"
)

// stubJudge labels images by file name and reads "ENR:<n> NAME:<name>" texts.
type stubJudge struct {
	mu         sync.Mutex
	labels     map[string]string
	classErr   map[string]error
	extracted  []string
	compareErr error
}

func (j *stubJudge) Classify(_ context.Context, img ImageInput) (string, error) {
	if err := j.classErr[img.Name]; err != nil {
		return "", err
	}
	if label, ok := j.labels[img.Name]; ok {
		return label, nil
	}
	return "normal human clicked image", nil
}

func (j *stubJudge) ExtractFields(_ context.Context, text string) (models.CertificateRecord, error) {
	j.mu.Lock()
	j.extracted = append(j.extracted, text)
	j.mu.Unlock()

	var rec models.CertificateRecord
	for _, tok := range strings.Fields(text) {
		if v, ok := strings.CutPrefix(tok, "ENR:"); ok {
			rec.EnrollmentNo = &v
		}
		if v, ok := strings.CutPrefix(tok, "NAME:"); ok {
			rec.Name = &v
		}
	}
	return rec, nil
}

func (j *stubJudge) CompareRecords(_ context.Context, db models.DatabaseRecord, cert models.CertificateRecord) (bool, error) {
	if j.compareErr != nil {
		return false, j.compareErr
	}
	return cert.Name != nil && *cert.Name == db.Name && *cert.EnrollmentNo == db.EnrollmentNo, nil
}

// stubDetector writes n blank crops for the configured file names.
type stubDetector struct {
	crops map[string]int
	errs  map[string]error
}

func (d *stubDetector) DetectAndCrop(_ context.Context, imagePath, outputDir string) ([]string, error) {
	name := filepath.Base(imagePath)
	if err := d.errs[name]; err != nil {
		return nil, err
	}
	var paths []string
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for i := 1; i <= d.crops[name]; i++ {
		path := filepath.Join(outputDir, fmt.Sprintf("%s_detected_%d.png", stem, i))
		if err := imaging.SavePNG(path, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// stubOCR returns the configured text per file name, one word per span.
type stubOCR struct {
	mu      sync.Mutex
	texts   map[string]string
	errs    map[string]error
	initErr error
	read    []string
}

func (o *stubOCR) NewReader(context.Context) (TextReader, error) {
	if o.initErr != nil {
		return nil, o.initErr
	}
	return o, nil
}

func (o *stubOCR) ReadText(_ context.Context, imagePath string) (iter.Seq[string], error) {
	name := filepath.Base(imagePath)
	o.mu.Lock()
	o.read = append(o.read, name)
	o.mu.Unlock()
	if err := o.errs[name]; err != nil {
		return nil, err
	}
	return slices.Values(strings.Fields(o.texts[name])), nil
}

func (o *stubOCR) Close() error { return nil }

func (o *stubOCR) readNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.read)
}

// stubScorer returns a fixed similarity per file name.
type stubScorer struct {
	scores map[string]float64
	errs   map[string]error
	refErr error
}

func (s *stubScorer) Reference(string) (Reference, error) {
	if s.refErr != nil {
		return nil, s.refErr
	}
	return s, nil
}

func (s *stubScorer) Similarity(imagePath string) (float64, error) {
	name := filepath.Base(imagePath)
	if err := s.errs[name]; err != nil {
		return 0, err
	}
	return s.scores[name], nil
}

type stubRecords struct {
	records map[string]models.DatabaseRecord
	err     error
}

func (r *stubRecords) LookupRecord(_ context.Context, enrollmentNo string) (*models.DatabaseRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.records[enrollmentNo]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type fixture struct {
	judge    *stubJudge
	detector *stubDetector
	ocr      *stubOCR
	scorer   *stubScorer
	records  *stubRecords
	ws       Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		judge:    &stubJudge{labels: map[string]string{}, classErr: map[string]error{}},
		detector: &stubDetector{crops: map[string]int{}, errs: map[string]error{}},
		ocr:      &stubOCR{texts: map[string]string{}, errs: map[string]error{}},
		scorer:   &stubScorer{scores: map[string]float64{}, errs: map[string]error{}},
		records:  &stubRecords{records: map[string]models.DatabaseRecord{}},
		ws:       ws,
	}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Deps{
		Judge:    f.judge,
		Detector: f.detector,
		OCR:      f.ocr,
		Scorer:   f.scorer,
		Records:  f.records,
	}, Config{TemplatePath: "template.png", Workers: 3})
	require.NoError(t, err)
	return p
}

// addImage writes a small PNG into the processed directory.
func (f *fixture) addImage(t *testing.T, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	img.Set(3, 3, color.Black)
	require.NoError(t, imaging.SavePNG(filepath.Join(f.ws.Processed, name), img))
}

func (f *fixture) addRecord(enrollment, name string) {
	f.records.records[enrollment] = models.DatabaseRecord{EnrollmentNo: enrollment, Name: name}
}

var errBoom = errors.New("boom")
