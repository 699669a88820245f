// Package pipeline implements the certificate validation run: classification,
// template similarity screening, text extraction and record validation over
// one explicit State per run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/certificateflow/internal/metrics"
	"github.com/Lllllllleong/certificateflow/internal/models"
)

// Stage identifies a step of the run. Stages execute strictly in order.
type Stage int

const (
	StageClassify Stage = iota
	StageSimilarity
	StageExtract
	StageValidate
	StageSelect
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageClassify:
		return "classify"
	case StageSimilarity:
		return "similarity"
	case StageExtract:
		return "extract"
	case StageValidate:
		return "validate"
	case StageSelect:
		return "select"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Step is the human-readable progress label reported to API callers.
func (s Stage) Step() string {
	switch s {
	case StageClassify:
		return "Document Processing & Classification"
	case StageSimilarity:
		return "Similarity Checking"
	case StageExtract:
		return "Text Extraction"
	case StageValidate:
		return "Database Validation"
	case StageSelect:
		return "Sorting Results"
	case StageDone:
		return "Completed"
	}
	return s.String()
}

// Config tunes a Pipeline.
type Config struct {
	TemplatePath string
	Workers      int
}

// Deps are the collaborators a Pipeline consumes.
type Deps struct {
	Judge    Judge
	Detector Detector
	OCR      OCREngine
	Scorer   Scorer
	Records  RecordLookup
}

// Pipeline runs validation over a workspace. It holds no per-run state and
// may serve concurrent runs on distinct workspaces.
type Pipeline struct {
	judge    Judge
	detector Detector
	ocr      OCREngine
	scorer   Scorer
	records  RecordLookup
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for operational messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records stage timings and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New validates deps and builds a Pipeline.
func New(deps Deps, cfg Config, opts ...Option) (*Pipeline, error) {
	if deps.Judge == nil || deps.Detector == nil || deps.OCR == nil || deps.Scorer == nil || deps.Records == nil {
		return nil, errors.New("pipeline: judge, detector, ocr, scorer and records are required")
	}
	if cfg.TemplatePath == "" {
		return nil, errors.New("pipeline: template path is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		judge:    deps.Judge,
		detector: deps.Detector,
		ocr:      deps.OCR,
		scorer:   deps.Scorer,
		records:  deps.Records,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run validates the normalized images in ws.Processed. progress, when not
// nil, is called as each stage starts and once more with StageDone.
// An error means the run failed and produced no results.
func (p *Pipeline) Run(ctx context.Context, ws Workspace, progress func(Stage)) (*Result, error) {
	st := NewState()
	logCtx := p.logger.With("workspace", ws.Root)

	for stage := StageClassify; stage < StageDone; stage++ {
		if progress != nil {
			progress(stage)
		}
		logCtx.Info("Starting stage.", "stage", stage.String())
		start := time.Now()
		err := p.runStage(ctx, logCtx, stage, st, ws)
		p.metrics.ObserveStage(stage.String(), time.Since(start))
		if err != nil {
			logCtx.Error("Stage failed.", "stage", stage.String(), "error", err)
			return nil, fmt.Errorf("%s stage: %w", stage, err)
		}
	}
	if progress != nil {
		progress(StageDone)
	}

	res := st.result()
	for _, c := range res.Accepted {
		p.metrics.RecordCertificate(string(c.Kind), string(models.StatusAccepted))
	}
	for _, c := range res.Rejected {
		p.metrics.RecordCertificate(string(c.Kind), string(models.StatusRejected))
	}
	logCtx.Info("Run complete.", "accepted", len(res.Accepted), "rejected", len(res.Rejected), "skipped", len(res.Skipped))
	return res, nil
}

// runStage executes one stage and applies its stage-wide fallback.
func (p *Pipeline) runStage(ctx context.Context, logCtx *slog.Logger, stage Stage, st *State, ws Workspace) error {
	switch stage {
	case StageClassify:
		return p.classify(ctx, st, ws)
	case StageSimilarity:
		if err := p.screen(ctx, st); err != nil {
			ids := st.rejectClassified()
			logCtx.Error("Similarity check failed, rejecting all certificates.", "error", err, "count", len(ids))
			st.Record(StageSimilarity, "Error in similarity checking: %v", err)
			p.metrics.IncrementFallback(stage.String())
		}
		return nil
	case StageExtract:
		if err := p.extract(ctx, st); err != nil {
			st.setOCRTexts(make(map[string]string))
			logCtx.Error("OCR failed, continuing without extracted text.", "error", err)
			st.Record(StageExtract, "Error in OCR processing: %v", err)
			p.metrics.IncrementFallback(stage.String())
		}
		return nil
	case StageValidate:
		return p.validate(ctx, st)
	case StageSelect:
		return p.materialize(st, ws)
	}
	return fmt.Errorf("unknown stage %d", int(stage))
}
