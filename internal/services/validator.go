package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/certificateflow/internal/detect"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/judge"
	"github.com/Lllllllleong/certificateflow/internal/metrics"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/Lllllllleong/certificateflow/internal/normalize"
	"github.com/Lllllllleong/certificateflow/internal/ocr"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
	"github.com/Lllllllleong/certificateflow/internal/similarity"
	"github.com/Lllllllleong/certificateflow/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNoFiles         = errors.New("no files uploaded")
	ErrUnsupportedFile = errors.New("file type not supported")
	ErrNotCompleted    = errors.New("processing not completed")
	ErrInvalidKind     = errors.New("invalid file type, use 'accepted' or 'rejected'")
	ErrNoResults       = errors.New("no certificates found")
)

// AllowedExtensions are the upload types accepted by Submit.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf", ".doc", ".docx"}

// Upload is one file received from a client.
type Upload struct {
	Name    string
	Content []byte
}

// Runner executes the validation pipeline over a workspace.
type Runner interface {
	Run(ctx context.Context, ws pipeline.Workspace, progress func(pipeline.Stage)) (*pipeline.Result, error)
}

// WorkflowStarter hands a completed session to a downstream workflow.
type WorkflowStarter interface {
	StartExecution(ctx context.Context, payload any) (string, error)
}

// ValidatorFunction holds the dependencies for the validation logic.
type ValidatorFunction struct {
	pipeline  Runner
	sessions  store.Sessions
	publisher Publisher
	workflow  WorkflowStarter
	metrics   *metrics.Metrics
	runs      *semaphore.Weighted
	workRoot  string
	wg        sync.WaitGroup
	closers   []io.Closer
}

// NewValidator wires the validation service from the environment.
func NewValidator(ctx context.Context, reg prometheus.Registerer) (*ValidatorFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logCtx := slog.With("projectId", config.ProjectID)

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, gcp.VertexConfig{
		ProjectID:       config.ProjectID,
		Region:          config.VertexAIRegion,
		ClassifierModel: config.ClassifierModel,
		TextModel:       config.TextModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	closers := []io.Closer{firestoreClient, vertexClient}

	var records pipeline.RecordLookup = store.NewFirestoreRecords(firestoreClient, config.RecordsCollection)
	if config.RecordsFile != "" {
		if records, err = store.LoadMemoryRecords(config.RecordsFile); err != nil {
			return nil, err
		}
		logCtx.Info("Using records file.", "path", config.RecordsFile)
	}

	var detector pipeline.Detector = detect.Disabled{}
	if config.DetectorURL != "" {
		client := detect.NewClient(config.DetectorURL, config.DetectorConfidence)
		if err := client.CheckHealth(ctx); err != nil {
			logCtx.Warn("Detection service is not healthy, photographs may be kept whole.", "detectorUrl", config.DetectorURL, "error", err)
		}
		detector = client
	}

	ocrEngine, err := ocr.NewEngine(config.OCREngine, vertexClient)
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)
	p, err := pipeline.New(pipeline.Deps{
		Judge:    judge.NewVertexJudge(vertexClient, config.VertexRPS),
		Detector: detector,
		OCR:      ocrEngine,
		Scorer:   similarity.NewPHashScorer(),
		Records:  records,
	}, pipeline.Config{
		TemplatePath: config.TemplatePath,
		Workers:      config.WorkerLimit,
	}, pipeline.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	var publisher Publisher
	if config.ResultsBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		closers = append(closers, storageClient)
		publisher = NewGCSPublisher(storageClient, config.ResultsBucket)
	} else if publisher, err = NewLocalPublisher(config.ResultsDir); err != nil {
		return nil, err
	}

	var workflow WorkflowStarter
	if config.WorkflowID != "" {
		launcher, err := gcp.NewWorkflowLauncher(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
		closers = append(closers, launcher)
		workflow = launcher
	}

	v := newValidator(p, store.NewFirestoreSessions(firestoreClient, config.SessionsCollection), publisher, config.WorkRoot, config.MaxConcurrentRuns)
	v.workflow = workflow
	v.metrics = m
	v.closers = closers
	logCtx.Info("Validator logic initialized.", "ocrEngine", config.OCREngine, "detector", config.DetectorURL != "", "workflowId", config.WorkflowID)
	return v, nil
}

func newValidator(runner Runner, sessions store.Sessions, publisher Publisher, workRoot string, maxRuns int) *ValidatorFunction {
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &ValidatorFunction{
		pipeline:  runner,
		sessions:  sessions,
		publisher: publisher,
		runs:      semaphore.NewWeighted(int64(maxRuns)),
		workRoot:  workRoot,
	}
}

// Submit stores the uploads in a fresh workspace, records a queued session
// and starts processing in the background.
func (f *ValidatorFunction) Submit(ctx context.Context, uploads []Upload) (*models.UploadResponse, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	for _, u := range uploads {
		if !Allowed(u.Name) {
			return nil, fmt.Errorf("%w: %s. Allowed types: %s", ErrUnsupportedFile, u.Name, strings.Join(AllowedExtensions, ", "))
		}
	}

	session, ws, err := f.open(ctx, len(uploads))
	if err != nil {
		return nil, err
	}
	for _, u := range uploads {
		name := filepath.Base(u.Name)
		if err := os.WriteFile(filepath.Join(ws.Uploads, name), u.Content, 0o644); err != nil {
			_ = ws.Remove()
			return nil, fmt.Errorf("failed to store %s: %w", name, err)
		}
		session.UploadedFiles = append(session.UploadedFiles, name)
	}
	if err := f.sessions.Create(ctx, session); err != nil {
		_ = ws.Remove()
		return nil, err
	}

	f.Start(ctx, session, ws)
	return &models.UploadResponse{
		SessionID:     session.ID,
		Message:       fmt.Sprintf("Successfully queued %d files for processing", len(uploads)),
		StatusURL:     "/status/" + session.ID,
		UploadedFiles: session.UploadedFiles,
	}, nil
}

// Allowed reports whether name has an accepted upload extension.
func Allowed(name string) bool {
	return slices.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

// open allocates a session and its workspace.
func (f *ValidatorFunction) open(_ context.Context, fileCount int) (*models.Session, pipeline.Workspace, error) {
	id := uuid.NewString()
	ws, err := pipeline.NewWorkspace(filepath.Join(f.workRoot, id))
	if err != nil {
		return nil, pipeline.Workspace{}, err
	}
	now := time.Now()
	return &models.Session{
		ID:            id,
		Status:        models.SessionQueued,
		Step:          "Initializing",
		UploadedFiles: make([]string, 0, fileCount),
		UploadTime:    now,
		UpdatedAt:     now,
	}, ws, nil
}

// Start processes the session in the background, detached from ctx's
// cancellation.
func (f *ValidatorFunction) Start(ctx context.Context, session *models.Session, ws pipeline.Workspace) {
	bg := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_ = f.Process(bg, session, ws)
	}()
}

// Wait blocks until every background run has finished.
func (f *ValidatorFunction) Wait() {
	f.wg.Wait()
}

// Process runs the full validation of one session and records its outcome.
// The workspace is removed afterwards.
func (f *ValidatorFunction) Process(ctx context.Context, session *models.Session, ws pipeline.Workspace) (err error) {
	logCtx := slog.With("sessionId", session.ID)
	defer func() {
		if rmErr := ws.Remove(); rmErr != nil {
			logCtx.Warn("Failed to remove workspace.", "path", ws.Root, "error", rmErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = f.handleError(ctx, logCtx, session.ID, "validation run panicked", fmt.Errorf("%v", r))
		}
	}()

	if err := f.runs.Acquire(ctx, 1); err != nil {
		return f.handleError(ctx, logCtx, session.ID, "failed to acquire a run slot", err)
	}
	defer f.runs.Release(1)

	logCtx.Info("Starting validation run.", "files", len(session.UploadedFiles))
	f.progress(ctx, logCtx, session.ID, pipeline.StageClassify)

	report, err := normalize.Directory(ctx, ws.Uploads, ws.Processed)
	if err != nil {
		return f.handleError(ctx, logCtx, session.ID, "failed to prepare documents", err)
	}

	result, err := f.pipeline.Run(ctx, ws, func(stage pipeline.Stage) {
		if stage != pipeline.StageClassify {
			f.progress(ctx, logCtx, session.ID, stage)
		}
	})
	if err != nil {
		return f.handleError(ctx, logCtx, session.ID, "validation pipeline failed", err)
	}

	acceptedURL, err := f.pack(ctx, ws, ws.Accepted, session.ID, KindAccepted)
	if err != nil {
		return f.handleError(ctx, logCtx, session.ID, "failed to package accepted certificates", err)
	}
	rejectedURL, err := f.pack(ctx, ws, ws.Rejected, session.ID, KindRejected)
	if err != nil {
		return f.handleError(ctx, logCtx, session.ID, "failed to package rejected certificates", err)
	}

	session.Status = models.SessionCompleted
	session.Step = pipeline.StageDone.Step()
	session.Accepted = pipeline.Names(result.Accepted)
	session.Rejected = pipeline.Names(result.Rejected)
	session.AcceptedCount = len(session.Accepted)
	session.RejectedCount = len(session.Rejected)
	session.Skipped = skippedNames(report, result)
	session.AcceptedDownloadURL = acceptedURL
	session.RejectedDownloadURL = rejectedURL
	session.OCRTexts = result.TextsByName()
	if err := f.sessions.Save(ctx, session); err != nil {
		return f.handleError(ctx, logCtx, session.ID, "failed to save session results", err)
	}
	f.metrics.RecordRun(models.SessionCompleted)
	logCtx.Info("Validation run complete.", "accepted", session.AcceptedCount, "rejected", session.RejectedCount, "skipped", len(session.Skipped))

	f.handoff(ctx, logCtx, session)
	return nil
}

func (f *ValidatorFunction) progress(ctx context.Context, logCtx *slog.Logger, id string, stage pipeline.Stage) {
	if err := f.sessions.UpdateStatus(ctx, id, models.SessionProcessing, stage.Step(), ""); err != nil {
		logCtx.Warn("Failed to record progress.", "stage", stage.String(), "error", err)
	}
}

// pack archives dir and publishes it, returning "" when dir is empty.
func (f *ValidatorFunction) pack(ctx context.Context, ws pipeline.Workspace, dir, sessionID, kind string) (string, error) {
	zipPath := filepath.Join(ws.Root, ArchiveName(sessionID, kind))
	n, err := CreateZip(dir, zipPath)
	if err != nil || n == 0 {
		return "", err
	}
	return f.publisher.Publish(ctx, sessionID, kind, zipPath)
}

func skippedNames(report *normalize.Report, result *pipeline.Result) []string {
	var out []string
	for _, s := range report.Skipped {
		out = append(out, s.Name)
	}
	return append(out, result.Skipped...)
}

// handoff starts the downstream workflow. Failures never fail the session.
func (f *ValidatorFunction) handoff(ctx context.Context, logCtx *slog.Logger, s *models.Session) {
	if f.workflow == nil {
		return
	}
	name, err := f.workflow.StartExecution(ctx, models.WorkflowHandoff{
		SessionID:     s.ID,
		AcceptedCount: s.AcceptedCount,
		RejectedCount: s.RejectedCount,
		Accepted:      s.Accepted,
		Rejected:      s.Rejected,
	})
	if err != nil {
		logCtx.Error("Workflow handoff failed.", "error", err)
		return
	}
	logCtx.Info("Hand-off to workflow complete.", "execution", name)
}

func (f *ValidatorFunction) handleError(ctx context.Context, logCtx *slog.Logger, sessionID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.sessions.UpdateStatus(ctx, sessionID, models.SessionFailed, "Error occurred", fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update session status to failed after a processing error.", "updateError", err)
	}
	f.metrics.RecordRun(models.SessionFailed)
	return fmt.Errorf("%s: %w", message, originalErr)
}

// Status returns the current session record.
func (f *ValidatorFunction) Status(ctx context.Context, id string) (*models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrSessionNotFound
	}
	return f.sessions.Get(ctx, id)
}

// Results returns the detailed view of a completed session.
func (f *ValidatorFunction) Results(ctx context.Context, id string) (*models.ResultsResponse, error) {
	s, err := f.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Completed() {
		return nil, fmt.Errorf("%w. Current status: %s", ErrNotCompleted, s.Status)
	}
	texts := s.OCRTexts
	if texts == nil {
		texts = map[string]string{}
	}
	return &models.ResultsResponse{
		SessionID: s.ID,
		Summary: models.ResultsSummary{
			TotalFiles:    len(s.UploadedFiles),
			AcceptedCount: s.AcceptedCount,
			RejectedCount: s.RejectedCount,
		},
		AcceptedCertificates: nonNil(s.Accepted),
		RejectedCertificates: nonNil(s.Rejected),
		DownloadLinks: models.DownloadLinks{
			Accepted: optional(s.AcceptedDownloadURL),
			Rejected: optional(s.RejectedDownloadURL),
		},
		ProcessingDetails: models.ProcessingDetails{
			UploadTime: s.UploadTime,
			OCRTexts:   texts,
		},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Download opens the accepted or rejected archive of a completed session and
// returns it with its download file name.
func (f *ValidatorFunction) Download(ctx context.Context, id, kind string) (io.ReadCloser, string, error) {
	s, err := f.Status(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !s.Completed() {
		return nil, "", ErrNotCompleted
	}
	var url string
	switch kind {
	case KindAccepted:
		url = s.AcceptedDownloadURL
	case KindRejected:
		url = s.RejectedDownloadURL
	default:
		return nil, "", ErrInvalidKind
	}
	if url == "" {
		return nil, "", fmt.Errorf("%w: no %s certificates", ErrNoResults, kind)
	}
	rc, err := f.publisher.Open(ctx, id, kind)
	if err != nil {
		return nil, "", err
	}
	return rc, ArchiveName(id, kind), nil
}

// Sessions lists every session, newest first.
func (f *ValidatorFunction) Sessions(ctx context.Context) ([]models.SessionSummary, error) {
	sessions, err := f.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, models.SessionSummary{
			SessionID:     s.ID,
			Status:        s.Status,
			UploadTime:    s.UploadTime,
			FileCount:     len(s.UploadedFiles),
			AcceptedCount: s.AcceptedCount,
			RejectedCount: s.RejectedCount,
		})
	}
	return out, nil
}

// Delete removes a session record and its published archives.
func (f *ValidatorFunction) Delete(ctx context.Context, id string) error {
	if _, err := f.Status(ctx, id); err != nil {
		return err
	}
	if err := f.publisher.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove archives: %w", err)
	}
	return f.sessions.Delete(ctx, id)
}

// Close releases the clients opened by NewValidator.
func (f *ValidatorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
