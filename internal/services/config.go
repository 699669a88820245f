package services

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/certificateflow/internal/gcp"
)

// ValidatorConfig holds all configuration for the validation service.
type ValidatorConfig struct {
	ProjectID          string
	VertexAIRegion     string
	ClassifierModel    string
	TextModel          string
	RecordsCollection  string
	RecordsFile        string
	SessionsCollection string
	ResultsBucket      string
	ResultsDir         string
	WorkRoot           string
	TemplatePath       string
	DetectorURL        string
	DetectorConfidence float64
	OCREngine          string
	WorkerLimit        int
	MaxConcurrentRuns  int
	VertexRPS          float64
	WorkflowID         string
	WorkflowLocation   string
}

// loadConfig loads and validates all necessary environment variables for this service.
func loadConfig() (*ValidatorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	cfg := &ValidatorConfig{
		ProjectID:          projectID,
		VertexAIRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ClassifierModel:    gcp.GetEnv("CLASSIFIER_MODEL", "gemini-1.5-flash"),
		TextModel:          gcp.GetEnv("TEXT_MODEL", "gemini-1.5-pro"),
		RecordsCollection:  gcp.GetEnv("RECORDS_COLLECTION", "students"),
		RecordsFile:        gcp.GetEnv("RECORDS_FILE", ""),
		SessionsCollection: gcp.GetEnv("SESSIONS_COLLECTION", "validationSessions"),
		ResultsBucket:      gcp.GetEnv("RESULTS_BUCKET", ""),
		ResultsDir:         gcp.GetEnv("RESULTS_DIR", "results"),
		WorkRoot:           gcp.GetEnv("WORK_ROOT", os.TempDir()),
		TemplatePath:       gcp.GetEnv("TEMPLATE_PATH", "assets/template.png"),
		DetectorURL:        gcp.GetEnv("DETECTOR_URL", ""),
		DetectorConfidence: gcp.GetEnvFloat("DETECTOR_CONFIDENCE", 0.25),
		OCREngine:          gcp.GetEnv("OCR_ENGINE", "gemini"),
		WorkerLimit:        gcp.GetEnvInt("WORKER_LIMIT", 4),
		MaxConcurrentRuns:  gcp.GetEnvInt("MAX_CONCURRENT_RUNS", 2),
		VertexRPS:          gcp.GetEnvFloat("VERTEX_RPS", 5),
		WorkflowID:         gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
	if cfg.WorkerLimit < 1 {
		return nil, fmt.Errorf("WORKER_LIMIT must be at least 1, got %d", cfg.WorkerLimit)
	}
	if cfg.MaxConcurrentRuns < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_RUNS must be at least 1, got %d", cfg.MaxConcurrentRuns)
	}
	if _, err := os.Stat(cfg.TemplatePath); err != nil {
		return nil, fmt.Errorf("TEMPLATE_PATH %q is not readable: %w", cfg.TemplatePath, err)
	}
	return cfg, nil
}
