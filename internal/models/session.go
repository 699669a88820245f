package models

import "time"

// Session states visible to API callers.
const (
	SessionQueued     = "queued"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// Session is the Firestore record of one validation run.
// It tracks the lifecycle status and, once completed, the run outcome.
type Session struct {
	ID                  string            `json:"session_id" firestore:"sessionId"`
	Status              string            `json:"status" firestore:"status"`
	Step                string            `json:"step" firestore:"step"`
	Source              string            `json:"source,omitempty" firestore:"source,omitempty"`
	UploadedFiles       []string          `json:"uploaded_files" firestore:"uploadedFiles"`
	UploadTime          time.Time         `json:"upload_time" firestore:"uploadTime"`
	UpdatedAt           time.Time         `json:"updated_at" firestore:"updatedAt"`
	AcceptedCount       int               `json:"accepted_count" firestore:"acceptedCount"`
	RejectedCount       int               `json:"rejected_count" firestore:"rejectedCount"`
	Accepted            []string          `json:"accepted_certificates,omitempty" firestore:"accepted,omitempty"`
	Rejected            []string          `json:"rejected_certificates,omitempty" firestore:"rejected,omitempty"`
	Skipped             []string          `json:"skipped_certificates,omitempty" firestore:"skipped,omitempty"`
	AcceptedDownloadURL string            `json:"accepted_download_url,omitempty" firestore:"acceptedDownloadUrl,omitempty"`
	RejectedDownloadURL string            `json:"rejected_download_url,omitempty" firestore:"rejectedDownloadUrl,omitempty"`
	OCRTexts            map[string]string `json:"ocr_texts,omitempty" firestore:"ocrTexts,omitempty"`
	Error               string            `json:"error,omitempty" firestore:"errorDetails,omitempty"`
}

// Completed reports whether results can be served for the session.
func (s *Session) Completed() bool {
	return s.Status == SessionCompleted
}
