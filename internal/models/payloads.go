package models

import "time"

// These structs define the JSON payloads exchanged with API clients and
// with the downstream workflow.

// UploadResponse is returned once uploaded files are queued for validation.
type UploadResponse struct {
	SessionID     string   `json:"session_id"`
	Message       string   `json:"message"`
	StatusURL     string   `json:"status_url"`
	UploadedFiles []string `json:"uploaded_files"`
}

// ResultsSummary counts the outcome of a completed session.
type ResultsSummary struct {
	TotalFiles    int `json:"total_files"`
	AcceptedCount int `json:"accepted_count"`
	RejectedCount int `json:"rejected_count"`
}

// DownloadLinks point at the packaged accepted/rejected archives.
type DownloadLinks struct {
	Accepted *string `json:"accepted"`
	Rejected *string `json:"rejected"`
}

// ProcessingDetails carries the diagnostic part of a results response.
type ProcessingDetails struct {
	UploadTime time.Time         `json:"upload_time"`
	OCRTexts   map[string]string `json:"ocr_texts"`
}

// ResultsResponse is the detailed view of a completed session.
type ResultsResponse struct {
	SessionID            string            `json:"session_id"`
	Summary              ResultsSummary    `json:"summary"`
	AcceptedCertificates []string          `json:"accepted_certificates"`
	RejectedCertificates []string          `json:"rejected_certificates"`
	DownloadLinks        DownloadLinks     `json:"download_links"`
	ProcessingDetails    ProcessingDetails `json:"processing_details"`
}

// SessionSummary is one entry of the session listing.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	Status        string    `json:"status"`
	UploadTime    time.Time `json:"upload_time"`
	FileCount     int       `json:"file_count"`
	AcceptedCount int       `json:"accepted_count"`
	RejectedCount int       `json:"rejected_count"`
}

// WorkflowHandoff is the argument passed to the downstream workflow
// after a session completes.
type WorkflowHandoff struct {
	SessionID     string   `json:"sessionId"`
	AcceptedCount int      `json:"acceptedCount"`
	RejectedCount int      `json:"rejectedCount"`
	Accepted      []string `json:"accepted"`
	Rejected      []string `json:"rejected"`
}
