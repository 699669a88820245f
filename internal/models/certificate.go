package models

// Kind is the classification assigned to a normalized certificate image.
type Kind string

const (
	KindHuman        Kind = "human"
	KindECertificate Kind = "ecertificate"
)

// Status is the single decision field of a certificate within a run.
// A certificate is in exactly one status at any time, so the accepted and
// rejected sets can never overlap.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Certificate tracks one certificate image through a validation run.
// ID is generated per run and never derived from the file name.
type Certificate struct {
	ID         string  `json:"id" firestore:"id"`
	Name       string  `json:"name" firestore:"name"`
	Path       string  `json:"-" firestore:"-"`
	Source     string  `json:"source" firestore:"source"`
	Kind       Kind    `json:"kind" firestore:"kind"`
	Status     Status  `json:"status" firestore:"status"`
	Similarity float64 `json:"similarity" firestore:"similarity"`
}

// CertificateRecord holds the structured fields read from a certificate's OCR text.
// Any field may be nil when extraction fails to populate it.
type CertificateRecord struct {
	EnrollmentNo *string  `json:"enrollmentNo"`
	Name         *string  `json:"name"`
	Course       *string  `json:"course"`
	Grade        *float64 `json:"grade"`
}

// IsEmpty reports whether no field was extracted.
func (r CertificateRecord) IsEmpty() bool {
	return r.EnrollmentNo == nil && r.Name == nil && r.Course == nil && r.Grade == nil
}

// DatabaseRecord is a trusted student record keyed by enrollment number.
// Fields keeps the raw document so every stored attribute reaches the comparison.
type DatabaseRecord struct {
	ID           string         `json:"id"`
	EnrollmentNo string         `json:"enrollmentNo"`
	Name         string         `json:"name,omitempty"`
	Course       string         `json:"course,omitempty"`
	Grade        *float64       `json:"grade,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}
