package pipeline

import (
	"context"
	"strings"

	"github.com/Lllllllleong/certificateflow/internal/models"
)

// validate cross-checks every provisionally accepted certificate against the
// trusted records and settles its final status.
func (p *Pipeline) validate(ctx context.Context, st *State) error {
	for _, id := range st.Accepted() {
		c, _ := st.Certificate(id)
		ok, reason := p.check(ctx, st.OCRText(id))
		if ok {
			st.accept(id)
		} else {
			st.reject(id)
		}
		st.Record(StageValidate, "%s: %s", c.Name, reason)
		p.logger.Debug("Certificate validated.", "file", c.Name, "accepted", ok, "reason", reason)
	}
	return nil
}

// check runs extraction, lookup and comparison for one OCR text.
func (p *Pipeline) check(ctx context.Context, text string) (bool, string) {
	fields := p.fields(ctx, text)
	if fields.IsEmpty() {
		return false, "no fields extracted"
	}
	if fields.EnrollmentNo == nil || strings.TrimSpace(*fields.EnrollmentNo) == "" {
		return false, "no enrollment number extracted"
	}
	enrollment := strings.TrimSpace(*fields.EnrollmentNo)

	record, err := p.records.LookupRecord(ctx, enrollment)
	if err != nil {
		return false, "record lookup failed: " + err.Error()
	}
	if record == nil {
		return false, "no record for enrollment number " + enrollment
	}

	match, err := p.judge.CompareRecords(ctx, *record, fields)
	if err != nil {
		return false, "comparison failed: " + err.Error()
	}
	if !match {
		return false, "certificate does not match record " + enrollment
	}
	return true, "certificate matches record " + enrollment
}

// fields never fails: an empty text or a failed call yields an all-nil record.
func (p *Pipeline) fields(ctx context.Context, text string) models.CertificateRecord {
	if strings.TrimSpace(text) == "" {
		return models.CertificateRecord{}
	}
	rec, err := p.judge.ExtractFields(ctx, text)
	if err != nil {
		p.logger.Warn("Field extraction failed.", "error", err)
		return models.CertificateRecord{}
	}
	return rec
}
