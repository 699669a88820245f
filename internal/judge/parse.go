package judge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/models"
)

// fieldAliases maps normalized JSON keys to certificate fields.
var fieldAliases = map[string]string{
	"enrollmentno":     "enrollment",
	"enrollmentnumber": "enrollment",
	"enrolmentno":      "enrollment",
	"enrollment":       "enrollment",
	"name":             "name",
	"studentname":      "name",
	"course":           "course",
	"program":          "course",
	"programme":        "course",
	"cgpa":             "grade",
	"gpa":              "grade",
	"grade":            "grade",
}

// ParseFields decodes an extraction response into a CertificateRecord.
// Unknown keys are ignored, and values of the wrong shape leave their field nil.
func ParseFields(raw string) (models.CertificateRecord, error) {
	var rec models.CertificateRecord
	dec := json.NewDecoder(bytes.NewReader([]byte(gcp.StripCodeFence(raw))))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return rec, fmt.Errorf("malformed extraction response: %w", err)
	}

	for key, value := range obj {
		switch fieldAliases[normalizeKey(key)] {
		case "enrollment":
			rec.EnrollmentNo = asString(value)
		case "name":
			rec.Name = asString(value)
		case "course":
			rec.Course = asString(value)
		case "grade":
			rec.Grade = asFloat(value)
		}
	}
	return rec, nil
}

func normalizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, k)
}

func asString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func asFloat(v any) *float64 {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &f
}

// ParseVerdict interprets a comparison response: any occurrence of "true"
// means the certificate matches the record.
func ParseVerdict(text string) bool {
	return strings.Contains(strings.ToLower(text), "true")
}
