package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
)

// FirestoreRecords looks up student records in a Firestore collection by
// their enrollmentNo field.
type FirestoreRecords struct {
	client     *firestore.Client
	collection string
}

var _ pipeline.RecordLookup = (*FirestoreRecords)(nil)

func NewFirestoreRecords(client *firestore.Client, collection string) *FirestoreRecords {
	return &FirestoreRecords{client: client, collection: collection}
}

// LookupRecord returns the first record with a matching enrollment number,
// or nil when there is none.
func (r *FirestoreRecords) LookupRecord(ctx context.Context, enrollmentNo string) (*models.DatabaseRecord, error) {
	docs, err := r.client.Collection(r.collection).Where("enrollmentNo", "==", enrollmentNo).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	rec := RecordFromFields(docs[0].Data())
	rec.ID = docs[0].Ref.ID
	return &rec, nil
}

// RecordFromFields maps a raw record document onto a DatabaseRecord,
// keeping every field for the comparison.
func RecordFromFields(fields map[string]any) models.DatabaseRecord {
	rec := models.DatabaseRecord{Fields: fields}
	for k, v := range fields {
		switch strings.ToLower(k) {
		case "enrollmentno":
			rec.EnrollmentNo = stringify(v)
		case "name":
			rec.Name = stringify(v)
		case "course":
			rec.Course = stringify(v)
		case "cgpa", "gpa", "grade":
			if f, ok := toFloat(v); ok {
				rec.Grade = &f
			}
		}
	}
	return rec
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// MemoryRecords serves records from memory, keyed by enrollment number.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]models.DatabaseRecord
}

var _ pipeline.RecordLookup = (*MemoryRecords)(nil)

func NewMemoryRecords(records ...models.DatabaseRecord) *MemoryRecords {
	m := &MemoryRecords{records: make(map[string]models.DatabaseRecord, len(records))}
	for _, rec := range records {
		m.Put(rec)
	}
	return m
}

// LoadMemoryRecords reads a JSON array of record documents from path.
func LoadMemoryRecords(path string) (*MemoryRecords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	var raw []map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse records file %s: %w", path, err)
	}
	m := NewMemoryRecords()
	for i, fields := range raw {
		rec := RecordFromFields(fields)
		if rec.EnrollmentNo == "" {
			return nil, fmt.Errorf("record %d has no enrollmentNo", i)
		}
		m.Put(rec)
	}
	return m, nil
}

func (m *MemoryRecords) Put(rec models.DatabaseRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.EnrollmentNo] = rec
}

func (m *MemoryRecords) LookupRecord(_ context.Context, enrollmentNo string) (*models.DatabaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[enrollmentNo]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
