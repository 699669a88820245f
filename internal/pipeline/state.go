package pipeline

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/google/uuid"
)

// LogEntry is one diagnostic line recorded during a run.
type LogEntry struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// State is the mutable record threaded through the stages of one run.
// Every certificate carries a single status, so the accepted and rejected
// views are disjoint by construction. Methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	certs    map[string]*models.Certificate
	order    []string
	human    []string
	ecerti   []string
	skipped  []string
	ocrTexts map[string]string
	log      []LogEntry
}

// NewState returns an empty state for a new run.
func NewState() *State {
	return &State{
		certs:    make(map[string]*models.Certificate),
		ocrTexts: make(map[string]string),
	}
}

// register adds a pending certificate under a freshly generated ID.
func (s *State) register(c models.Certificate) models.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.Status = models.StatusPending
	s.certs[c.ID] = &c
	s.order = append(s.order, c.ID)
	return c
}

func (s *State) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

// Certificate returns a copy of the certificate registered under id.
func (s *State) Certificate(id string) (models.Certificate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certs[id]
	if !ok {
		return models.Certificate{}, false
	}
	return *c, true
}

func (s *State) setStatus(id string, status models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.certs[id]; ok {
		c.Status = status
	}
}

func (s *State) setSimilarity(id string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.certs[id]; ok {
		c.Similarity = score
	}
}

func (s *State) accept(id string) { s.setStatus(id, models.StatusAccepted) }
func (s *State) reject(id string) { s.setStatus(id, models.StatusRejected) }

func (s *State) withStatus(status models.Status) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		if s.certs[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// Accepted returns the IDs currently judged valid, in registration order.
func (s *State) Accepted() []string { return s.withStatus(models.StatusAccepted) }

// Rejected returns the IDs currently judged invalid, in registration order.
func (s *State) Rejected() []string { return s.withStatus(models.StatusRejected) }

// Human returns the IDs classified as photographed certificates.
func (s *State) Human() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.human)
}

// ECerti returns the IDs classified as e-certificates.
func (s *State) ECerti() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ecerti)
}

func (s *State) setLists(human, ecerti []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.human = human
	s.ecerti = ecerti
}

func (s *State) skip(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, name)
}

// OCRText returns the extracted text for id, or "" when none was stored.
func (s *State) OCRText(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ocrTexts[id]
}

// OCRTexts returns a copy of the extracted texts keyed by certificate ID.
func (s *State) OCRTexts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.ocrTexts))
	for k, v := range s.ocrTexts {
		out[k] = v
	}
	return out
}

func (s *State) setOCRTexts(texts map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ocrTexts = texts
}

// Record appends a diagnostic entry for stage.
func (s *State) Record(stage Stage, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, LogEntry{Stage: stage.String(), Message: fmt.Sprintf(format, args...)})
}

// Log returns a copy of the diagnostic entries.
func (s *State) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// rejectClassified moves every classified certificate to rejected and clears
// both classification lists.
func (s *State) rejectClassified() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append(slices.Clone(s.human), s.ecerti...)
	for _, id := range ids {
		if c, ok := s.certs[id]; ok {
			c.Status = models.StatusRejected
		}
	}
	s.human = nil
	s.ecerti = nil
	return ids
}

// Result is the outcome of a completed run.
type Result struct {
	Accepted []models.Certificate `json:"accepted"`
	Rejected []models.Certificate `json:"rejected"`
	Skipped  []string             `json:"skipped,omitempty"`
	OCRTexts map[string]string    `json:"ocrTexts"`
	Log      []LogEntry           `json:"log"`
}

// result snapshots the state into a Result.
func (s *State) result() *Result {
	r := &Result{OCRTexts: s.OCRTexts(), Log: s.Log()}
	for _, id := range s.Accepted() {
		c, _ := s.Certificate(id)
		r.Accepted = append(r.Accepted, c)
	}
	for _, id := range s.Rejected() {
		c, _ := s.Certificate(id)
		r.Rejected = append(r.Rejected, c)
	}
	s.mu.Lock()
	r.Skipped = slices.Clone(s.skipped)
	s.mu.Unlock()
	return r
}

// Names returns the file names of certs.
func Names(certs []models.Certificate) []string {
	names := make([]string, 0, len(certs))
	for _, c := range certs {
		names = append(names, c.Name)
	}
	return names
}

// TextsByName re-keys the OCR texts by certificate file name.
func (r *Result) TextsByName() map[string]string {
	byID := make(map[string]string, len(r.Accepted)+len(r.Rejected))
	for _, c := range append(slices.Clone(r.Accepted), r.Rejected...) {
		byID[c.ID] = c.Name
	}
	out := make(map[string]string, len(r.OCRTexts))
	for id, text := range r.OCRTexts {
		if name, ok := byID[id]; ok {
			out[name] = text
		}
	}
	return out
}
