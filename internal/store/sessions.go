package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"google.golang.org/api/iterator"
)

// FirestoreSessions keeps one document per session, keyed by session ID.
type FirestoreSessions struct {
	client     *firestore.Client
	collection string
}

var _ Sessions = (*FirestoreSessions)(nil)

func NewFirestoreSessions(client *firestore.Client, collection string) *FirestoreSessions {
	return &FirestoreSessions{client: client, collection: collection}
}

func (f *FirestoreSessions) doc(id string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(id)
}

func (f *FirestoreSessions) Create(ctx context.Context, s *models.Session) error {
	if _, err := f.doc(s.ID).Create(ctx, s); err != nil {
		return fmt.Errorf("failed to create session document: %w", err)
	}
	return nil
}

func (f *FirestoreSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	snap, err := f.doc(id).Get(ctx)
	if err != nil {
		if gcp.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var s models.Session
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// List returns all sessions, newest upload first.
func (f *FirestoreSessions) List(ctx context.Context) ([]*models.Session, error) {
	iter := f.client.Collection(f.collection).OrderBy("uploadTime", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []*models.Session
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		var s models.Session
		if err := snap.DataTo(&s); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", snap.Ref.ID, err)
		}
		out = append(out, &s)
	}
	return out, nil
}

func (f *FirestoreSessions) UpdateStatus(ctx context.Context, id, status, step, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: time.Now()},
	}
	if step != "" {
		updates = append(updates, firestore.Update{Path: "step", Value: step})
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if _, err := f.doc(id).Update(ctx, updates); err != nil {
		if gcp.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	return nil
}

func (f *FirestoreSessions) Save(ctx context.Context, s *models.Session) error {
	s.UpdatedAt = time.Now()
	if _, err := f.doc(s.ID).Set(ctx, s); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (f *FirestoreSessions) Delete(ctx context.Context, id string) error {
	if _, err := f.doc(id).Delete(ctx, firestore.Exists); err != nil {
		if gcp.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

var _ Sessions = (*MemorySessions)(nil)

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]*models.Session)}
}

func (m *MemorySessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemorySessions) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return clone(s), nil
}

func (m *MemorySessions) List(context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadTime.After(out[j].UploadTime) })
	return out, nil
}

func (m *MemorySessions) UpdateStatus(_ context.Context, id, status, step, errDetails string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	if step != "" {
		s.Step = step
	}
	if errDetails != "" {
		s.Error = errDetails
	}
	return nil
}

func (m *MemorySessions) Save(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// clone copies s deeply enough that callers cannot mutate stored state.
func clone(s *models.Session) *models.Session {
	c := *s
	c.UploadedFiles = append([]string(nil), s.UploadedFiles...)
	c.Accepted = append([]string(nil), s.Accepted...)
	c.Rejected = append([]string(nil), s.Rejected...)
	c.Skipped = append([]string(nil), s.Skipped...)
	if s.OCRTexts != nil {
		c.OCRTexts = make(map[string]string, len(s.OCRTexts))
		for k, v := range s.OCRTexts {
			c.OCRTexts[k] = v
		}
	}
	return &c
}
