// Package store persists validation sessions and serves trusted student
// records, backed by Firestore or by memory for local runs and tests.
package store

import (
	"context"
	"errors"

	"github.com/Lllllllleong/certificateflow/internal/models"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Sessions persists validation sessions.
type Sessions interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	UpdateStatus(ctx context.Context, id, status, step, errDetails string) error
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
}
