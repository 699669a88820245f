package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/prometheus/client_golang/prometheus"
)

// GCSEvent is the payload of a storage object finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// BatchTriggerFunction validates documents dropped into a bucket: a single
// certificate or a .zip of them starts one session.
type BatchTriggerFunction struct {
	validator *ValidatorFunction
	fetch     func(ctx context.Context, bucket, object, destPath string) error
}

// NewBatchTrigger wires the validator plus a storage client for downloads.
func NewBatchTrigger(ctx context.Context, reg prometheus.Registerer) (*BatchTriggerFunction, error) {
	validator, err := NewValidator(ctx, reg)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	validator.closers = append(validator.closers, storageClient)
	return &BatchTriggerFunction{
		validator: validator,
		fetch: func(ctx context.Context, bucket, object, destPath string) error {
			return gcp.StreamObject(ctx, storageClient, bucket, object, destPath)
		},
	}, nil
}

// Process runs one session for the object synchronously. Objects of other
// types are ignored.
func (f *BatchTriggerFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	base := path.Base(e.Name)
	isZip := strings.EqualFold(path.Ext(base), ".zip")
	if strings.HasSuffix(e.Name, "/") || strings.HasPrefix(base, ".") || (!isZip && !Allowed(base)) {
		logCtx.Info("Ignoring object that is not a certificate upload.")
		return nil
	}
	if IsArchiveName(base) {
		// Published results land here when the results and upload buckets are shared.
		logCtx.Info("Ignoring published results archive.")
		return nil
	}

	session, ws, err := f.validator.open(ctx, 1)
	if err != nil {
		return err
	}
	session.Source = fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	logCtx = logCtx.With("sessionId", session.ID)

	local := filepath.Join(ws.Uploads, base)
	if err := f.fetch(ctx, e.Bucket, e.Name, local); err != nil {
		_ = ws.Remove()
		logCtx.Error("Failed to download uploaded object.", "error", err)
		return err
	}

	if isZip {
		names, err := ExtractZip(local, ws.Uploads)
		_ = os.Remove(local)
		if err != nil {
			_ = ws.Remove()
			logCtx.Error("Failed to expand uploaded archive.", "error", err)
			return err
		}
		for _, n := range names {
			if Allowed(n) {
				session.UploadedFiles = append(session.UploadedFiles, n)
			} else {
				_ = os.Remove(filepath.Join(ws.Uploads, n))
			}
		}
		if len(session.UploadedFiles) == 0 {
			_ = ws.Remove()
			logCtx.Warn("Archive contains no supported certificates.")
			return nil
		}
	} else {
		session.UploadedFiles = append(session.UploadedFiles, base)
	}

	if err := f.validator.sessions.Create(ctx, session); err != nil {
		_ = ws.Remove()
		return err
	}
	logCtx.Info("Created validation session for uploaded batch.", "files", len(session.UploadedFiles))
	return f.validator.Process(ctx, session, ws)
}
