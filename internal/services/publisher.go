package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Archive kinds served for download.
const (
	KindAccepted = "accepted"
	KindRejected = "rejected"
)

// Publisher stores result archives and serves them back for download.
type Publisher interface {
	Publish(ctx context.Context, sessionID, kind, localPath string) (string, error)
	Open(ctx context.Context, sessionID, kind string) (io.ReadCloser, error)
	Remove(ctx context.Context, sessionID string) error
}

// ArchiveName is the download file name of a session's archive.
func ArchiveName(sessionID, kind string) string {
	return fmt.Sprintf("%s_certificates_%s.zip", kind, sessionID)
}

// IsArchiveName reports whether name is a file name produced by ArchiveName.
func IsArchiveName(name string) bool {
	for _, kind := range []string{KindAccepted, KindRejected} {
		id, ok := strings.CutPrefix(name, kind+"_certificates_")
		if !ok {
			continue
		}
		if id, ok = strings.CutSuffix(id, ".zip"); ok {
			if _, err := uuid.Parse(id); err == nil {
				return true
			}
		}
	}
	return false
}

// DownloadPath is the API route serving a session's archive.
func DownloadPath(sessionID, kind string) string {
	return fmt.Sprintf("/download/%s/%s", sessionID, kind)
}

// LocalPublisher keeps archives under dir/<sessionID>/.
type LocalPublisher struct {
	dir string
}

func NewLocalPublisher(dir string) (*LocalPublisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &LocalPublisher{dir: dir}, nil
}

func (p *LocalPublisher) path(sessionID, kind string) string {
	return filepath.Join(p.dir, sessionID, ArchiveName(sessionID, kind))
}

func (p *LocalPublisher) Publish(_ context.Context, sessionID, kind, localPath string) (string, error) {
	dst := p.path(sessionID, kind)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(localPath, dst); err != nil {
		// Rename fails across filesystems.
		if err := copyLocal(localPath, dst); err != nil {
			return "", fmt.Errorf("failed to publish %s: %w", filepath.Base(dst), err)
		}
	}
	return DownloadPath(sessionID, kind), nil
}

func (p *LocalPublisher) Open(_ context.Context, sessionID, kind string) (io.ReadCloser, error) {
	f, err := os.Open(p.path(sessionID, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoResults
	}
	return f, err
}

func (p *LocalPublisher) Remove(_ context.Context, sessionID string) error {
	return os.RemoveAll(filepath.Join(p.dir, sessionID))
}

func copyLocal(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// GCSPublisher uploads archives to <bucket>/<sessionID>/ and streams them
// back through the API.
type GCSPublisher struct {
	bucket *storage.BucketHandle
}

func NewGCSPublisher(client *storage.Client, bucket string) *GCSPublisher {
	return &GCSPublisher{bucket: client.Bucket(bucket)}
}

func objectName(sessionID, kind string) string {
	return sessionID + "/" + ArchiveName(sessionID, kind)
}

func (p *GCSPublisher) Publish(ctx context.Context, sessionID, kind, localPath string) (string, error) {
	if err := gcp.UploadFile(ctx, p.bucket, localPath, objectName(sessionID, kind)); err != nil {
		return "", err
	}
	return DownloadPath(sessionID, kind), nil
}

func (p *GCSPublisher) Open(ctx context.Context, sessionID, kind string) (io.ReadCloser, error) {
	r, err := p.bucket.Object(objectName(sessionID, kind)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoResults
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return r, nil
}

func (p *GCSPublisher) Remove(ctx context.Context, sessionID string) error {
	it := p.bucket.Objects(ctx, &storage.Query{Prefix: sessionID + "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list archives: %w", err)
		}
		if err := p.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s: %w", attrs.Name, err)
		}
	}
}
