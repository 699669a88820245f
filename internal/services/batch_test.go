package services

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatch(h *harness, files map[string][]byte) *BatchTriggerFunction {
	return &BatchTriggerFunction{
		validator: h.v,
		fetch: func(_ context.Context, _, object, destPath string) error {
			data, ok := files[object]
			if !ok {
				return errors.New("object not found")
			}
			return os.WriteFile(destPath, data, 0o644)
		},
	}
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	path := t.TempDir() + "/batch.zip"
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte(body))
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func onlySession(t *testing.T, h *harness) *models.Session {
	t.Helper()
	list, err := h.sessions.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestBatchSingleDocument(t *testing.T) {
	h := newHarness(t, 1)
	b := newBatch(h, map[string][]byte{"incoming/good_cert.png": []byte("x")})

	require.NoError(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "incoming/good_cert.png"}))

	s := onlySession(t, h)
	assert.Equal(t, models.SessionCompleted, s.Status)
	assert.Equal(t, "gs://uploads/incoming/good_cert.png", s.Source)
	assert.Equal(t, []string{"good_cert.png"}, s.Accepted)
}

func TestBatchArchive(t *testing.T) {
	h := newHarness(t, 1)
	archive := zipBytes(t, map[string]string{
		"batch/good_a.png": "a",
		"batch/bad_b.png":  "b",
		"batch/readme.txt": "skip me",
	})
	b := newBatch(h, map[string][]byte{"batch.zip": archive})

	require.NoError(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "batch.zip"}))

	s := onlySession(t, h)
	assert.ElementsMatch(t, []string{"good_a.png", "bad_b.png"}, s.UploadedFiles)
	assert.Equal(t, 1, s.AcceptedCount)
	assert.Equal(t, 1, s.RejectedCount)
}

func TestBatchIgnoresOtherObjects(t *testing.T) {
	h := newHarness(t, 1)
	b := newBatch(h, nil)
	for _, name := range []string{"notes.txt", "folder/", "incoming/.keep"} {
		require.NoError(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: name}))
	}
	list, err := h.sessions.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBatchIgnoresPublishedArchives(t *testing.T) {
	h := newHarness(t, 1)
	id := uuid.NewString()
	object := id + "/" + ArchiveName(id, KindAccepted)
	b := newBatch(h, map[string][]byte{object: zipBytes(t, map[string]string{"good.png": "x"})})

	require.NoError(t, b.Process(context.Background(), GCSEvent{Bucket: "results", Name: object}))
	list, err := h.sessions.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIsArchiveName(t *testing.T) {
	id := uuid.NewString()
	assert.True(t, IsArchiveName(ArchiveName(id, KindAccepted)))
	assert.True(t, IsArchiveName(ArchiveName(id, KindRejected)))
	assert.False(t, IsArchiveName("accepted_certificates_batch.zip"))
	assert.False(t, IsArchiveName("certificates.zip"))
}

func TestBatchFailures(t *testing.T) {
	h := newHarness(t, 1)
	b := newBatch(h, map[string][]byte{"empty.zip": zipBytes(t, map[string]string{"a.txt": "x"})})

	assert.Error(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "missing.png"}))
	assert.NoError(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "empty.zip"}))

	h.runner.err = errors.New("boom")
	b = newBatch(h, map[string][]byte{"good.png": []byte("x")})
	assert.Error(t, b.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "good.png"}))
	assert.Equal(t, models.SessionFailed, onlySession(t, h).Status)
}
