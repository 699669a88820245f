package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, IsPreconditionFailed(&googleapi.Error{Code: 412}))
	assert.True(t, IsPreconditionFailed(fmt.Errorf("close: %w", &googleapi.Error{Code: 412})))
	assert.False(t, IsPreconditionFailed(&googleapi.Error{Code: 404}))
	assert.False(t, IsPreconditionFailed(errors.New("412")))
	assert.False(t, IsPreconditionFailed(nil))
}

// fakeGCS answers every upload with status and records the
// ifGenerationMatch precondition it was sent.
func fakeGCS(t *testing.T, status int, body string) (*storage.BucketHandle, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var calls atomic.Int32
	var precondition atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		precondition.Store(r.URL.Query().Get("ifGenerationMatch"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client.Bucket("results"), &calls, &precondition
}

func writeTemp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accepted.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK archive"), 0o644))
	return path
}

func TestUploadFileWritesOnlyNewObjects(t *testing.T) {
	bucket, calls, precondition := fakeGCS(t, http.StatusOK, `{"bucket":"results","name":"s/accepted.zip","generation":"1"}`)

	require.NoError(t, UploadFile(context.Background(), bucket, writeTemp(t), "s/accepted.zip"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "0", precondition.Load(), "upload must be conditional on the object not existing")
}

func TestUploadFileTreatsExistingObjectAsDone(t *testing.T) {
	bucket, calls, _ := fakeGCS(t, http.StatusPreconditionFailed, `{"error":{"code":412,"message":"conditionNotMet"}}`)

	require.NoError(t, UploadFile(context.Background(), bucket, writeTemp(t), "s/accepted.zip"))
	assert.Equal(t, int32(1), calls.Load(), "a 412 must not be retried")
}
