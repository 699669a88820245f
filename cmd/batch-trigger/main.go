package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/certificateflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	trigger *services.BatchTriggerFunction
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ValidateUploadedBatch", validateUploadedBatch)
}

// main is required by the Go Functions Framework.
func main() {}

// validateUploadedBatch runs a validation session for a finalized GCS object.
func validateUploadedBatch(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		trigger, initErr = services.NewBatchTrigger(context.Background(), prometheus.DefaultRegisterer)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return trigger.Process(ctx, gcsEvent)
}
