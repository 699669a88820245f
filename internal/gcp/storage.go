package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable, returning fallback when
// unset or unparsable.
func GetEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

// GetEnvFloat reads a float environment variable, returning fallback when
// unset or unparsable.
func GetEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(GetEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content io.Reader) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		if IsPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if IsPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// IsPreconditionFailed reports a 412 from a conditional GCS write.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// UploadFile copies a local file to bucket/destObject, retrying with
// exponential backoff. Existing objects are never overwritten.
func UploadFile(ctx context.Context, bucket *storage.BucketHandle, localPath, destObject string) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			localFileReader, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer localFileReader.Close()

			writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
			defer cancel()

			// A retry after an upload that finalized but lost its response
			// sees 412 and counts as done.
			return SaveToGCSAtomically(writeCtx, bucket, destObject, localFileReader)
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

// StreamObject downloads bucket/object to destPath.
func StreamObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	gcsReader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}
