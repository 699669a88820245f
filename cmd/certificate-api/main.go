package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/certificateflow/internal/api"
	"github.com/Lllllllleong/certificateflow/internal/gcp"
	"github.com/Lllllllleong/certificateflow/internal/services"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCertificates", handleCertificates)
}

// main starts a local server; deployed functions only use the registration in init.
func main() {
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", "HandleCertificates")
	}
	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Starting certificate API.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Server stopped.", "error", err)
		os.Exit(1)
	}
}

func handleCertificates(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var validator *services.ValidatorFunction
		validator, initErr = services.NewValidator(context.Background(), prometheus.DefaultRegisterer)
		if initErr != nil {
			return
		}
		router = api.Router(api.New(validator, slog.Default()), prometheus.DefaultGatherer)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}
