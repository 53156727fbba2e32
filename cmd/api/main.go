package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/adtrack-console/internal/adapters/http"
	"github.com/kirillkom/adtrack-console/internal/bootstrap"
	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/observability/logging"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("adtrack-api", cfg.LogLevel))
	if envErr != nil {
		slog.Debug("dotenv_not_loaded", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.LoadModels(ctx)

	router := httpadapter.NewRouter(cfg, app.Batch, app.Catalog, app.Settings, app.Metrics).Handler()
	server := newServer(ctx, ":"+cfg.APIPort, router)

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "inference_url", cfg.InferenceURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

// newServer ties request contexts to ctx so open progress streams end when
// shutdown starts. No write timeout: streams stay open for the whole batch.
func newServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}
