package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/apkhub/apkhub-server/internal/api"
	"github.com/apkhub/apkhub-server/internal/auth"
	"github.com/apkhub/apkhub-server/internal/config"
	"github.com/apkhub/apkhub-server/internal/metrics"
	"github.com/apkhub/apkhub-server/pkg/apk"
	"github.com/apkhub/apkhub-server/pkg/bundle"
	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
	"github.com/apkhub/apkhub-server/pkg/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog and distribution server",
	Long: `Start the HTTP server: the catalog API and artifact downloads on the
main listener, Prometheus metrics on a separate one. Configuration comes
from an optional config file and APKHUB_-prefixed environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return err
	}

	db, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	inspector := buildInspector(cfg, log)
	converter := buildConverter(cfg, log)
	uploads := upload.NewService(store, db, inspector, converter, cfg.MaxUploadSize, log)

	if removed, err := upload.SweepOrphans(ctx, store, db, log); err != nil {
		log.Warn("orphan sweep failed", "error", err)
	} else if removed > 0 {
		log.Info("removed orphan APKs", "count", removed)
	}

	var validator *auth.Validator
	if cfg.AuthEnabled() {
		validator, err = auth.New(ctx, cfg.OIDC, log)
		if err != nil {
			// Degraded start: the API stays up without authentication.
			log.Warn("OIDC setup failed, authentication disabled", "error", err)
			validator = nil
		}
	} else {
		log.Warn("no OIDC issuer configured, authentication disabled")
	}

	m := metrics.New()
	m.StartUpdater(ctx, db, store, 30*time.Second, log)

	server := api.NewServer(store, db, uploads, cfg.MaxUploadSize, api.Options{
		Validator: validator,
		Metrics:   m,
		StaticDir: cfg.StaticDir,
	}, log)

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("API server listening", "addr", cfg.ListenAddr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		return errors.Join(apiSrv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func buildInspector(cfg *config.Config, log *slog.Logger) *apk.Inspector {
	path := cfg.Aapt2Path
	if path == "" {
		detected, err := apk.DetectAapt2()
		if err != nil {
			log.Warn("aapt2 not found, uploads will fail inspection", "error", err)
		} else {
			log.Info("detected aapt2", "path", detected)
			path = detected
		}
	}
	return apk.NewInspector(path, log)
}

// buildConverter returns nil unless both bundletool and java are available;
// a nil converter makes AAB uploads fail with a typed error.
func buildConverter(cfg *config.Config, log *slog.Logger) upload.Converter {
	if cfg.BundletoolPath == "" {
		log.Warn("bundletool not configured, AAB uploads disabled")
		return nil
	}

	javaPath := cfg.JavaPath
	if javaPath == "" {
		detected, err := bundle.DetectJava()
		if err != nil {
			log.Warn("java not found, AAB uploads disabled", "error", err)
			return nil
		}
		log.Info("detected java", "path", detected)
		javaPath = detected
	}
	return bundle.New(cfg.BundletoolPath, javaPath)
}
