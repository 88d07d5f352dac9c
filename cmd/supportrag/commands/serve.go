package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/server"
	"github.com/54b3r/supportrag-go/internal/tracing"
)

// NewServeCmd constructs the `supportrag serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var ingest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the supportrag HTTP API",
		Long: `Start the supportrag HTTP API.

Endpoints:
  POST /api/query    answer a customer question
  POST /api/ingest   build or reload the FAQ and ticket stores
  POST /api/faqs     add one FAQ without a rebuild
  GET  /api/stats    query log summary
  GET  /api/health   liveness and store sizes
  GET  /api/ready    dependency readiness
  GET  /metrics      Prometheus metrics

Environment variables:
  SUPPORTRAG_API_KEY   Bearer token for /api/* (unset disables auth)
  CORS_ORIGINS         Comma-separated allowed browser origins

Examples:
  supportrag serve
  supportrag serve --port 9090 --ingest
  MODEL_PROVIDER=anthropic supportrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			eng, err := buildEngine(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if err := eng.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			if ingest {
				res, err := eng.svc.Ingest(ctx, false, func(msg string) {
					log.Info("ingest progress", slog.String("step", msg))
				})
				if err != nil {
					return fmt.Errorf("serve: startup ingestion failed: %w", err)
				}
				log.Info("serve: stores ready", slog.String("message", res.Message))
			}

			srv, err := server.New(eng.svc, &server.Config{
				Host:        host,
				Port:        port,
				Logger:      log,
				Pingers:     eng.pingers(),
				APIKey:      os.Getenv("SUPPORTRAG_API_KEY"),
				CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("SUPPORTRAG_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("SUPPORTRAG_PORT", 8080), "TCP port to listen on")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "Load persisted stores, or build them, before serving")

	return cmd
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
