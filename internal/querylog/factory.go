package querylog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend names accepted by QUERYLOG_BACKEND.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Config selects the query log sinks.
type Config struct {
	// Backend is the aggregating sink: jsonl (default), sqlite or none.
	Backend string
	// Path is the JSONL file or SQLite database location.
	Path string
	// KafkaBrokers enables the Kafka mirror when non-empty.
	KafkaBrokers []string
	// KafkaTopic defaults to DefaultKafkaTopic.
	KafkaTopic string
	// Logger receives asynchronous sink failures. Nil uses slog.Default.
	Logger *slog.Logger
}

// ConfigFromEnv reads QUERYLOG_BACKEND, QUERYLOG_PATH, KAFKA_BROKERS
// (comma-separated) and KAFKA_TOPIC.
func ConfigFromEnv() Config {
	cfg := Config{
		Backend:    strings.ToLower(strings.TrimSpace(os.Getenv("QUERYLOG_BACKEND"))),
		Path:       os.Getenv("QUERYLOG_PATH"),
		KafkaTopic: os.Getenv("KAFKA_TOPIC"),
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendJSONL
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	return cfg
}

// Open builds the configured sinks. reg, when non-nil, adds the Prometheus
// sink. The caller owns the returned Multi and must Close it.
func Open(cfg Config, reg prometheus.Registerer) (*Multi, error) {
	var sinks []Sink
	switch cfg.Backend {
	case BackendJSONL, "":
		sinks = append(sinks, NewJSONL(cfg.Path))
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = "logs/query_logs.db"
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	case BackendNone:
	default:
		return nil, fmt.Errorf("querylog: unknown backend %q (want jsonl, sqlite or none)", cfg.Backend)
	}

	if reg != nil {
		sinks = append(sinks, NewProm(reg))
	}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.Logger)
		if err != nil {
			_ = NewMulti(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, k)
	}
	return NewMulti(sinks...), nil
}
