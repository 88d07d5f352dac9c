package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: anthropic
  max_tokens: 512
  temperature: 0.3
  anthropic:
    model: claude-3-5-haiku-latest
embedding:
  provider: ollama
  model: nomic-embed-text
store:
  backend: qdrant
  data_dir: /var/lib/supportrag
  qdrant:
    host: qdrant.internal
    port: 6334
    collection_prefix: acme_
retrieval:
  mode: single
  faq_threshold: 0.65
  single_threshold: 0.7
  top_k: 5
  parallel: true
  generation_timeout: 20s
ingestion:
  hf_datasets: none
query_log:
  backend: sqlite
  kafka_brokers: kafka-1:9092,kafka-2:9092
server:
  cors_origins: https://help.example.com
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "ANTHROPIC_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"VECTOR_BACKEND", "SUPPORTRAG_DATA_DIR",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION_PREFIX",
		"RETRIEVAL_MODE", "FAQ_THRESHOLD", "TICKET_THRESHOLD", "SINGLE_THRESHOLD",
		"RETRIEVAL_TOP_K", "RETRIEVAL_PARALLEL", "GENERATION_TIMEOUT",
		"HF_DATASETS", "QUERYLOG_BACKEND", "KAFKA_BROKERS", "CORS_ORIGINS",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "anthropic",
		"MODEL_MAX_TOKENS":         "512",
		"MODEL_TEMPERATURE":        "0.3",
		"ANTHROPIC_MODEL":          "claude-3-5-haiku-latest",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"VECTOR_BACKEND":           "qdrant",
		"SUPPORTRAG_DATA_DIR":      "/var/lib/supportrag",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION_PREFIX": "acme_",
		"RETRIEVAL_MODE":           "single",
		"FAQ_THRESHOLD":            "0.65",
		"SINGLE_THRESHOLD":         "0.7",
		"RETRIEVAL_TOP_K":          "5",
		"RETRIEVAL_PARALLEL":       "true",
		"GENERATION_TIMEOUT":       "20s",
		"HF_DATASETS":              "none",
		"QUERYLOG_BACKEND":         "sqlite",
		"KAFKA_BROKERS":            "kafka-1:9092,kafka-2:9092",
		"CORS_ORIGINS":             "https://help.example.com",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}

	// A zero threshold in YAML is indistinguishable from unset.
	if v, ok := os.LookupEnv("TICKET_THRESHOLD"); ok {
		t.Errorf("TICKET_THRESHOLD should stay unset, got %q", v)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
retrieval:
  faq_threshold: 0.8
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env vars BEFORE loading; they must not be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("FAQ_THRESHOLD", "0.5")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
	if got := os.Getenv("FAQ_THRESHOLD"); got != "0.5" {
		t.Errorf("FAQ_THRESHOLD: expected env override %q, got %q", "0.5", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUPPORTRAG_CONFIG", cfgPath)
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	loaded, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "warn" {
		t.Errorf("LOG_LEVEL = %q, want warn", got)
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	tests64 := []struct {
		in   float64
		want string
	}{
		{0, ""},
		{0.65, "0.65"},
		{0.7, "0.7"},
	}
	for _, tt := range tests64 {
		if got := float64Str(tt.in); got != tt.want {
			t.Errorf("float64Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
