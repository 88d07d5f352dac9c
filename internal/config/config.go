// Package config provides YAML-based configuration for supportrag.
// Configuration is layered: built-in defaults, then the YAML file, then
// environment variables. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. SUPPORTRAG_CONFIG environment variable
//  3. ~/.supportrag/config.yaml
//  4. ./supportrag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the answer generation backend.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configures where the FAQ and ticket indexes live.
	Store StoreConfig `yaml:"store"`

	// Retrieval configures the tier policy and answer composition.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Ingestion configures the knowledge sources.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// QueryLog configures where per-query entries are written.
	QueryLog QueryLogConfig `yaml:"query_log"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds answer generation settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini, anthropic.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the answer.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature"`

	Ollama    OllamaConfig    `yaml:"ollama"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Azure     AzureConfig     `yaml:"azure"`
	Ark       ArkConfig       `yaml:"ark"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint or model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the regional Ark endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// AnthropicConfig holds Anthropic provider settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Prefer env var ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Anthropic model name.
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini, local).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// StoreConfig selects and configures the index backend.
type StoreConfig struct {
	// Backend is memory, qdrant or pgvector.
	Backend string `yaml:"backend"`
	// DataDir holds the memory snapshots and default CSV sources.
	DataDir string `yaml:"data_dir"`
	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// PGVectorDSN is the Postgres connection string. Prefer env var PGVECTOR_DSN.
	PGVectorDSN string `yaml:"pgvector_dsn"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// CollectionPrefix is prepended to the faq_store and ticket_store names.
	CollectionPrefix string `yaml:"collection_prefix"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RetrievalConfig holds the tier policy.
type RetrievalConfig struct {
	// Mode is dual (FAQ then tickets) or single (FAQ only).
	Mode string `yaml:"mode"`
	// FAQThreshold is the minimum FAQ similarity in dual mode.
	FAQThreshold float64 `yaml:"faq_threshold"`
	// TicketThreshold is the minimum ticket similarity in dual mode.
	TicketThreshold float64 `yaml:"ticket_threshold"`
	// SingleThreshold is the minimum FAQ similarity in single mode.
	SingleThreshold float64 `yaml:"single_threshold"`
	// TopK is the default number of results per store.
	TopK int `yaml:"top_k"`
	// Parallel searches both stores concurrently.
	Parallel bool `yaml:"parallel"`
	// GenerationTimeout bounds one answer generation, as a Go duration.
	GenerationTimeout string `yaml:"generation_timeout"`
	// MaxContextTokens bounds the retrieved context in the prompt.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// IngestionConfig holds knowledge source settings.
type IngestionConfig struct {
	// FAQCSV is the FAQ export path.
	FAQCSV string `yaml:"faq_csv"`
	// TicketCSV is the resolved-ticket export path.
	TicketCSV string `yaml:"ticket_csv"`
	// HFDatasets is a comma-separated list of HuggingFace datasets, or "none".
	HFDatasets string `yaml:"hf_datasets"`
	// HFMaxRecords caps the rows read from a dataset.
	HFMaxRecords int `yaml:"hf_max_records"`
	// HFToken authenticates against HuggingFace. Prefer env var HF_TOKEN.
	HFToken string `yaml:"hf_token"`
}

// QueryLogConfig holds query log settings.
type QueryLogConfig struct {
	// Backend is jsonl, sqlite or none.
	Backend string `yaml:"backend"`
	// Path is the log file or database path.
	Path string `yaml:"path"`
	// KafkaBrokers mirrors entries to Kafka when set (comma-separated).
	KafkaBrokers string `yaml:"kafka_brokers"`
	// KafkaTopic is the topic entries are published to.
	KafkaTopic string `yaml:"kafka_topic"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var SUPPORTRAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// CORSOrigins is a comma-separated list of allowed browser origins.
	CORSOrigins string `yaml:"cors_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ANTHROPIC_API_KEY", func(c *Config) string { return c.Model.Anthropic.APIKey }},
	{"ANTHROPIC_MODEL", func(c *Config) string { return c.Model.Anthropic.Model }},
	{"ANTHROPIC_BASE_URL", func(c *Config) string { return c.Model.Anthropic.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"SUPPORTRAG_DATA_DIR", func(c *Config) string { return c.Store.DataDir }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION_PREFIX", func(c *Config) string { return c.Store.Qdrant.CollectionPrefix }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.Store.PGVectorDSN }},
	{"RETRIEVAL_MODE", func(c *Config) string { return c.Retrieval.Mode }},
	{"FAQ_THRESHOLD", func(c *Config) string { return float64Str(c.Retrieval.FAQThreshold) }},
	{"TICKET_THRESHOLD", func(c *Config) string { return float64Str(c.Retrieval.TicketThreshold) }},
	{"SINGLE_THRESHOLD", func(c *Config) string { return float64Str(c.Retrieval.SingleThreshold) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_PARALLEL", func(c *Config) string { return boolStr(c.Retrieval.Parallel) }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return c.Retrieval.GenerationTimeout }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"FAQ_CSV", func(c *Config) string { return c.Ingestion.FAQCSV }},
	{"TICKET_CSV", func(c *Config) string { return c.Ingestion.TicketCSV }},
	{"HF_DATASETS", func(c *Config) string { return c.Ingestion.HFDatasets }},
	{"HF_MAX_RECORDS", func(c *Config) string { return intStr(c.Ingestion.HFMaxRecords) }},
	{"HF_TOKEN", func(c *Config) string { return c.Ingestion.HFToken }},
	{"QUERYLOG_BACKEND", func(c *Config) string { return c.QueryLog.Backend }},
	{"QUERYLOG_PATH", func(c *Config) string { return c.QueryLog.Path }},
	{"KAFKA_BROKERS", func(c *Config) string { return c.QueryLog.KafkaBrokers }},
	{"KAFKA_TOPIC", func(c *Config) string { return c.QueryLog.KafkaTopic }},
	{"SUPPORTRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"SUPPORTRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"SUPPORTRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"CORS_ORIGINS", func(c *Config) string { return c.Server.CORSOrigins }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SUPPORTRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".supportrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("supportrag.yaml"); err == nil {
		return "supportrag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
// A zero threshold is the default for tickets, so it is never applied from
// YAML; set TICKET_THRESHOLD=0 explicitly if needed.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
