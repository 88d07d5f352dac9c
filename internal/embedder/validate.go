package embedder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// modelDimensions lists the native output size of common embedding models.
// Models marked resizable accept a requested dimension (Matryoshka).
var modelDimensions = map[string]struct {
	dims      int
	resizable bool
}{
	"nomic-embed-text":       {768, false},
	"mxbai-embed-large":      {1024, false},
	"all-minilm":             {384, false},
	"bge-m3":                 {1024, false},
	"snowflake-arctic-embed": {1024, false},
	"text-embedding-3-small": {1536, true},
	"text-embedding-3-large": {3072, true},
	"text-embedding-ada-002": {1536, false},
	"text-embedding-004":     {768, true},
}

// knownDimensions returns the native size of model, ignoring an Ollama tag
// such as ":latest".
func knownDimensions(model string) (dims int, resizable, ok bool) {
	name, _, _ := strings.Cut(strings.ToLower(model), ":")
	m, ok := modelDimensions[name]
	return m.dims, m.resizable, ok
}

// chatModelFamilies are name fragments of generation models that are often
// put in EMBEDDING_MODEL by mistake.
var chatModelFamilies = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "llama", "mistral", "mixtral", "gemma",
	"phi3", "claude", "command-r", "deepseek", "qwen", "gemini-1", "gemini-2",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, f := range chatModelFamilies {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Validate is the startup preflight for the embedding configuration. It
// returns every hard problem joined (missing credentials, an unknown backend,
// a dimension the model cannot produce) and logs softer misconfigurations.
// Run it before the index backend is opened: a wrong vector size is baked
// into Qdrant collections and pgvector columns at creation time.
func Validate(log *slog.Logger) error {
	backend := Backend()
	var errs []error

	if os.Getenv("EMBEDDING_PROVIDER") == "" && backend == "local" {
		log.Warn("embedder: chat provider has no embedding API, using the local hashing embedder",
			slog.String("model_provider", os.Getenv("MODEL_PROVIDER")),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai, azure, gemini) for semantic retrieval"),
		)
	}

	needKey := func(provider, env string) {
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv(env)) == "" {
			errs = append(errs, fmt.Errorf("embedder: %s requires %s or EMBEDDING_API_KEY", provider, env))
		}
	}
	switch backend {
	case "openai":
		needKey("openai", "OPENAI_API_KEY")
	case "azure":
		needKey("azure", "AZURE_OPENAI_API_KEY")
		if firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT")) == "" {
			errs = append(errs, errors.New("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"))
		}
	case "gemini":
		needKey("gemini", "GOOGLE_API_KEY")
	case "local":
		if vb := os.Getenv("VECTOR_BACKEND"); vb != "" && vb != "memory" {
			log.Warn("embedder: local hashing embedder with a shared vector backend; similarity is lexical only",
				slog.String("vector_backend", vb),
			)
		}
	case "ollama":
	default:
		return fmt.Errorf("embedder: unknown backend %q; valid values: local, ollama, openai, azure, gemini", backend)
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}

	if err := checkDimensions(backend, model); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// checkDimensions rejects a malformed EMBEDDING_DIMENSIONS, or one that a
// fixed-size model cannot produce.
func checkDimensions(backend, model string) error {
	raw := strings.TrimSpace(os.Getenv("EMBEDDING_DIMENSIONS"))
	if raw == "" {
		return nil
	}
	want, err := strconv.Atoi(raw)
	if err != nil || want <= 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be a positive integer, got %q", raw)
	}
	if backend == "local" {
		return nil
	}
	if model == "" {
		model = defaultModel(backend)
	}
	native, resizable, ok := knownDimensions(model)
	switch {
	case !ok:
		return nil
	case resizable && want <= native:
		return nil
	case want != native:
		return fmt.Errorf("embedder: %s produces %d-dimensional vectors, EMBEDDING_DIMENSIONS is %d", model, native, want)
	}
	return nil
}

func defaultModel(backend string) string {
	switch backend {
	case "ollama":
		return defaultOllamaModel
	case "gemini":
		return defaultGeminiModel
	case "openai", "azure":
		return defaultOpenAIModel
	default:
		return ""
	}
}
