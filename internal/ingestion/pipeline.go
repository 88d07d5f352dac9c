// Package ingestion loads support knowledge from its sources: an FAQ CSV, a
// ticket CSV and optionally a HuggingFace FAQ dataset. It returns records
// ready for the knowledge base to embed; it never touches the stores itself.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// FAQCSV is the FAQ export. A missing file is logged and skipped.
	FAQCSV string

	// TicketCSV is the resolved-ticket export. A missing file is logged
	// and skipped.
	TicketCSV string

	// Datasets are HuggingFace FAQ datasets tried in order. Empty disables
	// HuggingFace loading.
	Datasets []Dataset

	// MaxHFRecords caps rows read from the dataset. Defaults to 5000.
	MaxHFRecords int

	// HF configures the datasets-server client.
	HF HFConfig
}

// ConfigFromEnv reads SUPPORTRAG_DATA_DIR, FAQ_CSV, TICKET_CSV,
// HF_DATASETS, HF_MAX_RECORDS and HF_TOKEN.
func ConfigFromEnv() *Config {
	dataDir := os.Getenv("SUPPORTRAG_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	cfg := &Config{
		FAQCSV:    getEnvOrDefault("FAQ_CSV", filepath.Join(dataDir, "support_faqs.csv")),
		TicketCSV: getEnvOrDefault("TICKET_CSV", filepath.Join(dataDir, "support_tickets.csv")),
		Datasets:  ParseDatasets(os.Getenv("HF_DATASETS")),
		HF: HFConfig{
			BaseURL: os.Getenv("HF_BASE_URL"),
			Token:   os.Getenv("HF_TOKEN"),
		},
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("HF_MAX_RECORDS"))); err == nil && n > 0 {
		cfg.MaxHFRecords = n
	}
	return cfg
}

// Corpus is the loaded content for both stores.
type Corpus struct {
	FAQs    []rag.Record
	Tickets []rag.Record
	// Sources lists what was loaded, for logs and responses.
	Sources []string
}

// Pipeline loads a Corpus from the configured sources.
type Pipeline struct {
	cfg   *Config
	hf    *HFClient
	clean *Cleaner
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxHFRecords <= 0 {
		cfg.MaxHFRecords = DefaultHFMaxRecords
	}
	return &Pipeline{cfg: cfg, hf: NewHFClient(&cfg.HF), clean: NewCleaner()}
}

// Load reads every source. Missing files and unreachable datasets are
// warnings; a malformed file is an ingestion error. Progress is reported via
// the optional progress callback.
func (p *Pipeline) Load(ctx context.Context, progress func(msg string)) (*Corpus, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)
	start := time.Now()
	c := &Corpus{}

	if p.cfg.FAQCSV != "" {
		faqs, err := LoadFAQCSV(p.cfg.FAQCSV, p.clean)
		switch {
		case errors.Is(err, ErrSourceMissing):
			log.Warn("ingestion: faq csv not found", slog.String("path", p.cfg.FAQCSV))
		case err != nil:
			return nil, err
		default:
			c.FAQs = append(c.FAQs, faqs...)
			c.Sources = append(c.Sources, fmt.Sprintf("csv:%s", p.cfg.FAQCSV))
			progress(fmt.Sprintf("loaded %d faqs from %s", len(faqs), p.cfg.FAQCSV))
		}
	}

	if len(p.cfg.Datasets) > 0 {
		progress("loading huggingface faqs")
		faqs, name, err := p.hf.LoadFAQs(ctx, p.cfg.Datasets, p.cfg.MaxHFRecords, p.clean)
		if err != nil {
			if ctx.Err() != nil {
				return nil, rag.Errorf(rag.KindIngestion, "load huggingface faqs", ctx.Err())
			}
			log.Warn("ingestion: all huggingface datasets failed", slog.Any("error", err))
		} else if name != "" {
			c.FAQs = append(c.FAQs, faqs...)
			c.Sources = append(c.Sources, "huggingface:"+name)
			progress(fmt.Sprintf("loaded %d faqs from %s", len(faqs), name))
		}
	}

	if p.cfg.TicketCSV != "" {
		tickets, err := LoadTicketCSV(p.cfg.TicketCSV, p.clean)
		switch {
		case errors.Is(err, ErrSourceMissing):
			log.Warn("ingestion: ticket csv not found", slog.String("path", p.cfg.TicketCSV))
		case err != nil:
			return nil, err
		default:
			c.Tickets = tickets
			c.Sources = append(c.Sources, fmt.Sprintf("csv:%s", p.cfg.TicketCSV))
			progress(fmt.Sprintf("loaded %d tickets from %s", len(tickets), p.cfg.TicketCSV))
		}
	}

	log.Info("ingestion: corpus loaded",
		slog.Int("faqs", len(c.FAQs)),
		slog.Int("tickets", len(c.Tickets)),
		slog.Duration("duration", time.Since(start)),
	)
	return c, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
