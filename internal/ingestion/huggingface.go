package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
)

const (
	// DefaultHFBaseURL is the public datasets-server endpoint.
	DefaultHFBaseURL = "https://datasets-server.huggingface.co"
	// DefaultHFMaxRecords caps rows read from a single dataset.
	DefaultHFMaxRecords = 5000
	// hfPageSize is the largest page the rows API serves.
	hfPageSize = 100
)

// HFClient reads dataset rows from the HuggingFace datasets-server API.
type HFClient struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// HFConfig configures an HFClient.
type HFConfig struct {
	// BaseURL defaults to DefaultHFBaseURL.
	BaseURL string
	// Token is an optional HuggingFace access token for gated datasets.
	Token string
	// HTTPTimeout bounds each page request. Defaults to 30s.
	HTTPTimeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}

// NewHFClient constructs an HFClient.
func NewHFClient(cfg *HFConfig) *HFClient {
	if cfg == nil {
		cfg = &HFConfig{}
	}
	c := &HFClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultHFBaseURL
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 30 * time.Second
	}
	if c.userAgent == "" {
		c.userAgent = "supportrag-go/1.0 (faq ingestion)"
	}
	return c
}

type rowsPage struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// LoadFAQs tries each dataset in order and returns the records of the first
// one that loads. Rows missing a question or answer are skipped. When every
// dataset fails the last error is returned.
func (c *HFClient) LoadFAQs(ctx context.Context, datasets []Dataset, maxRecords int, clean *Cleaner) ([]rag.Record, string, error) {
	if maxRecords <= 0 {
		maxRecords = DefaultHFMaxRecords
	}
	log := logging.FromContext(ctx)

	var lastErr error
	for _, ds := range datasets {
		log.Info("ingestion: loading huggingface dataset", slog.String("dataset", ds.Name))
		recs, err := c.loadDataset(ctx, ds, maxRecords, clean)
		if err != nil {
			log.Warn("ingestion: huggingface dataset failed",
				slog.String("dataset", ds.Name),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}
		log.Info("ingestion: loaded huggingface faqs",
			slog.String("dataset", ds.Name),
			slog.Int("records", len(recs)),
		)
		return recs, ds.Name, nil
	}
	if lastErr == nil {
		return nil, "", nil
	}
	return nil, "", rag.Errorf(rag.KindIngestion, "load huggingface faqs", lastErr)
}

func (c *HFClient) loadDataset(ctx context.Context, ds Dataset, maxRecords int, clean *Cleaner) ([]rag.Record, error) {
	var out []rag.Record
	for offset := 0; offset < maxRecords; offset += hfPageSize {
		length := min(hfPageSize, maxRecords-offset)
		page, err := c.fetchRows(ctx, ds, offset, length)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			q := clean.Clean(stringField(r.Row, ds.QuestionField))
			a := clean.Clean(stringField(r.Row, ds.AnswerField))
			if q == "" || a == "" {
				continue
			}
			rec := rag.NewFAQRecord(q, a, ds.category(r.Row))
			rec.Origin = "huggingface"
			out = append(out, rec)
		}
		if len(page.Rows) < length || offset+len(page.Rows) >= page.NumRowsTotal {
			break
		}
	}
	return out, nil
}

func (c *HFClient) fetchRows(ctx context.Context, ds Dataset, offset, length int) (*rowsPage, error) {
	q := url.Values{}
	q.Set("dataset", ds.Name)
	q.Set("config", ds.Config)
	q.Set("split", ds.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d for %s: %s", resp.StatusCode, ds.Name, strings.TrimSpace(string(body)))
	}

	var page rowsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return &page, nil
}
