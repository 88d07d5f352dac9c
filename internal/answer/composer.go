// Package answer turns a retrieval outcome into the text returned to the
// customer: it builds the grounding context, renders the support prompt,
// calls the generator under a deadline, and falls back to fixed or
// context-derived text when there is nothing to generate from or generation
// fails.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportrag-go/internal/budget"
	"github.com/54b3r/supportrag-go/internal/generator"
	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/retrieval"
)

// Apology is returned verbatim when retrieval produced nothing to answer from.
const Apology = "I apologize, but I couldn't find relevant information to answer your question. Please contact our support team for assistance."

const (
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 30 * time.Second
	// DefaultCitationChars is the citation excerpt length.
	DefaultCitationChars = 200
	// fallbackChars is how much raw context the generation fallback shows.
	fallbackChars  = 300
	fallbackPrefix = "Based on the available information: "
)

// Citation is a truncated, ranked reference to a retrieved record.
type Citation struct {
	Rank             int     `json:"rank"`
	ID               string  `json:"id"`
	Content          string  `json:"content"`
	Similarity       float64 `json:"similarity"`
	Source           string  `json:"source"`
	Category         string  `json:"category"`
	ResolutionStatus string  `json:"resolution_status,omitempty"`
}

// Answer is the composed response text plus its supporting citations.
type Answer struct {
	Text      string
	Citations []Citation
	// Escalation carries the retrieval escalation reason, or
	// generation_failed when the context fallback was used.
	Escalation retrieval.Reason
}

// Config holds composer settings.
type Config struct {
	// Generator produces answer text. Required.
	Generator generator.Generator
	// Timeout bounds each generation call (default 30s).
	Timeout time.Duration
	// MaxContextTokens caps the context placed in the prompt (default 2048).
	MaxContextTokens int
	// CitationChars is the citation excerpt length (default 200).
	CitationChars int
}

// Composer builds answers. It is safe for concurrent use.
type Composer struct {
	gen           generator.Generator
	template      prompt.ChatTemplate
	timeout       time.Duration
	maxTokens     int
	citationChars int
}

// New constructs a Composer.
func New(cfg *Config) (*Composer, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("answer: generator must not be nil")
	}
	c := &Composer{
		gen:           cfg.Generator,
		template:      newTemplate(),
		timeout:       cfg.Timeout,
		maxTokens:     cfg.MaxContextTokens,
		citationChars: cfg.CitationChars,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxTokens <= 0 {
		c.maxTokens = budget.DefaultMaxContextTokens
	}
	if c.citationChars <= 0 {
		c.citationChars = DefaultCitationChars
	}
	return c, nil
}

// Compose never fails: an empty outcome yields the apology without calling
// the generator, and a generation error or timeout yields a context excerpt.
func (c *Composer) Compose(ctx context.Context, question string, out *retrieval.Outcome) *Answer {
	log := logging.FromContext(ctx)

	if len(out.Entries) == 0 {
		return &Answer{Text: Apology, Citations: []Citation{}, Escalation: out.Escalation}
	}

	ans := &Answer{Citations: Citations(out.Entries, c.citationChars)}
	contextText := c.BuildContext(out.Entries)

	text, err := c.generate(ctx, question, contextText)
	if err != nil {
		log.Warn("answer: generation failed, using context fallback",
			slog.String("generator", c.gen.Name()),
			slog.Any("error", err),
		)
		ans.Text = Fallback(contextText)
		ans.Escalation = retrieval.ReasonGenerationFailed
		return ans
	}
	ans.Text = text
	return ans
}

func (c *Composer) generate(ctx context.Context, question, contextText string) (string, error) {
	msgs, err := c.Prompt(ctx, question, contextText)
	if err != nil {
		return "", err
	}
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logging.FromContext(ctx).Debug("answer: generating",
		slog.String("generator", c.gen.Name()),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)
	text, err := c.gen.Generate(genCtx, msgs)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", generator.ErrEmptyResponse
	}
	return text, nil
}

// Prompt renders the support prompt for a question and context.
func (c *Composer) Prompt(ctx context.Context, question, contextText string) ([]*schema.Message, error) {
	msgs, err := c.template.Format(ctx, map[string]any{
		"context":  contextText,
		"question": question,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: render prompt: %w", err)
	}
	return msgs, nil
}

// BuildContext joins entry contents, best first, separated by blank lines
// and trimmed to the token budget.
func (c *Composer) BuildContext(entries []retrieval.Entry) string {
	blocks := make([]string, len(entries))
	for i, e := range entries {
		blocks[i] = e.Record.Content
	}
	return strings.Join(budget.TrimContext(blocks, c.maxTokens), "\n\n")
}

// Fallback is the answer used when generation fails.
func Fallback(contextText string) string {
	return fallbackPrefix + truncate(contextText, fallbackChars) + "..."
}

// Citations builds ranked citations with content cut to n characters.
func Citations(entries []retrieval.Entry, n int) []Citation {
	out := make([]Citation, len(entries))
	for i, e := range entries {
		content := e.Record.Content
		if len([]rune(content)) > n {
			content = truncate(content, n) + "..."
		}
		out[i] = Citation{
			Rank:             e.Rank,
			ID:               e.Record.ID,
			Content:          content,
			Similarity:       e.Similarity,
			Source:           string(e.Record.Kind),
			Category:         e.Record.Category,
			ResolutionStatus: e.Record.ResolutionStatus,
		}
	}
	return out
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
