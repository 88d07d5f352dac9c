// Package mcpserver exposes the support engine as Model Context Protocol
// tools so an assistant can answer customer questions from the same
// knowledge base as the HTTP API.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/support"
	"github.com/54b3r/supportrag-go/internal/version"
)

// Tool names.
const (
	ToolQuery  = "support_query"
	ToolStats  = "support_stats"
	ToolAddFAQ = "support_add_faq"
)

// Service is the engine surface the tools call.
type Service interface {
	Query(ctx context.Context, question string, topK int) (*support.Response, error)
	AddFAQ(ctx context.Context, question, answer, category string) (rag.Record, error)
	Stats(ctx context.Context) (*support.Stats, error)
}

// New builds an MCP server with the support tools registered.
func New(svc Service, log *slog.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "supportrag", Version: version.Version}, nil)
	Register(srv, svc, log)
	return srv
}

// Register adds the support tools to srv.
func Register(srv *mcp.Server, svc Service, log *slog.Logger) {
	t := &tools{svc: svc, log: log}
	srv.AddTool(&mcp.Tool{
		Name:        ToolQuery,
		Description: "Answer a customer support question from the FAQ and resolved-ticket knowledge base. Returns the answer, the answering store, a confidence score and citations; an escalation field is set when a human agent should take over.",
		InputSchema: inputSchema(map[string]any{
			"question": map[string]any{"type": "string", "description": "The customer's question (1 to 1000 characters)"},
			"top_k":    map[string]any{"type": "integer", "description": "Results per store, 1 to 10 (default: 3)"},
		}, []string{"question"}),
	}, t.query)
	srv.AddTool(&mcp.Tool{
		Name:        ToolStats,
		Description: "Report query statistics: total queries, average latency and confidence, answers per source and store sizes.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, t.stats)
	srv.AddTool(&mcp.Tool{
		Name:        ToolAddFAQ,
		Description: "Add one FAQ entry to the knowledge base without a rebuild.",
		InputSchema: inputSchema(map[string]any{
			"question": map[string]any{"type": "string"},
			"answer":   map[string]any{"type": "string"},
			"category": map[string]any{"type": "string", "description": "Defaults to General"},
		}, []string{"question", "answer"}),
	}, t.addFAQ)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

type tools struct {
	svc Service
	log *slog.Logger
}

type queryArgs struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type faqArgs struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

func (t *tools) query(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	resp, err := t.svc.Query(ctx, args.Question, args.TopK)
	if err != nil {
		return t.serviceError(ToolQuery, err), nil
	}
	return jsonResult(resp)
}

func (t *tools) stats(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.svc.Stats(ctx)
	if err != nil {
		return t.serviceError(ToolStats, err), nil
	}
	return jsonResult(st)
}

func (t *tools) addFAQ(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args faqArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	rec, err := t.svc.AddFAQ(ctx, args.Question, args.Answer, args.Category)
	if err != nil {
		return t.serviceError(ToolAddFAQ, err), nil
	}
	return jsonResult(map[string]string{"id": rec.ID, "category": rec.Category})
}

// serviceError turns a service failure into a tool error. Validation and
// readiness messages are passed through; anything else is reduced to its kind.
func (t *tools) serviceError(tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, support.ErrNotReady) {
		return errorResult(errors.New("knowledge base not initialized, run `supportrag ingest` first"))
	}
	kind := rag.KindOf(err)
	if kind == rag.KindValidation {
		var re *rag.Error
		if errors.As(err, &re) && re.Err != nil {
			return errorResult(re.Err)
		}
		return errorResult(errors.New("invalid arguments"))
	}
	t.log.Error("mcp: tool failed", slog.String("tool", tool), slog.String("kind", string(kind)), slog.Any("error", err))
	return errorResult(fmt.Errorf("%s failed (%s)", tool, kind))
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
