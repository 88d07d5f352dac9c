package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel is a minimal model.BaseChatModel for tests.
type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatModel_Generate(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{reply: "  Reset it from settings.  "}
	g := FromChatModel(fake, "ollama")

	got, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("how?")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Reset it from settings." {
		t.Errorf("got %q", got)
	}
	if len(fake.seen) != 1 || fake.seen[0].Content != "how?" {
		t.Errorf("model saw %v", fake.seen)
	}
	if g.Name() != "ollama" {
		t.Errorf("name = %q", g.Name())
	}
}

func TestChatModel_Errors(t *testing.T) {
	t.Parallel()
	_, err := FromChatModel(&fakeChatModel{err: errors.New("503")}, "openai").
		Generate(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "openai") {
		t.Errorf("want wrapped backend error, got %v", err)
	}

	_, err = FromChatModel(&fakeChatModel{reply: "   "}, "openai").Generate(context.Background(), nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("want ErrEmptyResponse, got %v", err)
	}
}

func TestAnthropic_Generate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "claude-test" {
			t.Errorf("model = %v", body["model"])
		}
		if _, ok := body["system"]; !ok {
			t.Error("system prompt not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Try the reset link."}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropic(&AnthropicConfig{APIKey: "k", Model: "claude-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := g.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("how do I reset?"),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Try the reset link." {
		t.Errorf("got %q", got)
	}
}

func TestNewAnthropic_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()
	if _, err := NewAnthropic(&AnthropicConfig{Model: "m"}); err == nil {
		t.Error("missing key should fail")
	}
	if _, err := NewAnthropic(&AnthropicConfig{APIKey: "k"}); err == nil {
		t.Error("missing model should fail")
	}
}
