package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/54b3r/supportrag-go/internal/rag"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFAQCSV(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "faqs.csv",
		"\ufeffQuestion,Answer,Category\n"+
			"How do I reset my password?,Use the Forgot password link.,Account\n"+
			"\"Can I pay, by invoice?\",\"Yes, on annual plans.\",\n"+
			",missing question,Billing\n")

	recs, err := LoadFAQCSV(path, NewCleaner())
	if err != nil {
		t.Fatalf("LoadFAQCSV: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2 (blank question skipped)", len(recs))
	}
	if recs[0].Kind != rag.KindFAQ || recs[0].Category != "Account" || recs[0].Origin != "csv" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Question != "Can I pay, by invoice?" || recs[1].Category != rag.DefaultCategory {
		t.Errorf("quoted record = %+v", recs[1])
	}
	if !strings.HasPrefix(recs[0].Content, "Question: How do I reset") {
		t.Errorf("content = %q", recs[0].Content)
	}
}

func TestLoadTicketCSV(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "tickets.csv",
		"user_question,agent_response,resolution_status,category\n"+
			"I was charged twice,We refunded the duplicate charge.,resolved,Billing\n"+
			"App crashes on launch,Reinstall fixed it.,,Technical\n")

	recs, err := LoadTicketCSV(path, NewCleaner())
	if err != nil {
		t.Fatalf("LoadTicketCSV: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Kind != rag.KindTicket || recs[0].ResolutionStatus != "resolved" || recs[0].Category != "Billing" {
		t.Errorf("first ticket = %+v", recs[0])
	}
	if recs[1].ResolutionStatus != "resolved" {
		t.Errorf("empty status should default to resolved, got %q", recs[1].ResolutionStatus)
	}
}

func TestLoadCSV_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadFAQCSV(filepath.Join(dir, "absent.csv"), NewCleaner())
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("missing file err = %v, want ErrSourceMissing", err)
	}

	noCol := writeFile(t, dir, "nocol.csv", "question,reply\nq,a\n")
	_, err = LoadFAQCSV(noCol, NewCleaner())
	if err == nil || rag.KindOf(err) != rag.KindIngestion {
		t.Errorf("missing column err = %v, want ingestion error", err)
	}

	ragged := writeFile(t, dir, "ragged.csv", "user_question,agent_response\nq,a,extra\n")
	_, err = LoadTicketCSV(ragged, NewCleaner())
	if err == nil || rag.KindOf(err) != rag.KindIngestion {
		t.Errorf("ragged row err = %v, want ingestion error", err)
	}

	empty := writeFile(t, dir, "empty.csv", "")
	recs, err := LoadFAQCSV(empty, NewCleaner())
	if err != nil || len(recs) != 0 {
		t.Errorf("empty file = %v, %v; want no records, no error", recs, err)
	}
}

func TestCleaner_Clean(t *testing.T) {
	t.Parallel()
	c := NewCleaner()

	tests := []struct {
		name    string
		in      string
		want    []string
		notWant []string
	}{
		{name: "plain text whitespace", in: "  Reset   your\tpassword  ", want: []string{"Reset your password"}},
		{name: "html converted", in: "<p>Click <b>Reset</b> in settings.</p>", want: []string{"Reset", "settings."}, notWant: []string{"<p>", "<b>"}},
		{name: "script removed", in: "<script>alert(1)</script><p>Hello</p>", want: []string{"Hello"}, notWant: []string{"alert", "<script"}},
		{name: "blank lines squeezed", in: "a\n\n\n\nb", want: []string{"a\n\nb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Clean(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Clean(%q) = %q, want to contain %q", tt.in, got, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("Clean(%q) = %q, must not contain %q", tt.in, got, nw)
				}
			}
		})
	}
}

// newRowsServer serves a fake datasets-server with total rows for "good/faqs"
// and a 500 for anything else.
func newRowsServer(t *testing.T, total int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/rows" || r.URL.Query().Get("dataset") != "good/faqs" {
			http.Error(w, `{"error":"dataset not found"}`, http.StatusInternalServerError)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))
		var rows []string
		for i := offset; i < offset+length && i < total; i++ {
			q := fmt.Sprintf("question %d", i)
			if i == 1 {
				q = ""
			}
			rows = append(rows, fmt.Sprintf(`{"row_idx":%d,"row":{"question":%q,"answer":"answer %d","intent":"billing"}}`, i, q, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"rows":[%s],"num_rows_total":%d}`, strings.Join(rows, ","), total)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHFClient_LoadFAQs_FallsBackAndCaps(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := newRowsServer(t, 250, &requests)
	c := NewHFClient(&HFConfig{BaseURL: srv.URL})

	datasets := []Dataset{InferDataset("broken/faqs"), InferDataset("good/faqs")}
	recs, name, err := c.LoadFAQs(context.Background(), datasets, 150, NewCleaner())
	if err != nil {
		t.Fatalf("LoadFAQs: %v", err)
	}
	if name != "good/faqs" {
		t.Errorf("dataset = %q, want good/faqs", name)
	}
	if len(recs) != 149 {
		t.Errorf("records = %d, want 149 (150 capped, one blank skipped)", len(recs))
	}
	if recs[0].Category != "billing" || recs[0].Origin != "huggingface" {
		t.Errorf("record = %+v", recs[0])
	}
	// one failed request plus two pages (100 + 50)
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestHFClient_LoadFAQs_StopsAtDatasetEnd(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := newRowsServer(t, 30, &requests)
	c := NewHFClient(&HFConfig{BaseURL: srv.URL})

	recs, _, err := c.LoadFAQs(context.Background(), []Dataset{InferDataset("good/faqs")}, 0, NewCleaner())
	if err != nil {
		t.Fatalf("LoadFAQs: %v", err)
	}
	if len(recs) != 29 || requests.Load() != 1 {
		t.Errorf("records = %d requests = %d, want 29 and 1", len(recs), requests.Load())
	}
}

func TestHFClient_LoadFAQs_AllFail(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := newRowsServer(t, 0, &requests)
	c := NewHFClient(&HFConfig{BaseURL: srv.URL})

	_, _, err := c.LoadFAQs(context.Background(), []Dataset{InferDataset("a/b"), InferDataset("c/d")}, 10, NewCleaner())
	if err == nil || rag.KindOf(err) != rag.KindIngestion {
		t.Errorf("err = %v, want ingestion error", err)
	}
}

func TestPipeline_Load(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var requests atomic.Int32
	srv := newRowsServer(t, 5, &requests)

	faqPath := writeFile(t, dir, "faqs.csv", "question,answer\nq1,a1\nq2,a2\n")
	p := NewPipeline(&Config{
		FAQCSV:    faqPath,
		TicketCSV: filepath.Join(dir, "missing_tickets.csv"),
		Datasets:  []Dataset{InferDataset("good/faqs")},
		HF:        HFConfig{BaseURL: srv.URL},
	})

	var progress []string
	c, err := p.Load(context.Background(), func(m string) { progress = append(progress, m) })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.FAQs) != 6 {
		t.Errorf("faqs = %d, want 2 csv + 4 huggingface", len(c.FAQs))
	}
	if len(c.Tickets) != 0 {
		t.Errorf("tickets = %d, want 0 for missing file", len(c.Tickets))
	}
	if len(c.Sources) != 2 || len(progress) == 0 {
		t.Errorf("sources = %v progress = %v", c.Sources, progress)
	}
}

func TestPipeline_Load_MalformedFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := writeFile(t, dir, "tickets.csv", "subject,body\nx,y\n")
	p := NewPipeline(&Config{TicketCSV: bad})

	if _, err := p.Load(context.Background(), nil); rag.KindOf(err) != rag.KindIngestion {
		t.Errorf("err = %v, want ingestion error", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SUPPORTRAG_DATA_DIR", "/srv/support")
	t.Setenv("FAQ_CSV", "")
	t.Setenv("TICKET_CSV", "/tmp/t.csv")
	t.Setenv("HF_DATASETS", "none")
	t.Setenv("HF_MAX_RECORDS", "200")

	cfg := ConfigFromEnv()
	if cfg.FAQCSV != filepath.Join("/srv/support", "support_faqs.csv") {
		t.Errorf("FAQCSV = %q", cfg.FAQCSV)
	}
	if cfg.TicketCSV != "/tmp/t.csv" || cfg.Datasets != nil || cfg.MaxHFRecords != 200 {
		t.Errorf("cfg = %+v", cfg)
	}
}
