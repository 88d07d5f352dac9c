package ingestion

import "testing"

func TestInferDataset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      string
		wantName string
		question string
		answer   string
	}{
		{
			name:     "bitext known layout",
			ref:      "bitext/Bitext-customer-support-llm-chatbot-training-dataset",
			wantName: "bitext/Bitext-customer-support-llm-chatbot-training-dataset",
			question: "instruction",
			answer:   "response",
		},
		{
			name:     "maktek case insensitive",
			ref:      "maktek/customer_support_faqs_dataset",
			wantName: "MakTek/Customer_support_faqs_dataset",
			question: "question",
			answer:   "answer",
		},
		{
			name:     "unknown defaults",
			ref:      "acme/helpdesk",
			wantName: "acme/helpdesk",
			question: "question",
			answer:   "answer",
		},
		{
			name:     "explicit fields",
			ref:      " acme/helpdesk:prompt:completion ",
			wantName: "acme/helpdesk",
			question: "prompt",
			answer:   "completion",
		},
		{
			name:     "partial field override ignored",
			ref:      "acme/helpdesk:prompt",
			wantName: "acme/helpdesk",
			question: "question",
			answer:   "answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferDataset(tt.ref)
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.QuestionField != tt.question || got.AnswerField != tt.answer {
				t.Errorf("fields = %s/%s, want %s/%s", got.QuestionField, got.AnswerField, tt.question, tt.answer)
			}
			if got.Config != "default" || got.Split != "train" {
				t.Errorf("config/split = %s/%s, want default/train", got.Config, got.Split)
			}
		})
	}
}

func TestParseDatasets(t *testing.T) {
	t.Parallel()

	if got := ParseDatasets(""); len(got) != 2 || got[0].QuestionField != "instruction" {
		t.Errorf("empty value = %+v, want defaults", got)
	}
	if got := ParseDatasets("none"); got != nil {
		t.Errorf("none = %+v, want nil", got)
	}
	got := ParseDatasets("a/b, ,c/d:q:a")
	if len(got) != 2 || got[1].Name != "c/d" || got[1].AnswerField != "a" {
		t.Errorf("list = %+v", got)
	}
}

func TestDatasetCategory(t *testing.T) {
	t.Parallel()
	d := InferDataset("acme/helpdesk")
	if got := d.category(map[string]any{"intent": "refund", "category": " "}); got != "refund" {
		t.Errorf("category = %q, want refund", got)
	}
	if got := d.category(map[string]any{"category": 3}); got != "" {
		t.Errorf("non-string category = %q, want empty", got)
	}
}
