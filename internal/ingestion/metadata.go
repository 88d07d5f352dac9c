package ingestion

import (
	"strings"
)

// Dataset describes how to read FAQ pairs from a HuggingFace dataset.
type Dataset struct {
	// Name is the repository id, e.g. "MakTek/Customer_support_faqs_dataset".
	Name string
	// Config and Split select the table served by the rows API.
	Config string
	Split  string
	// QuestionField and AnswerField name the row columns holding the pair.
	QuestionField string
	AnswerField   string
	// CategoryFields are tried in order; the first non-empty value wins.
	CategoryFields []string
}

// knownDatasets maps dataset ids to their column layout.
var knownDatasets = map[string]Dataset{
	"bitext/bitext-customer-support-llm-chatbot-training-dataset": {
		Name:           "bitext/Bitext-customer-support-llm-chatbot-training-dataset",
		QuestionField:  "instruction",
		AnswerField:    "response",
		CategoryFields: []string{"category", "intent"},
	},
	"maktek/customer_support_faqs_dataset": {
		Name:           "MakTek/Customer_support_faqs_dataset",
		QuestionField:  "question",
		AnswerField:    "answer",
		CategoryFields: []string{"category", "intent"},
	},
}

// DefaultDatasets are tried in order until one loads.
func DefaultDatasets() []Dataset {
	return []Dataset{
		InferDataset("bitext/Bitext-customer-support-llm-chatbot-training-dataset"),
		InferDataset("MakTek/Customer_support_faqs_dataset"),
	}
}

// InferDataset parses a dataset reference and fills in whatever it leaves out.
//
// Supported forms:
//
//	owner/name
//	owner/name:question_field:answer_field
//
// Known datasets get their column layout from a built-in table; unknown ones
// default to question/answer columns. Config and split default to
// "default" and "train".
func InferDataset(ref string) Dataset {
	parts := strings.Split(strings.TrimSpace(ref), ":")
	name := parts[0]

	d, ok := knownDatasets[strings.ToLower(name)]
	if !ok {
		d = Dataset{
			Name:           name,
			QuestionField:  "question",
			AnswerField:    "answer",
			CategoryFields: []string{"category", "intent"},
		}
	}
	if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
		d.QuestionField = parts[1]
		d.AnswerField = parts[2]
	}
	if d.Config == "" {
		d.Config = "default"
	}
	if d.Split == "" {
		d.Split = "train"
	}
	return d
}

// ParseDatasets parses a comma-separated HF_DATASETS value. "none" disables
// HuggingFace loading; an empty value yields DefaultDatasets.
func ParseDatasets(value string) []Dataset {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "":
		return DefaultDatasets()
	case "none", "off":
		return nil
	}
	var out []Dataset
	for _, ref := range strings.Split(value, ",") {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		out = append(out, InferDataset(ref))
	}
	return out
}

// category returns the first non-empty category column of row.
func (d Dataset) category(row map[string]any) string {
	for _, f := range d.CategoryFields {
		if v := stringField(row, f); v != "" {
			return v
		}
	}
	return ""
}

func stringField(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
