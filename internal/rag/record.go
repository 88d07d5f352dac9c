package rag

import "fmt"

// SourceKind identifies which knowledge store a record belongs to.
type SourceKind string

const (
	// KindFAQ marks curated question/answer pairs. FAQ is the primary tier.
	KindFAQ SourceKind = "FAQ"
	// KindTicket marks historical support-ticket exchanges. Ticket is the
	// fallback tier.
	KindTicket SourceKind = "Ticket"
)

// DefaultCategory is applied to records ingested without a category.
const DefaultCategory = "General"

// Record is a single retrievable unit of support knowledge. Records are
// immutable once added to a store.
type Record struct {
	// ID is assigned by the owning store at ingestion (e.g. "faq_00001").
	ID string `json:"id"`

	// Content is the full text that was embedded and is fed to generation.
	Content string `json:"content"`

	// Kind is the store the record belongs to.
	Kind SourceKind `json:"source"`

	// Category groups records for reporting. Defaults to "General".
	Category string `json:"category"`

	// ResolutionStatus is only set on ticket records.
	ResolutionStatus string `json:"resolution_status,omitempty"`

	// Question and Answer hold the FAQ provenance fields.
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	// UserQuestion and AgentResponse hold the ticket provenance fields.
	UserQuestion  string `json:"user_question,omitempty"`
	AgentResponse string `json:"agent_response,omitempty"`

	// Origin names where the record was loaded from (csv, huggingface, api).
	Origin string `json:"origin,omitempty"`
}

// Hit is a single search result: the stored record and its similarity to
// the query, in [0, 1].
type Hit struct {
	Record     Record
	Similarity float64
}

// NewFAQRecord builds an FAQ record with the canonical content layout.
func NewFAQRecord(question, answer, category string) Record {
	if category == "" {
		category = DefaultCategory
	}
	return Record{
		Content:  fmt.Sprintf("Question: %s\nAnswer: %s", question, answer),
		Kind:     KindFAQ,
		Category: category,
		Question: question,
		Answer:   answer,
	}
}

// NewTicketRecord builds a ticket record with the canonical content layout.
func NewTicketRecord(userQuestion, agentResponse, status, category string) Record {
	if category == "" {
		category = DefaultCategory
	}
	if status == "" {
		status = "resolved"
	}
	return Record{
		Content:          fmt.Sprintf("User Question: %s\nAgent Response: %s", userQuestion, agentResponse),
		Kind:             KindTicket,
		Category:         category,
		ResolutionStatus: status,
		UserQuestion:     userQuestion,
		AgentResponse:    agentResponse,
	}
}

// IDPrefix returns the record ID prefix for a store kind.
func IDPrefix(kind SourceKind) string {
	switch kind {
	case KindFAQ:
		return "faq"
	case KindTicket:
		return "ticket"
	default:
		return "rec"
	}
}

// FormatID returns the ID for the seq-th record (1-based) of a store kind.
func FormatID(kind SourceKind, seq int) string {
	return fmt.Sprintf("%s_%05d", IDPrefix(kind), seq)
}
