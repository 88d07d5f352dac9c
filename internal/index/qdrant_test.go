package index

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/supportrag-go/internal/rag"
)

func Test_QdrantPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	rec := rag.NewTicketRecord("My card was charged twice", "We refunded the duplicate.", "resolved", "Billing")
	rec.ID = "ticket_00042"

	payload, err := recordPayload(rec)
	if err != nil {
		t.Fatalf("recordPayload: %v", err)
	}
	if payload["source"] != "Ticket" || payload["category"] != "Billing" {
		t.Errorf("flat fields: %v", payload)
	}

	got, err := payloadRecord(qdrant.NewValueMap(payload))
	if err != nil {
		t.Fatalf("payloadRecord: %v", err)
	}
	if got != rec {
		t.Errorf("round trip: got %+v, want %+v", got, rec)
	}
}

func Test_QdrantPayloadMissingRecord(t *testing.T) {
	t.Parallel()
	if _, err := payloadRecord(qdrant.NewValueMap(map[string]any{"content": "x"})); err == nil {
		t.Error("expected error for payload without record")
	}
}

func Test_NewQdrantBackend_RequiresVectorSize(t *testing.T) {
	t.Parallel()
	if _, err := NewQdrantBackend(&QdrantConfig{}); err == nil {
		t.Error("expected error when vector size is unset")
	}
}

func Test_QdrantDiscardable(t *testing.T) {
	t.Parallel()
	const alias = "support_faq_store"
	cases := []struct {
		live, coll string
		want       bool
	}{
		{"support_faq_store-0002", "support_faq_store-0001", true},
		{"support_faq_store-0002", "support_faq_store-0002", false},
		{"support_faq_store-0002", "support_ticket_store-0001", false},
		{"", "legacy_collection", false},
	}
	for _, tc := range cases {
		if got := discardable(tc.live, alias, tc.coll); got != tc.want {
			t.Errorf("discardable(%q, %q) = %v, want %v", tc.live, tc.coll, got, tc.want)
		}
	}
}

func Test_QdrantPointIDStable(t *testing.T) {
	t.Parallel()
	if pointID("faq_00001").GetUuid() != pointID("faq_00001").GetUuid() {
		t.Error("point id must be stable for a record id")
	}
	if pointID("faq_00001").GetUuid() == pointID("faq_00002").GetUuid() {
		t.Error("distinct records must get distinct point ids")
	}
}
