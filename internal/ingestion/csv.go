package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// ErrSourceMissing marks an optional source file that does not exist.
var ErrSourceMissing = errors.New("ingestion: source not found")

// FAQ and ticket CSV columns. Header names are matched case-insensitively.
var (
	faqColumns    = []string{"question", "answer"}
	ticketColumns = []string{"user_question", "agent_response"}
)

// LoadFAQCSV reads question,answer[,category] rows. Rows with an empty
// question or answer are skipped.
func LoadFAQCSV(path string, clean *Cleaner) ([]rag.Record, error) {
	rows, err := readCSV(path, faqColumns)
	if err != nil {
		return nil, err
	}
	out := make([]rag.Record, 0, len(rows))
	for _, row := range rows {
		q, a := clean.Clean(row["question"]), clean.Clean(row["answer"])
		if q == "" || a == "" {
			continue
		}
		rec := rag.NewFAQRecord(q, a, strings.TrimSpace(row["category"]))
		rec.Origin = "csv"
		out = append(out, rec)
	}
	return out, nil
}

// LoadTicketCSV reads user_question,agent_response[,resolution_status,category]
// rows. Rows with an empty question or response are skipped.
func LoadTicketCSV(path string, clean *Cleaner) ([]rag.Record, error) {
	rows, err := readCSV(path, ticketColumns)
	if err != nil {
		return nil, err
	}
	out := make([]rag.Record, 0, len(rows))
	for _, row := range rows {
		q, a := clean.Clean(row["user_question"]), clean.Clean(row["agent_response"])
		if q == "" || a == "" {
			continue
		}
		rec := rag.NewTicketRecord(q, a,
			strings.TrimSpace(row["resolution_status"]),
			strings.TrimSpace(row["category"]),
		)
		rec.Origin = "csv"
		out = append(out, rec)
	}
	return out, nil
}

// readCSV returns each data row keyed by lower-cased header. A missing file
// wraps ErrSourceMissing; a missing required column or a malformed row is an
// ingestion error.
func readCSV(path string, required []string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	if err != nil {
		return nil, rag.Errorf(rag.KindIngestion, "open "+path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, rag.Errorf(rag.KindIngestion, "read "+path, err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, rag.Errorf(rag.KindIngestion, "read "+path,
				fmt.Errorf("missing required column %q (have %s)", col, strings.Join(header, ",")))
		}
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rag.Errorf(rag.KindIngestion, "read "+path, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
