package querylog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// DefaultPath is the JSONL log location relative to the working directory.
const DefaultPath = "logs/query_logs.jsonl"

// JSONL appends one JSON object per line to a file. The file is opened and
// closed for every entry so no handle outlives a write.
type JSONL struct {
	path string
	mu   sync.Mutex
}

// NewJSONL returns a JSONL sink writing to path (DefaultPath when empty).
func NewJSONL(path string) *JSONL {
	if path == "" {
		path = DefaultPath
	}
	return &JSONL{path: path}
}

// Path returns the log file location.
func (j *JSONL) Path() string { return j.path }

// Record implements Sink.
func (j *JSONL) Record(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("querylog: encode entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("querylog: create log dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("querylog: open %s: %w", j.path, err)
	}
	_, werr := f.Write(line)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("querylog: write %s: %w", j.path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("querylog: close %s: %w", j.path, cerr)
	}
	return nil
}

// Aggregate implements Aggregator. A missing file is an empty log; lines
// that fail to decode are skipped.
func (j *JSONL) Aggregate(ctx context.Context) (Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	t := newTally()
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return t.summary(), nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("querylog: open %s: %w", j.path, err)
	}
	defer f.Close()

	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		t.add(e)
	}
	if err := sc.Err(); err != nil {
		return Summary{}, fmt.Errorf("querylog: read %s: %w", j.path, err)
	}
	if skipped > 0 {
		logging.FromContext(ctx).Warn("querylog: skipped malformed lines",
			slog.String("path", j.path),
			slog.Int("skipped", skipped),
		)
	}
	return t.summary(), nil
}
