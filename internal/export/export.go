// File: internal/export/export.go
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/engine"
	"github.com/xkilldash9x/ringsim/internal/events"
)

const (
	SummaryFile = "summary.json"
	EventsFile  = "events.jsonl"
)

// maxLineSize bounds a single JSONL record when reading back.
const maxLineSize = 1 << 20

// Summary is the on-disk description of a finished run.
type Summary struct {
	*engine.RunResult
	EventCount int            `json:"event_count"`
	Counts     map[string]int `json:"counts"`
}

// NewSummary tallies the events of r by kind.
func NewSummary(r *engine.RunResult) Summary {
	counts := make(map[string]int)
	for _, e := range r.Events {
		counts[e.Kind.String()]++
	}
	return Summary{RunResult: r, EventCount: len(r.Events), Counts: counts}
}

// WriteEvents writes one JSON object per line.
func WriteEvents(w io.Writer, recs []events.Record) error {
	bw := bufio.NewWriter(w)
	stream := json.NewStream(json.ConfigDefault, bw, 4096)
	for i := range recs {
		stream.WriteVal(recs[i])
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, stream.Error)
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}
	return bw.Flush()
}

// ReadEvents parses a stream written by WriteEvents. Blank lines are skipped.
func ReadEvents(r io.Reader) ([]events.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var recs []events.Record
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec events.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid event: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return recs, nil
}

// WriteSummary writes an indented summary document.
func WriteSummary(w io.Writer, r *engine.RunResult) error {
	b, err := json.MarshalIndent(NewSummary(r), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// Exporter writes each run under its own directory: <dir>/<seed>-<run id>/.
type Exporter struct {
	dir         string
	writeEvents bool
	logger      *zap.Logger
}

// NewExporter creates the output directory if needed.
func NewExporter(dir string, writeEvents bool, logger *zap.Logger) (*Exporter, error) {
	if dir == "" {
		return nil, errors.New("output directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Exporter{dir: dir, writeEvents: writeEvents, logger: logger.Named("export")}, nil
}

// RunDir is where the given run is written.
func (x *Exporter) RunDir(r *engine.RunResult) string {
	return filepath.Join(x.dir, fmt.Sprintf("%d-%s", r.Seed, r.RunID))
}

// Record implements engine.Recorder.
func (x *Exporter) Record(_ context.Context, r *engine.RunResult) error {
	if r == nil {
		return errors.New("run result cannot be nil")
	}
	dir := x.RunDir(r)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeFile(filepath.Join(dir, SummaryFile), func(w io.Writer) error {
		return WriteSummary(w, r)
	}); err != nil {
		return err
	}
	if x.writeEvents {
		if err := writeFile(filepath.Join(dir, EventsFile), func(w io.Writer) error {
			return WriteEvents(w, r.Events)
		}); err != nil {
			return err
		}
	}

	x.logger.Debug("Run exported", zap.String("dir", dir), zap.Int("events", len(r.Events)))
	return nil
}

// LoadEvents reads an events file from disk.
func LoadEvents(path string) ([]events.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	return ReadEvents(f)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
