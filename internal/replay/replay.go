// File: internal/replay/replay.go
package replay

import (
	"fmt"
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/export"
)

// Options controls how strictly two event streams are compared.
type Options struct {
	// Tolerance is the absolute slack allowed on every float field. Zero demands bit equality.
	Tolerance float64
	// IgnoreKinds are dropped from both streams before comparing.
	IgnoreKinds []events.Kind
	// IgnoreMessages skips the free-form text on diagnostic records.
	IgnoreMessages bool
}

// DefaultOptions compares everything except diagnostic text, allowing float rounding noise.
func DefaultOptions() Options {
	return Options{
		Tolerance:      1e-9,
		IgnoreMessages: true,
	}
}

// Result describes how two streams relate.
type Result struct {
	Equivalent bool
	// Divergence is the index, after filtering, of the first record that differs, or -1.
	Divergence int
	LenA, LenB int
	Diff       string
	CountsA    map[string]int
	CountsB    map[string]int
}

// Comparer checks recorded runs against each other, typically to confirm that a seed
// replays identically across builds or machines.
type Comparer struct {
	logger *zap.Logger
}

// NewComparer creates a Comparer.
func NewComparer(logger *zap.Logger) *Comparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparer{logger: logger.Named("replay")}
}

// Compare reports whether a and b are the same run under opts.
func (c *Comparer) Compare(a, b []events.Record, opts Options) (*Result, error) {
	if opts.Tolerance < 0 || math.IsNaN(opts.Tolerance) {
		return nil, fmt.Errorf("tolerance must be a non-negative number, got %v", opts.Tolerance)
	}

	fa := filter(a, opts.IgnoreKinds)
	fb := filter(b, opts.IgnoreKinds)
	cmpOpts := buildCmpOptions(opts)

	res := &Result{
		Divergence: -1,
		LenA:       len(fa),
		LenB:       len(fb),
		CountsA:    counts(fa),
		CountsB:    counts(fb),
	}

	for i := 0; i < min(len(fa), len(fb)); i++ {
		if !cmp.Equal(fa[i], fb[i], cmpOpts...) {
			res.Divergence = i
			res.Diff = fmt.Sprintf("record %d (%s at t=%.4f):\n%s",
				i, fa[i].Kind, fa[i].Time, cmp.Diff(fa[i], fb[i], cmpOpts...))
			break
		}
	}
	if res.Divergence < 0 && len(fa) != len(fb) {
		res.Divergence = min(len(fa), len(fb))
		res.Diff = fmt.Sprintf("streams differ in length: %d vs %d records", len(fa), len(fb))
	}
	res.Equivalent = res.Divergence < 0

	c.logger.Debug("Compared event streams",
		zap.Int("len_a", res.LenA),
		zap.Int("len_b", res.LenB),
		zap.Bool("equivalent", res.Equivalent),
		zap.Int("divergence", res.Divergence))
	return res, nil
}

// CompareFiles loads two JSONL event files and compares them.
func (c *Comparer) CompareFiles(pathA, pathB string, opts Options) (*Result, error) {
	a, err := export.LoadEvents(pathA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pathA, err)
	}
	b, err := export.LoadEvents(pathB)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pathB, err)
	}
	return c.Compare(a, b, opts)
}

// buildCmpOptions assembles the go-cmp options for opts.
func buildCmpOptions(opts Options) cmp.Options {
	cmpOpts := cmp.Options{cmpopts.EquateNaNs()}
	if opts.Tolerance > 0 {
		cmpOpts = append(cmpOpts, cmpopts.EquateApprox(0, opts.Tolerance))
	}
	if opts.IgnoreMessages {
		cmpOpts = append(cmpOpts, cmpopts.IgnoreFields(events.Record{}, "Message"))
	}
	return cmpOpts
}

func filter(recs []events.Record, ignore []events.Kind) []events.Record {
	if len(ignore) == 0 {
		return recs
	}
	skip := make(map[events.Kind]bool, len(ignore))
	for _, k := range ignore {
		skip[k] = true
	}
	out := make([]events.Record, 0, len(recs))
	for _, r := range recs {
		if !skip[r.Kind] {
			out = append(out, r)
		}
	}
	return out
}

func counts(recs []events.Record) map[string]int {
	m := make(map[string]int)
	for _, r := range recs {
		m[r.Kind.String()]++
	}
	return m
}
