package replay

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/simulation"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

func stream() []events.Record {
	return []events.Record{
		{Kind: events.Activation, Time: 0, Barrier: 0},
		{Kind: events.Collision, Time: 0.25, Position: vmath.Vector2{X: 10, Y: -3}, Speed: 420, Note: 2, Octave: 1, Barrier: 0},
		{Kind: events.Diagnostic, Time: 0.3, Barrier: events.NoBarrier, Message: "restitution clamped"},
		{Kind: events.GapPass, Time: 1.5, Position: vmath.Vector2{X: 90}, Pitch: 1, Barrier: 0},
	}
}

// record runs a fresh simulation for the given number of frames.
func record(t *testing.T, seed int64, frames int) []events.Record {
	t.Helper()
	cfg := simulation.DefaultConfig()
	cfg.Seed = seed
	sim, err := simulation.New(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)

	var recs []events.Record
	for i := 0; i < frames; i++ {
		sim.Tick(1.0 / 60)
		recs = append(recs, sim.Drain()...)
	}
	return recs
}

func TestCompare(t *testing.T) {
	c := NewComparer(nil)

	t.Run("identical streams", func(t *testing.T) {
		res, err := c.Compare(stream(), stream(), DefaultOptions())
		require.NoError(t, err)
		assert.True(t, res.Equivalent)
		assert.Equal(t, -1, res.Divergence)
		assert.Empty(t, res.Diff)
		assert.Equal(t, 1, res.CountsA["collision"])
	})

	t.Run("float noise within tolerance", func(t *testing.T) {
		b := stream()
		b[1].Position.X += 1e-12
		b[3].Time = math.Nextafter(b[3].Time, 2)

		res, err := c.Compare(stream(), b, DefaultOptions())
		require.NoError(t, err)
		assert.True(t, res.Equivalent)

		res, err = c.Compare(stream(), b, Options{})
		require.NoError(t, err)
		assert.False(t, res.Equivalent, "zero tolerance demands exact floats")
		assert.Equal(t, 1, res.Divergence)
	})

	t.Run("first divergence is reported", func(t *testing.T) {
		b := stream()
		b[3].Barrier = 1

		res, err := c.Compare(stream(), b, DefaultOptions())
		require.NoError(t, err)
		assert.False(t, res.Equivalent)
		assert.Equal(t, 3, res.Divergence)
		assert.Contains(t, res.Diff, "record 3 (gap_pass")
		assert.Contains(t, res.Diff, "Barrier")
	})

	t.Run("messages and ignored kinds", func(t *testing.T) {
		b := stream()
		b[2].Message = "something else"

		res, err := c.Compare(stream(), b, DefaultOptions())
		require.NoError(t, err)
		assert.True(t, res.Equivalent)

		opts := DefaultOptions()
		opts.IgnoreMessages = false
		res, err = c.Compare(stream(), b, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Divergence)

		opts.IgnoreKinds = []events.Kind{events.Diagnostic}
		res, err = c.Compare(stream(), stream()[:2], opts)
		require.NoError(t, err)
		assert.False(t, res.Equivalent)
		assert.Equal(t, 3, res.LenA)
		assert.Equal(t, 2, res.LenB)
	})

	t.Run("length mismatch", func(t *testing.T) {
		res, err := c.Compare(stream(), stream()[:3], DefaultOptions())
		require.NoError(t, err)
		assert.False(t, res.Equivalent)
		assert.Equal(t, 3, res.Divergence)
		assert.Contains(t, res.Diff, "4 vs 3")
	})

	t.Run("bad tolerance", func(t *testing.T) {
		_, err := c.Compare(nil, nil, Options{Tolerance: -1})
		assert.Error(t, err)
		_, err = c.Compare(nil, nil, Options{Tolerance: math.NaN()})
		assert.Error(t, err)
	})
}

func TestSeedsReplayIdentically(t *testing.T) {
	c := NewComparer(nil)

	res, err := c.Compare(record(t, 11, 240), record(t, 11, 240), Options{})
	require.NoError(t, err)
	assert.True(t, res.Equivalent, res.Diff)

	res, err = c.Compare(record(t, 11, 240), record(t, 12, 240), Options{})
	require.NoError(t, err)
	assert.False(t, res.Equivalent, "different seeds diverge")
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, recs []events.Record) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, export.WriteEvents(f, recs))
		require.NoError(t, f.Close())
		return path
	}
	a := write("a.jsonl", stream())
	b := write("b.jsonl", stream())

	c := NewComparer(nil)
	res, err := c.CompareFiles(a, b, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Equivalent)

	_, err = c.CompareFiles(a, filepath.Join(dir, "missing.jsonl"), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jsonl")
}
