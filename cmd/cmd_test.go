// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ringsim/internal/config"
	"github.com/xkilldash9x/ringsim/internal/engine"
	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/store"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// -- Test Helpers --

// mockRunStore is a testify mock of the run database.
type mockRunStore struct {
	mock.Mock
}

func (m *mockRunStore) Record(ctx context.Context, result *engine.RunResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *mockRunStore) RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]store.RunSummary)
	return runs, args.Error(1)
}

// fakeProvider hands out a fixed store and remembers whether it was cleaned up.
type fakeProvider struct {
	store  runStore
	err    error
	closed bool
}

func (p *fakeProvider) Create(context.Context, config.Interface) (runStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.closed = true }, nil
}

// writeTestConfig writes a config whose barriers are fully open, so runs escape quickly.
func writeTestConfig(t *testing.T, outDir string) string {
	t.Helper()
	content := fmt.Sprintf(`
logger:
  level: error
simulation:
  gap_angle_degrees: 360
  initial_barrier_count: 3
  max_total_barriers_to_create: 3
  escape_threshold: 3
  boundary_radius: 1000000000
render:
  fps: 60
  duration: 1s
  stop_on_escape: true
  escape_tail: 500ms
engine:
  runs: 3
  worker_concurrency: 2
output:
  dir: %q
  write_events: true
audio:
  sample_rate: 8000
`, outDir)
	path := filepath.Join(t.TempDir(), "ringsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs a fresh command tree and returns what it wrote to stdout.
func execute(t *testing.T, ctx context.Context, provider storeProvider, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(provider)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// -- Test Suite --

func TestVersion(t *testing.T) {
	t.Run("subcommand", func(t *testing.T) {
		out, err := execute(t, context.Background(), &fakeProvider{}, "version")
		require.NoError(t, err)
		assert.Equal(t, "ringsim "+Version+"\n", out)
	})

	t.Run("flag", func(t *testing.T) {
		out, err := execute(t, context.Background(), &fakeProvider{}, "--version")
		require.NoError(t, err)
		assert.Equal(t, Version+"\n", out)
	})
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  fps: 0\n"), 0o644))

	_, err := execute(t, context.Background(), &fakeProvider{}, "--config", path, "simulate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.fps")
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	summaryPath := filepath.Join(dir, "summary.json")
	wavPath := filepath.Join(dir, "run.wav")

	out, err := execute(t, context.Background(), &fakeProvider{},
		"--config", cfgPath, "simulate", "--seed", "5", "--summary", summaryPath, "--wav", wavPath)
	require.NoError(t, err)

	recs, err := export.ReadEvents(strings.NewReader(out))
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, events.Activation, recs[0].Kind)

	summary, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(summary), `"seed": 5`)

	info, err := os.Stat(wavPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44), "more than a bare WAV header")
}

func TestSimulateFlagValidation(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	_, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "simulate", "--fps", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flags")
}

func TestBatch(t *testing.T) {
	t.Run("should export every run", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir)

		out, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "batch", "--seed", "100")
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
		for _, e := range entries {
			assert.FileExists(t, filepath.Join(dir, e.Name(), export.SummaryFile))
			assert.FileExists(t, filepath.Join(dir, e.Name(), export.EventsFile))
		}

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 4)
		assert.True(t, strings.HasPrefix(lines[0], "SEED"))
		assert.True(t, strings.HasPrefix(lines[1], "100 "))
		assert.True(t, strings.HasPrefix(lines[3], "102 "))
	})

	t.Run("should record to the store with --db", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir)

		s := new(mockRunStore)
		s.On("Record", mock.Anything, mock.AnythingOfType("*engine.RunResult")).Return(nil).Times(2)
		provider := &fakeProvider{store: s}

		_, err := execute(t, context.Background(), provider, "--config", cfgPath, "batch", "--db", "-n", "2")
		require.NoError(t, err)
		s.AssertExpectations(t)
		assert.True(t, provider.closed)
	})

	t.Run("should fail when the store cannot be opened", func(t *testing.T) {
		cfgPath := writeTestConfig(t, t.TempDir())
		provider := &fakeProvider{err: errors.New("connection refused")}

		_, err := execute(t, context.Background(), provider, "--config", cfgPath, "batch", "--db")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open run store")
	})

	t.Run("should fail when recording fails", func(t *testing.T) {
		cfgPath := writeTestConfig(t, t.TempDir())
		s := new(mockRunStore)
		s.On("Record", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := execute(t, context.Background(), &fakeProvider{store: s}, "--config", cfgPath, "batch", "--db")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch aborted")
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestHistory(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())
	s := new(mockRunStore)
	s.On("RecentRuns", mock.Anything, 5).Return([]store.RunSummary{
		{ID: "4c0f5c7e-run", Seed: 9, Cleared: 3, Escaped: true, End: "escape", StartedAt: time.Now()},
	}, nil)
	provider := &fakeProvider{store: s}

	out, err := execute(t, context.Background(), provider, "--config", cfgPath, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "4c0f5c7e-run")
	assert.Contains(t, out, "escape")
	s.AssertExpectations(t)
	assert.True(t, provider.closed)

	_, err = execute(t, context.Background(), provider, "--config", cfgPath, "history", "--limit", "0")
	assert.Error(t, err)
}

func TestSonify(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	eventsPath := filepath.Join(dir, "events.jsonl")
	wavPath := filepath.Join(dir, "out.wav")

	recs := []events.Record{
		{Kind: events.Collision, Time: 0.1, Position: vmath.Vector2{X: 1}, Note: 2, Octave: 1},
		{Kind: events.GapPass, Time: 0.4, Pitch: 1.5},
	}
	f, err := os.Create(eventsPath)
	require.NoError(t, err)
	require.NoError(t, export.WriteEvents(f, recs))
	require.NoError(t, f.Close())

	_, err = execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "sonify", eventsPath, "-o", wavPath, "--min-length", "1s")
	require.NoError(t, err)

	info, err := os.Stat(wavPath)
	require.NoError(t, err)
	// One second of 16-bit stereo at 8 kHz plus the header.
	assert.Equal(t, int64(44+8000*4), info.Size())

	t.Run("requires an output", func(t *testing.T) {
		_, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "sonify", eventsPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--out")
	})

	t.Run("requires an input", func(t *testing.T) {
		_, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "sonify", "-o", wavPath)
		assert.Error(t, err)
	})
}

func TestWatch(t *testing.T) {
	original := newScreen
	t.Cleanup(func() { newScreen = original })
	newScreen = func() (tcell.Screen, error) {
		return tcell.NewSimulationScreen("UTF-8"), nil
	}

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	eventsPath := filepath.Join(dir, "watched.jsonl")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := execute(t, ctx, &fakeProvider{}, "--config", cfgPath, "watch", "--events", eventsPath)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	recs, err := export.LoadEvents(eventsPath)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, events.Activation, recs[0].Kind)
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	simulate := func(seed, name string) string {
		path := filepath.Join(dir, name)
		_, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "simulate", "--seed", seed, "--events", path)
		require.NoError(t, err)
		return path
	}
	a := simulate("21", "a.jsonl")
	b := simulate("21", "b.jsonl")
	c := simulate("22", "c.jsonl")

	out, err := execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "diff", a, b, "--tolerance", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "equivalent")

	out, err = execute(t, context.Background(), &fakeProvider{}, "--config", cfgPath, "diff", a, c)
	require.ErrorIs(t, err, errStreamsDiffer)
	assert.Contains(t, out, "diverged at record")
}
