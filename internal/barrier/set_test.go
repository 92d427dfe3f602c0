package barrier

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

func testConfig() Config {
	return Config{
		InitialRadius:     100,
		Thickness:         15,
		Spacing:           20,
		GapAngle:          60,
		Rotation:          RotationPolicy{Mode: RotateFixed, Speed: 60},
		InitialCount:      3,
		MaxTotal:          10,
		EscapeThreshold:   5,
		ShrinkFactor:      0.85,
		MinShrinkRatio:    0.3,
		ShrinkSpeed:       50,
		Curve:             Linear,
		DisappearDuration: 1,
		MinInnerRadius:    12,
		ColorCount:        8,
	}
}

func newTestSet(t *testing.T, cfg Config) (*Set, *events.Log) {
	t.Helper()
	var log events.Log
	s, err := New(cfg, rand.New(rand.NewSource(1)), &log, zap.NewNop())
	require.NoError(t, err)
	return s, &log
}

func kinds(records []events.Record) []events.Kind {
	out := make([]events.Kind, len(records))
	for i, r := range records {
		out[i] = r.Kind
	}
	return out
}

func countKind(records []events.Record, k events.Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == k {
			n++
		}
	}
	return n
}

// assertGeometry checks the radius relation and spacing of every solid barrier.
func assertGeometry(t *testing.T, s *Set) {
	t.Helper()
	cfg := s.Config()
	var prev *Barrier
	for _, b := range s.All() {
		b := b
		assert.Equal(t, b.OuterRadius-b.Thickness, b.InnerRadius, "barrier %d inner radius", b.Handle)
		assert.Greater(t, b.InnerRadius, 0.0, "barrier %d inner radius positive", b.Handle)
		if !b.Solid() {
			continue
		}
		if prev != nil {
			assert.GreaterOrEqual(t, b.OuterRadius-prev.OuterRadius, cfg.Pitch()-1e-9,
				"barriers %d and %d closer than one pitch", prev.Handle, b.Handle)
		}
		prev = &b
	}
}

func TestNewSetLayout(t *testing.T) {
	s, log := newTestSet(t, testConfig())

	all := s.All()
	require.Len(t, all, 3)
	for i, b := range all {
		assert.Equal(t, Handle(i), b.Handle)
		assert.Equal(t, 100+float64(i)*35, b.OuterRadius)
		assert.Equal(t, b.OuterRadius, b.TargetOuterRadius)
	}
	assert.Equal(t, Active, all[0].State)
	assert.Equal(t, Inactive, all[1].State)
	assert.Equal(t, Inactive, all[2].State)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, Handle(0), cur.Handle)

	recs := log.Drain()
	require.Len(t, recs, 1)
	assert.Equal(t, events.Activation, recs[0].Kind)
	assert.Equal(t, 0, recs[0].Barrier)
	assertGeometry(t, s)
}

func TestNewSetValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Thickness = 0
	_, err := New(cfg, rand.New(rand.NewSource(1)), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thickness must be positive")

	_, err = New(testConfig(), nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "random source cannot be nil")
}

func TestInitialCountCappedByMaxTotal(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCount = 8
	cfg.MaxTotal = 4
	s, _ := newTestSet(t, cfg)
	assert.Equal(t, 4, s.TotalCreated())
}

func TestAdvanceLifecycle(t *testing.T) {
	s, log := newTestSet(t, testConfig())
	log.Drain()

	require.True(t, s.Advance(1.5, vmath.Vector2{X: 90}, 0))

	b0, _ := s.Get(0)
	b1, _ := s.Get(1)
	assert.Equal(t, Disappearing, b0.State)
	assert.Equal(t, Active, b1.State)
	assert.Equal(t, 1, s.Cleared())
	assert.Equal(t, 1, s.ProgressIndex())
	assert.Equal(t, 4, s.Remaining())
	assert.Equal(t, 4, s.TotalCreated(), "shrink cycle adds one barrier")

	recs := log.Drain()
	assert.Equal(t, []events.Kind{events.Disappearance, events.ShrinkCycle, events.Activation}, kinds(recs))
	assert.Equal(t, 0, recs[0].Barrier)
	assert.Equal(t, 1, recs[0].Cleared)
	assert.Equal(t, 4, recs[0].Remaining)
	assert.Equal(t, 1.5, recs[0].Time)
	assert.Equal(t, 3, recs[1].Barrier, "shrink cycle reports the created barrier")
	assert.Equal(t, 1, recs[2].Barrier)

	// Disappearing barriers fade out and stop colliding.
	colliders := s.Colliders(nil)
	require.Len(t, colliders, 3)
	assert.Equal(t, Handle(1), colliders[0].Handle)

	s.Tick(0.6)
	b0, _ = s.Get(0)
	assert.Equal(t, Disappearing, b0.State)
	s.Tick(0.6)
	b0, _ = s.Get(0)
	assert.Equal(t, Gone, b0.State)
	for _, v := range s.Views() {
		assert.NotEqual(t, Handle(0), v.Handle, "gone barriers are not drawn")
	}
}

func TestAdvanceWithoutActiveBarrier(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCount = 1
	cfg.MaxTotal = 1
	cfg.EscapeThreshold = 3
	s, log := newTestSet(t, cfg)
	log.Drain()

	require.True(t, s.Advance(0, vmath.Vector2{}, 0))
	assert.False(t, s.Advance(0, vmath.Vector2{}, 0), "nothing left to clear")
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestEscapeEmittedOnceAndReleases(t *testing.T) {
	cfg := testConfig()
	cfg.EscapeThreshold = 2
	s, log := newTestSet(t, cfg)
	log.Drain()

	require.True(t, s.Advance(1, vmath.Vector2{}, 0))
	require.True(t, s.Advance(2, vmath.Vector2{}, 0))
	assert.True(t, s.Escaped())
	assert.Equal(t, 0, s.SolidCount(), "escape releases the remaining barriers")
	assert.False(t, s.Advance(3, vmath.Vector2{}, 0))

	recs := log.Drain()
	assert.Equal(t, 1, countKind(recs, events.Escape))
	for _, r := range recs {
		assert.False(t, r.Bonus)
	}
}

func TestBonusModeKeepsProgressing(t *testing.T) {
	cfg := testConfig()
	cfg.EscapeThreshold = 1
	cfg.BonusAfterEscape = true
	s, log := newTestSet(t, cfg)
	log.Drain()

	require.True(t, s.Advance(1, vmath.Vector2{}, 0))
	require.True(t, s.Advance(2, vmath.Vector2{}, 0))
	require.True(t, s.Advance(3, vmath.Vector2{}, 0))
	assert.Equal(t, 3, s.Cleared())
	assert.Equal(t, 0, s.Remaining())

	recs := log.Drain()
	assert.Equal(t, 1, countKind(recs, events.Escape))
	bonus := 0
	for _, r := range recs {
		if r.Kind == events.Disappearance && r.Bonus {
			bonus++
		}
	}
	assert.Equal(t, 2, bonus, "passes after escape are flagged")
}

// Five shrink cycles against a cap of three barriers.
func TestShrinkCycleRespectsCreationCap(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCount = 1
	cfg.MaxTotal = 3
	s, log := newTestSet(t, cfg)

	for i := 0; i < 5; i++ {
		s.ShrinkCycle(float64(i), vmath.Vector2{})
		assert.LessOrEqual(t, s.TotalCreated(), 3)
		for j := 0; j < 200; j++ {
			s.Tick(1.0 / 60)
			assertGeometry(t, s)
		}
	}
	assert.Equal(t, 3, s.TotalCreated())
	assert.Equal(t, 5, s.Cycles())
	assert.Equal(t, 5, countKind(log.Drain(), events.ShrinkCycle))
}

func TestShrinkAnimationKeepsSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCount = 5
	cfg.EscapeThreshold = 50
	cfg.MaxTotal = 50
	cfg.Curve = Bezier
	cfg.ShrinkAcceleration = 5
	s, _ := newTestSet(t, cfg)

	for i := 0; i < 20; i++ {
		require.True(t, s.Advance(float64(i), vmath.Vector2{}, 0))
		for j := 0; j < 30; j++ {
			s.Tick(1.0 / 120)
			assertGeometry(t, s)
		}
	}
	for j := 0; j < 2000; j++ {
		s.Tick(1.0 / 60)
	}
	assertGeometry(t, s)

	solid := s.Colliders(nil)
	require.NotEmpty(t, solid)
	for _, b := range solid {
		assert.InDelta(t, b.TargetOuterRadius, b.OuterRadius, 1e-9, "animation settles on the target")
		assert.Equal(t, 1.0, b.ShrinkProgress)
	}
}

func TestShrinkFloorEmitsDiagnostic(t *testing.T) {
	cfg := testConfig()
	cfg.InitialRadius = 40
	cfg.Thickness = 15
	cfg.MinShrinkRatio = 0.1
	cfg.MinInnerRadius = 20
	cfg.ShrinkFactor = 0.5
	core, logs := observer.New(zapcore.WarnLevel)

	var log events.Log
	s, err := New(cfg, rand.New(rand.NewSource(1)), &log, zap.New(core))
	require.NoError(t, err)
	log.Drain()

	s.ShrinkCycle(2, vmath.Vector2{})
	b, _ := s.Get(0)
	assert.Equal(t, 35.0, b.TargetOuterRadius, "floored to thickness plus minimum inner radius")

	recs := log.Drain()
	require.Equal(t, 1, countKind(recs, events.Diagnostic))
	assert.Contains(t, recs[0].Message, "floored")
	assert.Equal(t, 1, logs.FilterMessage("Shrink target floored").Len())
}

func TestRotationOnlyForActive(t *testing.T) {
	s, _ := newTestSet(t, testConfig())
	before := s.All()
	s.Tick(0.5)
	after := s.All()

	assert.InDelta(t, vmath.NormalizeDegrees(before[0].GapStart+30), after[0].GapStart, 1e-9)
	assert.Equal(t, before[1].GapStart, after[1].GapStart)
	assert.Equal(t, before[2].GapStart, after[2].GapStart)
}

func TestComputeTargets(t *testing.T) {
	l := Layout{Factor: 0.8, Floor: 30, Pitch: 35, MinOuter: 27}

	t.Run("Fixed spacing from the innermost target", func(t *testing.T) {
		res := ComputeTargets([]float64{100, 150, 151}, l)
		assert.Equal(t, []float64{80, 115, 150}, res.Radii)
		assert.False(t, res.Floored)
	})

	t.Run("Floor applies to the innermost", func(t *testing.T) {
		res := ComputeTargets([]float64{35, 70}, l)
		assert.Equal(t, []float64{30, 65}, res.Radii)
		assert.True(t, res.Floored)
		assert.False(t, res.Degenerate)
	})

	t.Run("Never grows the innermost", func(t *testing.T) {
		res := ComputeTargets([]float64{29}, l)
		assert.Equal(t, []float64{29}, res.Radii)
	})

	t.Run("Degenerate when the ring would close", func(t *testing.T) {
		tight := Layout{Factor: 0.5, Floor: 5, Pitch: 35, MinOuter: 27}
		res := ComputeTargets([]float64{50}, tight)
		assert.Equal(t, []float64{27}, res.Radii)
		assert.True(t, res.Degenerate)
	})

	t.Run("Inputs untouched", func(t *testing.T) {
		in := []float64{100, 200}
		_ = ComputeTargets(in, l)
		assert.Equal(t, []float64{100, 200}, in)
		assert.Empty(t, ComputeTargets(nil, l).Radii)
	})
}

func TestDegenerateGeometryErrorUnwraps(t *testing.T) {
	var err error = &DegenerateGeometryError{Handle: 2, Requested: 10, Floor: 30}
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
	assert.Contains(t, err.Error(), "barrier 2")
}

func TestCurves(t *testing.T) {
	for _, c := range []Curve{Linear, Quadratic, Cubic, Bezier} {
		assert.InDelta(t, 0.0, c.Apply(0), 1e-12, c.String())
		assert.InDelta(t, 1.0, c.Apply(1), 1e-12, c.String())
		assert.InDelta(t, 1.0, c.Apply(7), 1e-12, "clamped above")
	}
	assert.InDelta(t, 0.25, Quadratic.Apply(0.5), 1e-12)
	assert.InDelta(t, 0.125, Cubic.Apply(0.5), 1e-12)
	assert.InDelta(t, 0.425, Bezier.Apply(0.5), 1e-12)

	c, err := ParseCurve("Bezier")
	require.NoError(t, err)
	assert.Equal(t, Bezier, c)
	_, err = ParseCurve("sigmoid")
	assert.Error(t, err)
}

func TestRotationPolicy(t *testing.T) {
	alt := RotationPolicy{Mode: RotateAlternating, Speed: 60, Step: 10}
	assert.Equal(t, 60.0, alt.SpeedFor(0, nil))
	assert.Equal(t, -70.0, alt.SpeedFor(1, nil))
	assert.Equal(t, 80.0, alt.SpeedFor(2, nil))

	fixed := RotationPolicy{Mode: RotateFixed, Speed: -45}
	assert.Equal(t, -45.0, fixed.SpeedFor(3, nil))

	random := RotationPolicy{Mode: RotateRandom, Speed: 60}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		v := random.SpeedFor(Handle(i), rng)
		assert.Equal(t, 60.0, math.Abs(v), "magnitude is preserved")
	}

	m, err := ParseRotationMode("alternating-by-index")
	require.NoError(t, err)
	assert.Equal(t, RotateAlternating, m)
	_, err = ParseRotationMode("wobble")
	assert.Error(t, err)
}

func TestShrinkRateGrowsWithProgress(t *testing.T) {
	cfg := testConfig()
	cfg.EscapeThreshold = 10
	cfg.MaxTotal = 20
	cfg.ShrinkAcceleration = 2
	s, _ := newTestSet(t, cfg)

	r0 := s.ShrinkRate()
	assert.Equal(t, 50.0, r0)
	require.True(t, s.Advance(0, vmath.Vector2{}, 0))
	r1 := s.ShrinkRate()
	// cleared=1: 50 * (1 + 0.02) * (1 + 0.2*2)
	assert.InDelta(t, 50*1.02*1.4, r1, 1e-9)
	assert.Greater(t, s.MaxShrinkStep(0.1), 0.0)
}
