package simulation

import (
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/xkilldash9x/ringsim/internal/barrier"
	"github.com/xkilldash9x/ringsim/internal/collision"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// MaxRestitution is the largest restitution a simulation runs with. Larger values are
// clamped at construction.
const MaxRestitution = 1.1

// Config holds every engine parameter. It is validated once, by New.
type Config struct {
	// Body
	Gravity       float64 `mapstructure:"gravity" yaml:"gravity"`
	Restitution   float64 `mapstructure:"restitution" yaml:"restitution"`
	AirResistance float64 `mapstructure:"air_resistance" yaml:"air_resistance"`
	MinSpeed      float64 `mapstructure:"min_speed" yaml:"min_speed"`
	MaxSpeed      float64 `mapstructure:"max_speed" yaml:"max_speed"`
	BodyRadius    float64 `mapstructure:"body_radius" yaml:"body_radius"`
	BodyCount     int     `mapstructure:"body_count" yaml:"body_count"`
	SpawnSpeedMin float64 `mapstructure:"spawn_speed_min" yaml:"spawn_speed_min"`
	SpawnSpeedMax float64 `mapstructure:"spawn_speed_max" yaml:"spawn_speed_max"`

	// Barrier layout
	InitialRadius       float64 `mapstructure:"initial_radius" yaml:"initial_radius"`
	BarrierThickness    float64 `mapstructure:"barrier_thickness" yaml:"barrier_thickness"`
	BarrierSpacing      float64 `mapstructure:"barrier_spacing" yaml:"barrier_spacing"`
	GapAngle            float64 `mapstructure:"gap_angle_degrees" yaml:"gap_angle_degrees"`
	GapStartAngle       float64 `mapstructure:"gap_start_angle" yaml:"gap_start_angle"`
	GapOffsetPerBarrier float64 `mapstructure:"gap_offset_per_barrier" yaml:"gap_offset_per_barrier"`
	RandomGapStart      bool    `mapstructure:"random_gap_start" yaml:"random_gap_start"`
	ColorCount          int     `mapstructure:"color_count" yaml:"color_count"`

	// Rotation
	RotationSpeed     float64 `mapstructure:"rotation_speed_degrees_per_sec" yaml:"rotation_speed_degrees_per_sec"`
	RotationSpeedStep float64 `mapstructure:"rotation_speed_step" yaml:"rotation_speed_step"`
	RotationPolicy    string  `mapstructure:"rotation_policy" yaml:"rotation_policy"`

	// Progression
	InitialBarrierCount int  `mapstructure:"initial_barrier_count" yaml:"initial_barrier_count"`
	MaxTotalBarriers    int  `mapstructure:"max_total_barriers_to_create" yaml:"max_total_barriers_to_create"`
	EscapeThreshold     int  `mapstructure:"escape_threshold" yaml:"escape_threshold"`
	BonusAfterEscape    bool `mapstructure:"bonus_after_escape" yaml:"bonus_after_escape"`

	// Shrinking
	ShrinkFactor         float64 `mapstructure:"shrink_factor" yaml:"shrink_factor"`
	ShrinkCurve          string  `mapstructure:"shrink_curve" yaml:"shrink_curve"`
	ShrinkSpeed          float64 `mapstructure:"shrink_speed" yaml:"shrink_speed"`
	ShrinkAcceleration   float64 `mapstructure:"shrink_acceleration_factor" yaml:"shrink_acceleration_factor"`
	MinShrinkRadiusRatio float64 `mapstructure:"min_shrink_radius_ratio" yaml:"min_shrink_radius_ratio"`
	DisappearDuration    float64 `mapstructure:"disappear_duration" yaml:"disappear_duration"`

	// Stepping and collision
	BoundaryRadius   float64 `mapstructure:"boundary_radius" yaml:"boundary_radius"`
	CollisionBias    float64 `mapstructure:"collision_bias" yaml:"collision_bias"`
	PassDirection    string  `mapstructure:"pass_direction" yaml:"pass_direction"`
	LinearTolerance  float64 `mapstructure:"linear_tolerance" yaml:"linear_tolerance"`
	AngularTolerance float64 `mapstructure:"angular_tolerance" yaml:"angular_tolerance"`
	MaxSubsteps      int     `mapstructure:"max_substeps" yaml:"max_substeps"`
	MaxIterations    int     `mapstructure:"max_iterations" yaml:"max_iterations"`

	Seed int64 `mapstructure:"rng_seed" yaml:"rng_seed"`
}

// DefaultConfig returns the tuning the engine ships with.
func DefaultConfig() Config {
	return Config{
		Gravity:       1200,
		Restitution:   1.02,
		AirResistance: 0.9998,
		MinSpeed:      300,
		MaxSpeed:      1400,
		BodyRadius:    12,
		BodyCount:     1,
		SpawnSpeedMin: 200,
		SpawnSpeedMax: 350,

		InitialRadius:       120,
		BarrierThickness:    15,
		BarrierSpacing:      25,
		GapAngle:            60,
		GapStartAngle:       0,
		GapOffsetPerBarrier: 0,
		RandomGapStart:      true,
		ColorCount:          8,

		RotationSpeed:     60,
		RotationSpeedStep: 0,
		RotationPolicy:    "alternating",

		InitialBarrierCount: 8,
		MaxTotalBarriers:    300,
		EscapeThreshold:     30,
		BonusAfterEscape:    false,

		ShrinkFactor:         0.85,
		ShrinkCurve:          "linear",
		ShrinkSpeed:          50,
		ShrinkAcceleration:   1,
		MinShrinkRadiusRatio: 0.3,
		DisappearDuration:    1,

		BoundaryRadius:   1000,
		CollisionBias:    0.5,
		PassDirection:    "outward",
		LinearTolerance:  5,
		AngularTolerance: 3,
		MaxSubsteps:      64,
		MaxIterations:    4,

		Seed: 1,
	}
}

// resolved holds the parsed enum fields of a validated Config.
type resolved struct {
	rotation  barrier.RotationPolicy
	curve     barrier.Curve
	direction collision.Direction
}

// Validate checks every field range. The returned error is a *ConfigError.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

func (c Config) resolve() (resolved, error) {
	var r resolved

	finite := map[string]float64{
		"gravity":                        c.Gravity,
		"restitution":                    c.Restitution,
		"air_resistance":                 c.AirResistance,
		"min_speed":                      c.MinSpeed,
		"max_speed":                      c.MaxSpeed,
		"body_radius":                    c.BodyRadius,
		"initial_radius":                 c.InitialRadius,
		"barrier_thickness":              c.BarrierThickness,
		"barrier_spacing":                c.BarrierSpacing,
		"gap_angle_degrees":              c.GapAngle,
		"gap_start_angle":                c.GapStartAngle,
		"gap_offset_per_barrier":         c.GapOffsetPerBarrier,
		"rotation_speed_degrees_per_sec": c.RotationSpeed,
		"rotation_speed_step":            c.RotationSpeedStep,
		"shrink_speed":                   c.ShrinkSpeed,
		"shrink_acceleration_factor":     c.ShrinkAcceleration,
		"boundary_radius":                c.BoundaryRadius,
		"collision_bias":                 c.CollisionBias,
	}
	for _, field := range slices.Sorted(maps.Keys(finite)) {
		if v := finite[field]; math.IsNaN(v) || math.IsInf(v, 0) {
			return r, configErr(field, "must be a finite number")
		}
	}

	switch {
	case c.BodyRadius <= 0:
		return r, configErr("body_radius", "must be positive, got %v", c.BodyRadius)
	case c.BodyCount < 1:
		return r, configErr("body_count", "must be at least 1, got %d", c.BodyCount)
	case c.BarrierThickness <= 0:
		return r, configErr("barrier_thickness", "must be positive, got %v", c.BarrierThickness)
	case c.BarrierSpacing < 0:
		return r, configErr("barrier_spacing", "must not be negative, got %v", c.BarrierSpacing)
	case c.GapAngle < 0 || c.GapAngle > 360:
		return r, configErr("gap_angle_degrees", "must be within [0,360], got %v", c.GapAngle)
	case c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 || math.IsNaN(c.ShrinkFactor):
		return r, configErr("shrink_factor", "must be within (0,1), got %v", c.ShrinkFactor)
	case c.MinShrinkRadiusRatio <= 0 || c.MinShrinkRadiusRatio > 1 || math.IsNaN(c.MinShrinkRadiusRatio):
		return r, configErr("min_shrink_radius_ratio", "must be within (0,1], got %v", c.MinShrinkRadiusRatio)
	case c.MinSpeed < 0:
		return r, configErr("min_speed", "must not be negative, got %v", c.MinSpeed)
	case c.MaxSpeed <= c.MinSpeed:
		return r, configErr("max_speed", "must exceed min_speed (%v), got %v", c.MinSpeed, c.MaxSpeed)
	case c.AirResistance <= 0 || c.AirResistance > 1:
		return r, configErr("air_resistance", "must be within (0,1], got %v", c.AirResistance)
	case c.Restitution <= 0:
		return r, configErr("restitution", "must be positive, got %v", c.Restitution)
	case c.SpawnSpeedMin < 0 || c.SpawnSpeedMax < c.SpawnSpeedMin || math.IsNaN(c.SpawnSpeedMin) || math.IsNaN(c.SpawnSpeedMax):
		return r, configErr("spawn_speed_max", "spawn speed range [%v,%v] is invalid", c.SpawnSpeedMin, c.SpawnSpeedMax)
	case c.InitialBarrierCount < 1:
		return r, configErr("initial_barrier_count", "must be at least 1, got %d", c.InitialBarrierCount)
	case c.MaxTotalBarriers < c.InitialBarrierCount:
		return r, configErr("max_total_barriers_to_create", "must be at least initial_barrier_count (%d), got %d", c.InitialBarrierCount, c.MaxTotalBarriers)
	case c.EscapeThreshold < 1:
		return r, configErr("escape_threshold", "must be at least 1, got %d", c.EscapeThreshold)
	case c.ShrinkSpeed < 0:
		return r, configErr("shrink_speed", "must not be negative, got %v", c.ShrinkSpeed)
	case c.ShrinkAcceleration < 0:
		return r, configErr("shrink_acceleration_factor", "must not be negative, got %v", c.ShrinkAcceleration)
	case c.DisappearDuration < 0 || math.IsNaN(c.DisappearDuration):
		return r, configErr("disappear_duration", "must not be negative, got %v", c.DisappearDuration)
	case c.CollisionBias < 0:
		return r, configErr("collision_bias", "must not be negative, got %v", c.CollisionBias)
	case !(c.LinearTolerance > 0):
		return r, configErr("linear_tolerance", "must be positive, got %v", c.LinearTolerance)
	case !(c.AngularTolerance > 0):
		return r, configErr("angular_tolerance", "must be positive, got %v", c.AngularTolerance)
	case c.MaxSubsteps < 1:
		return r, configErr("max_substeps", "must be at least 1, got %d", c.MaxSubsteps)
	case c.MaxIterations < 1:
		return r, configErr("max_iterations", "must be at least 1, got %d", c.MaxIterations)
	case c.ColorCount < 0:
		return r, configErr("color_count", "must not be negative, got %d", c.ColorCount)
	}

	inner := c.InitialRadius - c.BarrierThickness
	if inner <= 0 {
		return r, configErr("initial_radius", "must exceed barrier_thickness (%v), got %v", c.BarrierThickness, c.InitialRadius)
	}
	if c.BodyRadius >= inner {
		return r, configErr("body_radius", "%v does not fit inside the innermost barrier (inner radius %v)", c.BodyRadius, inner)
	}
	outermost := c.InitialRadius + float64(c.InitialBarrierCount-1)*(c.BarrierThickness+c.BarrierSpacing)
	if c.BoundaryRadius <= outermost {
		return r, configErr("boundary_radius", "must lie outside the initial barriers (%v), got %v", outermost, c.BoundaryRadius)
	}

	var err error
	if r.rotation, err = c.rotationPolicy(); err != nil {
		return r, configErr("rotation_policy", "%v", err)
	}
	if r.curve, err = barrier.ParseCurve(c.ShrinkCurve); err != nil {
		return r, configErr("shrink_curve", "%v", err)
	}
	if r.direction, err = collision.ParseDirection(c.PassDirection); err != nil {
		return r, configErr("pass_direction", "%v", err)
	}
	return r, nil
}

// rotationPolicy maps the policy name onto a barrier rotation policy. Clockwise and
// counterclockwise pin the direction of the base speed; screen coordinates have Y
// pointing down, so positive angles turn clockwise on screen.
func (c Config) rotationPolicy() (barrier.RotationPolicy, error) {
	p := barrier.RotationPolicy{Speed: c.RotationSpeed, Step: c.RotationSpeedStep}
	switch strings.ToLower(strings.TrimSpace(c.RotationPolicy)) {
	case "clockwise", "cw":
		p.Mode = barrier.RotateFixed
		p.Speed = math.Abs(c.RotationSpeed)
		return p, nil
	case "counterclockwise", "counter-clockwise", "ccw":
		p.Mode = barrier.RotateFixed
		p.Speed = -math.Abs(c.RotationSpeed)
		return p, nil
	}
	mode, err := barrier.ParseRotationMode(c.RotationPolicy)
	if err != nil {
		return p, err
	}
	p.Mode = mode
	return p, nil
}

// barrierConfig translates the engine configuration for the barrier set.
func (c Config) barrierConfig(r resolved) barrier.Config {
	return barrier.Config{
		Center:             vmath.Vector2{},
		InitialRadius:      c.InitialRadius,
		Thickness:          c.BarrierThickness,
		Spacing:            c.BarrierSpacing,
		GapAngle:           c.GapAngle,
		GapStart:           c.GapStartAngle,
		GapOffset:          c.GapOffsetPerBarrier,
		RandomGapStart:     c.RandomGapStart,
		Rotation:           r.rotation,
		InitialCount:       c.InitialBarrierCount,
		MaxTotal:           c.MaxTotalBarriers,
		EscapeThreshold:    c.EscapeThreshold,
		ShrinkFactor:       c.ShrinkFactor,
		MinShrinkRatio:     c.MinShrinkRadiusRatio,
		ShrinkSpeed:        c.ShrinkSpeed,
		ShrinkAcceleration: c.ShrinkAcceleration,
		Curve:              r.curve,
		DisappearDuration:  c.DisappearDuration,
		BonusAfterEscape:   c.BonusAfterEscape,
		MinInnerRadius:     c.BodyRadius + c.CollisionBias + 1,
		ColorCount:         c.ColorCount,
	}
}

func (c Config) resolverOptions(r resolved) collision.Options {
	return collision.Options{
		Bias:          c.CollisionBias,
		MaxIterations: c.MaxIterations,
		Direction:     r.direction,
	}
}
