// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/ringsim/internal/simulation"
)

// Interface defines the contract for accessing application configuration.
// Commands depend on it so tests can hand them a prepared config.
type Interface interface {
	Logger() LoggerConfig
	Simulation() simulation.Config
	Render() RenderConfig
	Engine() EngineConfig
	Database() DatabaseConfig
	Output() OutputConfig
	Audio() AudioConfig

	// Setters for values that CLI flags override.
	SetSimulationSeed(seed int64)
	SetRenderDuration(d time.Duration)
	SetRenderFPS(fps int)
	SetEngineWorkerConcurrency(n int)
	SetEngineRuns(n int)
	SetOutputDir(dir string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	SimulationCfg simulation.Config `mapstructure:"simulation" yaml:"simulation"`
	RenderCfg     RenderConfig      `mapstructure:"render" yaml:"render"`
	EngineCfg     EngineConfig      `mapstructure:"engine" yaml:"engine"`
	DatabaseCfg   DatabaseConfig    `mapstructure:"database" yaml:"database"`
	OutputCfg     OutputConfig      `mapstructure:"output" yaml:"output"`
	AudioCfg      AudioConfig       `mapstructure:"audio" yaml:"audio"`
}

func (c *Config) Logger() LoggerConfig          { return c.LoggerCfg }
func (c *Config) Simulation() simulation.Config { return c.SimulationCfg }
func (c *Config) Render() RenderConfig          { return c.RenderCfg }
func (c *Config) Engine() EngineConfig          { return c.EngineCfg }
func (c *Config) Database() DatabaseConfig      { return c.DatabaseCfg }
func (c *Config) Output() OutputConfig          { return c.OutputCfg }
func (c *Config) Audio() AudioConfig            { return c.AudioCfg }

func (c *Config) SetSimulationSeed(seed int64)      { c.SimulationCfg.Seed = seed }
func (c *Config) SetRenderDuration(d time.Duration) { c.RenderCfg.Duration = d }
func (c *Config) SetRenderFPS(fps int)              { c.RenderCfg.FPS = fps }
func (c *Config) SetEngineWorkerConcurrency(n int)  { c.EngineCfg.WorkerConcurrency = n }
func (c *Config) SetEngineRuns(n int)               { c.EngineCfg.Runs = n }
func (c *Config) SetOutputDir(dir string)           { c.OutputCfg.Dir = dir }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
	// Sampling thins out repeated debug entries, which collisions produce in bulk.
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
}

// ColorConfig defines the color for each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SamplingConfig mirrors zap's sampler: within each tick, log the first Initial entries
// with a given message, then every Thereafter-th one.
type SamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Tick       time.Duration `mapstructure:"tick" yaml:"tick"`
	Initial    int           `mapstructure:"initial" yaml:"initial"`
	Thereafter int           `mapstructure:"thereafter" yaml:"thereafter"`
}

// RenderConfig controls how simulated time is stepped for a run.
type RenderConfig struct {
	FPS      int           `mapstructure:"fps" yaml:"fps"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	// StopOnEscape ends a headless run a short tail after the escape event.
	StopOnEscape bool          `mapstructure:"stop_on_escape" yaml:"stop_on_escape"`
	EscapeTail   time.Duration `mapstructure:"escape_tail" yaml:"escape_tail"`
}

// FrameDT is the simulated time per frame.
func (r RenderConfig) FrameDT() float64 {
	if r.FPS <= 0 {
		return 0
	}
	return 1 / float64(r.FPS)
}

// Frames is the number of frames in a full-length run.
func (r RenderConfig) Frames() int {
	return int(r.Duration.Seconds() * float64(r.FPS))
}

// EngineConfig holds settings for the batch worker pool.
type EngineConfig struct {
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	Runs              int           `mapstructure:"runs" yaml:"runs"`
	LaunchRate        float64       `mapstructure:"launch_rate" yaml:"launch_rate"`
	LaunchBurst       int           `mapstructure:"launch_burst" yaml:"launch_burst"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// DatabaseConfig holds the connection details for run persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// EnsureSchema creates the tables on startup when they are missing.
	EnsureSchema bool `mapstructure:"ensure_schema" yaml:"ensure_schema"`
}

// OutputConfig controls where exported runs are written.
type OutputConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	WriteEvents bool   `mapstructure:"write_events" yaml:"write_events"`
}

// AudioConfig drives the WAV renderer.
type AudioConfig struct {
	SampleRate    int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Volume        float64       `mapstructure:"volume" yaml:"volume"`
	BaseFrequency float64       `mapstructure:"base_frequency" yaml:"base_frequency"`
	ClickLength   time.Duration `mapstructure:"click_length" yaml:"click_length"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ringsim")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")
	v.SetDefault("logger.sampling.enabled", true)
	v.SetDefault("logger.sampling.tick", "1s")
	v.SetDefault("logger.sampling.initial", 20)
	v.SetDefault("logger.sampling.thereafter", 100)

	// -- Simulation --
	setSimulationDefaults(v)

	// -- Render --
	v.SetDefault("render.fps", 60)
	v.SetDefault("render.duration", "61s")
	v.SetDefault("render.stop_on_escape", false)
	v.SetDefault("render.escape_tail", "3s")

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.runs", 8)
	v.SetDefault("engine.launch_rate", 0.0)
	v.SetDefault("engine.launch_burst", 1)
	v.SetDefault("engine.run_timeout", "2m")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.ensure_schema", true)

	// -- Output --
	v.SetDefault("output.dir", "runs")
	v.SetDefault("output.write_events", true)

	// -- Audio --
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.volume", -1.0)
	v.SetDefault("audio.base_frequency", 261.63)
	v.SetDefault("audio.click_length", "90ms")
}

func setSimulationDefaults(v *viper.Viper) {
	d := simulation.DefaultConfig()
	defaults := map[string]any{
		"gravity":                        d.Gravity,
		"restitution":                    d.Restitution,
		"air_resistance":                 d.AirResistance,
		"min_speed":                      d.MinSpeed,
		"max_speed":                      d.MaxSpeed,
		"body_radius":                    d.BodyRadius,
		"body_count":                     d.BodyCount,
		"spawn_speed_min":                d.SpawnSpeedMin,
		"spawn_speed_max":                d.SpawnSpeedMax,
		"initial_radius":                 d.InitialRadius,
		"barrier_thickness":              d.BarrierThickness,
		"barrier_spacing":                d.BarrierSpacing,
		"gap_angle_degrees":              d.GapAngle,
		"gap_start_angle":                d.GapStartAngle,
		"gap_offset_per_barrier":         d.GapOffsetPerBarrier,
		"random_gap_start":               d.RandomGapStart,
		"color_count":                    d.ColorCount,
		"rotation_speed_degrees_per_sec": d.RotationSpeed,
		"rotation_speed_step":            d.RotationSpeedStep,
		"rotation_policy":                d.RotationPolicy,
		"initial_barrier_count":          d.InitialBarrierCount,
		"max_total_barriers_to_create":   d.MaxTotalBarriers,
		"escape_threshold":               d.EscapeThreshold,
		"bonus_after_escape":             d.BonusAfterEscape,
		"shrink_factor":                  d.ShrinkFactor,
		"shrink_curve":                   d.ShrinkCurve,
		"shrink_speed":                   d.ShrinkSpeed,
		"shrink_acceleration_factor":     d.ShrinkAcceleration,
		"min_shrink_radius_ratio":        d.MinShrinkRadiusRatio,
		"disappear_duration":             d.DisappearDuration,
		"boundary_radius":                d.BoundaryRadius,
		"collision_bias":                 d.CollisionBias,
		"pass_direction":                 d.PassDirection,
		"linear_tolerance":               d.LinearTolerance,
		"angular_tolerance":              d.AngularTolerance,
		"max_substeps":                   d.MaxSubsteps,
		"max_iterations":                 d.MaxIterations,
		"rng_seed":                       d.Seed,
	}
	for key, value := range defaults {
		v.SetDefault("simulation."+key, value)
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string usually carries a password, so it gets a dedicated variable.
	_ = v.BindEnv("database.url", "RINGSIM_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.SimulationCfg.Validate(); err != nil {
		return fmt.Errorf("simulation configuration invalid: %w", err)
	}
	if err := c.RenderCfg.Validate(); err != nil {
		return fmt.Errorf("render configuration invalid: %w", err)
	}
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.AudioCfg.Validate(); err != nil {
		return fmt.Errorf("audio configuration invalid: %w", err)
	}
	if c.OutputCfg.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	return nil
}

// Validate checks the render settings.
func (r *RenderConfig) Validate() error {
	if r.FPS <= 0 {
		return fmt.Errorf("render.fps must be a positive integer")
	}
	if r.Duration <= 0 {
		return fmt.Errorf("render.duration must be a positive duration")
	}
	if r.EscapeTail < 0 {
		return fmt.Errorf("render.escape_tail must not be negative")
	}
	return nil
}

// Validate checks the worker pool settings.
func (e *EngineConfig) Validate() error {
	if e.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if e.Runs <= 0 {
		return fmt.Errorf("engine.runs must be a positive integer")
	}
	if e.LaunchRate < 0 {
		return fmt.Errorf("engine.launch_rate must not be negative")
	}
	if e.LaunchRate > 0 && e.LaunchBurst <= 0 {
		return fmt.Errorf("engine.launch_burst must be positive when a launch rate is set")
	}
	if e.RunTimeout <= 0 {
		return fmt.Errorf("engine.run_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the audio settings.
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be a positive integer")
	}
	if a.BaseFrequency <= 0 {
		return fmt.Errorf("audio.base_frequency must be positive")
	}
	if a.ClickLength <= 0 {
		return fmt.Errorf("audio.click_length must be a positive duration")
	}
	return nil
}
