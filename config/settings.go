package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// ErrInvalidSettings is wrapped by every Validate failure.
var ErrInvalidSettings = errors.New("invalid settings")

// EffectNames lists the compositor effects a composite chain may name, in no particular order.
var EffectNames = []string{"dotscreen", "rgbshift", "tint", "bloom", "glitch", "displacement", "gamma", "antialias"}

// Duration is a time.Duration read from and written to TOML as a string such as "33ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Settings is the full CLI configuration.
type Settings struct {
	Log       LogSettings       `toml:"log"`
	Engine    EngineSettings    `toml:"engine"`
	Clock     ClockSettings     `toml:"clock"`
	Metrics   MetricsSettings   `toml:"metrics"`
	Pipeline  PipelineSettings  `toml:"pipeline"`
	GPU       GPUSettings       `toml:"gpu"`
	FlowField FlowFieldSettings `toml:"flowfield"`
	Physics   PhysicsSettings   `toml:"physics"`
	Composite CompositeSettings `toml:"composite"`
}

type LogSettings struct {
	// Level is a zap level name: debug, info, warn or error.
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type EngineSettings struct {
	TickRate        float64  `toml:"tick_rate"`
	MaxFrames       uint64   `toml:"max_frames"`
	Window          bool     `toml:"window"`
	Title           string   `toml:"title"`
	Width           int      `toml:"width"`
	Height          int      `toml:"height"`
	VSync           bool     `toml:"vsync"`
	Profiling       bool     `toml:"profiling"`
	ProfileInterval Duration `toml:"profile_interval"`
}

type ClockSettings struct {
	MaxDelta   Duration `toml:"max_delta"`
	FirstDelta Duration `toml:"first_delta"`
}

type MetricsSettings struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `toml:"addr"`
}

type PipelineSettings struct {
	FiniteCheck bool `toml:"finite_check"`
}

type GPUSettings struct {
	// Upload mirrors the sketch outputs into WebGPU storage buffers every frame.
	Upload        bool `toml:"upload"`
	ForceSoftware bool `toml:"force_software"`
}

type FlowFieldSettings struct {
	Count        int     `toml:"count"`
	Radius       float32 `toml:"radius"`
	Seed         int64   `toml:"seed"`
	Workers      int     `toml:"workers"`
	Influence    float32 `toml:"influence"`
	Strength     float32 `toml:"strength"`
	Frequency    float32 `toml:"frequency"`
	LifetimeRate float32 `toml:"lifetime_rate"`
	TimeScale    float32 `toml:"time_scale"`
}

type PhysicsSettings struct {
	Bodies          int      `toml:"bodies"`
	Capacity        int      `toml:"capacity"`
	Gravity         float32  `toml:"gravity"`
	Restitution     float32  `toml:"restitution"`
	Friction        float32  `toml:"friction"`
	ImpactThreshold float32  `toml:"impact_threshold"`
	FixedStep       Duration `toml:"fixed_step"`
	MaxSubsteps     int      `toml:"max_substeps"`
}

type CompositeSettings struct {
	Width   int      `toml:"width"`
	Height  int      `toml:"height"`
	Seed    uint64   `toml:"seed"`
	Effects []string `toml:"effects"`
}

// Default returns the settings used when no file overrides them.
func Default() Settings {
	return Settings{
		Log: LogSettings{Level: "info"},
		Engine: EngineSettings{
			TickRate:        60,
			Title:           "oxyflow",
			Width:           1280,
			Height:          720,
			VSync:           true,
			ProfileInterval: Duration(time.Second),
		},
		Clock: ClockSettings{
			MaxDelta:   Duration(time.Second / 30),
			FirstDelta: Duration(16 * time.Millisecond),
		},
		GPU: GPUSettings{},
		FlowField: FlowFieldSettings{
			Count:        4096,
			Radius:       3,
			Seed:         1,
			Workers:      4,
			Influence:    0.5,
			Strength:     2,
			Frequency:    0.5,
			LifetimeRate: 0.3,
			TimeScale:    0.2,
		},
		Physics: PhysicsSettings{
			Bodies:          8,
			Capacity:        256,
			Gravity:         -9.82,
			Restitution:     0.7,
			Friction:        0.1,
			ImpactThreshold: 1.5,
			FixedStep:       Duration(time.Second / 60),
			MaxSubsteps:     3,
		},
		Composite: CompositeSettings{
			Width:   320,
			Height:  180,
			Seed:    1,
			Effects: []string{"dotscreen", "glitch", "rgbshift", "bloom", "tint", "gamma", "antialias"},
		},
	}
}

// Load reads a TOML file over the defaults. A missing file yields the defaults; unknown keys are rejected.
//
// Parameters:
//   - path: the settings file, empty for defaults only
//
// Returns:
//   - Settings: the merged settings, validated
//   - error: read, decode or validation errors
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, s.Validate()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, s.Validate()
	}
	if err != nil {
		return s, fmt.Errorf("read settings %q: %w", path, err)
	}
	if err := Decode(bytes.NewReader(data), &s); err != nil {
		return s, fmt.Errorf("decode settings %q: %w", path, err)
	}
	return s, s.Validate()
}

// Decode overlays TOML from r onto s.
func Decode(r io.Reader, s *Settings) error {
	return toml.NewDecoder(r).DisallowUnknownFields().Decode(s)
}

// Encode writes s as TOML.
func (s Settings) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(s)
}

// Validate rejects impossible values, reporting every problem at once.
//
// Returns:
//   - error: nil, or the aggregated problems each wrapping ErrInvalidSettings
func (s Settings) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidSettings))
		}
	}

	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q", s.Log.Level)
	}
	check(s.Engine.TickRate > 0, "engine.tick_rate %v must be positive", s.Engine.TickRate)
	check(s.Engine.Width > 0 && s.Engine.Height > 0, "engine size %dx%d must be positive", s.Engine.Width, s.Engine.Height)
	check(s.Engine.ProfileInterval > 0, "engine.profile_interval must be positive")
	check(s.Clock.MaxDelta > 0, "clock.max_delta must be positive")
	check(s.Clock.FirstDelta > 0, "clock.first_delta must be positive")

	check(s.FlowField.Count > 0, "flowfield.count %d must be positive", s.FlowField.Count)
	check(s.FlowField.Workers >= 1, "flowfield.workers %d must be at least 1", s.FlowField.Workers)
	check(s.FlowField.Radius > 0, "flowfield.radius must be positive")

	check(s.Physics.Capacity > 0, "physics.capacity %d must be positive", s.Physics.Capacity)
	check(s.Physics.Bodies >= 0 && s.Physics.Bodies <= s.Physics.Capacity, "physics.bodies %d exceeds capacity %d", s.Physics.Bodies, s.Physics.Capacity)
	check(s.Physics.Restitution >= 0 && s.Physics.Restitution <= 1, "physics.restitution %v outside [0,1]", s.Physics.Restitution)
	check(s.Physics.Friction >= 0, "physics.friction %v must not be negative", s.Physics.Friction)
	check(s.Physics.ImpactThreshold >= 0, "physics.impact_threshold %v must not be negative", s.Physics.ImpactThreshold)
	check(s.Physics.FixedStep >= 0, "physics.fixed_step must not be negative")
	check(s.Physics.MaxSubsteps >= 1, "physics.max_substeps %d must be at least 1", s.Physics.MaxSubsteps)

	check(s.Composite.Width > 0 && s.Composite.Height > 0, "composite size %dx%d must be positive", s.Composite.Width, s.Composite.Height)
	for _, name := range s.Composite.Effects {
		check(slices.Contains(EffectNames, name), "composite.effects: unknown effect %q", name)
	}
	return err
}
