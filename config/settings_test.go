package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oxyflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)

	s, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
[engine]
tick_rate = 120
max_frames = 10

[clock]
max_delta = "50ms"

[physics]
bodies = 3
restitution = 0.2

[composite]
effects = ["tint", "gamma"]
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120.0, s.Engine.TickRate)
	assert.Equal(t, uint64(10), s.Engine.MaxFrames)
	assert.Equal(t, Duration(50*time.Millisecond), s.Clock.MaxDelta)
	assert.Equal(t, 3, s.Physics.Bodies)
	assert.Equal(t, float32(0.2), s.Physics.Restitution)
	assert.Equal(t, []string{"tint", "gamma"}, s.Composite.Effects)

	// untouched keys keep their defaults
	assert.Equal(t, Default().Clock.FirstDelta, s.Clock.FirstDelta)
	assert.Equal(t, Default().Physics.Gravity, s.Physics.Gravity)
	assert.Equal(t, "oxyflow", s.Engine.Title)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "[engine]\ntick_rat = 5\n"))
	var strict *toml.StrictMissingError
	require.ErrorAs(t, err, &strict)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeFile(t, "[clock]\nmax_delta = \"soon\"\n"))
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	s := Default()
	s.Log.Level = "loud"
	s.Engine.TickRate = 0
	s.Physics.Bodies = 1000
	s.Physics.Restitution = 2
	s.Composite.Effects = append(s.Composite.Effects, "sparkle")

	err := s.Validate()
	require.ErrorIs(t, err, ErrInvalidSettings)
	msg := err.Error()
	for _, want := range []string{"log.level", "engine.tick_rate", "physics.bodies", "physics.restitution", "sparkle"} {
		assert.Contains(t, msg, want)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Encode(&buf))
	assert.Contains(t, buf.String(), "33.333333ms")

	s := Settings{}
	require.NoError(t, Decode(&buf, &s))
	assert.Equal(t, Default(), s)
}
