package sketch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/compositor"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/chewxy/math32"
	"go.uber.org/zap"
)

const (
	sceneStage = "scene"
	normalMap  = "normals"
)

// Effect returns the compositor effect registered under name.
//
// Parameters:
//   - name: one of config.EffectNames
//   - seed: the seed for randomized effects
//
// Returns:
//   - compositor.Effect: the effect
//   - error: common.ErrUnresolvedInput for unknown names
func Effect(name string, seed uint64) (compositor.Effect, error) {
	switch name {
	case "dotscreen":
		return compositor.NewDotScreen(), nil
	case "rgbshift":
		return compositor.NewRGBShift(), nil
	case "tint":
		return compositor.NewTint(), nil
	case "bloom":
		return compositor.NewBloom(), nil
	case "glitch":
		return compositor.NewGlitch(seed), nil
	case "displacement":
		return compositor.NewDisplacement(normalMap), nil
	case "gamma":
		return compositor.NewGammaCorrection(), nil
	case "antialias":
		return compositor.NewAntialias(), nil
	}
	return nil, fmt.Errorf("effect %q: %w", name, common.ErrUnresolvedInput)
}

// Composite builds the post-processing sketch: an animated procedural scene run through the
// configured effect chain.
//
// Parameters:
//   - env: the settings, logger and metrics
//
// Returns:
//   - *Sketch: the sketch, its image is the chain output
//   - error: unknown effects or a chain ordering error
func Composite(env Env) (*Sketch, error) {
	s := env.Settings.Composite
	shape := common.ImageShape(s.Width, s.Height)

	scene, err := stage.NewStage(sceneStage, shape, drawScene)
	if err != nil {
		return nil, err
	}

	chain := compositor.NewChain(sceneStage, shape, compositor.WithLogger(env.logger()))
	needsNormals := false
	for _, name := range s.Effects {
		e, err := Effect(name, s.Seed)
		if err != nil {
			return nil, err
		}
		needsNormals = needsNormals || name == "displacement"
		chain.Add(e)
	}
	chainOptions, err := chain.PipelineOptions()
	if err != nil {
		return nil, fmt.Errorf("composite chain: %w", err)
	}

	options := append(env.pipelineOptions("composite"), pipeline.WithStage(scene))
	options = append(options, chainOptions...)
	if needsNormals {
		options = append(options, pipeline.WithExternal(normalMap, bumps(shape)))
	}

	return &Sketch{
		Pipeline: pipeline.NewPipeline(options...),
		Outputs:  []string{chain.Output()},
		Image:    chain.Output(),
		Summary: func() []zap.Field {
			return []zap.Field{zap.Int("effects", len(chain.Effects())), zap.String("output", chain.Output())}
		},
	}, nil
}

// drawScene renders a soft disc orbiting over a vertical gradient with scrolling bands.
func drawScene(_ stage.Inputs, _ stage.Values, f clock.Frame, out *buffer.Buffer) error {
	sh := out.Shape()
	cx := 0.5 + 0.3*math32.Cos(f.Elapsed)
	cy := 0.5 + 0.3*math32.Sin(f.Elapsed)
	aspect := float32(sh.Width) / float32(sh.Height)
	for i := 0; i < sh.Elements(); i++ {
		u := (float32(i%sh.Width) + 0.5) / float32(sh.Width)
		v := (float32(i/sh.Width) + 0.5) / float32(sh.Height)
		dx, dy := (u-cx)*aspect, v-cy
		disc := 1 - common.Smoothstep(0.1, 0.15, math32.Sqrt(dx*dx+dy*dy))
		band := 0.1 * common.Smoothstep(0.4, 0.5, common.Fract(v*6+f.Elapsed*0.25))
		px := out.Texel(i)
		px[0] = common.Mix(0.05+band, 1, disc)
		px[1] = common.Mix(0.1+0.3*v, 0.8, disc)
		px[2] = common.Mix(0.3+0.4*v, 0.2, disc)
		px[3] = 1
	}
	return nil
}

// bumps returns a tangent-space normal map of a sine bump pattern, encoded in [0,1].
func bumps(shape common.Shape) *buffer.Buffer {
	b, _ := buffer.NewBuffer(shape)
	for i := 0; i < shape.Elements(); i++ {
		u := float32(i%shape.Width) / float32(shape.Width)
		v := float32(i/shape.Width) / float32(shape.Height)
		nx := 0.5 * math32.Cos(u*4*math32.Pi)
		ny := 0.5 * math32.Cos(v*4*math32.Pi)
		inv := 1 / math32.Sqrt(nx*nx+ny*ny+1)
		px := b.Texel(i)
		px[0], px[1], px[2], px[3] = nx*inv*0.5+0.5, ny*inv*0.5+0.5, inv*0.5+0.5, 1
	}
	return b
}
