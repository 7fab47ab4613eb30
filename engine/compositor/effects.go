package compositor

import (
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// base carries the name and placement shared by every effect.
type base struct {
	name      string
	placement Placement
}

func (b base) Name() string { return b.name }

func (b base) Placement() Placement { return b.placement }

func (b base) Inputs() []stage.Input { return nil }

// Named overrides an effect's name so the same effect can appear twice in a chain.
func Named(name string, e Effect) Effect {
	return &named{Effect: e, name: name}
}

type named struct {
	Effect
	name string
}

func (n *named) Name() string { return n.name }

type dotScreen struct{ base }

// NewDotScreen returns a halftone effect that renders luminance as a rotated dot pattern.
// Parameters: angle, scale, center (xy in normalized coordinates).
func NewDotScreen() Effect {
	return &dotScreen{base{name: "dotscreen"}}
}

func (e *dotScreen) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{
		stage.WithFloatParam("angle", 1.57, 0, 0),
		stage.WithFloatParam("scale", 1, 0, 0),
		stage.WithVec3Param("center", mgl32.Vec3{0.5, 0.5, 0}, 0, 0),
	}
}

func (e *dotScreen) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	s := src.Shape()
	sin, cos := math32.Sincos(v.Float("angle"))
	scale := v.Float("scale")
	center := v.Vec3("center")
	for i := 0; i < s.Elements(); i++ {
		u, w := uv(src, i)
		tx := u*float32(s.Width) - center[0]
		ty := w*float32(s.Height) - center[1]
		px := (cos*tx - sin*ty) * scale
		py := (sin*tx + cos*ty) * scale
		pattern := math32.Sin(px) * math32.Sin(py) * 4

		c := fetch(src, i%s.Width, i/s.Width)
		avg := (c[0] + c[1] + c[2]) / 3
		g := avg*10 - 5 + pattern
		store(dst, i, rgba{g, g, g, c[3]})
	}
	return nil
}

type rgbShift struct{ base }

// NewRGBShift returns a chromatic aberration effect sampling red and blue at opposite offsets.
// Parameters: amount (normalized offset), angle (radians).
func NewRGBShift() Effect {
	return &rgbShift{base{name: "rgbshift"}}
}

func (e *rgbShift) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{
		stage.WithFloatParam("amount", 0.005, 0, 1),
		stage.WithFloatParam("angle", 0, 0, 0),
	}
}

func (e *rgbShift) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	shift(src, dst, v.Float("amount"), v.Float("angle"), func(u, w float32) (float32, float32) { return u, w })
	return nil
}

// shift writes src with red and blue sampled at +-amount along angle, after remapping coordinates through at.
func shift(src, dst *buffer.Buffer, amount, angle float32, at func(u, v float32) (float32, float32)) {
	sin, cos := math32.Sincos(angle)
	ox, oy := amount*cos, amount*sin
	for i := 0; i < src.Shape().Elements(); i++ {
		u, w := at(uv(src, i))
		r := sample(src, u+ox, w+oy)
		ga := sample(src, u, w)
		b := sample(src, u-ox, w-oy)
		store(dst, i, rgba{r[0], ga[1], b[2], ga[3]})
	}
}

type tint struct{ base }

// NewTint returns an effect adding a constant color. Parameter: tint (rgb, each in [-1, 1]).
func NewTint() Effect {
	return &tint{base{name: "tint"}}
}

func (e *tint) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{stage.WithVec3Param("tint", mgl32.Vec3{}, -1, 1)}
}

func (e *tint) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	t := v.Vec3("tint")
	for i := 0; i < src.Shape().Elements(); i++ {
		px, out := src.Texel(i), dst.Texel(i)
		out[0], out[1], out[2], out[3] = px[0]+t[0], px[1]+t[1], px[2]+t[2], px[3]
	}
	return nil
}

type bloom struct{ base }

// NewBloom returns a glow effect: texels brighter than threshold are blurred and added back.
// Parameters: strength (0.3), radius (1), threshold (0.6).
func NewBloom() Effect {
	return &bloom{base{name: "bloom"}}
}

func (e *bloom) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{
		stage.WithFloatParam("strength", 0.3, 0, 2),
		stage.WithFloatParam("radius", 1, 0, 2),
		stage.WithFloatParam("threshold", 0.6, 0, 1),
	}
}

func (e *bloom) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	shape := src.Shape()
	strength, threshold := v.Float("strength"), v.Float("threshold")

	bright := src.Clone()
	for i := 0; i < shape.Elements(); i++ {
		px := bright.Texel(i)
		k := common.Smoothstep(threshold, threshold+0.01, luminance(rgba{px[0], px[1], px[2], px[3]}))
		px[0], px[1], px[2] = px[0]*k, px[1]*k, px[2]*k
	}

	sigma := 1 + 2*v.Float("radius")
	kernel := gaussian(sigma)
	tmp := bright.Clone()
	blur(bright, tmp, kernel, 1, 0)
	blur(tmp, bright, kernel, 0, 1)

	for i := 0; i < shape.Elements(); i++ {
		px, glow, out := src.Texel(i), bright.Texel(i), dst.Texel(i)
		out[0] = px[0] + strength*glow[0]
		out[1] = px[1] + strength*glow[1]
		out[2] = px[2] + strength*glow[2]
		out[3] = px[3]
	}
	return nil
}

func gaussian(sigma float32) []float32 {
	half := int(math32.Ceil(2 * sigma))
	k := make([]float32, 2*half+1)
	var sum float32
	for i := range k {
		x := float32(i - half)
		k[i] = math32.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur convolves src with a 1D kernel along (dx, dy) into dst, rgb only.
func blur(src, dst *buffer.Buffer, kernel []float32, dx, dy int) {
	s := src.Shape()
	half := len(kernel) / 2
	for i := 0; i < s.Elements(); i++ {
		x, y := i%s.Width, i/s.Width
		var acc rgba
		for k, wt := range kernel {
			c := fetch(src, x+(k-half)*dx, y+(k-half)*dy)
			acc[0] += c[0] * wt
			acc[1] += c[1] * wt
			acc[2] += c[2] * wt
		}
		out := dst.Texel(i)
		out[0], out[1], out[2] = acc[0], acc[1], acc[2]
	}
}

type glitch struct {
	base
	seed uint64
}

// NewGlitch returns a digital glitch effect. Every interval ticks it tears the image with a
// strong burst, followed by weaker jitter for a fifth of the interval. goWild glitches every tick.
// The disturbance is derived from seed and the tick, so replays are identical.
func NewGlitch(seed uint64) Effect {
	return &glitch{base: base{name: "glitch"}, seed: seed}
}

func (e *glitch) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{
		stage.WithBoolParam("goWild", false),
		stage.WithIntParam("interval", 0, 0, 0),
	}
}

func (e *glitch) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, f clock.Frame, dst *buffer.Buffer) error {
	rng := rand.New(rand.NewPCG(e.seed, f.Tick))
	var interval uint64
	if n := v.Int("interval"); n > 0 {
		interval = uint64(n)
	} else {
		interval = 120 + rand.New(rand.NewPCG(e.seed, 0)).Uint64N(121)
	}
	phase := f.Tick % interval

	var amount, distX, distY, band float32
	switch {
	case v.Bool("goWild") || phase == 0:
		amount = rng.Float32() / 30
		distX, distY = rng.Float32(), rng.Float32()
		band = 0.05
	case phase < interval/5:
		amount = rng.Float32() / 90
	default:
		return dst.CopyFrom(src)
	}
	angle := (rng.Float32()*2 - 1) * math32.Pi
	seedX := rng.Float32()*2 - 1

	tear := func(u, w float32) (float32, float32) {
		if band > 0 {
			if w < distX+band && w > distX-band {
				w = remap(w, distY, seedX)
			}
			if u < distY+band && u > distY-band {
				u = remap(u, distX, seedX)
			}
		}
		return u, w
	}
	shift(src, dst, amount, angle, tear)
	return nil
}

func remap(c, d, seed float32) float32 {
	if seed > 0 {
		return 1 - (c + d)
	}
	return d
}

type displacement struct {
	base
	normalMap string
}

// NewDisplacement returns an effect that refracts the image through a normal map supplied as an
// external input and brightens texels whose normal faces the light from the upper left.
// Parameters: offset (0.1), lightness (2).
//
// Parameters:
//   - normalMap: the external input name of an RGBA normal map shaped like the chain
//
// Returns:
//   - Effect: the displacement effect
func NewDisplacement(normalMap string) Effect {
	return &displacement{base: base{name: "displacement"}, normalMap: normalMap}
}

func (e *displacement) Inputs() []stage.Input {
	return []stage.Input{stage.FromExternal(e.normalMap)}
}

func (e *displacement) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{
		stage.WithFloatParam("offset", 0.1, 0, 1),
		stage.WithFloatParam("lightness", 2, 0, 10),
	}
}

func (e *displacement) Apply(src *buffer.Buffer, in stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	normals, err := in.External(e.normalMap)
	if err != nil {
		return err
	}
	offset, lightness := v.Float("offset"), v.Float("lightness")
	light := mgl32.Vec3{-1, 1, 0}.Normalize()
	for i := 0; i < src.Shape().Elements(); i++ {
		u, w := uv(src, i)
		nc := sample(normals, u, w)
		n := mgl32.Vec3{nc[0]*2 - 1, nc[1]*2 - 1, nc[2]*2 - 1}
		c := sample(src, u+n[0]*offset, w+n[1]*offset)
		l := common.Clamp(n.Dot(light), 0, 1) * lightness
		store(dst, i, rgba{c[0] + l, c[1] + l, c[2] + l, c[3]})
	}
	return nil
}

type gammaCorrection struct{ base }

// NewGammaCorrection returns the terminal effect converting linear color to sRGB.
func NewGammaCorrection() Effect {
	return &gammaCorrection{base{name: "gamma", placement: PlacementTerminal}}
}

func (e *gammaCorrection) Params() []stage.StageBuilderOption {
	return nil
}

func (e *gammaCorrection) Apply(src *buffer.Buffer, _ stage.Inputs, _ stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	for i := 0; i < src.Shape().Elements(); i++ {
		px, out := src.Texel(i), dst.Texel(i)
		out[0], out[1], out[2], out[3] = linearToSRGB(px[0]), linearToSRGB(px[1]), linearToSRGB(px[2]), px[3]
	}
	return nil
}

func linearToSRGB(c float32) float32 {
	if c < 0.0031308 {
		return c * 12.92
	}
	return 1.055*math32.Pow(c, 0.41666) - 0.055
}

type antialias struct{ base }

// NewAntialias returns an edge smoothing effect that may follow the terminal effect.
// Texels whose luminance differs from their neighbourhood by more than threshold are
// blended with their four neighbours. Parameter: threshold (0.1).
func NewAntialias() Effect {
	return &antialias{base{name: "antialias", placement: PlacementPostTerminal}}
}

func (e *antialias) Params() []stage.StageBuilderOption {
	return []stage.StageBuilderOption{stage.WithFloatParam("threshold", 0.1, 0, 1)}
}

func (e *antialias) Apply(src *buffer.Buffer, _ stage.Inputs, v stage.Values, _ clock.Frame, dst *buffer.Buffer) error {
	s := src.Shape()
	threshold := v.Float("threshold")
	for i := 0; i < s.Elements(); i++ {
		x, y := i%s.Width, i/s.Width
		c := fetch(src, x, y)
		nb := [4]rgba{fetch(src, x-1, y), fetch(src, x+1, y), fetch(src, x, y-1), fetch(src, x, y+1)}

		lc := luminance(c)
		lo, hi := lc, lc
		for _, n := range nb {
			l := luminance(n)
			lo, hi = min(lo, l), max(hi, l)
		}
		if hi-lo <= threshold {
			store(dst, i, c)
			continue
		}
		out := c
		for ch := 0; ch < 3; ch++ {
			sum := c[ch] * 4
			for _, n := range nb {
				sum += n[ch]
			}
			out[ch] = sum / 8
		}
		store(dst, i, out)
	}
	return nil
}
