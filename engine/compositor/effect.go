package compositor

import (
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/chewxy/math32"
)

// Channels is the texel layout of every image in a chain: RGBA.
const Channels = 4

// ParamEnabled is the Bool parameter every effect stage exposes. Disabled effects copy their source.
const ParamEnabled = "enabled"

// Placement constrains where an effect may appear in a chain.
type Placement int

const (
	// PlacementAny may appear anywhere before the terminal effect.
	PlacementAny Placement = iota
	// PlacementTerminal ends the color pipeline; at most one per chain.
	PlacementTerminal
	// PlacementPostTerminal may also follow the terminal effect.
	PlacementPostTerminal
)

func (p Placement) String() string {
	switch p {
	case PlacementTerminal:
		return "terminal"
	case PlacementPostTerminal:
		return "post-terminal"
	default:
		return "any"
	}
}

// Effect is one image-space pass. The chain wraps each effect in a stage reading the previous
// effect's output.
type Effect interface {
	// Name returns the effect name, used as the stage name suffix.
	Name() string

	// Placement returns where the effect may appear in a chain.
	Placement() Placement

	// Inputs returns extra inputs the effect reads besides its source image.
	Inputs() []stage.Input

	// Params returns the options declaring the effect's parameters.
	Params() []stage.StageBuilderOption

	// Apply writes the processed image.
	//
	// Parameters:
	//   - src: the source image, shaped like dst
	//   - in: the stage inputs, for effects reading extra inputs
	//   - v: the parameter snapshot
	//   - f: the frame timing
	//   - dst: the write target
	//
	// Returns:
	//   - error: any error resolving extra inputs
	Apply(src *buffer.Buffer, in stage.Inputs, v stage.Values, f clock.Frame, dst *buffer.Buffer) error
}

type rgba [4]float32

func fetch(b *buffer.Buffer, x, y int) rgba {
	s := b.Shape()
	x = min(max(x, 0), s.Width-1)
	y = min(max(y, 0), s.Height-1)
	px := b.Texel(y*s.Width + x)
	return rgba{px[0], px[1], px[2], px[3]}
}

// sample reads b at normalized coordinates with bilinear filtering and clamp-to-edge addressing.
func sample(b *buffer.Buffer, u, v float32) rgba {
	s := b.Shape()
	fx := u*float32(s.Width) - 0.5
	fy := v*float32(s.Height) - 0.5
	x0, y0 := int(math32.Floor(fx)), int(math32.Floor(fy))
	tx, ty := fx-float32(x0), fy-float32(y0)

	a, c := fetch(b, x0, y0), fetch(b, x0+1, y0)
	d, e := fetch(b, x0, y0+1), fetch(b, x0+1, y0+1)
	var out rgba
	for i := range out {
		top := a[i] + (c[i]-a[i])*tx
		bottom := d[i] + (e[i]-d[i])*tx
		out[i] = top + (bottom-top)*ty
	}
	return out
}

func store(b *buffer.Buffer, i int, c rgba) {
	copy(b.Texel(i), c[:])
}

// uv returns the normalized coordinates of texel i's center.
func uv(b *buffer.Buffer, i int) (float32, float32) {
	s := b.Shape()
	x, y := i%s.Width, i/s.Width
	return (float32(x) + 0.5) / float32(s.Width), (float32(y) + 0.5) / float32(s.Height)
}

func luminance(c rgba) float32 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}
