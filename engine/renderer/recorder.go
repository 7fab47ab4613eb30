package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"go.uber.org/zap"
)

// Capture is one recorded snapshot. Outputs are deep copies owned by the capture.
type Capture struct {
	Tick    uint64
	Frame   clock.Frame
	Outputs map[string]*buffer.Buffer
}

// Output returns the named captured output, or nil.
func (c Capture) Output(name string) *buffer.Buffer {
	return c.Outputs[name]
}

// Recorder is a Renderer that keeps copies of selected outputs for inspection.
type Recorder interface {
	Renderer

	// Captures returns the recorded snapshots, oldest first.
	//
	// Returns:
	//   - []Capture: the retained captures
	Captures() []Capture

	// Last returns the most recent capture.
	//
	// Returns:
	//   - Capture: the most recent capture
	//   - bool: false when nothing has been recorded yet
	Last() (Capture, bool)

	// Renders returns the number of Render calls, including those dropped by the limit.
	Renders() uint64

	// Reset discards every capture.
	Reset()
}

// recorder implements the Recorder interface.
type recorder struct {
	mu sync.Mutex

	outputs []string
	limit   int
	logger  *zap.Logger

	captures []Capture
	renders  uint64
}

var _ Recorder = &recorder{}

// NewRecorder creates a Recorder. Without WithOutputs every output in the snapshot is copied.
//
// Parameters:
//   - options: functional options for recorder configuration
//
// Returns:
//   - Recorder: the new recorder
func NewRecorder(options ...RecorderBuilderOption) Recorder {
	r := &recorder{
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *recorder) Render(snapshot pipeline.Snapshot) error {
	names := r.outputs
	if len(names) == 0 {
		names = make([]string, 0, len(snapshot.Outputs))
		for name := range snapshot.Outputs {
			names = append(names, name)
		}
	}

	c := Capture{Tick: snapshot.Tick, Frame: snapshot.Frame, Outputs: make(map[string]*buffer.Buffer, len(names))}
	for _, name := range names {
		out := snapshot.Output(name)
		if out == nil {
			r.logger.Debug("recorder output missing from snapshot", zap.String("output", name), zap.Uint64("tick", snapshot.Tick))
			continue
		}
		c.Outputs[name] = out.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	r.captures = append(r.captures, c)
	if r.limit > 0 && len(r.captures) > r.limit {
		r.captures = r.captures[len(r.captures)-r.limit:]
	}
	return nil
}

func (r *recorder) Captures() []Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Capture, len(r.captures))
	copy(out, r.captures)
	return out
}

func (r *recorder) Last() (Capture, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.captures) == 0 {
		return Capture{}, false
	}
	return r.captures[len(r.captures)-1], true
}

func (r *recorder) Renders() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = nil
}

func (r *recorder) Release() error {
	r.Reset()
	return nil
}
