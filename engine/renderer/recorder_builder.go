package renderer

import "go.uber.org/zap"

// RecorderBuilderOption is a functional option used to configure a Recorder during construction.
type RecorderBuilderOption func(*recorder)

// WithOutputs restricts recording to the named outputs.
//
// Parameters:
//   - names: the stage names to copy on every render
//
// Returns:
//   - RecorderBuilderOption: a function that applies the outputs option to a recorder
func WithOutputs(names ...string) RecorderBuilderOption {
	return func(r *recorder) {
		r.outputs = append(r.outputs, names...)
	}
}

// WithLimit keeps only the most recent n captures. Zero keeps everything.
func WithLimit(n int) RecorderBuilderOption {
	return func(r *recorder) {
		r.limit = max(n, 0)
	}
}

// WithRecorderLogger sets the recorder logger. Defaults to zap.NewNop().
func WithRecorderLogger(logger *zap.Logger) RecorderBuilderOption {
	return func(r *recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}
