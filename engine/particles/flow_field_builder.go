package particles

import "go.uber.org/zap"

// FlowFieldBuilderOption is a functional option used to configure a FlowField during construction.
type FlowFieldBuilderOption func(*flowField)

// WithName sets the stage name. Defaults to "flowfield".
func WithName(name string) FlowFieldBuilderOption {
	return func(ff *flowField) {
		if name != "" {
			ff.name = name
		}
	}
}

// WithBaseName sets the external input name for the base buffer. Defaults to the stage name plus ".base".
func WithBaseName(name string) FlowFieldBuilderOption {
	return func(ff *flowField) {
		ff.baseName = name
	}
}

// WithSeed seeds the simplex noise field. Equal seeds give identical simulations.
func WithSeed(seed int64) FlowFieldBuilderOption {
	return func(ff *flowField) {
		ff.seed = seed
	}
}

// WithWorkers splits each tick's particle updates across n pooled workers.
// Values below 2 update every particle on the calling goroutine.
//
// Parameters:
//   - n: the number of workers
//
// Returns:
//   - FlowFieldBuilderOption: a function that sets the worker count
func WithWorkers(n int) FlowFieldBuilderOption {
	return func(ff *flowField) {
		if n > 0 {
			ff.workers = n
		}
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) FlowFieldBuilderOption {
	return func(ff *flowField) {
		if logger != nil {
			ff.logger = logger
		}
	}
}
