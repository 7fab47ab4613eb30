package physics

import "go.uber.org/zap"

// AdapterBuilderOption is a functional option used to configure an Adapter during construction.
type AdapterBuilderOption func(*adapter)

// WithImpactThreshold sets the closing speed a contact must exceed to reach callbacks.
func WithImpactThreshold(threshold float32) AdapterBuilderOption {
	return func(a *adapter) {
		a.threshold = threshold
	}
}

// WithCapacity sets the number of element slots.
func WithCapacity(n int) AdapterBuilderOption {
	return func(a *adapter) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithSubsteps sets the number of equal integration steps the stage takes per frame.
func WithSubsteps(n int) AdapterBuilderOption {
	return func(a *adapter) {
		if n > 0 {
			a.substeps = n
		}
	}
}

// WithFixedStep makes the stage advance the world in fixed increments.
//
// Parameters:
//   - fixedDt: the increment in seconds, typically 1/60
//   - maxSubSteps: the most increments taken per frame
//
// Returns:
//   - AdapterBuilderOption: a function that enables fixed stepping
func WithFixedStep(fixedDt float32, maxSubSteps int) AdapterBuilderOption {
	return func(a *adapter) {
		a.fixedDt = fixedDt
		a.maxFixed = maxSubSteps
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) AdapterBuilderOption {
	return func(a *adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}
