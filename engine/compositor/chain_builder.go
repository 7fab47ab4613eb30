package compositor

import "go.uber.org/zap"

// ChainBuilderOption is a functional option used to configure a Chain during construction.
type ChainBuilderOption func(*chain)

// WithName sets the chain name used as the stage name prefix. Defaults to "composite".
func WithName(name string) ChainBuilderOption {
	return func(c *chain) {
		if name != "" {
			c.name = name
		}
	}
}

// WithExternalSource makes the chain read its source image from an external input instead of a stage.
func WithExternalSource() ChainBuilderOption {
	return func(c *chain) {
		c.external = true
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) ChainBuilderOption {
	return func(c *chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}
