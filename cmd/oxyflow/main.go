package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/config"
	"github.com/Carmen-Shannon/oxy-flow/sketch"
	"github.com/spf13/cobra"
)

// flags are the command-line overrides applied on top of the settings file.
type flags struct {
	configPath string
	frames     uint64
	tickRate   float64
	window     bool
	upload     bool
	logLevel   string
	metrics    string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "oxyflow",
		Short:         "Run buffered simulation and post-processing sketches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "oxyflow.toml", "settings file; missing files fall back to defaults")
	pf.Uint64Var(&f.frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	pf.Float64Var(&f.tickRate, "tick-rate", 0, "frames per second, overrides engine.tick_rate")
	pf.BoolVar(&f.window, "window", false, "open a window and drive frames from its message loop")
	pf.BoolVar(&f.upload, "upload", false, "mirror outputs into WebGPU storage buffers")
	pf.StringVar(&f.logLevel, "log-level", "", "overrides log.level")
	pf.StringVar(&f.metrics, "metrics-addr", "", "serve prometheus metrics on this address, overrides metrics.addr")

	root.AddCommand(
		newSketchCommand(f, "flowfield", "Particles advected through a 4D simplex noise field", sketch.FlowField),
		newSketchCommand(f, "physics", "Spheres dropped onto a platform with contact callbacks", sketch.Physics),
		newSketchCommand(f, "composite", "An animated scene through the post-processing chain", sketch.Composite),
		newConfigCommand(f),
	)
	return root
}

func newSketchCommand(f *flags, name, short string, build func(sketch.Env) (*sketch.Sketch, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := f.settings()
			if err != nil {
				return err
			}
			return run(cmd.Context(), name, settings, build)
		},
	}
}

func newConfigCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := f.settings()
			if err != nil {
				return err
			}
			return settings.Encode(cmd.OutOrStdout())
		},
	}
}

// settings loads the settings file and applies the flag overrides.
func (f *flags) settings() (config.Settings, error) {
	s, err := config.Load(f.configPath)
	if err != nil {
		return s, err
	}
	s.Engine.MaxFrames = common.Coalesce(f.frames, s.Engine.MaxFrames)
	s.Engine.TickRate = common.Coalesce(f.tickRate, s.Engine.TickRate)
	s.Engine.Window = s.Engine.Window || f.window
	s.GPU.Upload = s.GPU.Upload || f.upload
	s.Log.Level = common.Coalesce(f.logLevel, s.Log.Level)
	s.Metrics.Addr = common.Coalesce(f.metrics, s.Metrics.Addr)
	return s, s.Validate()
}
