package sketch

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/physics"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// Physics builds the rigid-body sketch: spheres dropped onto the ground and a static platform.
// Contacts above the impact threshold are logged; once every sphere sleeps the first one is kicked
// back up.
//
// Parameters:
//   - env: the settings, logger and metrics
//
// Returns:
//   - *Sketch: the sketch, its output is the "bodies" transform buffer
//   - error: any construction error
func Physics(env Env) (*Sketch, error) {
	s := env.Settings.Physics
	logger := env.logger()

	world := physics.NewWorld(
		physics.WithGravity(mgl32.Vec3{0, s.Gravity, 0}),
		physics.WithContactMaterial(s.Restitution, s.Friction),
	)
	options := []physics.AdapterBuilderOption{
		physics.WithCapacity(s.Capacity),
		physics.WithImpactThreshold(s.ImpactThreshold),
		physics.WithLogger(logger),
	}
	if s.FixedStep > 0 {
		options = append(options, physics.WithFixedStep(float32(time.Duration(s.FixedStep).Seconds()), s.MaxSubsteps))
	} else {
		options = append(options, physics.WithSubsteps(s.MaxSubsteps))
	}
	adapter := physics.NewAdapter(world, options...)

	if _, err := adapter.AddElement(physics.Pose{
		Position: mgl32.Vec3{0, 0.5, 0},
		Collider: physics.Box(4, 1, 4),
	}); err != nil {
		return nil, fmt.Errorf("physics platform: %w", err)
	}
	spheres := make([]physics.ID, 0, s.Bodies)
	for i := 0; i < s.Bodies; i++ {
		id, err := adapter.AddElement(physics.Pose{
			Position: mgl32.Vec3{(float32(i%3) - 1) * 1.2, 3 + float32(i)*1.5, (float32(i/3%3) - 1) * 1.2},
			Mass:     1,
			Collider: physics.Sphere(0.5),
		})
		if err != nil {
			return nil, fmt.Errorf("physics sphere %d: %w", i, err)
		}
		spheres = append(spheres, id)
	}

	var contacts, kicks atomic.Uint64
	adapter.OnContact(func(c physics.Contact) {
		contacts.Add(1)
		logger.Debug("contact", zap.Uint64("a", uint64(c.A)), zap.Uint64("b", uint64(c.B)), zap.Float32("impact", c.Impact))
	})

	st, err := adapter.Stage("bodies")
	if err != nil {
		return nil, fmt.Errorf("physics stage: %w", err)
	}

	onTick := func(clock.Frame) {
		if len(spheres) == 0 {
			return
		}
		for _, id := range spheres {
			if !world.Sleeping(id) {
				return
			}
		}
		if err := adapter.ApplyImpulse(spheres[0], mgl32.Vec3{0, 8, 0}, mgl32.Vec3{}); err == nil {
			kicks.Add(1)
		}
	}

	return &Sketch{
		Pipeline: pipeline.NewPipeline(append(env.pipelineOptions("physics"), pipeline.WithStage(st))...),
		Outputs:  []string{st.Name()},
		OnTick:   onTick,
		Summary: func() []zap.Field {
			return []zap.Field{
				zap.Int("bodies", adapter.Len()),
				zap.Uint64("contacts", contacts.Load()),
				zap.Uint64("kicks", kicks.Load()),
			}
		},
	}, nil
}
