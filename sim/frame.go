package sim

import "gonum.org/v1/gonum/spatial/r3"

// Frame is a read-only snapshot of what a viewer needs to draw one tick.
type Frame struct {
	Tick  int64       `json:"tick"`
	Time  float64     `json:"time"`
	World [3]float64  `json:"world"` // full extents, centered at the origin
	Boids []FrameBoid `json:"boids"`
}

// FrameBoid is one boid's placement.
type FrameBoid struct {
	Position [3]float64 `json:"p"`
	Forward  [3]float64 `json:"f"`
	Up       [3]float64 `json:"u"`
}

func vec3(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Frame copies the current flock state into a new Frame.
func (s *Simulation) Frame() Frame {
	boids := s.store.All()
	f := Frame{
		Tick:  s.tick,
		Time:  s.simTime,
		World: vec3(s.bounds.Size()),
		Boids: make([]FrameBoid, len(boids)),
	}
	for i := range boids {
		t := &boids[i].Transform
		f.Boids[i] = FrameBoid{
			Position: vec3(t.Position),
			Forward:  vec3(t.Heading.Forward),
			Up:       vec3(t.Heading.Up),
		}
	}
	return f
}
