package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/projection"
)

// OrbitSystem moves scripted emitters along circular paths. It stands in
// for the scene graph that would otherwise own emitter transforms.
type OrbitSystem struct {
	filter ecs.Filter2[components.Orbit, components.Transform]
}

// NewOrbitSystem creates an orbit system.
func NewOrbitSystem(w *ecs.World) *OrbitSystem {
	return &OrbitSystem{
		filter: *ecs.NewFilter2[components.Orbit, components.Transform](w),
	}
}

// Update advances every orbit by dt seconds.
func (s *OrbitSystem) Update(w *ecs.World, dt float64) {
	query := s.filter.Query()
	for query.Next() {
		orb, tr := query.Get()
		orb.Phase = math.Mod(orb.Phase+orb.Speed*dt, 2*math.Pi)
		Place(orb, tr)
	}
}

// Place sets tr to the orbit's current point. Forward is the path
// velocity, so its magnitude is the linear speed.
func Place(orb *components.Orbit, tr *components.Transform) {
	sin, cos := math.Sincos(orb.Phase)
	offset := planeVec(orb.Plane, cos*orb.Radius, sin*orb.Radius)
	tangent := planeVec(orb.Plane, -sin*orb.Radius*orb.Speed, cos*orb.Radius*orb.Speed)
	tr.Position = r3.Add(orb.Center, offset)
	tr.Forward = tangent
}

// planeVec places 2D (a, b) into the world plane a mapping keeps.
func planeVec(m projection.Mapping, a, b float64) r3.Vec {
	switch m {
	case projection.MappingXZ:
		return r3.Vec{X: a, Z: b}
	case projection.MappingYZ:
		return r3.Vec{Y: a, Z: b}
	default:
		return r3.Vec{X: a, Y: b}
	}
}
