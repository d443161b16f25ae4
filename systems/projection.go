package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/projection"
)

// ProjectionSystem refreshes every emitter's field-space state from its
// transform. It must run before any controller syncs in the same tick.
type ProjectionSystem struct {
	filter ecs.Filter3[components.Transform, components.FluidEmitter, components.SimState]
}

// NewProjectionSystem creates a projection system.
func NewProjectionSystem(w *ecs.World) *ProjectionSystem {
	return &ProjectionSystem{
		filter: *ecs.NewFilter3[components.Transform, components.FluidEmitter, components.SimState](w),
	}
}

// Update projects all emitters and returns how many were processed.
func (s *ProjectionSystem) Update(w *ecs.World) int {
	n := 0
	query := s.filter.Query()
	for query.Next() {
		tr, em, st := query.Get()
		Project(tr, em, st)
		n++
	}
	return n
}

// Project maps one emitter's transform into its SimState.
//
// With a velocity direction source the facing vector is the position delta
// since the previous call; the first call only records the position and
// keeps the previous direction.
func Project(tr *components.Transform, em *components.FluidEmitter, st *components.SimState) {
	s := em.Projection
	facing := tr.Forward
	keepDir := false
	if s.Source == projection.FromVelocity {
		if st.PrevValid {
			facing = r3.Sub(tr.Position, st.Prev)
		} else {
			keepDir = true
		}
		st.Prev = tr.Position
		st.PrevValid = true
	}

	st.Dims = s.Dims
	if s.Dims == 3 {
		pos, dir := projection.Project3D(tr.Position, facing, s)
		st.Position = [3]float32{float32(pos.X), float32(pos.Y), float32(pos.Z)}
		if !keepDir {
			st.Direction = [3]float32{float32(dir.X), float32(dir.Y), float32(dir.Z)}
		}
		return
	}

	pos, dir := projection.Project2D(tr.Position, facing, s)
	st.Position = [3]float32{float32(pos.X), float32(pos.Y), 0}
	if !keepDir {
		st.Direction = [3]float32{float32(dir.X), float32(dir.Y), 0}
	}
}
