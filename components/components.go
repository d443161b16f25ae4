// Package components defines ECS components for the simulation.
package components

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/projection"
)

// Shape determines how an emitter distributes its force.
type Shape uint8

const (
	ShapeDirectional Shape = iota // Pushes along the projected direction
	ShapeCircular                 // Pushes radially away from the center
)

// String returns the config spelling of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeDirectional:
		return "directional"
	case ShapeCircular:
		return "circular"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// Encode returns the shape as written into packed emitter records.
func (s Shape) Encode() float32 {
	return float32(s)
}

// ParseShape parses directional or circular.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "directional":
		return ShapeDirectional, nil
	case "circular":
		return ShapeCircular, nil
	}
	return 0, fmt.Errorf("unknown shape %q", s)
}

// Transform is an emitter's world-space placement, owned by whatever moves it.
type Transform struct {
	Position r3.Vec
	Forward  r3.Vec
}

// FluidEmitter holds the authoring parameters of an emitter.
type FluidEmitter struct {
	Name  string
	Shape Shape

	// Force role
	Force       float32
	ForceRadius float32 // radius in field units (2D) or falloff power (3D)

	// Color role
	Color       [4]float32
	Intensity   float32
	ColorRadius float32 // radius in field units (2D) or falloff power (3D)

	// Target controller keys; empty means none
	FluidKey string
	ColorKey string

	Projection projection.Settings
}

// SimState is the emitter's field-space state, refreshed every tick by the
// projection system before any controller syncs.
type SimState struct {
	Position  [3]float32 // Z unused for 2D
	Direction [3]float32 // Z unused for 2D
	Dims      int

	// Previous world position for velocity-derived directions
	Prev      r3.Vec
	PrevValid bool
}

// Orbit scripts circular motion around a center in one world plane.
type Orbit struct {
	Center r3.Vec
	Radius float64
	Speed  float64 // radians per second
	Phase  float64 // current angle in radians
	Plane  projection.Mapping
}

// Lifetime is the tick window during which an emitter is registered.
type Lifetime struct {
	EnableAt  int
	DisableAt int // 0 = never
	Active    bool
}

// ShouldBeActive reports whether the emitter belongs in its fields at tick.
func (l Lifetime) ShouldBeActive(tick int) bool {
	if tick < l.EnableAt {
		return false
	}
	return l.DisableAt == 0 || tick < l.DisableAt
}
