package field

import (
	"fmt"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/config"
)

// Shader parameter names shared by controllers and kernels.
const (
	BufferParam = "_EmittersBuffer"
	CountParam  = "_EmittersCount"
	TimeParam   = "_AbsoluteTime"
)

// Role is what a field carries and what its emitters inject.
type Role uint8

const (
	RoleForce Role = iota // velocity
	RoleColor             // advected dye
)

func (r Role) String() string {
	if r == RoleColor {
		return "color"
	}
	return "force"
}

// ParseRole parses force or color.
func ParseRole(s string) (Role, error) {
	switch s {
	case "force":
		return RoleForce, nil
	case "color":
		return RoleColor, nil
	}
	return 0, config.Configf("unknown field role %q", s)
}

// Schema is the fixed-stride record layout for one role and dimensionality.
//
// Layouts, in float32s:
//
//	Force2D  pos.xy  dir.xy  force radius shape
//	Color2D  pos.xy  rgba    intensity radius
//	Force3D  pos.xyz dir.xyz force radiusPower shape
//	Color3D  pos.xyz rgba    intensity radiusPower
type Schema struct {
	Name   string
	Role   Role
	Dims   int
	Stride int
}

var (
	Force2D = Schema{Name: "Force2D", Role: RoleForce, Dims: 2, Stride: 7}
	Color2D = Schema{Name: "Color2D", Role: RoleColor, Dims: 2, Stride: 8}
	Force3D = Schema{Name: "Force3D", Role: RoleForce, Dims: 3, Stride: 9}
	Color3D = Schema{Name: "Color3D", Role: RoleColor, Dims: 3, Stride: 9}
)

// SchemaFor returns the schema for a role and dimensionality.
func SchemaFor(role Role, dims int) (Schema, error) {
	switch {
	case role == RoleForce && dims == 2:
		return Force2D, nil
	case role == RoleColor && dims == 2:
		return Color2D, nil
	case role == RoleForce && dims == 3:
		return Force3D, nil
	case role == RoleColor && dims == 3:
		return Color3D, nil
	}
	return Schema{}, config.Configf("no %s schema for %d dimensions", role, dims)
}

// Pack writes one emitter record into dst, which must be Stride long.
func (s Schema) Pack(dst []float32, em *components.FluidEmitter, st *components.SimState) {
	_ = dst[s.Stride-1]
	n := copy(dst, st.Position[:s.Dims])
	if s.Role == RoleForce {
		n += copy(dst[n:], st.Direction[:s.Dims])
		dst[n] = em.Force
		dst[n+1] = em.ForceRadius
		dst[n+2] = em.Shape.Encode()
		return
	}
	n += copy(dst[n:], em.Color[:])
	dst[n] = em.Intensity
	dst[n+1] = em.ColorRadius
}

// Record is a decoded emitter record as kernels consume it.
type Record struct {
	Pos       [3]float32
	Dir       [3]float32
	Color     [4]float32
	Force     float32
	Radius    float32 // radius (2D) or falloff power (3D)
	Intensity float32
	Shape     components.Shape
}

// Unpack decodes a record written by Pack.
func (s Schema) Unpack(rec []float32) Record {
	var r Record
	n := copy(r.Pos[:s.Dims], rec)
	if s.Role == RoleForce {
		n += copy(r.Dir[:s.Dims], rec[n:])
		r.Force = rec[n]
		r.Radius = rec[n+1]
		r.Shape = components.Shape(rec[n+2])
		return r
	}
	n += copy(r.Color[:], rec[n:])
	r.Intensity = rec[n]
	r.Radius = rec[n+1]
	return r
}

// String implements fmt.Stringer.
func (s Schema) String() string {
	return fmt.Sprintf("%s(stride=%d)", s.Name, s.Stride)
}
