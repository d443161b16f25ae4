// Package projection maps world-space emitter transforms into field space.
//
// A field covers a rectangular (or box) area of the world. Positions are
// divided by the area size per axis and optionally offset by 0.5 so that a
// centered area [-size/2, size/2] lands on [0, 1]. 2D fields pick two of the
// three world axes through a Mapping; the third axis is discarded and the
// facing direction is projected onto the plane orthogonal to it.
package projection

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/config"
)

// Mapping selects which world axes feed a 2D field's (u, v) axes.
type Mapping uint8

const (
	MappingXY Mapping = iota // world X,Y; discards Z
	MappingXZ                // world X,Z; discards Y
	MappingYZ                // world Y,Z; discards X
)

// String returns the config spelling of the mapping.
func (m Mapping) String() string {
	switch m {
	case MappingXY:
		return "xy"
	case MappingXZ:
		return "xz"
	case MappingYZ:
		return "yz"
	}
	return fmt.Sprintf("Mapping(%d)", uint8(m))
}

// ParseMapping parses xy, xz or yz.
func ParseMapping(s string) (Mapping, error) {
	switch s {
	case "xy":
		return MappingXY, nil
	case "xz":
		return MappingXZ, nil
	case "yz":
		return MappingYZ, nil
	}
	return 0, config.Configf("unknown mapping %q", s)
}

// DirectionSource selects what the projected direction is derived from.
type DirectionSource uint8

const (
	// FromForward uses the transform's facing vector.
	FromForward DirectionSource = iota
	// FromVelocity uses the world position delta since the previous projection.
	FromVelocity
)

// ParseDirectionSource parses forward or velocity.
func ParseDirectionSource(s string) (DirectionSource, error) {
	switch s {
	case "forward":
		return FromForward, nil
	case "velocity":
		return FromVelocity, nil
	}
	return 0, config.Configf("unknown direction source %q", s)
}

// Unit axes in a left-handed, Y-up world.
var (
	Right = r3.Vec{X: 1}
	Up    = r3.Vec{Y: 1}
	Back  = r3.Vec{Z: -1}
)

// Settings configures one emitter's projection.
type Settings struct {
	Dims      int     // 2 or 3
	Mapping   Mapping // ignored for 3D
	Size      r3.Vec  // field area size; 2D uses X,Y as the (u, v) sizes
	Centered  bool
	Normalize bool // 2D only; 3D directions are always raw
	Source    DirectionSource
}

// FromConfig builds settings from an emitter's config entry.
func FromConfig(e config.EmitterConfig) (Settings, error) {
	m, err := ParseMapping(e.Mapping.Mode)
	if err != nil {
		return Settings{}, err
	}
	src, err := ParseDirectionSource(e.Mapping.DirectionSource)
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Dims:      e.Dims,
		Mapping:   m,
		Size:      r3.Vec{X: e.Mapping.Size[0], Y: e.Mapping.Size[1], Z: e.Mapping.Size[2]},
		Centered:  e.Mapping.Centered,
		Normalize: e.Mapping.NormalizeDirection,
		Source:    src,
	}
	return s, s.Validate()
}

// Validate rejects settings that would divide by zero during projection.
// It is meant to run once when an emitter is activated, not per frame.
func (s Settings) Validate() error {
	switch s.Dims {
	case 2:
		if s.Size.X == 0 || s.Size.Y == 0 {
			return config.Configf("zero-sized simulation area %vx%v", s.Size.X, s.Size.Y)
		}
		if s.Mapping > MappingYZ {
			return config.Configf("unknown mapping %v", s.Mapping)
		}
	case 3:
		if s.Size.X == 0 || s.Size.Y == 0 || s.Size.Z == 0 {
			return config.Configf("zero-sized simulation volume %vx%vx%v", s.Size.X, s.Size.Y, s.Size.Z)
		}
	default:
		return config.Configf("dims %d must be 2 or 3", s.Dims)
	}
	return nil
}

// PlaneNormal returns the world axis a mapping discards.
func PlaneNormal(m Mapping) r3.Vec {
	switch m {
	case MappingXZ:
		return Up
	case MappingYZ:
		return Right
	default:
		return Back
	}
}

// pick returns the two world components a mapping keeps.
func pick(v r3.Vec, m Mapping) (u, w float64) {
	switch m {
	case MappingXZ:
		return v.X, v.Z
	case MappingYZ:
		return v.Y, v.Z
	default:
		return v.X, v.Y
	}
}

// axis maps one world coordinate onto a field axis.
func axis(world, size float64, centered bool) float64 {
	c := world / size
	if centered {
		c += 0.5
	}
	return c
}

// ProjectOnPlane removes the component of v along the plane normal n.
// n must be unit length.
func ProjectOnPlane(v, n r3.Vec) r3.Vec {
	return r3.Sub(v, r3.Scale(r3.Dot(v, n), n))
}

// Project2D maps a world position and facing vector into a 2D field.
// Settings must have passed Validate.
func Project2D(world, facing r3.Vec, s Settings) (pos, dir r2.Vec) {
	u, v := pick(world, s.Mapping)
	pos = r2.Vec{
		X: axis(u, s.Size.X, s.Centered),
		Y: axis(v, s.Size.Y, s.Centered),
	}

	flat := ProjectOnPlane(facing, PlaneNormal(s.Mapping))
	if s.Normalize && r3.Norm(flat) > 0 {
		flat = r3.Unit(flat)
	}
	dir.X, dir.Y = pick(flat, s.Mapping)
	return pos, dir
}

// Project3D maps a world position and facing vector into a 3D field.
// The direction is the raw facing vector.
func Project3D(world, facing r3.Vec, s Settings) (pos, dir r3.Vec) {
	pos = r3.Vec{
		X: axis(world.X, s.Size.X, s.Centered),
		Y: axis(world.Y, s.Size.Y, s.Centered),
		Z: axis(world.Z, s.Size.Z, s.Centered),
	}
	return pos, facing
}
