package projection

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/config"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestProject2DPosition(t *testing.T) {
	tests := []struct {
		name     string
		world    r3.Vec
		size     r3.Vec
		mapping  Mapping
		centered bool
		want     r2.Vec
	}{
		{"origin uncentered", r3.Vec{}, r3.Vec{X: 1, Y: 1}, MappingXY, false, r2.Vec{}},
		{"origin centered", r3.Vec{}, r3.Vec{X: 1, Y: 1}, MappingXY, true, r2.Vec{X: 0.5, Y: 0.5}},
		{"xz ignores y", r3.Vec{X: 2, Y: 3, Z: 4}, r3.Vec{X: 8, Y: 16}, MappingXZ, false, r2.Vec{X: 2.0 / 8, Y: 4.0 / 16}},
		{"xy ignores z", r3.Vec{X: 2, Y: 3, Z: 4}, r3.Vec{X: 4, Y: 6}, MappingXY, false, r2.Vec{X: 0.5, Y: 0.5}},
		{"yz ignores x", r3.Vec{X: 2, Y: 3, Z: 4}, r3.Vec{X: 6, Y: 8}, MappingYZ, false, r2.Vec{X: 0.5, Y: 0.5}},
		{"centered edge", r3.Vec{X: -5, Y: 5}, r3.Vec{X: 10, Y: 10}, MappingXY, true, r2.Vec{X: 0, Y: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{Dims: 2, Mapping: tt.mapping, Size: tt.size, Centered: tt.centered}
			if err := s.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			pos, _ := Project2D(tt.world, r3.Vec{Z: 1}, s)
			if !approx(pos.X, tt.want.X) || !approx(pos.Y, tt.want.Y) {
				t.Errorf("Project2D(%v) = %v, want %v", tt.world, pos, tt.want)
			}
		})
	}
}

func TestProject2DDirection(t *testing.T) {
	facing := r3.Vec{X: 3, Y: 4, Z: 12}

	tests := []struct {
		name      string
		mapping   Mapping
		normalize bool
		want      r2.Vec
	}{
		{"xy raw", MappingXY, false, r2.Vec{X: 3, Y: 4}},
		{"xy normalized", MappingXY, true, r2.Vec{X: 0.6, Y: 0.8}},
		{"xz raw", MappingXZ, false, r2.Vec{X: 3, Y: 12}},
		{"yz raw", MappingYZ, false, r2.Vec{X: 4, Y: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{Dims: 2, Mapping: tt.mapping, Size: r3.Vec{X: 1, Y: 1}, Normalize: tt.normalize}
			_, dir := Project2D(r3.Vec{}, facing, s)
			if !approx(dir.X, tt.want.X) || !approx(dir.Y, tt.want.Y) {
				t.Errorf("direction = %v, want %v", dir, tt.want)
			}
		})
	}
}

func TestProject2DNormalizeZeroDirection(t *testing.T) {
	s := Settings{Dims: 2, Mapping: MappingXY, Size: r3.Vec{X: 1, Y: 1}, Normalize: true}
	// Facing straight along the discarded axis leaves nothing in-plane
	_, dir := Project2D(r3.Vec{}, r3.Vec{Z: 1}, s)
	if dir.X != 0 || dir.Y != 0 || math.IsNaN(dir.X) || math.IsNaN(dir.Y) {
		t.Errorf("expected zero direction, got %v", dir)
	}
}

func TestProject3D(t *testing.T) {
	s := Settings{Dims: 3, Size: r3.Vec{X: 2, Y: 4, Z: 8}, Centered: true}
	pos, dir := Project3D(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 0, Y: 5, Z: 0}, s)

	want := r3.Vec{X: 1, Y: 0.75, Z: 0.625}
	if !approx(pos.X, want.X) || !approx(pos.Y, want.Y) || !approx(pos.Z, want.Z) {
		t.Errorf("pos = %v, want %v", pos, want)
	}
	// Raw, uncapped facing vector
	if dir != (r3.Vec{Y: 5}) {
		t.Errorf("dir = %v, want raw forward", dir)
	}
}

func TestValidateRejectsZeroSize(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
	}{
		{"2d zero x", Settings{Dims: 2, Size: r3.Vec{X: 0, Y: 1}}},
		{"2d zero y", Settings{Dims: 2, Size: r3.Vec{X: 1, Y: 0}}},
		{"3d zero z", Settings{Dims: 3, Size: r3.Vec{X: 1, Y: 1}}},
		{"bad dims", Settings{Dims: 4, Size: r3.Vec{X: 1, Y: 1, Z: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if !errors.Is(err, config.ErrConfiguration) {
				t.Errorf("Validate() = %v, want ErrConfiguration", err)
			}
		})
	}

	// 2D ignores the unused Z size
	ok := Settings{Dims: 2, Size: r3.Vec{X: 1, Y: 1}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error for 2D with zero Z: %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	e := config.EmitterConfig{
		Dims: 2,
		Mapping: config.MappingConfig{
			Mode:            "yz",
			Size:            [3]float64{2, 3, 0},
			Centered:        true,
			DirectionSource: "velocity",
		},
	}
	s, err := FromConfig(e)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if s.Mapping != MappingYZ || s.Source != FromVelocity || !s.Centered {
		t.Errorf("unexpected settings %+v", s)
	}

	e.Mapping.Mode = "xw"
	if _, err := FromConfig(e); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for bad mode, got %v", err)
	}
}
