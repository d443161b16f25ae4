package solver

import (
	"math"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
)

// decodeEmitters reads the live records bound on p. It returns none when no
// buffer is bound. Only the first CountParam records are read; trailing
// capacity is never touched.
func decodeEmitters(p *gpu.Params, schema field.Schema, dst []field.Record) []field.Record {
	dst = dst[:0]
	buf := p.Buffer(field.BufferParam)
	if buf == nil || buf.Released() || buf.Stride() != schema.Stride {
		return dst
	}
	n := min(p.Int(field.CountParam), buf.Count())
	for i := 0; i < n; i++ {
		dst = append(dst, schema.Unpack(buf.Record(i)))
	}
	return dst
}

// splat2D is the gaussian weight of a 2D emitter at normalized (u, v).
// It also returns the offset from the emitter center.
func splat2D(u, v float32, r *field.Record) (w, dx, dy float32) {
	dx = u - r.Pos[0]
	dy = v - r.Pos[1]
	if r.Radius <= 0 {
		return 0, dx, dy
	}
	d2 := dx*dx + dy*dy
	return float32(math.Exp(float64(-d2 / (r.Radius * r.Radius)))), dx, dy
}

// splat3D weights a 3D emitter; Radius is the falloff exponent.
func splat3D(u, v, s float32, r *field.Record) (w, dx, dy, dz float32) {
	dx = u - r.Pos[0]
	dy = v - r.Pos[1]
	dz = s - r.Pos[2]
	d2 := dx*dx + dy*dy + dz*dz
	return float32(math.Exp(float64(-d2 * r.Radius))), dx, dy, dz
}

// forceAt accumulates the velocity change from force emitters at (u, v, s).
// Directional emitters push along their direction, circular ones push away
// from their center.
func forceAt(u, v, s float32, dims int, records []field.Record) (fx, fy, fz float32) {
	for i := range records {
		r := &records[i]
		var w, dx, dy, dz float32
		if dims == 3 {
			w, dx, dy, dz = splat3D(u, v, s, r)
		} else {
			w, dx, dy = splat2D(u, v, r)
		}
		if w < 1e-4 {
			continue
		}
		w *= r.Force
		if r.Shape == components.ShapeCircular {
			l := float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
			if l > 1e-6 {
				fx += w * dx / l
				fy += w * dy / l
				fz += w * dz / l
			}
			continue
		}
		fx += w * r.Dir[0]
		fy += w * r.Dir[1]
		fz += w * r.Dir[2]
	}
	return fx, fy, fz
}

// colorAt accumulates dye from color emitters at (u, v, s).
func colorAt(u, v, s float32, dims int, records []field.Record) (c [4]float32) {
	for i := range records {
		r := &records[i]
		var w float32
		if dims == 3 {
			w, _, _, _ = splat3D(u, v, s, r)
		} else {
			w, _, _ = splat2D(u, v, r)
		}
		if w < 1e-4 {
			continue
		}
		w *= r.Intensity
		c[0] += w * r.Color[0]
		c[1] += w * r.Color[1]
		c[2] += w * r.Color[2]
		c[3] += w * r.Color[3]
	}
	return c
}
