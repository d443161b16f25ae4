// Package gpu is the compute device abstraction the field controllers and
// solvers submit work to.
//
// Resources are opaque handles owned by the device that created them.
// Buffers hold fixed-stride float32 records; textures hold RGBA float32
// texels. Work is submitted as kernel dispatches over fixed-size workgroups
// and executes in submission order: a dispatch or copy observes every
// write made by the operations submitted before it.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrAllocation reports a failed buffer or texture creation. It is fatal for
// the owning controller; callers must not retry without releasing first.
var ErrAllocation = errors.New("resource allocation failed")

// ErrReleased reports use of a resource after Release.
var ErrReleased = errors.New("resource released")

// Channels is the number of float32 components per texel.
const Channels = 4

// BufferDescriptor describes a storage buffer of Count records of Stride floats.
type BufferDescriptor struct {
	Label  string
	Usage  gputypes.BufferUsage
	Count  int
	Stride int
}

// Buffer is a device-resident array of fixed-stride float32 records.
type Buffer struct {
	label    string
	usage    gputypes.BufferUsage
	count    int
	stride   int
	data     []float32
	released bool
}

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Count returns the allocated record capacity.
func (b *Buffer) Count() int { return b.count }

// Stride returns the record size in float32s.
func (b *Buffer) Stride() int { return b.stride }

// Released reports whether the buffer has been released.
func (b *Buffer) Released() bool { return b.released }

// Record returns record i as a read-only view for kernels.
func (b *Buffer) Record(i int) []float32 {
	off := i * b.stride
	return b.data[off : off+b.stride : off+b.stride]
}

// Data returns the full device contents. Kernels and tests read it; only the
// device writes it.
func (b *Buffer) Data() []float32 { return b.data }

// Bytes returns the allocation size in bytes.
func (b *Buffer) Bytes() int { return len(b.data) * 4 }

// TextureDescriptor describes a 2D or 3D texture.
type TextureDescriptor struct {
	Label  string
	Size   gputypes.Extent3D
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// FieldTextureUsage is the usage set of ping-pong field textures: storage
// writes from kernels, copies both ways, and sampling by the renderer.
const FieldTextureUsage = gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

// FieldTexture returns the descriptor used for simulation fields.
func FieldTexture(label string, width, height, depth int) TextureDescriptor {
	if depth < 1 {
		depth = 1
	}
	return TextureDescriptor{
		Label: label,
		Size: gputypes.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: uint32(depth),
		},
		Format: gputypes.TextureFormatRGBA32Float,
		Usage:  FieldTextureUsage,
	}
}

// Texture is a device-resident grid of RGBA float32 texels.
type Texture struct {
	label    string
	w, h, d  int
	format   gputypes.TextureFormat
	usage    gputypes.TextureUsage
	texels   []float32
	released bool
}

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the texel width.
func (t *Texture) Width() int { return t.w }

// Height returns the texel height.
func (t *Texture) Height() int { return t.h }

// Depth returns the texel depth (1 for 2D textures).
func (t *Texture) Depth() int { return t.d }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Released reports whether the texture has been released.
func (t *Texture) Released() bool { return t.released }

// Texels returns the raw RGBA data, x-major then y then z.
func (t *Texture) Texels() []float32 { return t.texels }

// Bytes returns the allocation size in bytes.
func (t *Texture) Bytes() int { return len(t.texels) * 4 }

// Index returns the offset of texel (x, y, z) in Texels.
func (t *Texture) Index(x, y, z int) int {
	return ((z*t.h+y)*t.w + x) * Channels
}

// At returns texel (x, y, z) with coordinates clamped to the edges.
func (t *Texture) At(x, y, z int) [4]float32 {
	x = clampInt(x, 0, t.w-1)
	y = clampInt(y, 0, t.h-1)
	z = clampInt(z, 0, t.d-1)
	i := t.Index(x, y, z)
	return [4]float32{t.texels[i], t.texels[i+1], t.texels[i+2], t.texels[i+3]}
}

// Set writes texel (x, y, z). Coordinates must be in range.
func (t *Texture) Set(x, y, z int, v [4]float32) {
	i := t.Index(x, y, z)
	t.texels[i] = v[0]
	t.texels[i+1] = v[1]
	t.texels[i+2] = v[2]
	t.texels[i+3] = v[3]
}

// Sample returns the linearly filtered value at continuous texel
// coordinates, where texel centers sit at integer + 0.5. Edges clamp.
func (t *Texture) Sample(x, y, z float32) [4]float32 {
	x -= 0.5
	y -= 0.5
	x0, fx := splitCoord(x)
	y0, fy := splitCoord(y)

	if t.d == 1 {
		return bilerp(t, x0, y0, 0, fx, fy)
	}

	z -= 0.5
	z0, fz := splitCoord(z)
	a := bilerp(t, x0, y0, z0, fx, fy)
	b := bilerp(t, x0, y0, z0+1, fx, fy)
	return lerp4(a, b, fz)
}

func bilerp(t *Texture, x0, y0, z int, fx, fy float32) [4]float32 {
	a := lerp4(t.At(x0, y0, z), t.At(x0+1, y0, z), fx)
	b := lerp4(t.At(x0, y0+1, z), t.At(x0+1, y0+1, z), fx)
	return lerp4(a, b, fy)
}

func lerp4(a, b [4]float32, f float32) [4]float32 {
	return [4]float32{
		a[0] + (b[0]-a[0])*f,
		a[1] + (b[1]-a[1])*f,
		a[2] + (b[2]-a[2])*f,
		a[3] + (b[3]-a[3])*f,
	}
}

func splitCoord(c float32) (int, float32) {
	i := int(c)
	if float32(i) > c {
		i--
	}
	return i, c - float32(i)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sameShape reports whether two textures can be copied into each other.
func sameShape(a, b *Texture) error {
	if a.w != b.w || a.h != b.h || a.d != b.d || a.format != b.format {
		return fmt.Errorf("texture shape mismatch: %q %dx%dx%d vs %q %dx%dx%d",
			a.label, a.w, a.h, a.d, b.label, b.w, b.h, b.d)
	}
	return nil
}
