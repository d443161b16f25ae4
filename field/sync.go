package field

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/pthm-cable/eddy/gpu"
)

// Packer writes one member's record into dst, which is exactly one stride long.
type Packer[T any] func(dst []float32, member T)

// EmitterBufferUsage is the usage of packed emitter buffers.
const EmitterBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst

// Synchronizer mirrors a registry into a packed device buffer.
//
// Every Sync rewrites and uploads the whole array. The array and buffer are
// reallocated only when the record capacity, max(members, 1), changes. The
// buffer and count are bound only after a successful upload, so a failed
// sync leaves the previous binding in place.
type Synchronizer[T any] struct {
	dev    gpu.Device
	label  string
	stride int
	pack   Packer[T]

	packed []float32
	buf    *gpu.Buffer
	live   int

	syncs         int
	reallocations int
}

// NewSynchronizer creates a synchronizer for records of stride floats.
func NewSynchronizer[T any](dev gpu.Device, label string, stride int, pack Packer[T]) *Synchronizer[T] {
	return &Synchronizer[T]{dev: dev, label: label, stride: stride, pack: pack}
}

// Sync packs members, uploads them and binds the buffer and live count on p.
func (s *Synchronizer[T]) Sync(members []T, p *gpu.Params) error {
	n := len(members)
	capacity := max(n, 1)

	packed, buf := s.packed, s.buf
	realloc := buf == nil || buf.Count() != capacity
	if realloc {
		nb, err := s.dev.CreateBuffer(gpu.BufferDescriptor{
			Label:  s.label,
			Usage:  EmitterBufferUsage,
			Count:  capacity,
			Stride: s.stride,
		})
		if err != nil {
			return fmt.Errorf("reallocating %s for %d records: %w", s.label, n, err)
		}
		buf = nb
		packed = make([]float32, capacity*s.stride)
	}

	for i, m := range members {
		s.pack(packed[i*s.stride:(i+1)*s.stride], m)
	}
	if n == 0 {
		clear(packed)
	}

	if err := s.dev.WriteBuffer(buf, packed); err != nil {
		if realloc {
			s.dev.ReleaseBuffer(buf)
		}
		return fmt.Errorf("uploading %s: %w", s.label, err)
	}

	if realloc {
		if s.buf != nil {
			s.dev.ReleaseBuffer(s.buf)
		}
		s.buf, s.packed = buf, packed
		s.reallocations++
	}
	s.live = n
	s.syncs++

	p.SetBuffer(BufferParam, s.buf)
	p.SetInt(CountParam, n)
	return nil
}

// Release frees the device buffer, drops the packed array and unbinds p.
func (s *Synchronizer[T]) Release(p *gpu.Params) {
	if s.buf != nil {
		s.dev.ReleaseBuffer(s.buf)
	}
	s.buf = nil
	s.packed = nil
	s.live = 0
	if p != nil {
		p.Unbind(BufferParam)
		p.SetInt(CountParam, 0)
	}
}

// Buffer returns the bound device buffer, or nil before the first sync.
func (s *Synchronizer[T]) Buffer() *gpu.Buffer { return s.buf }

// Packed returns the host-side packed array.
func (s *Synchronizer[T]) Packed() []float32 { return s.packed }

// Records returns the packed array length in records.
func (s *Synchronizer[T]) Records() int { return len(s.packed) / s.stride }

// Live returns the record count bound by the last successful sync.
func (s *Synchronizer[T]) Live() int { return s.live }

// Syncs returns the number of successful syncs.
func (s *Synchronizer[T]) Syncs() int { return s.syncs }

// Reallocations returns the number of buffer reallocations.
func (s *Synchronizer[T]) Reallocations() int { return s.reallocations }
