package gpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"gonum.org/v1/gonum/blas/blas32"
)

// Limits caps allocation sizes. Zero means unlimited.
type Limits struct {
	MaxBufferBytes  int
	MaxTextureBytes int
	MaxLiveBytes    int
}

// CPUOptions configures a CPUDevice.
type CPUOptions struct {
	Workers           int // 0 = GOMAXPROCS
	ParallelThreshold int // workgroups below this run on the calling goroutine
	Limits            Limits
}

// DeviceStats counts live resources and submitted work.
type DeviceStats struct {
	LiveBuffers  int
	LiveTextures int
	LiveBytes    int
	Uploads      int
	Copies       int
	Dispatches   int
}

// LogValue implements slog.LogValuer for structured logging.
func (s DeviceStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("live_buffers", s.LiveBuffers),
		slog.Int("live_textures", s.LiveTextures),
		slog.Int("live_bytes", s.LiveBytes),
		slog.Int("uploads", s.Uploads),
		slog.Int("copies", s.Copies),
		slog.Int("dispatches", s.Dispatches),
	)
}

// CPUDevice executes kernels on the host. Dispatches fan workgroups out to a
// persistent worker pool and return once every group has run, which gives
// the in-order queue semantics of a single GPU queue.
type CPUDevice struct {
	opts  CPUOptions
	pool  *workerPool
	stats DeviceStats
}

// NewCPUDevice creates a CPU compute device.
func NewCPUDevice(opts CPUOptions) *CPUDevice {
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = 16
	}
	d := &CPUDevice{
		opts: opts,
		pool: newWorkerPool(opts.Workers),
	}
	if d.pool.numWorkers > 1 {
		d.pool.start()
	}
	return d
}

// Stats returns resource and work counters.
func (d *CPUDevice) Stats() DeviceStats { return d.stats }

// CreateBuffer allocates a zeroed storage buffer.
func (d *CPUDevice) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if desc.Count <= 0 || desc.Stride <= 0 {
		return nil, fmt.Errorf("%w: buffer %q needs positive count and stride, got %d x %d",
			ErrAllocation, desc.Label, desc.Count, desc.Stride)
	}
	if desc.Usage&gputypes.BufferUsageStorage == 0 {
		return nil, fmt.Errorf("%w: buffer %q is not a storage buffer", ErrAllocation, desc.Label)
	}
	size := desc.Count * desc.Stride * 4
	if err := d.reserve(size, d.opts.Limits.MaxBufferBytes, desc.Label); err != nil {
		return nil, err
	}

	d.stats.LiveBuffers++
	return &Buffer{
		label:  desc.Label,
		usage:  desc.Usage,
		count:  desc.Count,
		stride: desc.Stride,
		data:   make([]float32, desc.Count*desc.Stride),
	}, nil
}

// WriteBuffer uploads data into the head of b.
func (d *CPUDevice) WriteBuffer(b *Buffer, data []float32) error {
	if b == nil || b.released {
		return fmt.Errorf("writing buffer: %w", ErrReleased)
	}
	if b.usage&gputypes.BufferUsageCopyDst == 0 {
		return fmt.Errorf("writing buffer %q: missing copy-dst usage", b.label)
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("writing buffer %q: %d floats exceed capacity %d", b.label, len(data), len(b.data))
	}
	if len(data) > 0 {
		blas32.Copy(
			blas32.Vector{N: len(data), Inc: 1, Data: data},
			blas32.Vector{N: len(data), Inc: 1, Data: b.data},
		)
	}
	d.stats.Uploads++
	return nil
}

// ReleaseBuffer frees b. Releasing twice is a no-op.
func (d *CPUDevice) ReleaseBuffer(b *Buffer) {
	if b == nil || b.released {
		return
	}
	d.stats.LiveBuffers--
	d.stats.LiveBytes -= b.Bytes()
	b.released = true
	b.data = nil
}

// CreateTexture allocates a zeroed RGBA32Float texture.
func (d *CPUDevice) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	if desc.Format != gputypes.TextureFormatRGBA32Float {
		return nil, fmt.Errorf("%w: texture %q: only RGBA32Float is supported", ErrAllocation, desc.Label)
	}
	w := int(desc.Size.Width)
	h := int(desc.Size.Height)
	depth := int(desc.Size.DepthOrArrayLayers)
	if depth == 0 {
		depth = 1
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: texture %q has empty size %dx%d", ErrAllocation, desc.Label, w, h)
	}
	size := w * h * depth * Channels * 4
	if err := d.reserve(size, d.opts.Limits.MaxTextureBytes, desc.Label); err != nil {
		return nil, err
	}

	d.stats.LiveTextures++
	return &Texture{
		label:  desc.Label,
		w:      w,
		h:      h,
		d:      depth,
		format: desc.Format,
		usage:  desc.Usage,
		texels: make([]float32, w*h*depth*Channels),
	}, nil
}

// ReleaseTexture frees t. Releasing twice is a no-op.
func (d *CPUDevice) ReleaseTexture(t *Texture) {
	if t == nil || t.released {
		return
	}
	d.stats.LiveTextures--
	d.stats.LiveBytes -= t.Bytes()
	t.released = true
	t.texels = nil
}

// CopyTexture copies src into dst.
func (d *CPUDevice) CopyTexture(src, dst *Texture) error {
	if src == nil || dst == nil || src.released || dst.released {
		return fmt.Errorf("copying texture: %w", ErrReleased)
	}
	if err := sameShape(src, dst); err != nil {
		return err
	}
	if src.usage&gputypes.TextureUsageCopySrc == 0 || dst.usage&gputypes.TextureUsageCopyDst == 0 {
		return fmt.Errorf("copying %q to %q: missing copy usage", src.label, dst.label)
	}
	blas32.Copy(
		blas32.Vector{N: len(src.texels), Inc: 1, Data: src.texels},
		blas32.Vector{N: len(dst.texels), Inc: 1, Data: dst.texels},
	)
	d.stats.Copies++
	return nil
}

// ClearTexture zeroes t.
func (d *CPUDevice) ClearTexture(t *Texture) error {
	if t == nil || t.released {
		return fmt.Errorf("clearing texture: %w", ErrReleased)
	}
	clear(t.texels)
	return nil
}

// Dispatch runs k over the given workgroup counts and returns when done.
func (d *CPUDevice) Dispatch(k *Kernel, p *Params, groups [3]int) error {
	if k == nil || k.Fn == nil {
		return fmt.Errorf("dispatch: nil kernel")
	}
	for i, n := range groups {
		if n < 0 || k.Workgroup[i] <= 0 {
			return fmt.Errorf("dispatch %s: invalid groups %v for workgroup %v", k.Name, groups, k.Workgroup)
		}
	}
	total := groups[0] * groups[1] * groups[2]
	d.stats.Dispatches++
	if total == 0 {
		return nil
	}

	job := &dispatchJob{kernel: k, params: p, groups: groups}
	if !d.pool.running || total < d.opts.ParallelThreshold {
		for g := 0; g < total; g++ {
			runGroup(job, g)
		}
		return nil
	}
	d.pool.run(job, total)
	return nil
}

// Close stops the worker pool. Resources stay readable.
func (d *CPUDevice) Close() {
	d.pool.stop()
}

// reserve checks an allocation of size bytes against the limits and books it.
func (d *CPUDevice) reserve(size, perResource int, label string) error {
	if perResource > 0 && size > perResource {
		return fmt.Errorf("%w: %q needs %d bytes, limit %d", ErrAllocation, label, size, perResource)
	}
	if max := d.opts.Limits.MaxLiveBytes; max > 0 && d.stats.LiveBytes+size > max {
		return fmt.Errorf("%w: %q needs %d bytes, %d of %d live", ErrAllocation, label, size, d.stats.LiveBytes, max)
	}
	d.stats.LiveBytes += size
	return nil
}
