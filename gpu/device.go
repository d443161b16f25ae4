package gpu

// Device creates resources and executes work in submission order.
//
// Implementations are used from a single tick thread; they may parallelize
// inside one dispatch but every call returns only once its work is visible
// to the next call.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (*Buffer, error)
	// WriteBuffer overwrites the buffer's leading len(data) floats.
	WriteBuffer(b *Buffer, data []float32) error
	ReleaseBuffer(b *Buffer)

	CreateTexture(desc TextureDescriptor) (*Texture, error)
	ReleaseTexture(t *Texture)
	// CopyTexture copies src into dst. Both must share a shape and format.
	CopyTexture(src, dst *Texture) error
	// ClearTexture zeroes every texel.
	ClearTexture(t *Texture) error

	// Dispatch runs k over groups[0] x groups[1] x groups[2] workgroups.
	Dispatch(k *Kernel, p *Params, groups [3]int) error

	Close()
}

// KernelFunc is one kernel invocation at global thread id (x, y, z).
// Invocations may run concurrently and must only write their own texel.
type KernelFunc func(p *Params, x, y, z int)

// Kernel is a compute entry point with a fixed workgroup size.
type Kernel struct {
	Name      string
	Workgroup [3]int
	Fn        KernelFunc
}

// NewKernel2D returns a kernel with an n x n x 1 workgroup.
func NewKernel2D(name string, n int, fn KernelFunc) *Kernel {
	return &Kernel{Name: name, Workgroup: [3]int{n, n, 1}, Fn: fn}
}

// Groups returns the workgroup count covering a w x h x d grid. The grid must
// be divisible by the workgroup size on each axis; callers validate that at
// initialization.
func (k *Kernel) Groups(w, h, d int) [3]int {
	return [3]int{w / k.Workgroup[0], h / k.Workgroup[1], d / k.Workgroup[2]}
}

// Params is a named shader-parameter set bound to kernels, the equivalent of
// a material's property block. Missing names read as zero values.
type Params struct {
	floats   map[string]float32
	ints     map[string]int
	buffers  map[string]*Buffer
	textures map[string]*Texture
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{
		floats:   make(map[string]float32),
		ints:     make(map[string]int),
		buffers:  make(map[string]*Buffer),
		textures: make(map[string]*Texture),
	}
}

func (p *Params) SetFloat(name string, v float32)    { p.floats[name] = v }
func (p *Params) SetInt(name string, v int)          { p.ints[name] = v }
func (p *Params) SetBuffer(name string, b *Buffer)   { p.buffers[name] = b }
func (p *Params) SetTexture(name string, t *Texture) { p.textures[name] = t }
func (p *Params) Float(name string) float32          { return p.floats[name] }
func (p *Params) Int(name string) int                { return p.ints[name] }
func (p *Params) Buffer(name string) *Buffer         { return p.buffers[name] }
func (p *Params) Texture(name string) *Texture       { return p.textures[name] }

// Unbind removes a buffer or texture binding.
func (p *Params) Unbind(name string) {
	delete(p.buffers, name)
	delete(p.textures, name)
}
