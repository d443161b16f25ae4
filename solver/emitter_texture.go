package solver

import (
	"fmt"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
)

// KernelEmitterUpdate injects emitters into a single emitter texture.
const KernelEmitterUpdate = "EmitterUpdate"

const (
	paramFieldRead     = "_FieldRead"
	paramFieldWrite    = "_FieldWrite"
	paramVelocity      = "_VelocityTexture"
	paramVelocityScale = "_VelocityScale"
)

// TextureConfig describes an emitter texture.
type TextureConfig struct {
	ID            string
	Schema        field.Schema
	Width, Height int
	Depth         int // 3D only
	DT            float32
	Dissipation   float32
	VelocityScale float32
}

// TextureConfigFromField converts a field config entry. dt is the scene tick.
func TextureConfigFromField(fc config.FieldConfig, schema field.Schema, dt float32) TextureConfig {
	depth := 1
	if schema.Dims == 3 {
		depth = fc.Resolution.Depth
	}
	return TextureConfig{
		ID:            fc.ID,
		Schema:        schema,
		Width:         fc.Resolution.Width,
		Height:        fc.Resolution.Height,
		Depth:         depth,
		DT:            dt,
		Dissipation:   float32(fc.Dissipation),
		VelocityScale: float32(fc.VelocityScale),
	}
}

var _ field.Simulation = (*EmitterTexture)(nil)

// EmitterTexture is a field texture written directly by its emitters: force
// fields accumulate velocity, color fields accumulate dye. Each pass fades
// the field, optionally advects it through another field's velocity, and
// splats every bound emitter.
type EmitterTexture struct {
	dev    gpu.Device
	cfg    TextureConfig
	params *gpu.Params
	field  pingPong
	kernel *gpu.Kernel
	groups [3]int

	velocity    func() *gpu.Texture
	emitters    []field.Record
	initialized bool
	passes      int
}

// NewEmitterTexture validates cfg and returns an uninitialized texture.
func NewEmitterTexture(dev gpu.Device, cfg TextureConfig) (*EmitterTexture, error) {
	if cfg.Depth < 1 {
		cfg.Depth = 1
	}
	res := config.Resolution{Width: cfg.Width, Height: cfg.Height, Depth: cfg.Depth}
	if err := config.ValidateResolution(res, cfg.Schema.Dims); err != nil {
		return nil, fmt.Errorf("field %s: %w", cfg.ID, err)
	}
	if cfg.Dissipation <= 0 || cfg.Dissipation > 1 {
		return nil, fmt.Errorf("field %s: %w", cfg.ID, config.Configf("dissipation %v outside (0, 1]", cfg.Dissipation))
	}

	t := &EmitterTexture{
		dev:    dev,
		cfg:    cfg,
		params: gpu.NewParams(),
	}
	t.kernel = gpu.NewKernel2D(KernelEmitterUpdate, config.ThreadsPerGroup, t.updateKernel)
	t.groups = t.kernel.Groups(cfg.Width, cfg.Height, cfg.Depth)
	t.params.SetFloat(paramDeltaTime, cfg.DT)
	t.params.SetFloat(paramDissipation, cfg.Dissipation)
	t.params.SetFloat(paramVelocityScale, cfg.VelocityScale)
	return t, nil
}

// SetVelocitySource advects this field through the texture src returns.
// src is called every frame, so it may return nil or a new texture after
// its owner reinitializes.
func (t *EmitterTexture) SetVelocitySource(src func() *gpu.Texture) {
	t.velocity = src
}

// Params returns the parameter set the kernel reads.
func (t *EmitterTexture) Params() *gpu.Params { return t.params }

// Passes returns the number of kernel passes since the last reset.
func (t *EmitterTexture) Passes() int { return t.passes }

// Texture returns the authoritative field, or nil before initialization.
func (t *EmitterTexture) Texture() *gpu.Texture {
	if !t.initialized {
		return nil
	}
	return t.field.read
}

// Initialize allocates the field and clears it.
func (t *EmitterTexture) Initialize() error {
	if t.initialized {
		return nil
	}
	pp, err := newPingPong(t.dev, t.cfg.ID, t.cfg.Width, t.cfg.Height, t.cfg.Depth)
	if err != nil {
		return err
	}
	t.field = pp
	t.params.SetTexture(paramFieldRead, pp.read)
	t.params.SetTexture(paramFieldWrite, pp.write)
	t.initialized = true
	return t.Reset()
}

// Reset clears the field.
func (t *EmitterTexture) Reset() error {
	if err := t.dev.ClearTexture(t.field.read); err != nil {
		return err
	}
	t.passes = 0
	return nil
}

// Advance runs steps injection passes.
func (t *EmitterTexture) Advance(steps int, now float32) error {
	if !t.initialized {
		if err := t.Initialize(); err != nil {
			return err
		}
	}
	t.params.SetFloat(field.TimeParam, now)
	t.params.Unbind(paramVelocity)
	if t.velocity != nil {
		if v := t.velocity(); v != nil && !v.Released() {
			t.params.SetTexture(paramVelocity, v)
		}
	}
	t.emitters = decodeEmitters(t.params, t.cfg.Schema, t.emitters)

	for i := 0; i < steps; i++ {
		if err := t.dev.Dispatch(t.kernel, t.params, t.groups); err != nil {
			return fmt.Errorf("%s %s: %w", KernelEmitterUpdate, t.cfg.ID, err)
		}
		if err := t.field.commit(t.dev); err != nil {
			return err
		}
		t.passes++
	}
	return nil
}

// Release frees the field textures.
func (t *EmitterTexture) Release() {
	if !t.initialized {
		return
	}
	t.field.release(t.dev)
	t.params.Unbind(paramFieldRead)
	t.params.Unbind(paramFieldWrite)
	t.params.Unbind(paramVelocity)
	t.initialized = false
}

func (t *EmitterTexture) updateKernel(p *gpu.Params, x, y, z int) {
	read := p.Texture(paramFieldRead)
	write := p.Texture(paramFieldWrite)
	dt := p.Float(paramDeltaTime)
	w, h, d := read.Width(), read.Height(), read.Depth()

	u := (float32(x) + 0.5) / float32(w)
	v := (float32(y) + 0.5) / float32(h)
	s := (float32(z) + 0.5) / float32(d)

	c := read.At(x, y, z)
	if vel := p.Texture(paramVelocity); vel != nil {
		// Sample the velocity field at the same normalized position; it may
		// have a different resolution.
		fv := vel.Sample(u*float32(vel.Width()), v*float32(vel.Height()), s*float32(vel.Depth()))
		k := dt * p.Float(paramVelocityScale)
		c = read.Sample(float32(x)+0.5-k*fv[0], float32(y)+0.5-k*fv[1], float32(z)+0.5-k*fv[2])
	}

	fade := p.Float(paramDissipation)
	for i := range c {
		c[i] *= fade
	}

	dims := t.cfg.Schema.Dims
	if t.cfg.Schema.Role == field.RoleForce {
		fx, fy, fz := forceAt(u, v, s, dims, t.emitters)
		c[0] += dt * fx
		c[1] += dt * fy
		c[2] += dt * fz
		c[3] = 1
	} else {
		add := colorAt(u, v, s, dims, t.emitters)
		for i := 0; i < 3; i++ {
			c[i] += dt * add[i]
		}
		c[3] = max(c[3], min(add[3], 1))
	}
	write.Set(x, y, z, c)
}
