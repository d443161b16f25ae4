package solver

import (
	"fmt"

	"github.com/pthm-cable/eddy/gpu"
)

// pingPong is a read/write texture pair. read is authoritative between
// dispatches; write is scratch a kernel fills before commit copies it back.
type pingPong struct {
	read, write *gpu.Texture
}

func newPingPong(dev gpu.Device, label string, w, h, d int) (pingPong, error) {
	read, err := dev.CreateTexture(gpu.FieldTexture(label+"/read", w, h, d))
	if err != nil {
		return pingPong{}, fmt.Errorf("creating %s: %w", label, err)
	}
	write, err := dev.CreateTexture(gpu.FieldTexture(label+"/write", w, h, d))
	if err != nil {
		dev.ReleaseTexture(read)
		return pingPong{}, fmt.Errorf("creating %s: %w", label, err)
	}
	return pingPong{read: read, write: write}, nil
}

// commit makes the last kernel output authoritative.
func (pp *pingPong) commit(dev gpu.Device) error {
	return dev.CopyTexture(pp.write, pp.read)
}

func (pp *pingPong) release(dev gpu.Device) {
	if pp.read != nil {
		dev.ReleaseTexture(pp.read)
	}
	if pp.write != nil {
		dev.ReleaseTexture(pp.write)
	}
	pp.read, pp.write = nil, nil
}
