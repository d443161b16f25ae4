package field

import (
	"log/slog"
	"slices"

	"github.com/mlange-42/ark/ecs"
)

// Directory resolves controller keys to live controllers. Emitters join
// fields through it instead of scanning the scene.
type Directory struct {
	controllers []*Controller
	misses      int
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// Register makes c discoverable. Registering twice is a no-op.
func (d *Directory) Register(c *Controller) {
	if slices.Contains(d.controllers, c) {
		return
	}
	d.controllers = append(d.controllers, c)
}

// Unregister removes c.
func (d *Directory) Unregister(c *Controller) {
	if i := slices.Index(d.controllers, c); i >= 0 {
		d.controllers = slices.Delete(d.controllers, i, i+1)
	}
}

// Lookup returns the first registered controller with the given id.
func (d *Directory) Lookup(id string) (*Controller, bool) {
	for _, c := range d.controllers {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Controllers returns the registered controllers in registration order.
func (d *Directory) Controllers() []*Controller { return d.controllers }

// Misses returns how many AddEmitter calls matched no controller.
func (d *Directory) Misses() int { return d.misses }

// AddEmitter adds e to the controller registered under key. An empty key or
// a key with no live controller leaves e unbound and returns (nil, nil);
// this is not an error.
func (d *Directory) AddEmitter(e ecs.Entity, key string) (*Controller, error) {
	if key == "" {
		return nil, nil
	}
	c, ok := d.Lookup(key)
	if !ok {
		d.misses++
		slog.Debug("lookup_miss", "key", key, "entity", e.ID())
		return nil, nil
	}
	if err := c.AddEmitter(e); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveEmitter removes e from the controller registered under key.
// Idempotent; returns whether anything was removed.
func (d *Directory) RemoveEmitter(e ecs.Entity, key string) bool {
	c, ok := d.Lookup(key)
	if !ok {
		return false
	}
	return c.RemoveEmitter(e)
}
