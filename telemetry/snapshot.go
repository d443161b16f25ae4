package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the field state of a scene at one tick.
type Snapshot struct {
	Version int   `json:"version"`
	Tick    int32 `json:"tick"`

	Fields  []FieldSnapshot   `json:"fields"`
	Solvers []TextureSnapshot `json:"solvers,omitempty"`
}

// FieldSnapshot is one controller's membership, packed records and texture.
type FieldSnapshot struct {
	ID       string           `json:"id"`
	State    string           `json:"state"`
	Schema   string           `json:"schema"`
	Capacity int              `json:"capacity"`
	Members  []MemberSnapshot `json:"members"`
	Texture  *TextureSnapshot `json:"texture,omitempty"`
}

// MemberSnapshot is one emitter's packed record as the kernels last saw it.
type MemberSnapshot struct {
	Entity uint32       `json:"entity"`
	Record field.Record `json:"record"`
}

// TextureSnapshot is a copy of a texture's texels.
type TextureSnapshot struct {
	Label  string    `json:"label"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Depth  int       `json:"depth"`
	Texels []float32 `json:"texels"`
}

// SnapshotTexture copies t, or returns nil for a nil or released texture.
func SnapshotTexture(t *gpu.Texture) *TextureSnapshot {
	if t == nil || t.Released() {
		return nil
	}
	return &TextureSnapshot{
		Label:  t.Label(),
		Width:  t.Width(),
		Height: t.Height(),
		Depth:  t.Depth(),
		Texels: append([]float32(nil), t.Texels()...),
	}
}

// SnapshotField captures c. Records are only present while the controller
// holds a packed array.
func SnapshotField(c *field.Controller) FieldSnapshot {
	stats := c.Stats()
	fs := FieldSnapshot{
		ID:       c.ID(),
		State:    stats.State.String(),
		Schema:   c.Schema().Name,
		Capacity: stats.Capacity,
		Texture:  SnapshotTexture(c.Texture()),
	}

	schema := c.Schema()
	packed := c.Synchronizer().Packed()
	for i, e := range c.Members() {
		m := MemberSnapshot{Entity: e.ID()}
		if end := (i + 1) * schema.Stride; end <= len(packed) {
			m.Record = schema.Unpack(packed[i*schema.Stride : end])
		}
		fs.Members = append(fs.Members, m)
	}
	return fs
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
