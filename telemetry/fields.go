package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/eddy/field"
)

// FieldStatsCSV is one field's activity over a stats window.
type FieldStatsCSV struct {
	WindowEnd     int32  `csv:"window_end"`
	Field         string `csv:"field"`
	State         string `csv:"state"`
	Members       int    `csv:"members"`
	PeakMembers   int    `csv:"peak_members"`
	Capacity      int    `csv:"capacity"`
	Ticks         int    `csv:"ticks"`
	Syncs         int    `csv:"syncs"`
	Reallocations int    `csv:"reallocations"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s FieldStatsCSV) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", s.State),
		slog.Int("members", s.Members),
		slog.Int("peak_members", s.PeakMembers),
		slog.Int("capacity", s.Capacity),
		slog.Int("ticks", s.Ticks),
		slog.Int("syncs", s.Syncs),
		slog.Int("reallocations", s.Reallocations),
	)
}

// FieldWindow turns cumulative controller counters into per-window deltas.
type FieldWindow struct {
	last map[string]field.Stats
	peak map[string]int
}

// NewFieldWindow creates an empty window.
func NewFieldWindow() *FieldWindow {
	return &FieldWindow{
		last: make(map[string]field.Stats),
		peak: make(map[string]int),
	}
}

// Observe records a per-tick snapshot for peak tracking.
func (w *FieldWindow) Observe(s field.Stats) {
	if s.Members > w.peak[s.ID] {
		w.peak[s.ID] = s.Members
	}
}

// Flush returns one record per snapshot and starts a new window.
func (w *FieldWindow) Flush(windowEnd int32, snapshots []field.Stats) []FieldStatsCSV {
	records := make([]FieldStatsCSV, 0, len(snapshots))
	for _, s := range snapshots {
		prev := w.last[s.ID]
		records = append(records, FieldStatsCSV{
			WindowEnd:     windowEnd,
			Field:         s.ID,
			State:         s.State.String(),
			Members:       s.Members,
			PeakMembers:   max(w.peak[s.ID], s.Members),
			Capacity:      s.Capacity,
			Ticks:         s.Ticks - prev.Ticks,
			Syncs:         s.Syncs - prev.Syncs,
			Reallocations: s.Reallocations - prev.Reallocations,
		})
		w.last[s.ID] = s
		w.peak[s.ID] = s.Members
	}
	return records
}
