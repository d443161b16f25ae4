package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation tick.
const (
	PhaseLifetime    = "lifetime"
	PhaseOrbit       = "orbit"
	PhaseProjection  = "projection"
	PhaseFieldsEarly = "fields_early"
	PhaseFieldsMid   = "fields_mid"
	PhaseFieldsLate  = "fields_late"
	PhaseSolvers     = "solvers"
	PhaseTelemetry   = "telemetry"
)

// Phases lists every tick phase in execution order.
var Phases = []string{
	PhaseLifetime, PhaseOrbit, PhaseProjection,
	PhaseFieldsEarly, PhaseFieldsMid, PhaseFieldsLate,
	PhaseSolvers, PhaseTelemetry,
}

// phaseIndex maps a phase name to its slot in a tick sample.
var phaseIndex = func() map[string]int {
	m := make(map[string]int, len(Phases))
	for i, name := range Phases {
		m[name] = i
	}
	return m
}()

// tickSample is one tick's wall time split across the known phases.
type tickSample struct {
	total  time.Duration
	phases []time.Duration
}

// PerfCollector times ticks phase by phase and keeps running sums over the
// last window of ticks. Phases not in Phases are ignored.
type PerfCollector struct {
	ring  []tickSample
	next  int
	count int
	sums  []time.Duration // per phase, over the ring

	cur        tickSample
	tickStart  time.Time
	phaseStart time.Time
	phase      int // slot of the running phase, -1 for none
}

// NewPerfCollector keeps the last window ticks; anything below one means 60.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	ring := make([]tickSample, window)
	for i := range ring {
		ring[i].phases = make([]time.Duration, len(Phases))
	}
	return &PerfCollector{
		ring:  ring,
		sums:  make([]time.Duration, len(Phases)),
		cur:   tickSample{phases: make([]time.Duration, len(Phases))},
		phase: -1,
	}
}

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	clear(p.cur.phases)
	p.phase = -1
}

// StartPhase closes the running phase and opens the named one.
func (p *PerfCollector) StartPhase(name string) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = -1
	if i, ok := phaseIndex[name]; ok {
		p.phase = i
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase >= 0 {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// EndTick closes the running phase and pushes the tick into the window,
// evicting the oldest one once the window is full.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.phase = -1
	p.cur.total = now.Sub(p.tickStart)

	slot := &p.ring[p.next]
	if p.count == len(p.ring) {
		for i, d := range slot.phases {
			p.sums[i] -= d
		}
	} else {
		p.count++
	}
	slot.total = p.cur.total
	copy(slot.phases, p.cur.phases)
	for i, d := range slot.phases {
		p.sums[i] += d
	}
	p.next = (p.next + 1) % len(p.ring)
}

// PerfStats summarizes the window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	TicksPerSecond  float64

	// Keyed by phase name; phases that never ran are absent
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64
}

// Stats summarizes the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.count == 0 {
		return st
	}

	var total time.Duration
	st.MinTickDuration = p.ring[0].total
	for _, s := range p.ring[:p.count] {
		total += s.total
		st.MinTickDuration = min(st.MinTickDuration, s.total)
		st.MaxTickDuration = max(st.MaxTickDuration, s.total)
	}
	n := time.Duration(p.count)
	st.AvgTickDuration = total / n
	if total > 0 {
		st.TicksPerSecond = float64(n) * float64(time.Second) / float64(total)
	}

	for i, sum := range p.sums {
		if sum == 0 {
			continue
		}
		st.PhaseAvg[Phases[i]] = sum / n
		if total > 0 {
			st.PhasePct[Phases[i]] = float64(sum) / float64(total) * 100
		}
	}
	return st
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd     int32   `csv:"window_end"`
	AvgTickUS     int64   `csv:"avg_tick_us"`
	MinTickUS     int64   `csv:"min_tick_us"`
	MaxTickUS     int64   `csv:"max_tick_us"`
	TicksPerSec   float64 `csv:"ticks_per_sec"`
	LifetimePct   float64 `csv:"lifetime_pct"`
	OrbitPct      float64 `csv:"orbit_pct"`
	ProjectionPct float64 `csv:"projection_pct"`
	EarlyPct      float64 `csv:"fields_early_pct"`
	MidPct        float64 `csv:"fields_mid_pct"`
	LatePct       float64 `csv:"fields_late_pct"`
	SolversPct    float64 `csv:"solvers_pct"`
	TelemetryPct  float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgTickUS:     s.AvgTickDuration.Microseconds(),
		MinTickUS:     s.MinTickDuration.Microseconds(),
		MaxTickUS:     s.MaxTickDuration.Microseconds(),
		TicksPerSec:   s.TicksPerSecond,
		LifetimePct:   s.PhasePct[PhaseLifetime],
		OrbitPct:      s.PhasePct[PhaseOrbit],
		ProjectionPct: s.PhasePct[PhaseProjection],
		EarlyPct:      s.PhasePct[PhaseFieldsEarly],
		MidPct:        s.PhasePct[PhaseFieldsMid],
		LatePct:       s.PhasePct[PhaseFieldsLate],
		SolversPct:    s.PhasePct[PhaseSolvers],
		TelemetryPct:  s.PhasePct[PhaseTelemetry],
	}
}
