package engine

import (
	"time"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/tech"
)

// Sample is one day of the aggregate time series.
type Sample struct {
	Date        time.Time `json:"date"`
	Population  int       `json:"population"`
	Births      int       `json:"births"`
	Deaths      int       `json:"deaths"`
	TotalWealth float64   `json:"total_wealth"`
}

// Point is a (time, value) pair consumed by charting collaborators.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Metric selects a column of the history.
type Metric uint8

const (
	MetricPopulation Metric = iota
	MetricBirths
	MetricDeaths
	MetricWealth
)

func (m Metric) String() string {
	switch m {
	case MetricPopulation:
		return "Population"
	case MetricBirths:
		return "Births"
	case MetricDeaths:
		return "Deaths"
	default:
		return "Total Wealth"
	}
}

// Value extracts the metric from a sample.
func (m Metric) Value(s Sample) float64 {
	switch m {
	case MetricPopulation:
		return float64(s.Population)
	case MetricBirths:
		return float64(s.Births)
	case MetricDeaths:
		return float64(s.Deaths)
	default:
		return s.TotalWealth
	}
}

// SeriesOf converts samples into an ordered series for one metric.
func SeriesOf(samples []Sample, m Metric) []Point {
	out := make([]Point, 0, len(samples))
	for _, s := range samples {
		out = append(out, Point{Time: s.Date, Value: m.Value(s)})
	}
	return out
}

// Series returns the recorded history of one metric.
func (s *Simulation) Series(m Metric) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SeriesOf(s.History, m)
}

// Snapshot is a read-only copy of the world-level state.
type Snapshot struct {
	RunID        string            `json:"run_id"`
	Day          uint64            `json:"day"`
	StartTime    time.Time         `json:"start_time"`
	CurrentTime  time.Time         `json:"current_time"`
	Stats        SimStats          `json:"stats"`
	Technologies []tech.Technology `json:"technologies"`
}

// Snapshot copies the aggregate state under the read lock.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	techs := make([]tech.Technology, len(s.Technologies))
	for i, t := range s.Technologies {
		techs[i] = *t
	}
	stats := s.Stats
	stats.EconomicEvents = append([]string(nil), s.Stats.EconomicEvents...)

	return Snapshot{
		RunID:        s.RunID.String(),
		Day:          s.Day,
		StartTime:    s.StartTime,
		CurrentTime:  s.CurrentTime,
		Stats:        stats,
		Technologies: techs,
	}
}

// Agent returns a copy of the live agent with the given ID.
func (s *Simulation) Agent(id agents.AgentID) (agents.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return agents.Agent{}, false
	}
	return copyAgent(a), true
}

// AgentList returns copies of all live agents ordered by ID.
func (s *Simulation) AgentList() []agents.Agent {
	_, out := s.AgentListDay()
	return out
}

// AgentListDay is AgentList plus the day the list was taken on, read under one lock.
func (s *Simulation) AgentListDay() (uint64, []agents.Agent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := s.sortedAgents()
	out := make([]agents.Agent, len(sorted))
	for i, a := range sorted {
		out[i] = copyAgent(a)
	}
	return s.Day, out
}

// RecentEvents returns up to limit of the most recent notable events.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit >= 0 && len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	return append([]Event(nil), s.Events[start:]...)
}

// HistoryCopy returns the full daily series.
func (s *Simulation) HistoryCopy() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sample(nil), s.History...)
}

func copyAgent(a *agents.Agent) agents.Agent {
	c := *a
	c.Family = append([]agents.Relation(nil), a.Family...)
	return c
}
