// Simulation ties together the population, locality tree, and technologies and
// advances them one day at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/tech"
	"github.com/talgya/veramatrix/internal/world"
)

// maxEvents bounds the in-memory notable-event log.
const maxEvents = 1000

// Rates holds the world-level daily probabilities.
type Rates struct {
	Growth    float64 `mapstructure:"growth"`    // Chance of one new arrival per day
	Discovery float64 `mapstructure:"discovery"` // Chance per undiscovered technology per day
}

// DefaultRates returns the reference world probabilities.
func DefaultRates() Rates {
	return Rates{Growth: 0.01, Discovery: 0.0001}
}

// Options configures a new Simulation.
type Options struct {
	Places       *world.Hierarchy
	Agents       []*agents.Agent // Initial population; takes precedence over Population
	Population   int             // Number of agents to spawn when Agents is nil
	Technologies []*tech.Technology
	Start        time.Time
	Dice         entropy.Dice
	Rules        agents.Rules
	Rates        Rates
	Recorder     Recorder
}

// Simulation holds the complete world state. It is created once, advanced N times,
// then queried; it is never reset.
type Simulation struct {
	mu sync.RWMutex

	RunID uuid.UUID

	Agents       []*agents.Agent // Live agents only
	AgentIndex   map[agents.AgentID]*agents.Agent
	Places       *world.Hierarchy
	Technologies []*tech.Technology

	StartTime   time.Time
	CurrentTime time.Time
	Day         uint64 // Days advanced so far

	Events  []Event  // Recent notable events, bounded by maxEvents
	History []Sample // One sample per day

	Spawner  *agents.Spawner
	Dice     entropy.Dice
	Rules    agents.Rules
	Rates    Rates
	Recorder Recorder

	Stats SimStats
}

// Event is a notable occurrence in the world.
type Event struct {
	Day         uint64    `json:"day"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"` // "death", "birth", "technology", "awareness"
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Population     int      `json:"population"`
	TotalWealth    float64  `json:"total_wealth"`
	AverageWealth  float64  `json:"average_wealth"`
	Births         int      `json:"births"` // This day
	Deaths         int      `json:"deaths"` // This day
	TotalBirths    int      `json:"total_births"`
	TotalDeaths    int      `json:"total_deaths"`
	Discovered     int      `json:"discovered"`
	EconomicEvents []string `json:"economic_events"` // Most recent day only; reset when the next day starts
}

// NewSimulation validates the initial population against the locality tree and
// builds the world.
func NewSimulation(opts Options) (*Simulation, error) {
	if opts.Places == nil {
		opts.Places = world.DefaultHierarchy()
	}
	if opts.Dice == nil {
		opts.Dice = entropy.NewSeeded(0)
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Truncate(24 * time.Hour)
	}

	spawner := agents.NewSpawner(opts.Dice)
	initial := opts.Agents
	if initial == nil && opts.Population > 0 {
		initial = spawner.SpawnPopulation(opts.Population, opts.Places, opts.Start)
	}

	s := &Simulation{
		RunID:        uuid.New(),
		Agents:       make([]*agents.Agent, 0, len(initial)),
		AgentIndex:   make(map[agents.AgentID]*agents.Agent, len(initial)),
		Places:       opts.Places,
		Technologies: opts.Technologies,
		StartTime:    opts.Start,
		CurrentTime:  opts.Start,
		Spawner:      spawner,
		Dice:         opts.Dice,
		Rules:        opts.Rules,
		Rates:        opts.Rates,
		Recorder:     opts.Recorder,
	}

	var maxID agents.AgentID
	for _, a := range initial {
		if err := s.Places.Resolve(a.Location); err != nil {
			return nil, fmt.Errorf("agent %d (%s): %w", a.ID, a.Name, err)
		}
		if _, dup := s.AgentIndex[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %d", a.ID)
		}
		if !a.Alive {
			continue
		}
		s.addAgent(a)
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	if maxID >= spawner.NextID() {
		spawner.SetNextID(maxID + 1)
	}

	for _, t := range s.Technologies {
		if t.Discovered() {
			s.Stats.Discovered++
		}
	}
	s.Stats.AverageWealth = s.averageWealth()

	return s, nil
}

// AdvanceDay runs one tick: every live agent lives a day, the dead are removed,
// arrivals and discoveries are rolled, and the day's aggregates are recorded.
func (s *Simulation) AdvanceDay(ctx context.Context) {
	s.mu.Lock()
	rec := s.advance()
	s.mu.Unlock()

	if err := s.Recorder.RecordDay(ctx, rec); err != nil {
		slog.Error("daily save failed", "day", rec.Day, "error", err)
	}
}

func (s *Simulation) advance() *DayRecord {
	s.Day++
	s.CurrentTime = s.CurrentTime.AddDate(0, 0, 1)
	s.Stats.Births = 0
	s.Stats.Deaths = 0
	s.Stats.EconomicEvents = nil

	rec := &DayRecord{
		RunID:  s.RunID,
		Day:    s.Day,
		Date:   s.CurrentTime,
		Agents: make([]AgentDay, 0, len(s.Agents)),
	}
	env := agents.Env{
		Today:  s.CurrentTime,
		Dice:   s.Dice,
		Rules:  s.Rules,
		Places: s.Places,
	}

	died := 0
	for _, a := range s.Agents {
		before := a.Money
		log := a.LiveDay(env)
		s.Stats.TotalWealth += a.Money - before

		for _, e := range log.Events {
			if e.Economic {
				s.Stats.EconomicEvents = append(s.Stats.EconomicEvents, a.Name+": "+e.Consequence)
			}
			if e.Event == "Became self-aware" {
				s.recordEvent(a.Name+" became self-aware", "awareness")
			}
		}
		if log.Died {
			died++
		}
		if !log.Empty() {
			rec.Agents = append(rec.Agents, AgentDay{ID: a.ID, Name: a.Name, Log: log})
		}
	}
	if died > 0 {
		s.removeDead()
	}

	s.processGrowth(rec)
	s.processDiscovery()

	s.Stats.AverageWealth = s.averageWealth()
	s.History = append(s.History, Sample{
		Date:        s.CurrentTime,
		Population:  s.Stats.Population,
		Births:      s.Stats.Births,
		Deaths:      s.Stats.Deaths,
		TotalWealth: s.Stats.TotalWealth,
	})

	rec.Population = s.Stats.Population
	rec.Births = s.Stats.Births
	rec.Deaths = s.Stats.Deaths
	rec.TotalWealth = s.Stats.TotalWealth
	rec.AverageWealth = s.Stats.AverageWealth
	rec.EconomicEvents = slices.Clone(s.Stats.EconomicEvents)

	slog.Debug("daily report",
		"day", s.Day,
		"date", s.CurrentTime.Format(time.DateOnly),
		"alive", s.Stats.Population,
		"births", s.Stats.Births,
		"deaths", s.Stats.Deaths,
		"total_wealth", humanize.Commaf(roundCents(s.Stats.TotalWealth)),
		"avg_wealth", fmt.Sprintf("%.2f", s.Stats.AverageWealth),
		"economic_events", len(s.Stats.EconomicEvents),
	)

	return rec
}

// Run advances exactly days ticks. Extinction does not stop the loop; only ctx does.
func (s *Simulation) Run(ctx context.Context, days int) error {
	eng := NewEngine()
	eng.OnDay = func(ctx context.Context, _ uint64) { s.AdvanceDay(ctx) }
	return eng.Run(ctx, days)
}

func (s *Simulation) recordEvent(desc, category string) {
	s.Events = append(s.Events, Event{
		Day:         s.Day,
		Date:        s.CurrentTime,
		Description: desc,
		Category:    category,
	})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

func (s *Simulation) averageWealth() float64 {
	if s.Stats.Population == 0 {
		return 0
	}
	return s.Stats.TotalWealth / float64(s.Stats.Population)
}

// Reconcile recomputes population and wealth from the live agents.
func (s *Simulation) Reconcile() (population int, wealth float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.Agents {
		if a.Alive {
			population++
			wealth += a.Money
		}
	}
	return population, wealth
}

// Summary renders the end-of-run status report.
func (s *Simulation) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Simulation Date: %s (Start Date: %s)\n",
		s.CurrentTime.Format(time.DateOnly), s.StartTime.Format(time.DateOnly))
	fmt.Fprintf(&b, "Total Population: %d (births %d, deaths %d)\n",
		s.Stats.Population, s.Stats.TotalBirths, s.Stats.TotalDeaths)
	fmt.Fprintf(&b, "Total Wealth: %s (average %.2f)\n",
		humanize.Commaf(roundCents(s.Stats.TotalWealth)), s.Stats.AverageWealth)
	for _, r := range s.Places.Regions() {
		fmt.Fprintf(&b, "Region: %s\n", r.Name)
		for _, sub := range r.Subregions {
			fmt.Fprintf(&b, "  Subregion: %s (%s)\n", sub.Name, strings.Join(sub.Localities, ", "))
		}
	}
	b.WriteString("Technological Advancements:\n")
	for _, t := range s.Technologies {
		fmt.Fprintf(&b, "  %s: %s\n", t.Name, t.Status())
	}
	return b.String()
}

func roundCents(v float64) float64 {
	return float64(int64(v*100)) / 100
}

// sortedAgents returns live agents ordered by ID.
func (s *Simulation) sortedAgents() []*agents.Agent {
	out := slices.Clone(s.Agents)
	slices.SortFunc(out, func(a, b *agents.Agent) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
