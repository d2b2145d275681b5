package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/tech"
	"github.com/talgya/veramatrix/internal/world"
)

// memRecorder keeps every day in memory.
type memRecorder struct {
	mu   sync.Mutex
	days []*DayRecord
}

func (m *memRecorder) RecordDay(_ context.Context, d *DayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, d)
	return nil
}

func (m *memRecorder) last() *DayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.days[len(m.days)-1]
}

var start = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

func quietRules() agents.Rules {
	return agents.Rules{HealthDecay: 0.01}
}

func singleAgent(t *testing.T) *agents.Agent {
	t.Helper()
	sp := agents.NewSpawner(entropy.NewSeeded(9))
	return sp.Spawn(40, world.Location{Region: "Earth", Subregion: "China", Locality: "Beijing"}, start)
}

func TestEmptyWorldStaysEmpty(t *testing.T) {
	rec := &memRecorder{}
	sim, err := NewSimulation(Options{
		Agents:   []*agents.Agent{},
		Start:    start,
		Dice:     entropy.NewSeeded(1),
		Rules:    agents.DefaultRules(),
		Rates:    Rates{Growth: 0, Discovery: 0},
		Recorder: rec,
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background(), 10))

	assert.Equal(t, 0, sim.Stats.Population)
	assert.Equal(t, 0.0, sim.Stats.AverageWealth)
	require.Len(t, sim.History, 10)
	for i, s := range sim.History {
		assert.Equal(t, start.AddDate(0, 0, i+1), s.Date)
		assert.Equal(t, 0, s.Population)
	}
	require.Len(t, rec.days, 10)
	assert.Equal(t, "No economic events", rec.last().EventSummary())
	assert.Equal(t, 2015, rec.last().Year())
}

func TestSingleAgentHealthDecay(t *testing.T) {
	rec := &memRecorder{}
	a := singleAgent(t)
	a.Health = 100
	sim, err := NewSimulation(Options{
		Agents:   []*agents.Agent{a},
		Start:    start,
		Dice:     entropy.NewSeeded(2),
		Rules:    quietRules(),
		Recorder: rec,
	})
	require.NoError(t, err)

	sim.AdvanceDay(context.Background())

	assert.InDelta(t, 99.99, a.Health, 1e-9)
	assert.True(t, a.Alive)
	require.Len(t, rec.days, 1)
	statuses := 0
	for _, ad := range rec.days[0].Agents {
		if ad.Log.Status != nil {
			statuses++
		}
	}
	assert.Equal(t, 1, statuses)
}

func TestDeathOnDayThree(t *testing.T) {
	rec := &memRecorder{}
	a := singleAgent(t)
	sim, err := NewSimulation(Options{
		Agents:   []*agents.Agent{a},
		Start:    start,
		Dice:     entropy.NewSeeded(3),
		Rules:    quietRules(),
		Recorder: rec,
	})
	require.NoError(t, err)
	ctx := context.Background()
	startWealth := sim.Stats.TotalWealth

	sim.AdvanceDay(ctx)
	sim.AdvanceDay(ctx)
	require.True(t, a.Alive)
	require.Len(t, sim.Agents, 1)

	sim.Rules.Mortality = 1
	sim.Rules.Event = 1
	sim.AdvanceDay(ctx)

	assert.False(t, a.Alive)
	assert.Empty(t, sim.Agents)
	assert.Equal(t, 0, sim.Stats.Population)
	assert.Equal(t, 1, sim.Stats.Deaths)
	assert.InDelta(t, 0.0, sim.Stats.TotalWealth, 1e-9)
	assert.NotEqual(t, startWealth, sim.Stats.TotalWealth)
	_, found := sim.Agent(a.ID)
	assert.False(t, found)

	day3 := rec.days[2]
	assert.Equal(t, 1, day3.Deaths)
	require.Len(t, day3.Agents, 1)
	log := day3.Agents[0].Log
	assert.True(t, log.Died)
	require.Len(t, log.Events, 1, "no random life event on the day of death")
	assert.Equal(t, "Died", log.Events[0].Event)

	sim.Rules.Mortality = 0
	sim.AdvanceDay(ctx)
	day4 := rec.days[3]
	assert.Empty(t, day4.Agents)
	assert.Equal(t, 0, day4.Population)
	assert.Equal(t, 0, day4.Deaths)
}

func TestAggregateInvariantsHoldEveryTick(t *testing.T) {
	sim, err := NewSimulation(Options{
		Population: 40,
		Start:      start,
		Dice:       entropy.NewSeeded(77),
		Rules:      agents.Rules{Awareness: 0.01, Mortality: 0.003, Event: 0.5, HealthDecay: 0.01},
		Rates:      Rates{Growth: 0.2, Discovery: 0.01},
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 1500; i++ {
		sim.AdvanceDay(ctx)

		pop, wealth := sim.Reconcile()
		require.Equal(t, pop, sim.Stats.Population)
		require.Equal(t, len(sim.Agents), sim.Stats.Population)
		require.Len(t, sim.AgentIndex, sim.Stats.Population)
		require.InDelta(t, wealth, sim.Stats.TotalWealth, 1e-6)
		for _, a := range sim.Agents {
			require.True(t, a.Alive)
			require.NoError(t, sim.Places.Resolve(a.Location))
		}
		if sim.Stats.Population == 0 {
			require.Equal(t, 0.0, sim.Stats.AverageWealth)
		} else {
			require.InDelta(t, wealth/float64(pop), sim.Stats.AverageWealth, 1e-6)
		}
	}
	assert.Equal(t, uint64(1500), sim.Day)
	assert.Len(t, sim.History, 1500)
	assert.Greater(t, sim.Stats.TotalBirths, 0)
	assert.Greater(t, sim.Stats.TotalDeaths, 0)
}

func TestTechnologyDiscoveryIsWriteOnce(t *testing.T) {
	techs := tech.FromNames(tech.DefaultNames)
	sim, err := NewSimulation(Options{
		Agents:       []*agents.Agent{},
		Technologies: techs,
		Start:        start,
		Dice:         entropy.NewSeeded(4),
		Rates:        Rates{Discovery: 1},
	})
	require.NoError(t, err)

	sim.AdvanceDay(context.Background())
	firstDay := start.AddDate(0, 0, 1)
	for _, tc := range techs {
		require.True(t, tc.Discovered())
		assert.Equal(t, firstDay, *tc.DiscoveredOn)
	}
	assert.Equal(t, len(techs), sim.Stats.Discovered)

	sim.AdvanceDay(context.Background())
	for _, tc := range techs {
		assert.Equal(t, firstDay, *tc.DiscoveredOn)
	}
	assert.Equal(t, len(techs), sim.Stats.Discovered)
}

func TestGrowthAddsOneArrival(t *testing.T) {
	rec := &memRecorder{}
	sim, err := NewSimulation(Options{
		Agents:   []*agents.Agent{},
		Start:    start,
		Dice:     entropy.NewSeeded(5),
		Rules:    quietRules(),
		Rates:    Rates{Growth: 1},
		Recorder: rec,
	})
	require.NoError(t, err)

	sim.AdvanceDay(context.Background())

	require.Len(t, sim.Agents, 1)
	a := sim.Agents[0]
	assert.GreaterOrEqual(t, a.Age, 0.0)
	assert.LessOrEqual(t, a.Age, 30.0)
	assert.Equal(t, 1, sim.Stats.Births)
	assert.Equal(t, float64(agents.StartingMoney), sim.Stats.TotalWealth)
	assert.Equal(t, []agents.AgentID{a.ID}, rec.last().Arrivals)
	assert.Equal(t, 1, rec.last().Births)
}

func TestEconomicEventsCoverLastDayOnly(t *testing.T) {
	rec := &memRecorder{}
	sim, err := NewSimulation(Options{
		Population: 30,
		Start:      start,
		Dice:       entropy.NewSeeded(6),
		Rules:      agents.Rules{Event: 1, HealthDecay: 0.01},
		Recorder:   rec,
	})
	require.NoError(t, err)

	sim.AdvanceDay(context.Background())

	want := 0
	for _, ad := range rec.last().Agents {
		for _, e := range ad.Log.Events {
			if e.Economic {
				want++
			}
		}
	}
	require.NotZero(t, want)
	assert.Len(t, rec.last().EconomicEvents, want)
	assert.Equal(t, rec.last().EconomicEvents, sim.Snapshot().Stats.EconomicEvents)

	// A quiet day replaces the list rather than appending to it.
	sim.Rules = agents.Rules{HealthDecay: 0.01}
	sim.AdvanceDay(context.Background())
	assert.Empty(t, rec.last().EconomicEvents)
	assert.Empty(t, sim.Snapshot().Stats.EconomicEvents)
	assert.Equal(t, "No economic events", rec.last().EventSummary())
}

func TestInvalidLocalityFailsFast(t *testing.T) {
	a := singleAgent(t)
	a.Location = world.Location{Region: "Earth", Subregion: "Germany", Locality: "Berlin"}

	_, err := NewSimulation(Options{Agents: []*agents.Agent{a}, Start: start})
	require.Error(t, err)
	assert.ErrorIs(t, err, world.ErrUnknownLocality)
}

func TestRecorderFailureDoesNotStopRun(t *testing.T) {
	calls := 0
	sim, err := NewSimulation(Options{
		Population: 3,
		Start:      start,
		Dice:       entropy.NewSeeded(8),
		Rules:      quietRules(),
		Recorder: RecorderFunc(func(context.Context, *DayRecord) error {
			calls++
			return errors.New("disk full")
		}),
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background(), 4))
	assert.Equal(t, 4, calls)
	assert.Equal(t, uint64(4), sim.Day)
}

func TestRunCancelledBeforeFirstTick(t *testing.T) {
	sim, err := NewSimulation(Options{Population: 2, Start: start, Dice: entropy.NewSeeded(1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sim.Run(ctx, 5), context.Canceled)
	assert.Equal(t, uint64(0), sim.Day)
	assert.Equal(t, start, sim.CurrentTime)
}

func TestPresentationAccessorsCopy(t *testing.T) {
	sim, err := NewSimulation(Options{Population: 5, Start: start, Dice: entropy.NewSeeded(10), Rules: quietRules()})
	require.NoError(t, err)
	sim.AdvanceDay(context.Background())

	list := sim.AgentList()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
	list[0].Money = -1
	got, ok := sim.Agent(list[0].ID)
	require.True(t, ok)
	assert.NotEqual(t, -1.0, got.Money)

	day, withDay := sim.AgentListDay()
	assert.Equal(t, uint64(1), day)
	assert.Len(t, withDay, 5)

	snap := sim.Snapshot()
	assert.Equal(t, uint64(1), snap.Day)
	assert.Equal(t, 5, snap.Stats.Population)
	assert.Equal(t, sim.RunID.String(), snap.RunID)

	series := sim.Series(MetricPopulation)
	require.Len(t, series, 1)
	assert.Equal(t, 5.0, series[0].Value)
	assert.Contains(t, sim.Summary(), "Total Population: 5")
}
