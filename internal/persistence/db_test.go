package persistence

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/tech"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.conn.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func newRecordedSim(t *testing.T, db *DB) *engine.Simulation {
	t.Helper()
	sim, err := engine.NewSimulation(engine.Options{
		Population:   12,
		Technologies: tech.FromNames([]string{"Fire", "Wheel"}),
		Start:        time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
		Dice:         entropy.NewSeeded(31),
		Rules:        agents.Rules{Event: 1, HealthDecay: 0.01},
		Rates:        engine.Rates{Growth: 1, Discovery: 1},
		Recorder:     db,
	})
	require.NoError(t, err)
	require.NoError(t, db.StartRun(context.Background(), sim))
	return sim
}

func TestRecordDayWritesEveryTable(t *testing.T) {
	db := openTestDB(t)
	sim := newRecordedSim(t, db)

	require.NoError(t, sim.Run(context.Background(), 5))

	assert.Equal(t, 5, count(t, db, "daily_stats"))
	assert.Equal(t, 5, count(t, db, "birth_rate"))
	assert.Equal(t, 5, count(t, db, "death_rate"))
	assert.Equal(t, 5, count(t, db, "economy"))
	// 12 agents on day one, one arrival per day afterwards: 12+13+14+15+16.
	assert.Equal(t, 70, count(t, db, "status"))
	assert.Equal(t, 70, count(t, db, "finances"))
	// Every agent has a life event every day.
	assert.Equal(t, 70, count(t, db, "life_events"))

	var families, metSomeone int
	require.NoError(t, db.conn.Get(&families, "SELECT COUNT(*) FROM family"))
	require.NoError(t, db.conn.Get(&metSomeone, "SELECT COUNT(*) FROM life_events WHERE event = 'Met someone'"))
	assert.Equal(t, metSomeone, families)

	var births int
	require.NoError(t, db.conn.Get(&births, "SELECT SUM(births) FROM birth_rate"))
	assert.Equal(t, 5, births)

	var year int
	require.NoError(t, db.conn.Get(&year, "SELECT year FROM economy LIMIT 1"))
	assert.Equal(t, 2010, year)
}

func TestLoadStatsHistory(t *testing.T) {
	db := openTestDB(t)
	sim := newRecordedSim(t, db)
	ctx := context.Background()
	require.NoError(t, sim.Run(ctx, 6))

	rows, err := db.LoadStatsHistory(ctx, sim.RunID.String(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []uint64{4, 5, 6}, []uint64{rows[0].Day, rows[1].Day, rows[2].Day})

	samples, err := db.LoadSamples(ctx, sim.RunID.String())
	require.NoError(t, err)
	require.Len(t, samples, 6)
	assert.Equal(t, sim.HistoryCopy(), samples)
}

func TestFinalStateAndMeta(t *testing.T) {
	db := openTestDB(t)
	sim := newRecordedSim(t, db)
	ctx := context.Background()
	require.NoError(t, sim.Run(ctx, 2))

	require.NoError(t, db.SaveFinalState(ctx, sim))
	assert.Equal(t, sim.Stats.Population, count(t, db, "agents"))
	assert.Equal(t, 2, count(t, db, "technologies"))

	var undiscovered int
	require.NoError(t, db.conn.Get(&undiscovered, "SELECT COUNT(*) FROM technologies WHERE discovered_on IS NULL"))
	assert.Equal(t, 0, undiscovered)

	latest, err := db.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, sim.RunID.String(), latest)

	day, err := db.GetMeta(ctx, "last_day:"+latest)
	require.NoError(t, err)
	assert.Equal(t, "2", day)

	// Saving twice replaces rather than duplicates.
	require.NoError(t, db.SaveFinalState(ctx, sim))
	assert.Equal(t, sim.Stats.Population, count(t, db, "agents"))
}

func TestLoadLifeEvents(t *testing.T) {
	db := openTestDB(t)
	sim := newRecordedSim(t, db)
	ctx := context.Background()
	require.NoError(t, sim.Run(ctx, 3))

	first := sim.AgentList()[0]
	rows, err := db.LoadLifeEvents(ctx, sim.RunID.String(), uint64(first.ID), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Contains(t, []string{"Good", "Bad", "Neutral"}, r.Valence)
	}
}

func TestRecordDayRejectsNonFiniteSkills(t *testing.T) {
	db := openTestDB(t)
	sim := newRecordedSim(t, db)
	ctx := context.Background()

	var skills agents.SkillSet
	skills[agents.SkillSocial] = math.NaN()
	day := &engine.DayRecord{
		RunID: sim.RunID,
		Day:   1,
		Date:  sim.StartTime,
		Agents: []engine.AgentDay{{
			ID:   1,
			Name: "Alice Smith",
			Log: agents.DayLog{
				Status: &agents.StatusRecord{Date: sim.StartTime, Skills: skills},
			},
		}},
	}

	err := db.RecordDay(ctx, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode skills")
	// The whole day is rolled back.
	assert.Equal(t, 0, count(t, db, "status"))
	assert.Equal(t, 0, count(t, db, "daily_stats"))

	a := sim.AgentList()[0]
	a.Skills = skills
	assert.Error(t, db.SaveAgents(ctx, sim.RunID.String(), []agents.Agent{a}))
	assert.Equal(t, 0, count(t, db, "agents"))
}
