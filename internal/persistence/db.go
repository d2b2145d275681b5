// Package persistence provides SQLite-based storage for agent histories and
// world statistics. It is the simulation's logging collaborator.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/tech"
)

// DB wraps a SQLite connection for simulation history.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		sim_start TEXT NOT NULL,
		initial_population INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		age REAL NOT NULL,
		region TEXT NOT NULL,
		subregion TEXT NOT NULL,
		locality TEXT NOT NULL,
		alive INTEGER NOT NULL,
		health REAL NOT NULL,
		money REAL NOT NULL,
		stress REAL NOT NULL,
		personality TEXT NOT NULL,
		self_aware INTEGER NOT NULL,
		intelligence REAL NOT NULL,
		skills_json TEXT NOT NULL,
		family_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS status (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		health REAL NOT NULL,
		intelligence REAL NOT NULL,
		skills_json TEXT NOT NULL,
		stress_level REAL NOT NULL,
		thoughts TEXT NOT NULL,
		location TEXT NOT NULL,
		time_of_day TEXT NOT NULL,
		self_awareness INTEGER NOT NULL,
		mood TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS finances (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		money REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS life_events (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		event TEXT NOT NULL,
		consequences TEXT NOT NULL,
		choice_quality TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS family (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		relation TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS birth_rate (
		run_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		population INTEGER NOT NULL,
		births INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS death_rate (
		run_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		population INTEGER NOT NULL,
		deaths INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS economy (
		run_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		total_money REAL NOT NULL,
		average_money REAL NOT NULL,
		event_summary TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_stats (
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		date TEXT NOT NULL,
		population INTEGER NOT NULL,
		births INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		total_wealth REAL NOT NULL,
		PRIMARY KEY (run_id, day)
	);

	CREATE TABLE IF NOT EXISTS technologies (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		discovered_on TEXT,
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_agent ON status(run_id, agent_id);
	CREATE INDEX IF NOT EXISTS idx_events_agent ON life_events(run_id, agent_id);
	CREATE INDEX IF NOT EXISTS idx_finances_agent ON finances(run_id, agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun registers a run and marks it as the latest one.
func (db *DB) StartRun(ctx context.Context, sim *engine.Simulation) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at, sim_start, initial_population) VALUES (?, ?, ?, ?)",
		sim.RunID.String(), time.Now().UTC().Format(time.RFC3339), sim.StartTime.Format(time.DateOnly), sim.Stats.Population,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return db.SaveMeta(ctx, "latest_run", sim.RunID.String())
}

// RecordDay writes every record of one simulated day in a single transaction.
func (db *DB) RecordDay(ctx context.Context, day *engine.DayRecord) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	runID := day.RunID.String()
	date := day.Date.Format(time.DateOnly)

	if err := insertAgentDays(tx, runID, day.Agents); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO birth_rate (run_id, year, population, births) VALUES (?, ?, ?, ?)",
		runID, day.Year(), day.Population, day.Births); err != nil {
		return fmt.Errorf("insert birth rate: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO death_rate (run_id, year, population, deaths) VALUES (?, ?, ?, ?)",
		runID, day.Year(), day.Population, day.Deaths); err != nil {
		return fmt.Errorf("insert death rate: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO economy (run_id, year, total_money, average_money, event_summary) VALUES (?, ?, ?, ?, ?)",
		runID, day.Year(), day.TotalWealth, day.AverageWealth, day.EventSummary()); err != nil {
		return fmt.Errorf("insert economy: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO daily_stats (run_id, day, date, population, births, deaths, total_wealth)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, day.Day, date, day.Population, day.Births, day.Deaths, day.TotalWealth); err != nil {
		return fmt.Errorf("insert daily stats: %w", err)
	}

	return tx.Commit()
}

func insertAgentDays(tx *sqlx.Tx, runID string, days []engine.AgentDay) error {
	if len(days) == 0 {
		return nil
	}

	status, err := tx.Preparex(`INSERT INTO status
		(run_id, agent_id, date, health, intelligence, skills_json, stress_level, thoughts,
		 location, time_of_day, self_awareness, mood)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer status.Close()

	finance, err := tx.Preparex("INSERT INTO finances (run_id, agent_id, date, money) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer finance.Close()

	for _, ad := range days {
		if s := ad.Log.Status; s != nil {
			skillsJSON, err := json.Marshal(s.Skills)
			if err != nil {
				return fmt.Errorf("encode skills for agent %d: %w", ad.ID, err)
			}
			_, err = status.Exec(runID, ad.ID, s.Date.Format(time.DateOnly), s.Health, s.Intelligence,
				string(skillsJSON), s.Stress, s.Thought, s.Location, s.TimeOfDay, boolInt(s.SelfAware), s.Mood.String())
			if err != nil {
				return fmt.Errorf("insert status for agent %d: %w", ad.ID, err)
			}
		}
		if f := ad.Log.Finance; f != nil {
			if _, err := finance.Exec(runID, ad.ID, f.Date.Format(time.DateOnly), f.Money); err != nil {
				return fmt.Errorf("insert finances for agent %d: %w", ad.ID, err)
			}
		}
		for _, e := range ad.Log.Events {
			_, err := tx.Exec(`INSERT INTO life_events (run_id, agent_id, date, event, consequences, choice_quality)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, ad.ID, e.Date.Format(time.DateOnly), e.Event, e.Consequence, e.Valence.String())
			if err != nil {
				return fmt.Errorf("insert life event for agent %d: %w", ad.ID, err)
			}
		}
		for _, f := range ad.Log.Family {
			_, err := tx.Exec("INSERT INTO family (run_id, agent_id, name, relation) VALUES (?, ?, ?, ?)",
				runID, ad.ID, f.Name, f.Relation.String())
			if err != nil {
				return fmt.Errorf("insert family for agent %d: %w", ad.ID, err)
			}
		}
	}
	return nil
}

// SaveAgents writes the current population of a run (full replace).
func (db *DB) SaveAgents(ctx context.Context, runID string, agentList []agents.Agent) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(run_id, id, name, age, region, subregion, locality, alive, health, money, stress,
		 personality, self_aware, intelligence, skills_json, family_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range agentList {
		skillsJSON, err := json.Marshal(a.Skills)
		if err != nil {
			return fmt.Errorf("encode skills for agent %d: %w", a.ID, err)
		}
		familyJSON, err := json.Marshal(a.Family)
		if err != nil {
			return fmt.Errorf("encode family for agent %d: %w", a.ID, err)
		}

		_, err = stmt.Exec(
			runID, a.ID, a.Name, a.Age,
			a.Location.Region, a.Location.Subregion, a.Location.Locality,
			boolInt(a.Alive), a.Health, a.Money, a.Stress,
			a.Personality.String(), boolInt(a.SelfAware), a.Intelligence,
			string(skillsJSON), string(familyJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// SaveTechnologies writes the discovery state of every technology.
func (db *DB) SaveTechnologies(ctx context.Context, runID string, techs []tech.Technology) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range techs {
		var discovered *string
		if t.DiscoveredOn != nil {
			d := t.DiscoveredOn.Format(time.DateOnly)
			discovered = &d
		}
		_, err := tx.Exec("INSERT OR REPLACE INTO technologies (run_id, name, discovered_on) VALUES (?, ?, ?)",
			runID, t.Name, discovered)
		if err != nil {
			return fmt.Errorf("insert technology %q: %w", t.Name, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// LatestRun returns the ID of the most recently started run.
func (db *DB) LatestRun(ctx context.Context) (string, error) {
	return db.GetMeta(ctx, "latest_run")
}

// SaveFinalState persists the end-of-run population and technologies.
func (db *DB) SaveFinalState(ctx context.Context, sim *engine.Simulation) error {
	snap := sim.Snapshot()
	slog.Info("saving final state", "run", snap.RunID, "agents", snap.Stats.Population)

	if err := db.SaveAgents(ctx, snap.RunID, sim.AgentList()); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveTechnologies(ctx, snap.RunID, snap.Technologies); err != nil {
		return fmt.Errorf("save technologies: %w", err)
	}
	if err := db.SaveMeta(ctx, "last_day:"+snap.RunID, fmt.Sprintf("%d", snap.Day)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
