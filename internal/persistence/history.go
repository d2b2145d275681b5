package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/talgya/veramatrix/internal/engine"
)

// StatsRow is one stored day of aggregate statistics.
type StatsRow struct {
	Day         uint64  `db:"day" json:"day"`
	Date        string  `db:"date" json:"date"`
	Population  int     `db:"population" json:"population"`
	Births      int     `db:"births" json:"births"`
	Deaths      int     `db:"deaths" json:"deaths"`
	TotalWealth float64 `db:"total_wealth" json:"total_wealth"`
}

// Sample converts the row back into an engine sample.
func (r StatsRow) Sample() (engine.Sample, error) {
	d, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return engine.Sample{}, fmt.Errorf("parse date %q: %w", r.Date, err)
	}
	return engine.Sample{
		Date:        d,
		Population:  r.Population,
		Births:      r.Births,
		Deaths:      r.Deaths,
		TotalWealth: r.TotalWealth,
	}, nil
}

// LoadStatsHistory returns up to limit stored days of a run, oldest first.
// A limit <= 0 returns every day.
func (db *DB) LoadStatsHistory(ctx context.Context, runID string, limit int) ([]StatsRow, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []StatsRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT day, date, population, births, deaths, total_wealth FROM (
			SELECT * FROM daily_stats WHERE run_id = ? ORDER BY day DESC LIMIT ?
		) ORDER BY day ASC`,
		runID, limit,
	)
	return rows, err
}

// LoadSamples is LoadStatsHistory converted to engine samples.
func (db *DB) LoadSamples(ctx context.Context, runID string) ([]engine.Sample, error) {
	rows, err := db.LoadStatsHistory(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Sample, 0, len(rows))
	for _, r := range rows {
		s, err := r.Sample()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// LifeEventRow is one stored life event.
type LifeEventRow struct {
	Date        string `db:"date" json:"date"`
	Event       string `db:"event" json:"event"`
	Consequence string `db:"consequences" json:"consequence"`
	Valence     string `db:"choice_quality" json:"valence"`
}

// LoadLifeEvents returns the most recent life events of one agent, newest first.
func (db *DB) LoadLifeEvents(ctx context.Context, runID string, agentID uint64, limit int) ([]LifeEventRow, error) {
	var rows []LifeEventRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT date, event, consequences, choice_quality FROM life_events
		WHERE run_id = ? AND agent_id = ? ORDER BY rowid DESC LIMIT ?`,
		runID, agentID, limit,
	)
	return rows, err
}
