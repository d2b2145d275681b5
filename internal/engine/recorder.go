package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/veramatrix/internal/agents"
)

// Recorder is the logging collaborator. It receives one DayRecord per tick.
type Recorder interface {
	RecordDay(ctx context.Context, day *DayRecord) error
}

// AgentDay pairs an agent with the records it produced on one day.
type AgentDay struct {
	ID   agents.AgentID
	Name string
	Log  agents.DayLog
}

// DayRecord is everything the world produced during one tick.
type DayRecord struct {
	RunID uuid.UUID
	Day   uint64
	Date  time.Time

	Agents   []AgentDay
	Arrivals []agents.AgentID

	Population     int
	Births         int
	Deaths         int
	TotalWealth    float64
	AverageWealth  float64
	EconomicEvents []string
}

// Year is the calendar year the birth, death, and economy rows are keyed by.
func (d *DayRecord) Year() int {
	return d.Date.Year()
}

// EventSummary joins the day's economic events into one line.
func (d *DayRecord) EventSummary() string {
	if len(d.EconomicEvents) == 0 {
		return "No economic events"
	}
	return strings.Join(d.EconomicEvents, "; ")
}

// NopRecorder discards every record.
type NopRecorder struct{}

func (NopRecorder) RecordDay(context.Context, *DayRecord) error { return nil }

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, day *DayRecord) error

func (f RecorderFunc) RecordDay(ctx context.Context, day *DayRecord) error { return f(ctx, day) }
