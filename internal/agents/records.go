package agents

import "time"

// StatusRecord is the per-day state snapshot handed to the logging collaborator.
type StatusRecord struct {
	Date         time.Time `json:"date"`
	Health       float64   `json:"health"`
	Intelligence float64   `json:"intelligence"`
	Skills       SkillSet  `json:"skills"`
	Stress       float64   `json:"stress"`
	Thought      string    `json:"thought"`
	Location     string    `json:"location"`
	TimeOfDay    string    `json:"time_of_day"`
	SelfAware    bool      `json:"self_aware"`
	Mood         Mood      `json:"mood"`
}

// FinanceRecord captures the agent's money at the end of the day's drift.
type FinanceRecord struct {
	Date  time.Time `json:"date"`
	Money float64   `json:"money"`
}

// LifeEventRecord is a notable event with its valence.
type LifeEventRecord struct {
	Date        time.Time `json:"date"`
	Event       string    `json:"event"`
	Consequence string    `json:"consequence"`
	Valence     Valence   `json:"valence"`
	Economic    bool      `json:"-"`
}

// FamilyRecord is emitted whenever a relation is appended.
type FamilyRecord struct {
	Name     string       `json:"name"`
	Relation RelationKind `json:"relation"`
}

// DayLog collects every record one agent produced during one day.
// A dead agent produces an empty DayLog.
type DayLog struct {
	Status  *StatusRecord
	Finance *FinanceRecord
	Events  []LifeEventRecord
	Family  []FamilyRecord
	Died    bool
}

// Empty reports whether the day produced no records at all.
func (d DayLog) Empty() bool {
	return d.Status == nil && d.Finance == nil && len(d.Events) == 0 && len(d.Family) == 0
}
