// Package agents provides the agent data model, the daily update, and the
// random life-event table.
package agents

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/talgya/veramatrix/internal/world"
)

// AgentID is a unique identifier for an agent. Names are not unique.
type AgentID uint64

// Personality is chosen once at creation and never changes.
type Personality uint8

const (
	PersonalityFriendly Personality = iota
	PersonalityAggressive
	PersonalityLazy
	PersonalityIndustrious
	PersonalityCurious
	PersonalityCautious
	numPersonalities
)

var personalityNames = [numPersonalities]string{
	"Friendly", "Aggressive", "Lazy", "Industrious", "Curious", "Cautious",
}

func (p Personality) String() string {
	if p >= numPersonalities {
		return "Unknown"
	}
	return personalityNames[p]
}

// Mood is informational only and follows the stress level.
type Mood uint8

const (
	MoodCalm Mood = iota
	MoodContent
	MoodUneasy
	MoodAnxious
)

func (m Mood) String() string {
	switch m {
	case MoodCalm:
		return "Calm"
	case MoodContent:
		return "Content"
	case MoodUneasy:
		return "Uneasy"
	default:
		return "Anxious"
	}
}

// MoodForStress maps a stress level in [0,100] to a mood.
func MoodForStress(stress float64) Mood {
	switch {
	case stress < 25:
		return MoodCalm
	case stress < 50:
		return MoodContent
	case stress < 75:
		return MoodUneasy
	default:
		return MoodAnxious
	}
}

// Skill enumerates the closed skill set.
type Skill uint8

const (
	SkillWork Skill = iota
	SkillSocial
	SkillSurvival
	NumSkills
)

var skillNames = [NumSkills]string{"work", "social", "survival"}

func (s Skill) String() string {
	if s >= NumSkills {
		return "unknown"
	}
	return skillNames[s]
}

// SkillSet holds one proficiency score per skill.
type SkillSet [NumSkills]float64

// MarshalJSON renders the set keyed by skill name.
func (s SkillSet) MarshalJSON() ([]byte, error) {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("skill %s is not finite: %v", Skill(i), v)
		}
	}
	return []byte(fmt.Sprintf(`{"work":%g,"social":%g,"survival":%g}`,
		s[SkillWork], s[SkillSocial], s[SkillSurvival])), nil
}

// RelationKind describes how an agent knows someone.
type RelationKind uint8

const (
	RelationFriend RelationKind = iota
	RelationColleague
	RelationNeighbor
	numRelationKinds
)

func (k RelationKind) String() string {
	switch k {
	case RelationFriend:
		return "Friend"
	case RelationColleague:
		return "Colleague"
	case RelationNeighbor:
		return "Neighbor"
	default:
		return "Unknown"
	}
}

// Relation is a (name, kind) entry in the agent's append-only family list.
type Relation struct {
	Name string       `json:"name"`
	Kind RelationKind `json:"kind"`
}

// Agent is a simulated individual.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	// Demographics
	Age      float64        `json:"age"` // Years, fractional
	Location world.Location `json:"location"`

	// Vital
	Alive     bool    `json:"alive"`
	Health    float64 `json:"health"`
	SelfAware bool    `json:"self_aware"`

	// Economic
	Money float64 `json:"money"`

	// Psychological
	Stress      float64     `json:"stress"` // 0–100
	Personality Personality `json:"personality"`
	Mood        Mood        `json:"mood"`
	Thought     string      `json:"thought"`

	// Social
	Family []Relation `json:"family"`

	// Capability
	Skills       SkillSet `json:"skills"`
	Intelligence float64  `json:"intelligence"`

	BornOn time.Time `json:"born_on"`
}

// TimeOfDay derives a clock reading from the fractional part of the age: H:MM.
func (a *Agent) TimeOfDay() string {
	_, frac := math.Modf(a.Age)
	hours := frac * 24
	h := int(hours)
	_, minFrac := math.Modf(hours)
	return fmt.Sprintf("%d:%02d", h, int(minFrac*60))
}

// String is the full-state snapshot used by presentation collaborators.
func (a *Agent) String() string {
	return fmt.Sprintf("%s, Age: %.2f, Alive: %t, Money: %.2f, Personality: %s, Mood: %s, "+
		"Health: %.2f, Intelligence: %.2f, Skills: work=%.2f social=%.2f survival=%.2f, "+
		"Stress Level: %.2f, Thoughts: %s, Self-Aware: %t, Location: %s, Time: %s",
		a.Name, a.Age, a.Alive, a.Money, a.Personality, a.Mood,
		a.Health, a.Intelligence, a.Skills[SkillWork], a.Skills[SkillSocial], a.Skills[SkillSurvival],
		a.Stress, a.Thought, a.SelfAware, a.Location, a.TimeOfDay())
}

func clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p Personality) MarshalText() ([]byte, error)  { return []byte(p.String()), nil }
func (m Mood) MarshalText() ([]byte, error)         { return []byte(m.String()), nil }
func (k RelationKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
