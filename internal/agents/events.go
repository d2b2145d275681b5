package agents

import (
	"fmt"
	"time"

	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/world"
)

// EventKind enumerates the random life events.
type EventKind uint8

const (
	EventFoundMoney EventKind = iota
	EventLostMoney
	EventGotJob
	EventLostJob
	EventMetSomeone
	EventTraveled
	EventFellIll
	EventImprovedSkill
	EventGotEducated
	NumEvents
)

// Valence classifies how desirable an event is. It depends on the event kind only.
type Valence uint8

const (
	Neutral Valence = iota
	Good
	Bad
)

func (v Valence) String() string {
	switch v {
	case Good:
		return "Good"
	case Bad:
		return "Bad"
	default:
		return "Neutral"
	}
}

func (v Valence) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

type effect func(a *Agent, d entropy.Dice, places *world.Hierarchy) (string, *FamilyRecord)

type eventSpec struct {
	name     string
	valence  Valence
	economic bool
	apply    effect
}

var eventTable = [NumEvents]eventSpec{
	EventFoundMoney:    {"Found money", Good, true, foundMoney},
	EventLostMoney:     {"Lost money", Bad, true, lostMoney},
	EventGotJob:        {"Got a job", Good, true, gotJob},
	EventLostJob:       {"Lost a job", Bad, true, lostJob},
	EventMetSomeone:    {"Met someone", Neutral, false, metSomeone},
	EventTraveled:      {"Traveled", Neutral, false, traveled},
	EventFellIll:       {"Fell ill", Neutral, false, fellIll},
	EventImprovedSkill: {"Improved skill", Neutral, false, improvedSkill},
	EventGotEducated:   {"Got educated", Neutral, false, gotEducated},
}

func (k EventKind) String() string {
	if k >= NumEvents {
		return "Unknown"
	}
	return eventTable[k].name
}

// Valence returns the fixed classification of the event kind.
func (k EventKind) Valence() Valence {
	if k >= NumEvents {
		return Neutral
	}
	return eventTable[k].valence
}

// Economic reports whether the event belongs in the world's economic-event summary.
func (k EventKind) Economic() bool {
	return k < NumEvents && eventTable[k].economic
}

// ApplyEvent applies the effect of kind to a and returns its life-event record, plus a
// family record when the event added a relation.
func ApplyEvent(a *Agent, kind EventKind, today time.Time, d entropy.Dice, places *world.Hierarchy) (LifeEventRecord, *FamilyRecord) {
	entry := eventTable[kind]
	consequence, fam := entry.apply(a, d, places)
	return LifeEventRecord{
		Date:        today,
		Event:       entry.name,
		Consequence: consequence,
		Valence:     entry.valence,
		Economic:    entry.economic,
	}, fam
}

func foundMoney(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	amount := d.Uniform(50, 200)
	a.Money += amount
	return fmt.Sprintf("Gained %.2f money", amount), nil
}

func lostMoney(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	amount := d.Uniform(50, 200)
	a.Money -= amount
	return fmt.Sprintf("Lost %.2f money", amount), nil
}

func gotJob(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	a.Skills[SkillWork] += d.Uniform(0, 5)
	return "Started a new job", nil
}

func lostJob(*Agent, entropy.Dice, *world.Hierarchy) (string, *FamilyRecord) {
	return "Lost the job", nil
}

func metSomeone(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	peer := fmt.Sprintf("Person_%d", d.IntN(100)+1)
	kind := RelationKind(d.IntN(int(numRelationKinds)))
	a.Family = append(a.Family, Relation{Name: peer, Kind: kind})
	return fmt.Sprintf("Met %s, became %s", peer, kind), &FamilyRecord{Name: peer, Relation: kind}
}

// traveled only relocates within the registered hierarchy.
func traveled(a *Agent, d entropy.Dice, places *world.Hierarchy) (string, *FamilyRecord) {
	a.Location = places.Random(d)
	return "Traveled to " + a.Location.String(), nil
}

func fellIll(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	loss := d.Uniform(5, 15)
	a.Health -= loss
	return fmt.Sprintf("Fell ill, lost %.2f health", loss), nil
}

func improvedSkill(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	skill := Skill(d.IntN(int(NumSkills)))
	gain := d.Uniform(1, 5)
	a.Skills[skill] += gain
	return fmt.Sprintf("Improved %s skill by %.2f", skill, gain), nil
}

func gotEducated(a *Agent, d entropy.Dice, _ *world.Hierarchy) (string, *FamilyRecord) {
	gain := d.Uniform(1, 5)
	a.Intelligence += gain
	return fmt.Sprintf("Gained %.2f intelligence", gain), nil
}
