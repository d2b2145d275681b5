// Agent spawning for the initial population and daily arrivals.
package agents

import (
	"math"
	"time"

	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/world"
)

// StartingMoney is the wealth every new agent begins with.
const StartingMoney = 1000

// Spawner creates agents for the simulation.
type Spawner struct {
	dice   entropy.Dice
	nextID AgentID
}

// NewSpawner creates an agent spawner drawing from d.
func NewSpawner(d entropy.Dice) *Spawner {
	return &Spawner{dice: d, nextID: 1}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the ID the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// SpawnPopulation creates the bootstrap population: adults aged 18–70 at random localities.
func (s *Spawner) SpawnPopulation(count int, places *world.Hierarchy, today time.Time) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		age := float64(18 + s.dice.IntN(53))
		agents = append(agents, s.Spawn(age, places.Random(s.dice), today))
	}
	return agents
}

// SpawnArrival creates a newborn or immigrant aged 0–30.
func (s *Spawner) SpawnArrival(places *world.Hierarchy, today time.Time) *Agent {
	age := float64(s.dice.IntN(31))
	return s.Spawn(age, places.Random(s.dice), today)
}

// Spawn creates a single live agent at loc who is age years old on today.
func (s *Spawner) Spawn(age float64, loc world.Location, today time.Time) *Agent {
	id := s.nextID
	s.nextID++

	stress := s.dice.Uniform(0, 100)
	var skills SkillSet
	for i := range skills {
		skills[i] = s.dice.Uniform(0, 10)
	}

	return &Agent{
		ID:           id,
		Name:         s.generateName(),
		Age:          age,
		Location:     loc,
		Alive:        true,
		Health:       100,
		Money:        StartingMoney,
		Stress:       stress,
		Personality:  Personality(s.dice.IntN(int(numPersonalities))),
		Mood:         MoodForStress(stress),
		Skills:       skills,
		Intelligence: s.dice.Uniform(80, 120),
		BornOn:       birthDate(age, today),
	}
}

// birthDate backdates today by age years, fractional years counted in days.
func birthDate(age float64, today time.Time) time.Time {
	years := int(age)
	days := int(math.Round((age - float64(years)) * 365))
	return today.AddDate(-years, 0, -days)
}

func (s *Spawner) generateName() string {
	first := firstNames[s.dice.IntN(len(firstNames))]
	last := lastNames[s.dice.IntN(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var firstNames = []string{
	"Alice", "Bob", "Charlie", "David", "Eve", "Faythe", "Grace", "Heidi", "Ivan", "Judy",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Jones", "Brown", "Davis", "Miller", "Wilson", "Moore", "Taylor",
}
