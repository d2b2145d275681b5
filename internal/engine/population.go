// Population dynamics: arrivals, removal of the dead, and technology discovery.
package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/talgya/veramatrix/internal/agents"
)

// processGrowth adds at most one newborn or immigrant per day.
func (s *Simulation) processGrowth(rec *DayRecord) {
	if !s.Dice.Chance(s.Rates.Growth) {
		return
	}

	a := s.Spawner.SpawnArrival(s.Places, s.CurrentTime)
	s.Places.MustResolve(a.Location)
	s.addAgent(a)
	s.Stats.Births++
	s.Stats.TotalBirths++
	rec.Arrivals = append(rec.Arrivals, a.ID)

	s.recordEvent(fmt.Sprintf("%s arrives in %s, aged %.0f", a.Name, a.Location, a.Age), "birth")
}

// removeDead compacts the active set in one pass after every agent has lived the day.
func (s *Simulation) removeDead() {
	s.Agents = slices.DeleteFunc(s.Agents, func(a *agents.Agent) bool {
		if a.Alive {
			return false
		}
		delete(s.AgentIndex, a.ID)
		s.Stats.Population--
		s.Stats.TotalWealth -= a.Money
		s.Stats.Deaths++
		s.Stats.TotalDeaths++
		s.recordEvent(fmt.Sprintf("%s has died at the age of %.2f", a.Name, a.Age), "death")
		return true
	})
}

// processDiscovery gives every undiscovered technology its daily chance.
func (s *Simulation) processDiscovery() {
	for _, t := range s.Technologies {
		if t.Discovered() || !s.Dice.Chance(s.Rates.Discovery) {
			continue
		}
		if t.Discover(s.CurrentTime) {
			s.Stats.Discovered++
			s.recordEvent(fmt.Sprintf("%s discovered on %s", t.Name, s.CurrentTime.Format(time.DateOnly)), "technology")
		}
	}
}

// addAgent registers a live agent in all indexes and aggregates.
func (s *Simulation) addAgent(a *agents.Agent) {
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a
	s.Stats.Population++
	s.Stats.TotalWealth += a.Money
}
