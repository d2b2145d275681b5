// Daily update: the state transition every live agent goes through once per tick.
package agents

import (
	"fmt"
	"time"

	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/world"
)

// SimulationThought replaces idle thoughts once an agent is self-aware.
const SimulationThought = "I think I might be in a simulation."

var idleThoughts = []string{
	"Thinking about work.", "Worrying about money.", "Missing family.",
	"Planning a vacation.", "Feeling stressed.", "Happy about a new opportunity.",
	"Concerned about health.", "Excited about the future.", "Reflecting on the past.",
	"Wondering about the meaning of life.",
}

// Rules holds the per-day probabilities and constants of the agent update.
type Rules struct {
	Awareness   float64 `mapstructure:"awareness"`    // Chance of becoming self-aware
	Mortality   float64 `mapstructure:"mortality"`    // Chance of dying
	Event       float64 `mapstructure:"event"`        // Chance of a random life event
	HealthDecay float64 `mapstructure:"health_decay"` // Baseline health loss
}

// DefaultRules returns the reference probabilities.
func DefaultRules() Rules {
	return Rules{
		Awareness:   0.001,
		Mortality:   0.0001,
		Event:       0.05,
		HealthDecay: 0.01,
	}
}

// Env is everything an agent needs from the outside world for one day.
type Env struct {
	Today  time.Time
	Dice   entropy.Dice
	Rules  Rules
	Places *world.Hierarchy
}

// LiveDay advances the agent by one day and returns the records it produced.
// It is a no-op for dead agents.
func (a *Agent) LiveDay(env Env) DayLog {
	var log DayLog
	if !a.Alive {
		return log
	}
	d := env.Dice

	a.Age += 1.0 / 365
	a.Money += d.Uniform(-10, 10)
	a.Stress = clamp(a.Stress+d.Uniform(-5, 5), 0, 100)
	a.Mood = MoodForStress(a.Stress)
	a.Health -= env.Rules.HealthDecay

	if !a.SelfAware && d.Chance(env.Rules.Awareness) {
		a.SelfAware = true
		log.Events = append(log.Events, LifeEventRecord{
			Date:        env.Today,
			Event:       "Became self-aware",
			Consequence: "Realized they are in a simulation",
			Valence:     Neutral,
		})
	}
	a.Thought = a.nextThought(d)

	log.Status = &StatusRecord{
		Date:         env.Today,
		Health:       a.Health,
		Intelligence: a.Intelligence,
		Skills:       a.Skills,
		Stress:       a.Stress,
		Thought:      a.Thought,
		Location:     a.Location.String(),
		TimeOfDay:    a.TimeOfDay(),
		SelfAware:    a.SelfAware,
		Mood:         a.Mood,
	}
	log.Finance = &FinanceRecord{Date: env.Today, Money: a.Money}

	// Death ends the day: no random event follows.
	if d.Chance(env.Rules.Mortality) {
		a.Alive = false
		log.Died = true
		log.Events = append(log.Events, LifeEventRecord{
			Date:        env.Today,
			Event:       "Died",
			Consequence: fmt.Sprintf("Died at the age of %.2f", a.Age),
			Valence:     Neutral,
		})
		return log
	}

	if d.Chance(env.Rules.Event) {
		kind := EventKind(d.IntN(int(NumEvents)))
		rec, fam := ApplyEvent(a, kind, env.Today, d, env.Places)
		log.Events = append(log.Events, rec)
		if fam != nil {
			log.Family = append(log.Family, *fam)
		}
	}

	return log
}

func (a *Agent) nextThought(d entropy.Dice) string {
	if a.SelfAware {
		return SimulationThought
	}
	return idleThoughts[d.IntN(len(idleThoughts))]
}
