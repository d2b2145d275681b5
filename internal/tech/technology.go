// Package tech tracks the technologies a world can discover.
package tech

import (
	"log/slog"
	"time"
)

// DefaultNames are the technologies registered when none are configured.
var DefaultNames = []string{
	"Fire", "Wheel", "Steam Engine", "Electricity", "Internet", "Artificial Intelligence",
}

// Technology is discovered at most once; the discovery date never changes afterwards.
type Technology struct {
	Name         string     `json:"name"`
	DiscoveredOn *time.Time `json:"discovered_on,omitempty"`
}

// New creates an undiscovered technology.
func New(name string) *Technology {
	return &Technology{Name: name}
}

// FromNames builds one undiscovered technology per name.
func FromNames(names []string) []*Technology {
	out := make([]*Technology, 0, len(names))
	for _, n := range names {
		out = append(out, New(n))
	}
	return out
}

// Discovered reports whether the technology has a discovery date.
func (t *Technology) Discovered() bool {
	return t.DiscoveredOn != nil
}

// Discover stamps the discovery date. Returns false if it was already discovered.
func (t *Technology) Discover(date time.Time) bool {
	if t.DiscoveredOn != nil {
		return false
	}
	d := date
	t.DiscoveredOn = &d
	slog.Info("technology discovered", "name", t.Name, "date", d.Format(time.DateOnly))
	return true
}

// Status renders the discovery state for summaries.
func (t *Technology) Status() string {
	if t.DiscoveredOn == nil {
		return "Not yet discovered"
	}
	return "Discovered on " + t.DiscoveredOn.Format(time.DateOnly)
}
