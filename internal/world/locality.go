// Package world provides the static locality hierarchy agents live in.
// The tree has three levels: region → subregion → locality.
package world

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLocality is returned when a location does not resolve in the hierarchy.
	ErrUnknownLocality = errors.New("unknown locality")
	// ErrInvalidHierarchy is returned when a hierarchy definition is malformed.
	ErrInvalidHierarchy = errors.New("invalid locality hierarchy")
)

// Location addresses a single locality leaf.
type Location struct {
	Region    string `json:"region" mapstructure:"region"`
	Subregion string `json:"subregion" mapstructure:"subregion"`
	Locality  string `json:"locality" mapstructure:"locality"`
}

// String renders the location the way status records store it: "Locality, Subregion".
func (l Location) String() string {
	return l.Locality + ", " + l.Subregion
}

// Region is the top level of the hierarchy.
type Region struct {
	Name       string      `json:"name" mapstructure:"name"`
	Subregions []Subregion `json:"subregions" mapstructure:"subregions"`
}

// Subregion groups a fixed set of localities.
type Subregion struct {
	Name       string   `json:"name" mapstructure:"name"`
	Localities []string `json:"localities" mapstructure:"localities"`
}

// Picker is the random source used for uniform location sampling.
type Picker interface {
	IntN(n int) int
}

// Hierarchy is the read-only locality tree. It is never mutated after NewHierarchy.
type Hierarchy struct {
	regions []Region
	index   map[Location]struct{}
}

// NewHierarchy validates the definition and builds a lookup index.
func NewHierarchy(regions []Region) (*Hierarchy, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrInvalidHierarchy)
	}

	h := &Hierarchy{
		regions: make([]Region, 0, len(regions)),
		index:   make(map[Location]struct{}),
	}
	seenRegion := make(map[string]bool)

	for _, r := range regions {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: region with empty name", ErrInvalidHierarchy)
		}
		if seenRegion[r.Name] {
			return nil, fmt.Errorf("%w: duplicate region %q", ErrInvalidHierarchy, r.Name)
		}
		seenRegion[r.Name] = true
		if len(r.Subregions) == 0 {
			return nil, fmt.Errorf("%w: region %q has no subregions", ErrInvalidHierarchy, r.Name)
		}

		copied := Region{Name: r.Name, Subregions: make([]Subregion, 0, len(r.Subregions))}
		seenSub := make(map[string]bool)
		for _, s := range r.Subregions {
			if s.Name == "" {
				return nil, fmt.Errorf("%w: subregion with empty name in %q", ErrInvalidHierarchy, r.Name)
			}
			if seenSub[s.Name] {
				return nil, fmt.Errorf("%w: duplicate subregion %q in %q", ErrInvalidHierarchy, s.Name, r.Name)
			}
			seenSub[s.Name] = true
			if len(s.Localities) == 0 {
				return nil, fmt.Errorf("%w: subregion %q has no localities", ErrInvalidHierarchy, s.Name)
			}

			for _, l := range s.Localities {
				loc := Location{Region: r.Name, Subregion: s.Name, Locality: l}
				if l == "" {
					return nil, fmt.Errorf("%w: empty locality in %q", ErrInvalidHierarchy, s.Name)
				}
				if _, dup := h.index[loc]; dup {
					return nil, fmt.Errorf("%w: duplicate locality %q in %q", ErrInvalidHierarchy, l, s.Name)
				}
				h.index[loc] = struct{}{}
			}
			copied.Subregions = append(copied.Subregions, Subregion{
				Name:       s.Name,
				Localities: append([]string(nil), s.Localities...),
			})
		}
		h.regions = append(h.regions, copied)
	}

	return h, nil
}

// DefaultHierarchy returns the built-in Earth tree.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(DefaultRegions())
	if err != nil {
		panic(err)
	}
	return h
}

// DefaultRegions returns the definition behind DefaultHierarchy.
func DefaultRegions() []Region {
	return []Region{{
		Name: "Earth",
		Subregions: []Subregion{
			{Name: "USA", Localities: []string{"California", "New York"}},
			{Name: "China", Localities: []string{"Beijing", "Shanghai"}},
			{Name: "Russia", Localities: []string{"Moscow", "Saint Petersburg"}},
		},
	}}
}

// Contains reports whether loc is a registered locality.
func (h *Hierarchy) Contains(loc Location) bool {
	_, ok := h.index[loc]
	return ok
}

// Resolve returns ErrUnknownLocality if loc is not part of the hierarchy.
func (h *Hierarchy) Resolve(loc Location) error {
	if !h.Contains(loc) {
		return fmt.Errorf("%w: %s / %s / %s", ErrUnknownLocality, loc.Region, loc.Subregion, loc.Locality)
	}
	return nil
}

// MustResolve panics on an unknown locality.
func (h *Hierarchy) MustResolve(loc Location) {
	if err := h.Resolve(loc); err != nil {
		panic(err)
	}
}

// Random picks a region, then a subregion, then a locality, each uniformly.
func (h *Hierarchy) Random(p Picker) Location {
	r := h.regions[p.IntN(len(h.regions))]
	s := r.Subregions[p.IntN(len(r.Subregions))]
	l := s.Localities[p.IntN(len(s.Localities))]
	return Location{Region: r.Name, Subregion: s.Name, Locality: l}
}

// Regions returns a copy of the tree for display.
func (h *Hierarchy) Regions() []Region {
	out := make([]Region, len(h.regions))
	for i, r := range h.regions {
		subs := make([]Subregion, len(r.Subregions))
		for j, s := range r.Subregions {
			subs[j] = Subregion{Name: s.Name, Localities: append([]string(nil), s.Localities...)}
		}
		out[i] = Region{Name: r.Name, Subregions: subs}
	}
	return out
}

// LocalityCount returns the number of leaves.
func (h *Hierarchy) LocalityCount() int {
	return len(h.index)
}

// String returns a summary of the hierarchy.
func (h *Hierarchy) String() string {
	return fmt.Sprintf("Hierarchy(regions=%d, localities=%d)", len(h.regions), h.LocalityCount())
}
