package model

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownLocality = errors.New("unknown locality")

// City is a leaf of the hierarchy. The service may embed the baseline.
type City struct {
	Baseline *Baseline `json:"baseline,omitempty"`
}

// Hierarchy maps Country → State → District → City.
type Hierarchy map[string]map[string]map[string]map[string]City

// Path is a fully qualified city.
type Path struct {
	Country  string `json:"country"`
	State    string `json:"state"`
	District string `json:"district"`
	City     string `json:"city"`
}

func (h Hierarchy) Countries() []string {
	return sortedKeys(h)
}

func (h Hierarchy) States(country string) []string {
	return sortedKeys(h[country])
}

func (h Hierarchy) Districts(country, state string) []string {
	return sortedKeys(h[country][state])
}

func (h Hierarchy) Cities(country, state, district string) []string {
	return sortedKeys(h[country][state][district])
}

// Find resolves a city name to its path. Countries, states and districts are
// visited in sorted order so a name shared by two districts resolves the same
// way every time.
func (h Hierarchy) Find(city string) (Path, bool) {
	for _, c := range h.Countries() {
		for _, s := range h.States(c) {
			for _, d := range h.Districts(c, s) {
				if _, ok := h[c][s][d][city]; ok {
					return Path{Country: c, State: s, District: d, City: city}, true
				}
			}
		}
	}
	return Path{}, false
}

// Size returns the number of cities.
func (h Hierarchy) Size() int {
	n := 0
	for _, states := range h {
		for _, districts := range states {
			for _, cities := range districts {
				n += len(cities)
			}
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Selection is a cascading country/state/district/city choice. Setting a
// level clears every level below it.
type Selection struct {
	h    Hierarchy
	path Path
}

func NewSelection(h Hierarchy) *Selection {
	return &Selection{h: h}
}

func (s *Selection) Path() Path { return s.path }

// City returns the selected city, or "" while the selection is incomplete.
func (s *Selection) City() string { return s.path.City }

func (s *Selection) SetCountry(country string) error {
	if country != "" {
		if _, ok := s.h[country]; !ok {
			return fmt.Errorf("%w: country %q", ErrUnknownLocality, country)
		}
	}
	s.path = Path{Country: country}
	return nil
}

func (s *Selection) SetState(state string) error {
	if state != "" {
		if _, ok := s.h[s.path.Country][state]; !ok {
			return fmt.Errorf("%w: state %q in %q", ErrUnknownLocality, state, s.path.Country)
		}
	}
	s.path.State = state
	s.path.District = ""
	s.path.City = ""
	return nil
}

func (s *Selection) SetDistrict(district string) error {
	if district != "" {
		if _, ok := s.h[s.path.Country][s.path.State][district]; !ok {
			return fmt.Errorf("%w: district %q in %q", ErrUnknownLocality, district, s.path.State)
		}
	}
	s.path.District = district
	s.path.City = ""
	return nil
}

func (s *Selection) SetCity(city string) error {
	if city != "" {
		if _, ok := s.h[s.path.Country][s.path.State][s.path.District][city]; !ok {
			return fmt.Errorf("%w: city %q in %q", ErrUnknownLocality, city, s.path.District)
		}
	}
	s.path.City = city
	return nil
}

// Options lists the choices available at the first incomplete level.
func (s *Selection) Options() []string {
	p := s.path
	switch {
	case p.Country == "":
		return s.h.Countries()
	case p.State == "":
		return s.h.States(p.Country)
	case p.District == "":
		return s.h.Districts(p.Country, p.State)
	default:
		return s.h.Cities(p.Country, p.State, p.District)
	}
}
