package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidActions    = errors.New("invalid actions")
	ErrMalformedResponse = errors.New("malformed response")
)

// FactoryType is the industrial zone option of the action set.
type FactoryType string

const (
	FactoryNone        FactoryType = "None"
	FactoryTextile     FactoryType = "Textile"
	FactoryChemical    FactoryType = "Chemical"
	FactoryElectronics FactoryType = "Electronics"
	FactoryAutomobile  FactoryType = "Automobile"
)

func (f FactoryType) Valid() bool {
	switch f {
	case FactoryNone, FactoryTextile, FactoryChemical, FactoryElectronics, FactoryAutomobile:
		return true
	}
	return false
}

// Baseline is the measured indicator snapshot of a locality before any action.
type Baseline struct {
	AQI            float64 `json:"aqi"`
	WaterQuality   float64 `json:"water_quality"`
	PollutionIndex float64 `json:"pollution_index"`
	CarbonBudget   float64 `json:"carbon_budget"`
	Population     int     `json:"population"`
}

// Actions is the set of policy levers sent with every prediction request.
type Actions struct {
	BuildFactory           bool        `json:"build_factory"` // superseded by FactoryType, still accepted by the service
	FactoryType            FactoryType `json:"factory_type"`
	AddSolar               bool        `json:"add_solar"`
	TreesPlanted           int         `json:"trees_planted"`
	TreesCut               int         `json:"trees_cut"`
	IncreaseGreenCover     bool        `json:"increase_green_cover"`
	ImproveWasteManagement bool        `json:"improve_waste_management"`
	ExpandPublicTransport  bool        `json:"expand_public_transport"`
	EnforceGreenPolicy     bool        `json:"enforce_green_policy"`
}

func DefaultActions() Actions {
	return Actions{FactoryType: FactoryNone}
}

func (a Actions) Validate() error {
	if !a.FactoryType.Valid() {
		return fmt.Errorf("%w: unknown factory type %q", ErrInvalidActions, a.FactoryType)
	}
	if a.TreesPlanted < 0 {
		return fmt.Errorf("%w: trees_planted must be >= 0, got %d", ErrInvalidActions, a.TreesPlanted)
	}
	if a.TreesCut < 0 {
		return fmt.Errorf("%w: trees_cut must be >= 0, got %d", ErrInvalidActions, a.TreesCut)
	}
	return nil
}

// ActionPatch is a partial update of Actions. Nil fields are left untouched.
type ActionPatch struct {
	BuildFactory           *bool        `json:"build_factory,omitempty"`
	FactoryType            *FactoryType `json:"factory_type,omitempty"`
	AddSolar               *bool        `json:"add_solar,omitempty"`
	TreesPlanted           *int         `json:"trees_planted,omitempty"`
	TreesCut               *int         `json:"trees_cut,omitempty"`
	IncreaseGreenCover     *bool        `json:"increase_green_cover,omitempty"`
	ImproveWasteManagement *bool        `json:"improve_waste_management,omitempty"`
	ExpandPublicTransport  *bool        `json:"expand_public_transport,omitempty"`
	EnforceGreenPolicy     *bool        `json:"enforce_green_policy,omitempty"`
}

// Apply returns a copy of a with the patch merged in.
func (p ActionPatch) Apply(a Actions) Actions {
	if p.BuildFactory != nil {
		a.BuildFactory = *p.BuildFactory
	}
	if p.FactoryType != nil {
		a.FactoryType = *p.FactoryType
	}
	if p.AddSolar != nil {
		a.AddSolar = *p.AddSolar
	}
	if p.TreesPlanted != nil {
		a.TreesPlanted = *p.TreesPlanted
	}
	if p.TreesCut != nil {
		a.TreesCut = *p.TreesCut
	}
	if p.IncreaseGreenCover != nil {
		a.IncreaseGreenCover = *p.IncreaseGreenCover
	}
	if p.ImproveWasteManagement != nil {
		a.ImproveWasteManagement = *p.ImproveWasteManagement
	}
	if p.ExpandPublicTransport != nil {
		a.ExpandPublicTransport = *p.ExpandPublicTransport
	}
	if p.EnforceGreenPolicy != nil {
		a.EnforceGreenPolicy = *p.EnforceGreenPolicy
	}
	return a
}

// TimePoint is one simulated year.
type TimePoint struct {
	Year             int     `json:"year"`
	AQI              float64 `json:"aqi"`
	WaterQuality     float64 `json:"water_quality"`
	PollutionIndex   float64 `json:"pollution_index"`
	CarbonBudget     float64 `json:"carbon_budget"`
	HealthIndex      float64 `json:"health_index"`
	RespiratoryRisk  float64 `json:"respiratory_risk"`
	SocialInequality float64 `json:"social_inequality"`
	HappinessIndex   float64 `json:"happiness_index"`
}

type PredictionRequest struct {
	Locality         string   `json:"locality"`
	Baseline         Baseline `json:"baseline"`
	Actions          Actions  `json:"actions"`
	TimeHorizonYears int      `json:"time_horizon_years"`
}

type PredictionResult struct {
	Locality                 string      `json:"locality,omitempty"`
	Predictions              []TimePoint `json:"predictions"`
	Explanations             []string    `json:"explanations"`
	TreesToPlantForHappiness int         `json:"trees_to_plant_for_happiness"`
}

// Final returns the last simulated year.
func (r *PredictionResult) Final() (TimePoint, bool) {
	if r == nil || len(r.Predictions) == 0 {
		return TimePoint{}, false
	}
	return r.Predictions[len(r.Predictions)-1], true
}

// Validate rejects results the orchestrator cannot derive a status from.
func (r *PredictionResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty prediction body", ErrMalformedResponse)
	}
	if len(r.Predictions) == 0 {
		return fmt.Errorf("%w: prediction has no time steps", ErrMalformedResponse)
	}
	return nil
}

// ChatContext is what the assistant knows about the current scenario.
type ChatContext struct {
	Locality     string     `json:"locality"`
	CurrentStats *TimePoint `json:"current_stats"`
	Actions      Actions    `json:"actions"`
	TreesNeeded  int        `json:"trees_needed"`
}

type ChatRequest struct {
	Message string      `json:"message"`
	Context ChatContext `json:"context"`
}

type ChatResponse struct {
	Response string `json:"response"`
}
