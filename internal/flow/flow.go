package flow

import (
	"math"
	"strings"
)

// StepID identifies a wizard step.
type StepID string

const (
	StepProjectSetup StepID = "projectSetup"
	StepAreaOfWork   StepID = "areaOfWork"
	StepScopeDetails StepID = "scopeDetails"
	StepDuration     StepID = "duration"
	StepPricing      StepID = "pricing"
	StepReview       StepID = "review"
)

// MaxStories caps heights derived from feet.
const MaxStories = 500

// Data is the accumulated answer set of the estimation wizard.
// Every step is optional until the user completes it.
type Data struct {
	EstimateID   string            `json:"estimateId,omitempty"`
	ProjectSetup *ProjectSetup     `json:"projectSetup,omitempty"`
	AreaOfWork   *AreaOfWork       `json:"areaOfWork,omitempty"`
	ScopeDetails *ScopeDetails     `json:"scopeDetails,omitempty"`
	Duration     *Duration         `json:"duration,omitempty"`
	Pricing      *PricingOverrides `json:"pricing,omitempty"`
}

// ProjectSetup holds customer and building identification.
type ProjectSetup struct {
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	BuildingType  string `json:"buildingType,omitempty"`
	ServiceType   string `json:"serviceType,omitempty"`
	ProjectName   string `json:"projectName,omitempty"`
	Address       string `json:"address,omitempty"`
}

// AreaOfWork holds the building height and surface measurements.
type AreaOfWork struct {
	BuildingHeightStories int           `json:"buildingHeightStories,omitempty"`
	BuildingHeightFeet    float64       `json:"buildingHeightFeet,omitempty"`
	TotalSqft             float64       `json:"totalSqft,omitempty"`
	Measurements          []Measurement `json:"measurements,omitempty"`
}

// Measurement is one measured surface.
type Measurement struct {
	ID    string  `json:"id,omitempty"`
	Label string  `json:"label,omitempty"`
	Sqft  float64 `json:"sqft"`
}

// ScopeDetails holds the services the customer selected.
type ScopeDetails struct {
	SelectedServices []string `json:"selectedServices,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Duration holds the labour estimate. Older wizard versions nest the hours
// under a timeline object.
type Duration struct {
	EstimatedHours float64   `json:"estimatedHours,omitempty"`
	Timeline       *Timeline `json:"timeline,omitempty"`
}

// Timeline is the nested duration shape.
type Timeline struct {
	EstimatedHours float64 `json:"estimatedHours,omitempty"`
	StartDate      string  `json:"startDate,omitempty"`
}

// PricingOverrides holds manual adjustments entered on the pricing step.
type PricingOverrides struct {
	DiscountPercent   float64            `json:"discountPercent,omitempty"`
	SurchargePercent  float64            `json:"surchargePercent,omitempty"`
	SurchargeReason   string             `json:"surchargeReason,omitempty"`
	ManualAdjustments []ManualAdjustment `json:"manualAdjustments,omitempty"`
}

// ManualAdjustment is a signed line item typed in by the estimator.
type ManualAdjustment struct {
	Type   string  `json:"type,omitempty"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

// Stories returns the building height in stories. Explicit stories win;
// otherwise the height in feet is converted, rounding partial stories up
// and capping at MaxStories.
func (a *AreaOfWork) Stories(feetPerStory float64) int {
	if a == nil {
		return 0
	}
	if a.BuildingHeightStories > 0 {
		return a.BuildingHeightStories
	}
	if !(a.BuildingHeightFeet > 0) || !(feetPerStory > 0) {
		return 0
	}
	stories := math.Ceil(a.BuildingHeightFeet / feetPerStory)
	if math.IsNaN(stories) || stories > MaxStories {
		return MaxStories
	}
	return int(stories)
}

// HasHeight reports whether either height form was given.
func (a *AreaOfWork) HasHeight() bool {
	return a != nil && (a.BuildingHeightStories > 0 || a.BuildingHeightFeet > 0)
}

// MeasuredSqft sums the individual measurements.
func (a *AreaOfWork) MeasuredSqft() float64 {
	if a == nil {
		return 0
	}
	total := 0.0
	for _, m := range a.Measurements {
		if m.Sqft > 0 {
			total += m.Sqft
		}
	}
	return total
}

// WorkingSqft is the area services are priced against: the declared total
// when present, else the sum of measurements.
func (a *AreaOfWork) WorkingSqft() float64 {
	if a == nil {
		return 0
	}
	if a.TotalSqft > 0 {
		return a.TotalSqft
	}
	return a.MeasuredSqft()
}

// Hours returns the estimated hours, direct or nested.
func (d *Duration) Hours() float64 {
	if d == nil {
		return 0
	}
	if d.EstimatedHours > 0 {
		return d.EstimatedHours
	}
	if d.Timeline != nil && d.Timeline.EstimatedHours > 0 {
		return d.Timeline.EstimatedHours
	}
	return 0
}

// Services returns the selected services trimmed, without blanks or
// duplicates, in selection order.
func (s *ScopeDetails) Services() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.SelectedServices))
	services := make([]string, 0, len(s.SelectedServices))
	for _, raw := range s.SelectedServices {
		svc := strings.TrimSpace(raw)
		if svc == "" || seen[svc] {
			continue
		}
		seen[svc] = true
		services = append(services, svc)
	}
	return services
}

// Clone returns a deep copy so that a snapshot held by the engine cannot be
// changed through the caller's pointers.
func (d Data) Clone() Data {
	out := Data{EstimateID: d.EstimateID}
	if d.ProjectSetup != nil {
		ps := *d.ProjectSetup
		out.ProjectSetup = &ps
	}
	if d.AreaOfWork != nil {
		aw := *d.AreaOfWork
		aw.Measurements = append([]Measurement(nil), d.AreaOfWork.Measurements...)
		out.AreaOfWork = &aw
	}
	if d.ScopeDetails != nil {
		sd := *d.ScopeDetails
		sd.SelectedServices = append([]string(nil), d.ScopeDetails.SelectedServices...)
		out.ScopeDetails = &sd
	}
	if d.Duration != nil {
		du := *d.Duration
		if d.Duration.Timeline != nil {
			tl := *d.Duration.Timeline
			du.Timeline = &tl
		}
		out.Duration = &du
	}
	if d.Pricing != nil {
		po := *d.Pricing
		po.ManualAdjustments = append([]ManualAdjustment(nil), d.Pricing.ManualAdjustments...)
		out.Pricing = &po
	}
	return out
}
