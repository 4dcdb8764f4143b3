package pricing

import (
	"strings"

	"github.com/Simplici0/liveprice/internal/flow"
)

// Required field names reported in Result.MissingData.
const (
	FieldCustomerName     = "projectSetup.customerName"
	FieldCustomerEmail    = "projectSetup.customerEmail"
	FieldCustomerPhone    = "projectSetup.customerPhone"
	FieldBuildingType     = "projectSetup.buildingType"
	FieldServiceType      = "projectSetup.serviceType"
	FieldHeight           = "areaOfWork.height"
	FieldTotalSqft        = "areaOfWork.totalSqft"
	FieldMeasurements     = "areaOfWork.measurements"
	FieldSelectedServices = "scopeDetails.selectedServices"
	FieldEstimatedHours   = "duration.estimatedHours"
)

// ConfidencePolicy decides where medium confidence starts.
type ConfidencePolicy struct {
	// MinPopulatedSteps is the number of the four required steps that must
	// be present before a result can be better than low.
	MinPopulatedSteps int
}

// DefaultConfidencePolicy returns the production policy.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{MinPopulatedSteps: 2}
}

// Completion is the analyzer's verdict on a flow snapshot.
type Completion struct {
	Missing        []string
	PopulatedSteps int
	CorePresent    bool
	Confidence     Confidence
}

// Analyze lists the unmet required fields of data in a fixed order and
// derives the confidence level from them.
func (p ConfidencePolicy) Analyze(data flow.Data) Completion {
	var missing []string
	add := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	ps := data.ProjectSetup
	if ps == nil {
		ps = &flow.ProjectSetup{}
	}
	add(present(ps.CustomerName), FieldCustomerName)
	add(present(ps.CustomerEmail), FieldCustomerEmail)
	add(present(ps.CustomerPhone), FieldCustomerPhone)
	add(present(ps.BuildingType), FieldBuildingType)
	add(present(ps.ServiceType), FieldServiceType)

	aw := data.AreaOfWork
	add(aw.HasHeight(), FieldHeight)
	add(aw != nil && aw.TotalSqft > 0, FieldTotalSqft)
	add(aw != nil && len(aw.Measurements) > 0, FieldMeasurements)

	services := data.ScopeDetails.Services()
	add(len(services) > 0, FieldSelectedServices)

	add(data.Duration.Hours() > 0, FieldEstimatedHours)

	populated := 0
	for _, ok := range []bool{data.ProjectSetup != nil, aw != nil, data.ScopeDetails != nil, data.Duration != nil} {
		if ok {
			populated++
		}
	}

	c := Completion{
		Missing:        missing,
		PopulatedSteps: populated,
		CorePresent: data.ProjectSetup != nil && present(data.ProjectSetup.BuildingType) &&
			aw != nil && len(aw.Measurements) > 0 &&
			len(services) > 0,
	}
	c.Confidence = p.classify(c)
	return c
}

func (p ConfidencePolicy) classify(c Completion) Confidence {
	switch {
	case len(c.Missing) == 0:
		return ConfidenceHigh
	case c.CorePresent && c.PopulatedSteps >= p.MinPopulatedSteps:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
