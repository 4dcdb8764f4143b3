package pricing

import "time"

// Confidence is the coarse reliability of a result.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// Cap returns the lower of c and max.
func (c Confidence) Cap(max Confidence) Confidence {
	if c.rank() > max.rank() {
		return max
	}
	return c
}

// Adjustment types produced by the built-in rules. The set is open; callers
// must not assume these are the only ones.
const (
	AdjustmentRisk      = "risk"
	AdjustmentDiscount  = "discount"
	AdjustmentSurcharge = "surcharge"
	AdjustmentManual    = "manual"
	AdjustmentFloor     = "floor"
)

// Adjustment is a signed line item on top of the summed service costs.
type Adjustment struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// ServiceBreakdownEntry is the priced outcome of one selected service.
type ServiceBreakdownEntry struct {
	Service       string     `json:"service"`
	DisplayName   string     `json:"displayName"`
	Cost          float64    `json:"cost"`
	Hours         float64    `json:"hours"`
	Area          float64    `json:"area"`
	Confidence    Confidence `json:"confidence"`
	LaborCost     float64    `json:"laborCost"`
	MaterialCost  float64    `json:"materialCost"`
	EquipmentCost float64    `json:"equipmentCost"`
}

// Result is the current price of an estimate.
// TotalCost always equals the sum of service costs plus adjustment values.
type Result struct {
	TotalCost        float64                 `json:"totalCost"`
	TotalHours       float64                 `json:"totalHours"`
	TotalArea        float64                 `json:"totalArea"`
	ServiceBreakdown []ServiceBreakdownEntry `json:"serviceBreakdown"`
	Confidence       Confidence              `json:"confidence"`
	MissingData      []string                `json:"missingData"`
	Adjustments      []Adjustment            `json:"adjustments"`
	LastUpdated      time.Time               `json:"lastUpdated"`
}

// Clone returns a copy that shares no slices with r.
func (r Result) Clone() Result {
	out := r
	out.ServiceBreakdown = append(make([]ServiceBreakdownEntry, 0, len(r.ServiceBreakdown)), r.ServiceBreakdown...)
	out.MissingData = append(make([]string, 0, len(r.MissingData)), r.MissingData...)
	out.Adjustments = append(make([]Adjustment, 0, len(r.Adjustments)), r.Adjustments...)
	return out
}

// HasAdjustment reports whether an adjustment of the given type is present.
func (r Result) HasAdjustment(kind string) (Adjustment, bool) {
	for _, a := range r.Adjustments {
		if a.Type == kind {
			return a, true
		}
	}
	return Adjustment{}, false
}
