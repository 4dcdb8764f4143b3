package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RateCard holds the per-service rates used to build up a service price.
type RateCard struct {
	Service         string
	DisplayName     string
	LaborRate       float64 // per hour
	SqftPerHour     float64
	MaterialPerSqft float64
	WastePercent    float64
	EquipmentHourly float64
	OverheadPercent float64
	MarginPercent   float64
	MinimumCharge   float64
	SetupHours      float64
}

// Breakdown contains the intermediate values of a service price build-up.
type Breakdown struct {
	Hours         float64
	LaborCost     float64
	MaterialCost  float64
	EquipmentCost float64
	Subtotal      float64
	Overhead      float64
	Margin        float64
	Total         float64
}

// buildingFactors scale labour hours by building type.
var buildingFactors = map[string]float64{
	"residential": 1.0,
	"commercial":  1.15,
	"industrial":  1.25,
	"high_rise":   1.3,
}

// BuildingFactor returns the labour factor for a building type, 1 when unknown.
func BuildingFactor(buildingType string) float64 {
	if f, ok := buildingFactors[strings.ToLower(strings.TrimSpace(buildingType))]; ok {
		return f
	}
	return 1.0
}

var hundred = decimal.NewFromInt(100)

func percent(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Div(hundred)
}

// Calculate computes the price build-up of one service over area square feet.
func (rc RateCard) Calculate(area float64, buildingType string) Breakdown {
	sqft := decimal.NewFromFloat(area)

	hours := decimal.NewFromFloat(rc.SetupHours)
	if rc.SqftPerHour > 0 {
		work := sqft.Div(decimal.NewFromFloat(rc.SqftPerHour)).Mul(decimal.NewFromFloat(BuildingFactor(buildingType)))
		hours = hours.Add(work)
	}
	hours = hours.Round(2)

	material := sqft.Mul(decimal.NewFromFloat(rc.MaterialPerSqft)).Mul(decimal.NewFromInt(1).Add(percent(rc.WastePercent))).Round(2)
	labor := hours.Mul(decimal.NewFromFloat(rc.LaborRate)).Round(2)
	equipment := hours.Mul(decimal.NewFromFloat(rc.EquipmentHourly)).Round(2)

	subtotal := labor.Add(material).Add(equipment)
	overhead := subtotal.Mul(percent(rc.OverheadPercent)).Round(2)
	margin := subtotal.Add(overhead).Mul(percent(rc.MarginPercent)).Round(2)

	total := decimal.Max(subtotal.Add(overhead).Add(margin), decimal.NewFromFloat(rc.MinimumCharge)).Round(2)

	return Breakdown{
		Hours:         hours.InexactFloat64(),
		LaborCost:     labor.InexactFloat64(),
		MaterialCost:  material.InexactFloat64(),
		EquipmentCost: equipment.InexactFloat64(),
		Subtotal:      subtotal.InexactFloat64(),
		Overhead:      overhead.InexactFloat64(),
		Margin:        margin.InexactFloat64(),
		Total:         total.InexactFloat64(),
	}
}

// RateCards is a ServiceCalculator and ServiceNamer backed by a rate table.
type RateCards map[string]RateCard

// NewRateCards indexes cards by service id.
func NewRateCards(cards []RateCard) RateCards {
	out := make(RateCards, len(cards))
	for _, c := range cards {
		out[c.Service] = c
	}
	return out
}

// CalculateService prices service against the working area of mc.
func (r RateCards) CalculateService(service string, mc MeasurementContext) (ServiceEstimate, error) {
	rc, ok := r[service]
	if !ok {
		return ServiceEstimate{}, fmt.Errorf("price %q: %w", service, ErrUnknownService)
	}

	area := mc.WorkingSqft()
	if area <= 0 || !finite(area) {
		return ServiceEstimate{}, fmt.Errorf("price %q: no measurable area: %w", service, ErrInvalidEstimate)
	}

	b := rc.Calculate(area, mc.BuildingType)

	conf := ConfidenceHigh
	if mc.MeasuredSqft() == 0 {
		conf = ConfidenceMedium
	}

	return ServiceEstimate{
		BasePrice:     b.Total,
		TotalHours:    b.Hours,
		Area:          area,
		Confidence:    conf,
		LaborCost:     b.LaborCost,
		MaterialCost:  b.MaterialCost,
		EquipmentCost: b.EquipmentCost,
	}, nil
}

// DisplayName returns the card's display name, or the id itself.
func (r RateCards) DisplayName(service string) string {
	if rc, ok := r[service]; ok && rc.DisplayName != "" {
		return rc.DisplayName
	}
	return service
}

// Cards returns the rate cards sorted by service id.
func (r RateCards) Cards() []RateCard {
	cards := make([]RateCard, 0, len(r))
	for _, c := range r {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Service < cards[j].Service })
	return cards
}

// DefaultRateCards returns the built-in exterior cleaning rates.
func DefaultRateCards() []RateCard {
	return []RateCard{
		{Service: "window_cleaning", DisplayName: "Window Cleaning", LaborRate: 45, SqftPerHour: 400, MaterialPerSqft: 0.02, WastePercent: 5, EquipmentHourly: 8, OverheadPercent: 12, MarginPercent: 25, MinimumCharge: 150, SetupHours: 0.5},
		{Service: "pressure_washing", DisplayName: "Pressure Washing", LaborRate: 50, SqftPerHour: 600, MaterialPerSqft: 0.05, WastePercent: 10, EquipmentHourly: 20, OverheadPercent: 12, MarginPercent: 25, MinimumCharge: 200, SetupHours: 1},
		{Service: "soft_washing", DisplayName: "Soft Washing", LaborRate: 55, SqftPerHour: 500, MaterialPerSqft: 0.08, WastePercent: 10, EquipmentHourly: 15, OverheadPercent: 12, MarginPercent: 25, MinimumCharge: 250, SetupHours: 1},
		{Service: "gutter_cleaning", DisplayName: "Gutter Cleaning", LaborRate: 40, SqftPerHour: 800, MaterialPerSqft: 0, WastePercent: 0, EquipmentHourly: 10, OverheadPercent: 10, MarginPercent: 20, MinimumCharge: 125, SetupHours: 0.5},
		{Service: "roof_cleaning", DisplayName: "Roof Cleaning", LaborRate: 60, SqftPerHour: 350, MaterialPerSqft: 0.1, WastePercent: 10, EquipmentHourly: 25, OverheadPercent: 15, MarginPercent: 25, MinimumCharge: 350, SetupHours: 1.5},
	}
}
