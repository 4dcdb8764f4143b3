package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/Simplici0/liveprice/internal/flow"
)

var (
	// ErrUnknownService is returned by calculators for services they cannot price.
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidEstimate marks calculator output that cannot be aggregated.
	ErrInvalidEstimate = errors.New("invalid service estimate")
)

// MeasurementContext is what a calculator needs to price a single service.
type MeasurementContext struct {
	BuildingType   string
	Stories        int
	TotalSqft      float64
	Measurements   []flow.Measurement
	EstimatedHours float64
}

func (mc MeasurementContext) area() *flow.AreaOfWork {
	return &flow.AreaOfWork{TotalSqft: mc.TotalSqft, Measurements: mc.Measurements}
}

// WorkingSqft is the declared total area, else the sum of measurements.
func (mc MeasurementContext) WorkingSqft() float64 { return mc.area().WorkingSqft() }

// MeasuredSqft sums the individual measurements.
func (mc MeasurementContext) MeasuredSqft() float64 { return mc.area().MeasuredSqft() }

// ServiceEstimate is the calculator's answer for one service.
type ServiceEstimate struct {
	BasePrice     float64
	TotalHours    float64
	Area          float64
	Confidence    Confidence
	LaborCost     float64
	MaterialCost  float64
	EquipmentCost float64
}

// ServiceCalculator prices one service. Implementations must be
// side-effect-free; they are called once per selected service per recomputation.
type ServiceCalculator interface {
	CalculateService(service string, mc MeasurementContext) (ServiceEstimate, error)
}

// ServiceCalculatorFunc adapts a function to ServiceCalculator.
type ServiceCalculatorFunc func(service string, mc MeasurementContext) (ServiceEstimate, error)

func (f ServiceCalculatorFunc) CalculateService(service string, mc MeasurementContext) (ServiceEstimate, error) {
	return f(service, mc)
}

// ServiceNamer resolves a service id to its display name.
type ServiceNamer interface {
	DisplayName(service string) string
}

// Validate rejects estimates with negative or non-finite figures or an
// unknown confidence. An empty confidence is allowed.
func (e ServiceEstimate) Validate() error {
	switch e.Confidence {
	case "", ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
	default:
		return fmt.Errorf("confidence %q: %w", e.Confidence, ErrInvalidEstimate)
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"basePrice", e.BasePrice},
		{"totalHours", e.TotalHours},
		{"area", e.Area},
		{"laborCost", e.LaborCost},
		{"materialCost", e.MaterialCost},
		{"equipmentCost", e.EquipmentCost},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s is not finite: %w", f.name, ErrInvalidEstimate)
		}
		if f.value < 0 {
			return fmt.Errorf("%s is negative: %w", f.name, ErrInvalidEstimate)
		}
	}
	return nil
}
