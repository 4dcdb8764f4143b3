package pricing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/liveprice/internal/flow"
)

// Aggregator turns a flow snapshot into a Result.
type Aggregator struct {
	Calculator ServiceCalculator
	Namer      ServiceNamer
	Rules      []AdjustmentRule
	Confidence ConfidencePolicy
	Height     HeightRiskPolicy
	Now        func() time.Time
	Log        zerolog.Logger
}

// NewAggregator returns an aggregator with the default policies and rules.
func NewAggregator(calc ServiceCalculator) *Aggregator {
	height := DefaultHeightRiskPolicy()
	a := &Aggregator{
		Calculator: calc,
		Rules:      DefaultAdjustmentRules(height),
		Confidence: DefaultConfidencePolicy(),
		Height:     height,
		Now:        time.Now,
		Log:        zerolog.Nop(),
	}
	if n, ok := calc.(ServiceNamer); ok {
		a.Namer = n
	}
	return a
}

// Aggregate prices data. It never fails: missing input lowers the confidence
// and is listed in MissingData, and a failing service is left out of the
// breakdown with a warning.
func (a *Aggregator) Aggregate(data flow.Data) Result {
	completion := a.Confidence.Analyze(data)
	services := data.ScopeDetails.Services()

	if len(services) == 0 || !hasAreaData(data.AreaOfWork) {
		return Result{
			ServiceBreakdown: []ServiceBreakdownEntry{},
			Confidence:       ConfidenceLow,
			MissingData:      append([]string{}, completion.Missing...),
			Adjustments:      []Adjustment{},
			LastUpdated:      a.now(),
		}
	}

	mc := MeasurementContext{
		Stories:        data.AreaOfWork.Stories(a.Height.FeetPerStory),
		TotalSqft:      data.AreaOfWork.TotalSqft,
		Measurements:   data.AreaOfWork.Measurements,
		EstimatedHours: data.Duration.Hours(),
	}
	if data.ProjectSetup != nil {
		mc.BuildingType = data.ProjectSetup.BuildingType
	}

	var (
		cost, hours, area = decimal.Zero, decimal.Zero, decimal.Zero
		breakdown         = make([]ServiceBreakdownEntry, 0, len(services))
		warnings          []string
	)
	for _, svc := range services {
		est, err := a.calculate(svc, mc)
		if err != nil {
			a.Log.Warn().Err(err).Str("service", svc).Msg("service calculation failed")
			warnings = append(warnings, fmt.Sprintf("service %s: %v", svc, err))
			continue
		}

		entry := ServiceBreakdownEntry{
			Service:       svc,
			DisplayName:   a.displayName(svc),
			Cost:          round2(est.BasePrice),
			Hours:         round2(est.TotalHours),
			Area:          round2(est.Area),
			Confidence:    est.Confidence,
			LaborCost:     round2(est.LaborCost),
			MaterialCost:  round2(est.MaterialCost),
			EquipmentCost: round2(est.EquipmentCost),
		}
		if entry.Confidence == "" {
			entry.Confidence = ConfidenceMedium
		}
		breakdown = append(breakdown, entry)

		cost = cost.Add(decimal.NewFromFloat(entry.Cost))
		hours = hours.Add(decimal.NewFromFloat(entry.Hours))
		area = area.Add(decimal.NewFromFloat(entry.Area))
	}

	adjustments, ruleWarnings := a.adjust(AdjustmentInput{Data: data, Subtotal: cost, Services: breakdown})
	warnings = append(warnings, ruleWarnings...)
	total := cost
	for _, adj := range adjustments {
		total = total.Add(decimal.NewFromFloat(adj.Value))
	}
	if total.IsNegative() {
		adjustments = append(adjustments, Adjustment{
			Type:   AdjustmentFloor,
			Value:  total.Neg().InexactFloat64(),
			Reason: "total cannot be negative",
		})
		total = decimal.Zero
	}

	conf := completion.Confidence
	if len(warnings) > 0 {
		conf = conf.Cap(ConfidenceMedium)
	}

	missing := make([]string, 0, len(completion.Missing)+len(warnings))
	missing = append(missing, completion.Missing...)
	missing = append(missing, warnings...)

	return Result{
		TotalCost:        total.InexactFloat64(),
		TotalHours:       hours.InexactFloat64(),
		TotalArea:        area.InexactFloat64(),
		ServiceBreakdown: breakdown,
		Confidence:       conf,
		MissingData:      missing,
		Adjustments:      adjustments,
		LastUpdated:      a.now(),
	}
}

// calculate isolates a single calculator call, turning panics and invalid
// output into errors.
func (a *Aggregator) calculate(svc string, mc MeasurementContext) (est ServiceEstimate, err error) {
	if a.Calculator == nil {
		return ServiceEstimate{}, fmt.Errorf("no calculator configured: %w", ErrUnknownService)
	}
	defer func() {
		if r := recover(); r != nil {
			est = ServiceEstimate{}
			err = fmt.Errorf("calculator panic: %v", r)
		}
	}()

	est, err = a.Calculator.CalculateService(svc, mc)
	if err != nil {
		return ServiceEstimate{}, err
	}
	if err := est.Validate(); err != nil {
		return ServiceEstimate{}, err
	}
	return est, nil
}

// adjust runs every rule in order. A rule that panics contributes nothing
// and is reported in warnings.
func (a *Aggregator) adjust(in AdjustmentInput) (out []Adjustment, warnings []string) {
	out = make([]Adjustment, 0)
	for i, rule := range a.Rules {
		adjs, err := runRule(rule, in)
		if err != nil {
			a.Log.Warn().Err(err).Int("rule", i).Msg("adjustment rule failed")
			warnings = append(warnings, fmt.Sprintf("adjustment rule %d: %v", i, err))
			continue
		}
		for _, adj := range adjs {
			if !finite(adj.Value) {
				a.Log.Warn().Str("type", adj.Type).Msg("dropping non-finite adjustment")
				continue
			}
			adj.Value = round2(adj.Value)
			if adj.Value == 0 {
				continue
			}
			out = append(out, adj)
		}
	}
	return out, warnings
}

func runRule(rule AdjustmentRule, in AdjustmentInput) (adjs []Adjustment, err error) {
	defer func() {
		if r := recover(); r != nil {
			adjs = nil
			err = fmt.Errorf("rule panic: %v", r)
		}
	}()
	return rule.Adjust(in), nil
}

func (a *Aggregator) displayName(svc string) string {
	if a.Namer == nil {
		return svc
	}
	if name := a.Namer.DisplayName(svc); name != "" {
		return name
	}
	return svc
}

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func hasAreaData(aw *flow.AreaOfWork) bool {
	return aw.WorkingSqft() > 0
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
