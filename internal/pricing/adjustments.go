package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/liveprice/internal/flow"
)

// AdjustmentInput is what a rule sees when it runs.
type AdjustmentInput struct {
	Data     flow.Data
	Subtotal decimal.Decimal
	Services []ServiceBreakdownEntry
}

// AdjustmentRule produces zero or more adjustments for a priced flow.
type AdjustmentRule interface {
	Adjust(in AdjustmentInput) []Adjustment
}

// AdjustmentRuleFunc adapts a function to AdjustmentRule.
type AdjustmentRuleFunc func(in AdjustmentInput) []Adjustment

func (f AdjustmentRuleFunc) Adjust(in AdjustmentInput) []Adjustment { return f(in) }

// HeightRiskPolicy configures the high-rise premium.
type HeightRiskPolicy struct {
	ThresholdStories int
	BasePercent      float64
	PerStoryPercent  float64
	FlatPerStory     float64
	FeetPerStory     float64
}

// DefaultHeightRiskPolicy returns the production policy: a premium from 20
// stories up of 10% plus 1% per story over the threshold, with a flat 25 per
// story so the premium stays positive when the subtotal is zero.
func DefaultHeightRiskPolicy() HeightRiskPolicy {
	return HeightRiskPolicy{
		ThresholdStories: 20,
		BasePercent:      10,
		PerStoryPercent:  1,
		FlatPerStory:     25,
		FeetPerStory:     10,
	}
}

// Valid reports whether the policy can produce a positive, monotonic premium.
func (p HeightRiskPolicy) Valid() bool {
	for _, v := range []float64{p.BasePercent, p.PerStoryPercent, p.FlatPerStory, p.FeetPerStory} {
		if !finite(v) {
			return false
		}
	}
	return p.ThresholdStories > 0 && p.BasePercent >= 0 && p.PerStoryPercent >= 0 &&
		p.FlatPerStory > 0 && p.FeetPerStory > 0
}

// Premium returns the risk premium for the given height over subtotal, and
// false below the threshold.
func (p HeightRiskPolicy) Premium(stories int, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	if stories < p.ThresholdStories {
		return decimal.Zero, false
	}
	over := decimal.NewFromInt(int64(stories - p.ThresholdStories))
	rate := decimal.NewFromFloat(p.BasePercent).Add(decimal.NewFromFloat(p.PerStoryPercent).Mul(over))
	value := subtotal.Mul(rate).Div(hundred).
		Add(decimal.NewFromFloat(p.FlatPerStory).Mul(over.Add(decimal.NewFromInt(1))))
	return value.Round(2), true
}

// HeightRisk adds a risk premium for high-rise work.
type HeightRisk struct {
	Policy HeightRiskPolicy
}

func (h HeightRisk) Adjust(in AdjustmentInput) []Adjustment {
	stories := in.Data.AreaOfWork.Stories(h.Policy.FeetPerStory)
	value, ok := h.Policy.Premium(stories, in.Subtotal)
	if !ok {
		return nil
	}
	return []Adjustment{{
		Type:   AdjustmentRisk,
		Value:  value.InexactFloat64(),
		Reason: fmt.Sprintf("high-rise access: %d stories (threshold %d)", stories, h.Policy.ThresholdStories),
	}}
}

// Overrides turns the pricing step's discount, surcharge and manual line
// items into adjustments.
type Overrides struct{}

func (Overrides) Adjust(in AdjustmentInput) []Adjustment {
	po := in.Data.Pricing
	if po == nil {
		return nil
	}

	var out []Adjustment
	if pct := clampPercent(po.DiscountPercent); pct > 0 {
		value := in.Subtotal.Mul(percent(pct)).Round(2).Neg()
		if !value.IsZero() {
			out = append(out, Adjustment{
				Type:   AdjustmentDiscount,
				Value:  value.InexactFloat64(),
				Reason: fmt.Sprintf("%s%% discount", decimal.NewFromFloat(pct).String()),
			})
		}
	}
	if finite(po.SurchargePercent) && po.SurchargePercent > 0 {
		value := in.Subtotal.Mul(percent(po.SurchargePercent)).Round(2)
		reason := strings.TrimSpace(po.SurchargeReason)
		if reason == "" {
			reason = fmt.Sprintf("%s%% surcharge", decimal.NewFromFloat(po.SurchargePercent).String())
		}
		if !value.IsZero() {
			out = append(out, Adjustment{Type: AdjustmentSurcharge, Value: value.InexactFloat64(), Reason: reason})
		}
	}
	for _, m := range po.ManualAdjustments {
		if !finite(m.Value) {
			continue
		}
		value := decimal.NewFromFloat(m.Value).Round(2)
		if value.IsZero() {
			continue
		}
		kind := strings.TrimSpace(m.Type)
		if kind == "" {
			kind = AdjustmentManual
		}
		out = append(out, Adjustment{Type: kind, Value: value.InexactFloat64(), Reason: strings.TrimSpace(m.Reason)})
	}
	return out
}

// clampPercent limits p to 0-100. Non-finite input counts as absent.
func clampPercent(p float64) float64 {
	if !finite(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// DefaultAdjustmentRules returns the built-in rules in evaluation order.
func DefaultAdjustmentRules(height HeightRiskPolicy) []AdjustmentRule {
	return []AdjustmentRule{HeightRisk{Policy: height}, Overrides{}}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
