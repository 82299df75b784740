package segment

import (
	"math"
	"sort"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

// Calibration holds the heuristic constants used by the Estimator. The zero value is
// not useful; start from DefaultCalibration and override fields.
type Calibration struct {
	// Scale constants: a ">" threshold of v keeps 1 - v/Above of the audience, a "<"
	// threshold keeps v/Below of it.
	SpendAbove     float64
	SpendBelow     float64
	VisitsAbove    float64
	VisitsBelow    float64
	PurchasesAbove float64
	PurchasesBelow float64

	SpendFloor float64
	SpendCap   float64
	// CountFloor and CountCap bound the visits and purchases factors.
	CountFloor float64
	CountCap   float64

	InactiveScale float64
	InactiveCap   float64

	LocationFactor float64
	DefaultFactor  float64

	// NestedGroupShare is the share of the population a nested group inside an OR
	// is estimated against, modelling partial overlap with its siblings.
	NestedGroupShare float64
	// OverlapWeight scales the contribution of every OR member after the largest:
	// the member at rank i adds OverlapWeight/i of its size.
	OverlapWeight float64
}

func DefaultCalibration() Calibration {
	return Calibration{
		SpendAbove:       50000,
		SpendBelow:       20000,
		VisitsAbove:      20,
		VisitsBelow:      10,
		PurchasesAbove:   10,
		PurchasesBelow:   5,
		SpendFloor:       0.05,
		SpendCap:         0.95,
		CountFloor:       0.1,
		CountCap:         0.9,
		InactiveScale:    100,
		InactiveCap:      0.9,
		LocationFactor:   0.3,
		DefaultFactor:    0.5,
		NestedGroupShare: 0.7,
		OverlapWeight:    0.3,
	}
}

// AudienceEstimate is the preview result. It is an approximation and must never
// be used to pick recipients.
type AudienceEstimate struct {
	TotalAudience int     `json:"totalAudience"`
	AudienceSize  int     `json:"audienceSize"`
	Percentage    float64 `json:"percentage"`
}

// Estimator approximates how many customers a rule tree matches without reading
// any customer records.
type Estimator struct {
	Calibration Calibration
}

func NewEstimator() *Estimator {
	return &Estimator{Calibration: DefaultCalibration()}
}

// Estimate returns the approximate match count against a population of total.
func (e *Estimator) Estimate(node model.RuleNode, total int) AudienceEstimate {
	if total < 0 {
		total = 0
	}
	size := int(math.Round(e.estimate(node, float64(total))))
	if size < 0 {
		size = 0
	}
	if size > total {
		size = total
	}
	est := AudienceEstimate{TotalAudience: total, AudienceSize: size}
	if total > 0 {
		est.Percentage = math.Round(float64(size)/float64(total)*1000) / 10
	}
	return est
}

func (e *Estimator) estimate(node model.RuleNode, population float64) float64 {
	switch n := node.(type) {
	case model.Condition:
		return e.applyFactor(n, population)
	case *model.Condition:
		if n != nil {
			return e.applyFactor(*n, population)
		}
	case model.RuleGroup:
		return e.estimateGroup(n, population)
	case *model.RuleGroup:
		if n != nil {
			return e.estimateGroup(*n, population)
		}
	}
	return population
}

func (e *Estimator) estimateGroup(g model.RuleGroup, population float64) float64 {
	if len(g.Conditions) == 0 {
		return population
	}
	if g.Operator == model.LogicAnd {
		current := population
		for _, child := range g.Conditions {
			current = e.estimate(child, current)
		}
		return current
	}

	sizes := make([]float64, 0, len(g.Conditions))
	for _, child := range g.Conditions {
		if isGroup(child) {
			sizes = append(sizes, e.estimate(child, population*e.Calibration.NestedGroupShare))
			continue
		}
		sizes = append(sizes, e.estimate(child, population))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))

	result := sizes[0]
	for i := 1; i < len(sizes); i++ {
		result += sizes[i] * (e.Calibration.OverlapWeight / float64(i))
	}
	return math.Min(result, population)
}

func (e *Estimator) applyFactor(c model.Condition, population float64) float64 {
	return math.Round(population * e.Factor(c))
}

// Factor is the share of an audience a single condition is assumed to keep.
func (e *Estimator) Factor(c model.Condition) float64 {
	cal := e.Calibration
	factor := 1.0
	switch c.Type {
	case model.ConditionSpend:
		factor = thresholdFactor(c, parseNumber(c.Value), cal.SpendAbove, cal.SpendBelow, cal.SpendFloor, cal.SpendCap)
	case model.ConditionVisits:
		factor = thresholdFactor(c, parseInt(c.Value), cal.VisitsAbove, cal.VisitsBelow, cal.CountFloor, cal.CountCap)
	case model.ConditionPurchases:
		factor = thresholdFactor(c, parseInt(c.Value), cal.PurchasesAbove, cal.PurchasesBelow, cal.CountFloor, cal.CountCap)
	case model.ConditionInactive:
		factor = math.Min(cal.InactiveCap, parseInt(c.Value)/cal.InactiveScale)
	case model.ConditionLocation:
		factor = cal.LocationFactor
	default:
		factor = cal.DefaultFactor
	}
	return clamp01(factor)
}

func thresholdFactor(c model.Condition, v, above, below, floor, ceiling float64) float64 {
	switch c.Operator {
	case model.OpGreater, model.OpGreaterEqual:
		return math.Max(floor, 1-v/above)
	case model.OpLess, model.OpLessEqual:
		return math.Min(ceiling, v/below)
	}
	// "=" and mismatched operators leave the audience as is
	return 1
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func isGroup(node model.RuleNode) bool {
	switch node.(type) {
	case model.RuleGroup, *model.RuleGroup:
		return true
	}
	return false
}
