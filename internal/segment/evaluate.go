// Package segment evaluates, validates, estimates and translates campaign
// segment rule trees.
package segment

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

const day = 24 * time.Hour

// Evaluator matches rule trees against individual customers. Now is injectable so
// inactivity rules are deterministic in tests; nil means time.Now.
type Evaluator struct {
	Now func() time.Time
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate reports whether the customer matches the rule tree, using the wall clock.
func Evaluate(node model.RuleNode, c *model.Customer) bool {
	return Evaluator{}.Evaluate(node, c)
}

func (e Evaluator) Evaluate(node model.RuleNode, c *model.Customer) bool {
	switch n := node.(type) {
	case model.Condition:
		return e.Matches(n, c)
	case *model.Condition:
		return n != nil && e.Matches(*n, c)
	case model.RuleGroup:
		return e.evaluateGroup(n, c)
	case *model.RuleGroup:
		return n != nil && e.evaluateGroup(*n, c)
	}
	return false
}

func (e Evaluator) evaluateGroup(g model.RuleGroup, c *model.Customer) bool {
	// vacuous match, same as the estimator and the selector
	if len(g.Conditions) == 0 {
		return true
	}
	switch g.Operator {
	case model.LogicAnd:
		for _, child := range g.Conditions {
			if !e.Evaluate(child, c) {
				return false
			}
		}
		return true
	case model.LogicOr:
		for _, child := range g.Conditions {
			if e.Evaluate(child, c) {
				return true
			}
		}
		return false
	}
	return false
}

// Matches evaluates a single leaf condition. Unknown type/operator pairs never match.
func (e Evaluator) Matches(cond model.Condition, c *model.Customer) bool {
	if c == nil {
		return false
	}
	switch cond.Type {
	case model.ConditionSpend:
		return compare(c.TotalSpend, cond.Operator, parseNumber(cond.Value))
	case model.ConditionVisits:
		return compare(float64(c.Visits), cond.Operator, parseInt(cond.Value))
	case model.ConditionPurchases:
		return compare(float64(c.Purchases), cond.Operator, parseInt(cond.Value))
	case model.ConditionInactive:
		days := DaysSince(c.LastActiveAt, e.now())
		target := parseInt(cond.Value)
		if cond.Operator == model.OpEqual {
			// ±1 day tolerates clock skew
			return math.Abs(days-target) <= 1
		}
		return compare(days, cond.Operator, target)
	case model.ConditionLocation:
		if cond.Operator != model.OpContains {
			return false
		}
		return locationContains(c.Location, cond.Value)
	}
	return false
}

// DaysSince returns the elapsed days between t and now, fractional and negative
// for a future t. It is not rounded so it agrees with the selector's cutoff.
func DaysSince(t, now time.Time) float64 {
	return float64(now.Sub(t)) / float64(day)
}

func compare(actual float64, op model.Operator, want float64) bool {
	switch op {
	case model.OpGreater:
		return actual > want
	case model.OpLess:
		return actual < want
	case model.OpEqual:
		return actual == want
	case model.OpGreaterEqual:
		return actual >= want
	case model.OpLessEqual:
		return actual <= want
	}
	return false
}

func locationContains(loc model.Location, value string) bool {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return false
	}
	for _, field := range []string{loc.City, loc.State, loc.Country} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// parseNumber reads the leading number of s; anything unparseable is 0.
func parseNumber(s string) float64 {
	m := numericPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) float64 {
	return math.Trunc(parseNumber(s))
}
