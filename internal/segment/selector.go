package segment

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

// Field is a customers column a predicate can reference.
type Field string

const (
	FieldTotalSpend   Field = "total_spend"
	FieldVisits       Field = "visits"
	FieldPurchases    Field = "purchases"
	FieldLastActiveAt Field = "last_active_at"
	FieldCity         Field = "city"
	FieldState        Field = "state"
	FieldCountry      Field = "country"
)

// Predicate is a storage-level filter over customers. Every predicate can be
// rendered as SQL and checked in memory; both forms select the same rows.
type Predicate interface {
	Match(c *model.Customer) bool
	writeSQL(w *whereBuilder) string
}

// Compare is "field op value". Value is a float64 for numeric fields and a
// time.Time for last_active_at.
type Compare struct {
	Field Field
	Op    model.Operator
	Value interface{}
}

// Between is an inclusive time window on a timestamp field.
type Between struct {
	Field    Field
	From, To time.Time
}

// ContainsAny is a case-insensitive substring match against any of Fields.
type ContainsAny struct {
	Fields []Field
	Needle string
}

type All []Predicate
type Any []Predicate

// Always and Never are the constant predicates.
type Always struct{}
type Never struct{}

func (p Compare) Match(c *model.Customer) bool {
	if p.Field == FieldLastActiveAt {
		want, ok := p.Value.(time.Time)
		if !ok {
			return false
		}
		return compareTime(c.LastActiveAt, p.Op, want)
	}
	want, ok := p.Value.(float64)
	if !ok {
		return false
	}
	switch p.Field {
	case FieldTotalSpend:
		return compare(c.TotalSpend, p.Op, want)
	case FieldVisits:
		return compare(float64(c.Visits), p.Op, want)
	case FieldPurchases:
		return compare(float64(c.Purchases), p.Op, want)
	}
	return false
}

func (p Between) Match(c *model.Customer) bool {
	if p.Field != FieldLastActiveAt {
		return false
	}
	return !c.LastActiveAt.Before(p.From) && !c.LastActiveAt.After(p.To)
}

func (p ContainsAny) Match(c *model.Customer) bool {
	needle := strings.ToLower(p.Needle)
	if needle == "" {
		return false
	}
	for _, f := range p.Fields {
		if strings.Contains(strings.ToLower(textField(c, f)), needle) {
			return true
		}
	}
	return false
}

func (p All) Match(c *model.Customer) bool {
	for _, child := range p {
		if !child.Match(c) {
			return false
		}
	}
	return true
}

func (p Any) Match(c *model.Customer) bool {
	for _, child := range p {
		if child.Match(c) {
			return true
		}
	}
	return false
}

func (Always) Match(*model.Customer) bool { return true }
func (Never) Match(*model.Customer) bool  { return false }

func textField(c *model.Customer, f Field) string {
	switch f {
	case FieldCity:
		return c.Location.City
	case FieldState:
		return c.Location.State
	case FieldCountry:
		return c.Location.Country
	}
	return ""
}

func compareTime(actual time.Time, op model.Operator, want time.Time) bool {
	switch op {
	case model.OpGreater:
		return actual.After(want)
	case model.OpLess:
		return actual.Before(want)
	case model.OpEqual:
		return actual.Equal(want)
	case model.OpGreaterEqual:
		return !actual.Before(want)
	case model.OpLessEqual:
		return !actual.After(want)
	}
	return false
}

// maxInactiveDays keeps cutoff arithmetic inside time.Duration's range.
const maxInactiveDays = 100 * 365

// Selector translates rule trees into storage predicates. Inactivity cutoffs are
// computed from Now at translation time.
type Selector struct {
	Now func() time.Time
}

func (s Selector) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Translate builds the predicate for a rule tree. Nested groups become nested
// composite predicates; nothing is flattened or dropped.
func (s Selector) Translate(node model.RuleNode) Predicate {
	return s.translate(node, s.now())
}

func (s Selector) translate(node model.RuleNode, now time.Time) Predicate {
	switch n := node.(type) {
	case model.Condition:
		return translateCondition(n, now)
	case *model.Condition:
		if n != nil {
			return translateCondition(*n, now)
		}
	case model.RuleGroup:
		return s.translateGroup(n, now)
	case *model.RuleGroup:
		if n != nil {
			return s.translateGroup(*n, now)
		}
	}
	return Never{}
}

func (s Selector) translateGroup(g model.RuleGroup, now time.Time) Predicate {
	if len(g.Conditions) == 0 {
		return Always{}
	}
	children := make([]Predicate, 0, len(g.Conditions))
	for _, child := range g.Conditions {
		children = append(children, s.translate(child, now))
	}
	switch g.Operator {
	case model.LogicAnd:
		return All(children)
	case model.LogicOr:
		return Any(children)
	}
	return Never{}
}

func translateCondition(c model.Condition, now time.Time) Predicate {
	switch c.Type {
	case model.ConditionSpend:
		return numericPredicate(FieldTotalSpend, c.Operator, parseNumber(c.Value))
	case model.ConditionVisits:
		return numericPredicate(FieldVisits, c.Operator, parseInt(c.Value))
	case model.ConditionPurchases:
		return numericPredicate(FieldPurchases, c.Operator, parseInt(c.Value))
	case model.ConditionInactive:
		days := math.Max(-maxInactiveDays, math.Min(parseInt(c.Value), maxInactiveDays))
		cutoff := now.Add(-time.Duration(days * float64(day)))
		// more days inactive means an older last_active_at, so the comparison flips
		switch c.Operator {
		case model.OpGreater:
			return Compare{Field: FieldLastActiveAt, Op: model.OpLess, Value: cutoff}
		case model.OpLess:
			return Compare{Field: FieldLastActiveAt, Op: model.OpGreater, Value: cutoff}
		case model.OpGreaterEqual:
			return Compare{Field: FieldLastActiveAt, Op: model.OpLessEqual, Value: cutoff}
		case model.OpLessEqual:
			return Compare{Field: FieldLastActiveAt, Op: model.OpGreaterEqual, Value: cutoff}
		case model.OpEqual:
			return Between{Field: FieldLastActiveAt, From: cutoff.Add(-day), To: cutoff.Add(day)}
		}
	case model.ConditionLocation:
		needle := strings.TrimSpace(c.Value)
		if c.Operator == model.OpContains && needle != "" {
			return ContainsAny{Fields: []Field{FieldCity, FieldState, FieldCountry}, Needle: needle}
		}
	}
	return Never{}
}

func numericPredicate(f Field, op model.Operator, v float64) Predicate {
	switch op {
	case model.OpGreater, model.OpLess, model.OpEqual, model.OpGreaterEqual, model.OpLessEqual:
		return Compare{Field: f, Op: op, Value: v}
	}
	return Never{}
}

// BuildWhere renders a predicate as a Postgres boolean expression with $n
// placeholders starting at $1.
func BuildWhere(p Predicate) (string, []interface{}) {
	w := &whereBuilder{}
	return p.writeSQL(w), w.args
}

type whereBuilder struct {
	args []interface{}
}

func (w *whereBuilder) arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (p Compare) writeSQL(w *whereBuilder) string {
	return fmt.Sprintf("%s %s %s", p.Field, p.Op, w.arg(p.Value))
}

func (p Between) writeSQL(w *whereBuilder) string {
	return fmt.Sprintf("(%s >= %s AND %s <= %s)", p.Field, w.arg(p.From), p.Field, w.arg(p.To))
}

func (p ContainsAny) writeSQL(w *whereBuilder) string {
	if p.Needle == "" || len(p.Fields) == 0 {
		return "FALSE"
	}
	ph := w.arg("%" + escapeLike(p.Needle) + "%")
	parts := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		parts[i] = fmt.Sprintf("%s ILIKE %s", f, ph)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (p All) writeSQL(w *whereBuilder) string {
	return joinSQL(w, p, " AND ", "TRUE")
}

func (p Any) writeSQL(w *whereBuilder) string {
	return joinSQL(w, p, " OR ", "FALSE")
}

func (Always) writeSQL(*whereBuilder) string { return "TRUE" }
func (Never) writeSQL(*whereBuilder) string  { return "FALSE" }

func joinSQL(w *whereBuilder, preds []Predicate, sep, empty string) string {
	if len(preds) == 0 {
		return empty
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.writeSQL(w)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
