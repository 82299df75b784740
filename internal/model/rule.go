// internal/model/rule.go
package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

type ConditionType string

const (
	ConditionSpend     ConditionType = "spend"
	ConditionVisits    ConditionType = "visits"
	ConditionInactive  ConditionType = "inactive"
	ConditionPurchases ConditionType = "purchases"
	ConditionLocation  ConditionType = "location"
)

type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

func (t ConditionType) Valid() bool {
	switch t {
	case ConditionSpend, ConditionVisits, ConditionInactive, ConditionPurchases, ConditionLocation:
		return true
	}
	return false
}

func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpLess, OpEqual, OpGreaterEqual, OpLessEqual, OpContains:
		return true
	}
	return false
}

func (l Logic) Valid() bool { return l == LogicAnd || l == LogicOr }

// RuleNode is either a Condition or a RuleGroup. No other type implements it.
type RuleNode interface {
	ruleNode()
}

// Condition is a leaf rule matched against a single customer attribute.
type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    string        `json:"value"`
}

// RuleGroup combines child nodes with AND or OR.
type RuleGroup struct {
	Operator   Logic
	Conditions []RuleNode
}

func (Condition) ruleNode() {}
func (RuleGroup) ruleNode() {}

// And and Or are shorthands for building rule trees in code.
func And(nodes ...RuleNode) RuleGroup { return RuleGroup{Operator: LogicAnd, Conditions: nodes} }
func Or(nodes ...RuleNode) RuleGroup  { return RuleGroup{Operator: LogicOr, Conditions: nodes} }

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     ConditionType   `json:"type"`
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := decodeConditionValue(raw.Value)
	if err != nil {
		return err
	}
	c.Type = raw.Type
	c.Operator = raw.Operator
	c.Value = value
	return nil
}

// decodeConditionValue accepts both "5000" and 5000.
func decodeConditionValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("condition value must be a string or number, got %s", raw)
}

type ruleGroupJSON struct {
	Operator   Logic             `json:"operator"`
	Conditions []json.RawMessage `json:"conditions"`
}

func (g RuleGroup) MarshalJSON() ([]byte, error) {
	conditions := g.Conditions
	if conditions == nil {
		conditions = []RuleNode{}
	}
	return json.Marshal(struct {
		Operator   Logic      `json:"operator"`
		Conditions []RuleNode `json:"conditions"`
	}{g.Operator, conditions})
}

func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	var raw ruleGroupJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Operator = raw.Operator
	g.Conditions = make([]RuleNode, 0, len(raw.Conditions))
	for i, child := range raw.Conditions {
		node, err := UnmarshalRuleNode(child)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		g.Conditions = append(g.Conditions, node)
	}
	return nil
}

// UnmarshalRuleNode decodes a node, choosing the variant by shape: objects with
// "conditions" are groups, everything else is a condition.
func UnmarshalRuleNode(data []byte) (RuleNode, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, fmt.Errorf("rule node must be an object")
	}
	_, hasType := probe["type"]
	if _, ok := probe["conditions"]; ok {
		if hasType {
			return nil, fmt.Errorf("rule node cannot have both type and conditions")
		}
		var g RuleGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return g, nil
	}
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// Value stores the group as JSONB.
func (g RuleGroup) Value() (driver.Value, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (g *RuleGroup) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*g = RuleGroup{Operator: LogicAnd}
		return nil
	case []byte:
		return json.Unmarshal(v, g)
	case string:
		return json.Unmarshal([]byte(v), g)
	}
	return fmt.Errorf("cannot scan %T into RuleGroup", src)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %q", c.Type, c.Operator, c.Value)
}

func (g RuleGroup) String() string {
	parts := make([]string, len(g.Conditions))
	for i, child := range g.Conditions {
		parts[i] = fmt.Sprint(child)
	}
	return "(" + strings.Join(parts, " "+string(g.Operator)+" ") + ")"
}
