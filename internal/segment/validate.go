package segment

import (
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/model"
)

// Validate checks a rule tree before it is stored, estimated or used for selection.
// Empty groups are rejected here even though evaluation treats them as a match.
func Validate(rules model.RuleGroup) error {
	return validateGroup(rules, "segmentRules")
}

// ValidateNode validates any node, leaf or group.
func ValidateNode(node model.RuleNode) error {
	return validateNode(node, "segmentRules")
}

func validateNode(node model.RuleNode, path string) error {
	switch n := node.(type) {
	case model.Condition:
		return validateCondition(n, path)
	case *model.Condition:
		if n != nil {
			return validateCondition(*n, path)
		}
	case model.RuleGroup:
		return validateGroup(n, path)
	case *model.RuleGroup:
		if n != nil {
			return validateGroup(*n, path)
		}
	}
	return appErrors.NewValidationError(path, "rule node is missing")
}

func validateGroup(g model.RuleGroup, path string) error {
	if !g.Operator.Valid() {
		return appErrors.NewValidationError(path+".operator", "operator must be AND or OR")
	}
	if len(g.Conditions) == 0 {
		return appErrors.NewValidationError(path+".conditions", "conditions must be a non-empty array")
	}
	for i, child := range g.Conditions {
		if err := validateNode(child, fmt.Sprintf("%s.conditions[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(c model.Condition, path string) error {
	switch {
	case c.Type == "":
		return appErrors.NewValidationError(path+".type", "type is required")
	case !c.Type.Valid():
		return appErrors.NewValidationError(path+".type", fmt.Sprintf("unknown type %q", c.Type))
	case c.Operator == "":
		return appErrors.NewValidationError(path+".operator", "operator is required")
	case !c.Operator.Valid():
		return appErrors.NewValidationError(path+".operator", fmt.Sprintf("unknown operator %q", c.Operator))
	case strings.TrimSpace(c.Value) == "":
		return appErrors.NewValidationError(path+".value", "value is required")
	}
	return nil
}
