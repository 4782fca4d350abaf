package models

import (
	"fmt"
	"strings"
)

// ConditionOperator is a view filter operator. Which operators are legal for
// an attribute is a function of the attribute's kind; see ValidFor.
type ConditionOperator string

const (
	OpEQ  ConditionOperator = "EQ"
	OpNEQ ConditionOperator = "NEQ"
	OpGT  ConditionOperator = "GT"
	OpGTE ConditionOperator = "GTE"
	OpLT  ConditionOperator = "LT"
	OpLTE ConditionOperator = "LTE"
	OpBEG ConditionOperator = "BEG"
	OpEND ConditionOperator = "END"
	OpCON ConditionOperator = "CON"
	OpIN  ConditionOperator = "IN"
)

// ValidFor reports whether the operator may be applied to an attribute of the
// given kind. Unknown kinds permit every operator, so a newer server's
// attribute kinds do not invalidate existing views.
func (op ConditionOperator) ValidFor(kind AttributeKind) bool {
	switch kind {
	case KindUser, KindEnum, KindText:
		switch op {
		case OpIN, OpNEQ, OpEQ, OpBEG, OpEND, OpCON:
			return true
		}
		return false
	case KindDateTime, KindNumeric:
		switch op {
		case OpIN, OpNEQ, OpEQ, OpGT, OpGTE, OpLT, OpLTE:
			return true
		}
		return false
	default:
		return true
	}
}

// Condition is one filter clause of a view definition. Column identifies the
// filtered column (built-in or user attribute, see view.go); Value is the
// string-encoded operand whose format depends on the attribute kind.
//
// The IN operator has two incompatible wire encodings, dispatched on kind:
// a "min-max" range for NUMERIC and DATETIME, a colon-delimited value set for
// ENUM, USER and TEXT. Both are kept as-is for wire compatibility; use
// RangeValue or SetValue according to the attribute's kind.
type Condition struct {
	Operator ConditionOperator
	Column   int
	Value    string
}

// RangeValue decodes the numeric/date form of an IN operand. A dash at the
// start of the value or right after the separator is a minus sign, not a
// separator, so negative bounds decode correctly.
func (c Condition) RangeValue() (min, max string, err error) {
	for i := 1; i < len(c.Value); i++ {
		if c.Value[i] == '-' && c.Value[i-1] != '-' {
			return c.Value[:i], c.Value[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("condition value %q is not a range", c.Value)
}

// SetValue decodes the enum/user/text form of an IN operand.
func (c Condition) SetValue() []string {
	if c.Value == "" {
		return nil
	}
	return strings.Split(c.Value, ":")
}

// EncodeRange builds the numeric/date IN operand.
func EncodeRange(min, max string) string {
	return min + "-" + max
}

// EncodeSet builds the enum/user/text IN operand.
func EncodeSet(values []string) string {
	return strings.Join(values, ":")
}

// Validate checks the condition against the attribute it targets.
func (c Condition) Validate(a *Attribute) error {
	if !c.Operator.ValidFor(a.Kind) {
		return fmt.Errorf("operator %s is not valid for %s attribute %q", c.Operator, a.Kind, a.Name)
	}
	return nil
}
