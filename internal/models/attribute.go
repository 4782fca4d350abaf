package models

import (
	"fmt"
	"math"
	"strconv"

	"github.com/webissues/webissues-go/internal/codec"
)

// AttributeKind names one of the five attribute value kinds. The values match
// the leading token of a server-side attribute definition string.
type AttributeKind string

const (
	KindText     AttributeKind = "TEXT"
	KindEnum     AttributeKind = "ENUM"
	KindNumeric  AttributeKind = "NUMERIC"
	KindUser     AttributeKind = "USER"
	KindDateTime AttributeKind = "DATETIME"
)

// Attribute is one user-defined attribute of an issue type. Kind is immutable
// after creation; the kind-specific constraint fields are meaningful only for
// the matching kind and hold their documented defaults otherwise.
type Attribute struct {
	ID       int
	TypeID   int
	Name     string
	Kind     AttributeKind
	Required bool
	Default  string

	// TEXT
	MaxLength int

	// ENUM
	Options []string

	// NUMERIC
	MinValue float64
	MaxValue float64
	Decimals int

	// DATETIME
	DateOnly bool

	// USER
	MembersOnly bool
}

// ParseAttributeDefinition decodes a definition string such as
//
//	ENUM items={"low","high"} required=1 default="low"
//
// into an Attribute carrying the kind and its constraints. Values may be
// single- or double-quoted. Identity fields (ID, TypeID, Name) are left for
// the caller.
func ParseAttributeDefinition(def string) (*Attribute, error) {
	tokens, err := codec.ParseFields(def, ' ', `'"`)
	if err != nil {
		return nil, fmt.Errorf("attribute definition: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty attribute definition", codec.ErrMalformed)
	}

	a := &Attribute{Kind: AttributeKind(tokens[0])}

	switch a.Kind {
	case KindText:
		a.MaxLength = math.MaxInt
	case KindNumeric:
		a.MinValue = math.MinInt
		a.MaxValue = math.MaxInt
	case KindDateTime:
		a.DateOnly = true
	case KindEnum, KindUser:
		// defaults are zero values
	default:
		return nil, fmt.Errorf("%w: unknown attribute kind %q", codec.ErrMalformed, tokens[0])
	}

	for _, tok := range tokens[1:] {
		key, value, err := splitKeyValue(tok)
		if err != nil {
			return nil, err
		}
		if err := a.applyConstraint(key, value); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func splitKeyValue(tok string) (string, string, error) {
	kv, err := codec.ParseLine(tok, '=', '"')
	if err != nil {
		return "", "", fmt.Errorf("attribute definition: %w", err)
	}
	if len(kv) != 2 {
		return "", "", fmt.Errorf("%w: expected key=value, got %q", codec.ErrMalformed, tok)
	}
	return kv[0], kv[1], nil
}

func (a *Attribute) applyConstraint(key, value string) error {
	switch key {
	case "required":
		a.Required = value == "1"
	case "default":
		a.Default = value
	case "max-length":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: max-length %q", codec.ErrMalformed, value)
		}
		a.MaxLength = n
	case "items":
		items, err := codec.ParseGroup(value)
		if err != nil {
			return fmt.Errorf("attribute items: %w", err)
		}
		a.Options = items
	case "min-value", "max-value":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s %q", codec.ErrMalformed, key, value)
		}
		if key == "min-value" {
			a.MinValue = f
		} else {
			a.MaxValue = f
		}
	case "decimal":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: decimal %q", codec.ErrMalformed, value)
		}
		a.Decimals = n
	case "time":
		a.DateOnly = value != "1"
	case "members":
		a.MembersOnly = value == "1"
	default:
		// Servers grow new constraint keys; unknown ones are ignored.
	}
	return nil
}
