package models

import (
	"fmt"
	"strconv"

	"github.com/webissues/webissues-go/internal/codec"
)

// Built-in column identifiers. Every issue type implicitly carries these
// eight columns; they are not editable through attribute values. Columns at
// or above ColumnUserDefined address user attributes as
// ColumnUserDefined + attribute id.
const (
	ColumnID           = 0
	ColumnName         = 1
	ColumnCreatedDate  = 2
	ColumnCreatedUser  = 3
	ColumnModifiedDate = 4
	ColumnModifiedUser = 5
	ColumnProject      = 6
	ColumnFolder       = 7

	ColumnUserDefined = 1000
)

// IsBuiltinColumn reports whether col addresses one of the eight reserved
// columns rather than a user attribute.
func IsBuiltinColumn(col int) bool {
	return col >= ColumnID && col <= ColumnFolder
}

// UserColumn converts an attribute id to its column identifier.
func UserColumn(attributeID int) int { return ColumnUserDefined + attributeID }

// ColumnAttributeID converts a user column identifier back to the attribute
// id, or -1 for built-in columns.
func ColumnAttributeID(col int) int {
	if col < ColumnUserDefined {
		return -1
	}
	return col - ColumnUserDefined
}

// View is a stored issue filter belonging to one issue type.
type View struct {
	ID         int
	TypeID     int
	Name       string
	Public     bool
	Definition ViewDefinition
}

// ViewDefinition is the decoded form of a view definition string: the ordered
// visible columns, the sort key as an index into that column list, and the
// ordered filter conditions.
type ViewDefinition struct {
	Columns        []int
	SortColumn     int
	SortDescending bool
	Filters        []Condition
}

// ParseViewDefinition decodes a definition string such as
//
//	columns={"0","1","1002"} sort-column=1 sort-desc=0 filters={"EQ 1002 'low'"}
//
// The sort column must resolve within the column list.
func ParseViewDefinition(def string) (*ViewDefinition, error) {
	tokens, err := codec.ParseLine(def, ' ', '\'')
	if err != nil {
		return nil, fmt.Errorf("view definition: %w", err)
	}

	d := &ViewDefinition{}
	for _, tok := range tokens {
		key, value, err := splitKeyValue(tok)
		if err != nil {
			return nil, err
		}
		switch key {
		case "columns":
			items, err := codec.ParseGroup(value)
			if err != nil {
				return nil, fmt.Errorf("view columns: %w", err)
			}
			for _, it := range items {
				col, err := strconv.Atoi(it)
				if err != nil {
					return nil, fmt.Errorf("%w: view column %q", codec.ErrMalformed, it)
				}
				d.Columns = append(d.Columns, col)
			}
		case "sort-column":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: sort-column %q", codec.ErrMalformed, value)
			}
			d.SortColumn = n
		case "sort-desc":
			d.SortDescending = value == "1"
		case "filters":
			items, err := codec.ParseGroup(value)
			if err != nil {
				return nil, fmt.Errorf("view filters: %w", err)
			}
			for _, it := range items {
				cond, err := parseCondition(it)
				if err != nil {
					return nil, err
				}
				d.Filters = append(d.Filters, cond)
			}
		default:
			// tolerated, like unknown attribute constraints
		}
	}

	if d.SortColumn < 0 || d.SortColumn >= len(d.Columns) {
		return nil, fmt.Errorf("%w: sort column %d outside column list of %d", codec.ErrMalformed, d.SortColumn, len(d.Columns))
	}
	return d, nil
}

func parseCondition(s string) (Condition, error) {
	tokens, err := codec.ParseRow(s)
	if err != nil {
		return Condition{}, fmt.Errorf("view condition: %w", err)
	}
	if len(tokens) != 3 {
		return Condition{}, fmt.Errorf("%w: condition %q", codec.ErrMalformed, s)
	}
	col, err := strconv.Atoi(tokens[1])
	if err != nil {
		return Condition{}, fmt.Errorf("%w: condition column %q", codec.ErrMalformed, tokens[1])
	}
	return Condition{Operator: ConditionOperator(tokens[0]), Column: col, Value: tokens[2]}, nil
}
