package models

import "time"

// Wire formats for DATETIME attribute values and issue timestamps.
const (
	DateTimeFormat = "2006-01-02 15:04"
	DateFormat     = "2006-01-02"
)

// ParseDateTime decodes a wire timestamp, accepting both the full and the
// date-only form.
func ParseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(DateTimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(DateFormat, s)
}

// FormatDateTime encodes t for the wire, honoring the attribute's date-only
// constraint.
func FormatDateTime(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.Format(DateFormat)
	}
	return t.Format(DateTimeFormat)
}

// Issue is one issue header. Values maps attribute id to the raw
// string-encoded value; built-in columns are carried by the struct fields.
type Issue struct {
	ID       int
	FolderID int
	Name     string
	Stamp    int

	CreatedDate  time.Time
	CreatedUser  int
	ModifiedDate time.Time
	ModifiedUser int

	Read   bool
	Values map[int]string
}

// IsNew reports whether the issue has never been synchronized; a zero stamp
// means the server has not assigned one yet.
func (i *Issue) IsNew() bool { return i.Stamp == 0 }

// Value returns the raw value of an attribute, or the empty string.
func (i *Issue) Value(attributeID int) string {
	return i.Values[attributeID]
}

// SetValue records an attribute value, allocating the map on first use.
func (i *Issue) SetValue(attributeID int, value string) {
	if i.Values == nil {
		i.Values = make(map[int]string)
	}
	i.Values[attributeID] = value
}
