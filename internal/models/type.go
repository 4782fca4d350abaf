package models

import "sort"

// Type is one issue type. It owns its attributes and views as child
// collections exposed through lookup and iteration methods.
type Type struct {
	ID   int
	Name string

	attributes map[int]*Attribute
	views      map[int]*View
}

func NewType(id int, name string) *Type {
	return &Type{
		ID:         id,
		Name:       name,
		attributes: make(map[int]*Attribute),
		views:      make(map[int]*View),
	}
}

// AddAttribute inserts or replaces an attribute by id.
func (t *Type) AddAttribute(a *Attribute) {
	a.TypeID = t.ID
	t.attributes[a.ID] = a
}

// Attribute returns the attribute with the given id, or nil.
func (t *Type) Attribute(id int) *Attribute {
	return t.attributes[id]
}

// Attributes returns the attributes ordered by id.
func (t *Type) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(t.attributes))
	for _, a := range t.attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AttributeForColumn resolves a view column to this type's attribute, or nil
// for built-in and unknown columns.
func (t *Type) AttributeForColumn(col int) *Attribute {
	id := ColumnAttributeID(col)
	if id < 0 {
		return nil
	}
	return t.attributes[id]
}

// AddView inserts or replaces a view by id.
func (t *Type) AddView(v *View) {
	v.TypeID = t.ID
	t.views[v.ID] = v
}

// View returns the view with the given id, or nil.
func (t *Type) View(id int) *View {
	return t.views[id]
}

// Views returns the views ordered by id.
func (t *Type) Views() []*View {
	out := make([]*View, 0, len(t.views))
	for _, v := range t.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
