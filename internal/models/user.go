package models

import "sort"

// User is a server account. Login is unique per environment. Project
// memberships are stored as project id → access level.
type User struct {
	ID     int
	Login  string
	Name   string
	Access AccessLevel

	Preferences map[string]string

	memberships map[int]AccessLevel
}

func NewUser(id int, login, name string, access AccessLevel) *User {
	return &User{
		ID:          id,
		Login:       login,
		Name:        name,
		Access:      access,
		Preferences: make(map[string]string),
		memberships: make(map[int]AccessLevel),
	}
}

// SetMembership records the user's access to a project.
func (u *User) SetMembership(projectID int, access AccessLevel) {
	u.memberships[projectID] = access
}

// ProjectAccess returns the user's access to a project. Users without an
// explicit membership have no access.
func (u *User) ProjectAccess(projectID int) AccessLevel {
	if u.Access == AdminAccess {
		return AdminAccess
	}
	return u.memberships[projectID]
}

// MemberOf returns the ids of projects the user is a member of, ordered.
func (u *User) MemberOf() []int {
	out := make([]int, 0, len(u.memberships))
	for id := range u.memberships {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
