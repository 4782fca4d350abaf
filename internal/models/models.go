// Package models defines the typed WebIssues entities: users, projects,
// folders, issue types with their attributes and views, issues and their
// change history. Entities carry integer identities and reference each other
// by id; relationships are resolved through the owning environment snapshot,
// never through embedded object pointers.
package models

// AccessLevel is a user's access to the system or to one project.
type AccessLevel int

const (
	NoAccess     AccessLevel = 0
	NormalAccess AccessLevel = 1
	AdminAccess  AccessLevel = 2
)

func (a AccessLevel) String() string {
	switch a {
	case NoAccess:
		return "none"
	case NormalAccess:
		return "normal"
	case AdminAccess:
		return "admin"
	default:
		return "unknown"
	}
}
