package session

import (
	"sort"

	"github.com/google/uuid"

	"github.com/webissues/webissues-go/internal/models"
)

// Environment is the in-memory snapshot of server-side reference data for one
// session: users, projects with their folders, and issue types. It exists
// only while the session is connected; the Online flag toggles independently
// of the snapshot's lifetime.
//
// Child collections are replaced wholesale on every full reload and mutated
// incrementally by individual operations.
type Environment struct {
	Version    string
	ServerName string
	UUID       uuid.UUID
	UserID     int
	Access     models.AccessLevel
	Features   []string
	Online     bool

	users    map[int]*models.User
	projects map[int]*models.Project
	types    map[int]*models.Type
}

func NewEnvironment() *Environment {
	return &Environment{
		users:    make(map[int]*models.User),
		projects: make(map[int]*models.Project),
		types:    make(map[int]*models.Type),
	}
}

// User returns the user with the given id, or nil.
func (e *Environment) User(id int) *models.User { return e.users[id] }

// Users returns all users ordered by id.
func (e *Environment) Users() []*models.User {
	out := make([]*models.User, 0, len(e.users))
	for _, u := range e.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CurrentUser returns the logged-in user, or nil before login or after the
// user list was reloaded without them.
func (e *Environment) CurrentUser() *models.User { return e.users[e.UserID] }

// Project returns the project with the given id, or nil.
func (e *Environment) Project(id int) *models.Project { return e.projects[id] }

// Projects returns all projects ordered by id.
func (e *Environment) Projects() []*models.Project {
	out := make([]*models.Project, 0, len(e.projects))
	for _, p := range e.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Type returns the issue type with the given id, or nil.
func (e *Environment) Type(id int) *models.Type { return e.types[id] }

// Types returns all issue types ordered by id.
func (e *Environment) Types() []*models.Type {
	out := make([]*models.Type, 0, len(e.types))
	for _, t := range e.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Folder resolves a folder id across all projects, or nil.
func (e *Environment) Folder(id int) *models.Folder {
	for _, p := range e.projects {
		if f := p.Folder(id); f != nil {
			return f
		}
	}
	return nil
}

// Folders returns every folder of every project, ordered by id.
func (e *Environment) Folders() []*models.Folder {
	var out []*models.Folder
	for _, p := range e.projects {
		out = append(out, p.Folders()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FolderType resolves the issue type of a folder, or nil.
func (e *Environment) FolderType(folderID int) *models.Type {
	f := e.Folder(folderID)
	if f == nil {
		return nil
	}
	return e.types[f.TypeID]
}

// HasFeature reports whether the (legacy) server announced the named feature.
func (e *Environment) HasFeature(name string) bool {
	for _, f := range e.Features {
		if f == name {
			return true
		}
	}
	return false
}

// AddProject appends a project to the live snapshot.
func (e *Environment) AddProject(p *models.Project) { e.projects[p.ID] = p }

// replaceUsers swaps the live user collection. Callers only invoke it with a
// fully parsed replacement, never a partial one.
func (e *Environment) replaceUsers(users map[int]*models.User) { e.users = users }

func (e *Environment) replaceProjects(projects map[int]*models.Project) { e.projects = projects }

func (e *Environment) replaceTypes(types map[int]*models.Type) { e.types = types }

// clear resets the snapshot to its just-constructed state.
func (e *Environment) clear() {
	e.Version = ""
	e.ServerName = ""
	e.UUID = uuid.Nil
	e.UserID = 0
	e.Access = models.NoAccess
	e.Features = nil
	e.Online = false
	e.users = make(map[int]*models.User)
	e.projects = make(map[int]*models.Project)
	e.types = make(map[int]*models.Type)
}
