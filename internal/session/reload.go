package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/models"
	"github.com/webissues/webissues-go/internal/progress"
)

// reloadAll repopulates the snapshot in fixed dependency order: types before
// projects/folders before users. Folders reference issue types by id and user
// memberships reference projects by id, both resolved at parse time; a row
// arriving before its referent is a hard protocol error, not a warning, since
// tolerating it would leave the cache silently inconsistent.
//
// Each phase parses the full response into a temporary collection and only
// then swaps it in, so a parse failure never leaves a live collection
// half-updated.
func (s *Session) reloadAll(ctx context.Context, mon progress.Monitor) error {
	if err := s.reloadTypes(ctx, mon); err != nil {
		return err
	}
	mon.Progressed(1)

	if err := s.reloadProjects(ctx, mon); err != nil {
		return err
	}
	mon.Progressed(1)

	if err := s.reloadUsers(ctx, mon); err != nil {
		return err
	}
	mon.Progressed(1)

	return nil
}

// reloadTypes fetches issue types with their attributes (LIST TYPES) and
// their stored views (LIST VIEWS). The two responses build one temporary
// collection; the live one is swapped only after both parse.
func (s *Session) reloadTypes(ctx context.Context, mon progress.Monitor) error {
	resp, err := s.roundTrip(ctx, mon, "LIST TYPES")
	if err != nil {
		return err
	}

	types := make(map[int]*models.Type)
	for _, row := range resp.Rows {
		switch row[0] {
		case "T":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			name, err := field(row, 2)
			if err != nil {
				return err
			}
			types[id] = models.NewType(id, name)

		case "A":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			typeID, err := atoi(row, 2)
			if err != nil {
				return err
			}
			typ, ok := types[typeID]
			if !ok {
				return fmt.Errorf("%w: attribute %d references unknown type %d", codec.ErrMalformed, id, typeID)
			}
			name, err := field(row, 3)
			if err != nil {
				return err
			}
			def, err := field(row, 4)
			if err != nil {
				return err
			}
			attr, err := models.ParseAttributeDefinition(def)
			if err != nil {
				return err
			}
			attr.ID = id
			attr.Name = name
			typ.AddAttribute(attr)

		default:
			s.log.Warn(ctx, "skipping unrecognized row", "command", "LIST TYPES", "tag", row[0])
		}
	}

	resp, err = s.roundTrip(ctx, mon, "LIST VIEWS")
	if err != nil {
		return err
	}

	for _, row := range resp.Rows {
		if row[0] != "V" {
			s.log.Warn(ctx, "skipping unrecognized row", "command", "LIST VIEWS", "tag", row[0])
			continue
		}
		id, err := atoi(row, 1)
		if err != nil {
			return err
		}
		typeID, err := atoi(row, 2)
		if err != nil {
			return err
		}
		typ, ok := types[typeID]
		if !ok {
			return fmt.Errorf("%w: view %d references unknown type %d", codec.ErrMalformed, id, typeID)
		}
		name, err := field(row, 3)
		if err != nil {
			return err
		}
		public, err := atoi(row, 4)
		if err != nil {
			return err
		}
		def, err := field(row, 5)
		if err != nil {
			return err
		}
		vd, err := models.ParseViewDefinition(def)
		if err != nil {
			return err
		}
		typ.AddView(&models.View{ID: id, Name: name, Public: public == 1, Definition: *vd})
	}

	s.env.replaceTypes(types)
	return nil
}

// reloadProjects fetches projects with their folders and folder alerts. A
// folder row must follow its project row and reference a known issue type.
func (s *Session) reloadProjects(ctx context.Context, mon progress.Monitor) error {
	resp, err := s.roundTrip(ctx, mon, "LIST PROJECTS")
	if err != nil {
		return err
	}

	projects := make(map[int]*models.Project)
	folders := make(map[int]*models.Folder)

	for _, row := range resp.Rows {
		switch row[0] {
		case "P":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			name, err := field(row, 2)
			if err != nil {
				return err
			}
			projects[id] = models.NewProject(id, name)

		case "F":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			projectID, err := atoi(row, 2)
			if err != nil {
				return err
			}
			project, ok := projects[projectID]
			if !ok {
				return fmt.Errorf("%w: folder %d references unknown project %d", codec.ErrMalformed, id, projectID)
			}
			typeID, err := atoi(row, 3)
			if err != nil {
				return err
			}
			if s.env.Type(typeID) == nil {
				return fmt.Errorf("%w: folder %d references unknown type %d", codec.ErrMalformed, id, typeID)
			}
			name, err := field(row, 4)
			if err != nil {
				return err
			}
			stamp, err := atoi(row, 5)
			if err != nil {
				return err
			}
			f := &models.Folder{ID: id, TypeID: typeID, Name: name, Stamp: stamp}
			project.AddFolder(f)
			folders[id] = f

		case "A":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			folderID, err := atoi(row, 2)
			if err != nil {
				return err
			}
			folder, ok := folders[folderID]
			if !ok {
				return fmt.Errorf("%w: alert %d references unknown folder %d", codec.ErrMalformed, id, folderID)
			}
			viewID, err := atoi(row, 3)
			if err != nil {
				return err
			}
			folder.Alerts = append(folder.Alerts, models.Alert{ID: id, FolderID: folderID, ViewID: viewID})

		default:
			s.log.Warn(ctx, "skipping unrecognized row", "command", "LIST PROJECTS", "tag", row[0])
		}
	}

	s.env.replaceProjects(projects)
	return nil
}

// reloadUsers fetches users with their project memberships and preferences.
// Membership rows must follow their user row and reference a known project.
func (s *Session) reloadUsers(ctx context.Context, mon progress.Monitor) error {
	resp, err := s.roundTrip(ctx, mon, "LIST USERS")
	if err != nil {
		return err
	}

	users := make(map[int]*models.User)
	for _, row := range resp.Rows {
		switch row[0] {
		case "U":
			id, err := atoi(row, 1)
			if err != nil {
				return err
			}
			login, err := field(row, 2)
			if err != nil {
				return err
			}
			name, err := field(row, 3)
			if err != nil {
				return err
			}
			access, err := atoi(row, 4)
			if err != nil {
				return err
			}
			users[id] = models.NewUser(id, login, name, accessLevel(access))

		case "M":
			userID, err := atoi(row, 1)
			if err != nil {
				return err
			}
			user, ok := users[userID]
			if !ok {
				return fmt.Errorf("%w: membership references unknown user %d", codec.ErrMalformed, userID)
			}
			projectID, err := atoi(row, 2)
			if err != nil {
				return err
			}
			if s.env.Project(projectID) == nil {
				return fmt.Errorf("%w: membership of user %d references unknown project %d", codec.ErrMalformed, userID, projectID)
			}
			access, err := atoi(row, 3)
			if err != nil {
				return err
			}
			user.SetMembership(projectID, accessLevel(access))

		case "P":
			userID, err := atoi(row, 1)
			if err != nil {
				return err
			}
			user, ok := users[userID]
			if !ok {
				return fmt.Errorf("%w: preference references unknown user %d", codec.ErrMalformed, userID)
			}
			key, err := field(row, 2)
			if err != nil {
				return err
			}
			value, err := field(row, 3)
			if err != nil {
				return err
			}
			user.Preferences[key] = value

		default:
			s.log.Warn(ctx, "skipping unrecognized row", "command", "LIST USERS", "tag", row[0])
		}
	}

	s.env.replaceUsers(users)
	return nil
}

func accessLevel(n int) models.AccessLevel {
	switch n {
	case 1:
		return models.NormalAccess
	case 2:
		return models.AdminAccess
	default:
		return models.NoAccess
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	uid, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: server uuid %q", codec.ErrMalformed, s)
	}
	return uid, nil
}
