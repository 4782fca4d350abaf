package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/models"
	"github.com/webissues/webissues-go/internal/progress"
)

// FindIssues fetches, for every folder in stamps, the issues whose stamp is
// at or above the folder's last-seen stamp, and advances stamps in place to
// the highest stamp returned. Folders are independent: a stale stamp for one
// never widens the request for another. When a cache is attached the fetched
// headers and advanced stamps are persisted as well.
func (c *Client) FindIssues(ctx context.Context, mon progress.Monitor, stamps map[int]int) ([]*models.Issue, error) {
	folderIDs := make([]int, 0, len(stamps))
	for id := range stamps {
		folderIDs = append(folderIDs, id)
	}
	sort.Ints(folderIDs)

	// Watermarks advance on a private copy per attempt; the caller's map is
	// touched only once the whole operation has succeeded, so a transparent
	// re-login retry re-lists every folder from its original floor instead of
	// the partially advanced one.
	var all []*models.Issue
	work := make(map[int]int, len(stamps))
	reported := 0
	err := c.do(ctx, mon, "Finding issues", len(folderIDs), func(ctx context.Context) error {
		all = all[:0]
		for id, stamp := range stamps {
			work[id] = stamp
		}
		for i, folderID := range folderIDs {
			issues, err := c.listIssues(ctx, mon, folderID, work[folderID])
			if err != nil {
				return err
			}
			stamp := work[folderID]
			for _, issue := range issues {
				if issue.Stamp > stamp {
					stamp = issue.Stamp
				}
			}
			work[folderID] = stamp
			all = append(all, issues...)
			if i >= reported {
				mon.Progressed(1)
				reported++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for id, stamp := range work {
		stamps[id] = stamp
	}

	if c.cache != nil {
		if err := c.cache.PutIssues(ctx, all, stamps); err != nil {
			c.log.Warn(ctx, "failed to persist issues to cache", "error", err)
		}
	}
	return all, nil
}

func (c *Client) listIssues(ctx context.Context, mon progress.Monitor, folderID, stamp int) ([]*models.Issue, error) {
	resp, err := c.session.Execute(ctx, mon, fmt.Sprintf("LIST ISSUES %d %d", folderID, stamp))
	if err != nil {
		return nil, err
	}

	var issues []*models.Issue
	byID := make(map[int]*models.Issue)
	for _, row := range resp.Rows {
		switch row[0] {
		case "I":
			issue, err := parseIssueRow(row)
			if err != nil {
				return nil, err
			}
			issues = append(issues, issue)
			byID[issue.ID] = issue

		case "V":
			attributeID, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			issueID, err := atoi(row, 2)
			if err != nil {
				return nil, err
			}
			issue, ok := byID[issueID]
			if !ok {
				return nil, fmt.Errorf("%w: value references unknown issue %d", codec.ErrMalformed, issueID)
			}
			value, err := field(row, 3)
			if err != nil {
				return nil, err
			}
			issue.SetValue(attributeID, value)

		default:
			c.log.Warn(ctx, "skipping unrecognized row", "command", "LIST ISSUES", "tag", row[0])
		}
	}
	return issues, nil
}

// GetIssueDetails fetches an issue together with its attribute values and
// full history in one response. On the modern protocol comments and
// attachments arrive cross-referenced against unified change rows; on the
// legacy protocol they are standalone rows synthesized into changes here, so
// callers see one history stream either way.
func (c *Client) GetIssueDetails(ctx context.Context, mon progress.Monitor, issueID int) (*models.IssueDetails, error) {
	var details *models.IssueDetails
	err := c.do(ctx, mon, "Fetching issue details", 1, func(ctx context.Context) error {
		resp, err := c.session.Execute(ctx, mon, fmt.Sprintf("GET DETAILS %d", issueID))
		if err != nil {
			return err
		}
		if c.session.Legacy() {
			details, err = parseLegacyDetails(resp.Rows)
		} else {
			details, err = parseDetails(resp.Rows)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

func parseDetails(rows [][]string) (*models.IssueDetails, error) {
	details := &models.IssueDetails{}
	// Change rows precede the comment/attachment rows that reference them;
	// index into the slice because appends may move it.
	byID := make(map[int]int)

	for _, row := range rows {
		switch row[0] {
		case "I":
			issue, err := parseIssueRow(row)
			if err != nil {
				return nil, err
			}
			details.Issue = *issue

		case "V":
			if err := parseDetailValue(details, row); err != nil {
				return nil, err
			}

		case "G":
			id, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			issueID, err := atoi(row, 2)
			if err != nil {
				return nil, err
			}
			kind, err := atoi(row, 3)
			if err != nil {
				return nil, err
			}
			date, err := dateAt(row, 4)
			if err != nil {
				return nil, err
			}
			userID, err := atoi(row, 5)
			if err != nil {
				return nil, err
			}
			attributeID, err := atoi(row, 6)
			if err != nil {
				return nil, err
			}
			oldValue, err := field(row, 7)
			if err != nil {
				return nil, err
			}
			newValue, err := field(row, 8)
			if err != nil {
				return nil, err
			}
			details.Changes = append(details.Changes, models.Change{
				ID:          id,
				IssueID:     issueID,
				Kind:        models.ChangeKind(kind),
				Date:        date,
				UserID:      userID,
				AttributeID: attributeID,
				OldValue:    oldValue,
				NewValue:    newValue,
			})
			byID[id] = len(details.Changes) - 1

		case "C":
			id, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			idx, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: comment references unknown change %d", codec.ErrMalformed, id)
			}
			text, err := field(row, 2)
			if err != nil {
				return nil, err
			}
			details.Changes[idx].Comment = text

		case "H":
			id, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			idx, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: attachment references unknown change %d", codec.ErrMalformed, id)
			}
			name, err := field(row, 2)
			if err != nil {
				return nil, err
			}
			size, err := atoi64(row, 3)
			if err != nil {
				return nil, err
			}
			description, err := field(row, 4)
			if err != nil {
				return nil, err
			}
			change := &details.Changes[idx]
			change.Attachment = &models.Attachment{
				ID:          id,
				Date:        change.Date,
				UserID:      change.UserID,
				Name:        name,
				Size:        size,
				Description: description,
			}
		}
	}
	return details, nil
}

func parseLegacyDetails(rows [][]string) (*models.IssueDetails, error) {
	details := &models.IssueDetails{}

	for _, row := range rows {
		switch row[0] {
		case "I":
			issue, err := parseIssueRow(row)
			if err != nil {
				return nil, err
			}
			details.Issue = *issue

		case "V":
			if err := parseDetailValue(details, row); err != nil {
				return nil, err
			}

		case "C":
			id, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			issueID, err := atoi(row, 2)
			if err != nil {
				return nil, err
			}
			date, err := dateAt(row, 3)
			if err != nil {
				return nil, err
			}
			userID, err := atoi(row, 4)
			if err != nil {
				return nil, err
			}
			text, err := field(row, 5)
			if err != nil {
				return nil, err
			}
			details.Changes = append(details.Changes, models.Change{
				ID:      id,
				IssueID: issueID,
				Kind:    models.ChangeCommentAdded,
				Date:    date,
				UserID:  userID,
				Comment: text,
			})

		case "H":
			id, err := atoi(row, 1)
			if err != nil {
				return nil, err
			}
			issueID, err := atoi(row, 2)
			if err != nil {
				return nil, err
			}
			date, err := dateAt(row, 3)
			if err != nil {
				return nil, err
			}
			userID, err := atoi(row, 4)
			if err != nil {
				return nil, err
			}
			name, err := field(row, 5)
			if err != nil {
				return nil, err
			}
			size, err := atoi64(row, 6)
			if err != nil {
				return nil, err
			}
			description, err := field(row, 7)
			if err != nil {
				return nil, err
			}
			details.Changes = append(details.Changes, models.Change{
				ID:      id,
				IssueID: issueID,
				Kind:    models.ChangeFileAdded,
				Date:    date,
				UserID:  userID,
				Attachment: &models.Attachment{
					ID:          id,
					Date:        date,
					UserID:      userID,
					Name:        name,
					Size:        size,
					Description: description,
				},
			})
		}
	}
	return details, nil
}

func parseDetailValue(details *models.IssueDetails, row []string) error {
	attributeID, err := atoi(row, 1)
	if err != nil {
		return err
	}
	if _, err := atoi(row, 2); err != nil {
		return err
	}
	value, err := field(row, 3)
	if err != nil {
		return err
	}
	details.SetValue(attributeID, value)
	return nil
}

// CreateIssue adds an issue to a folder and returns its header with the
// server-assigned id and stamp. The folder's stamp in the live snapshot is
// advanced as well.
func (c *Client) CreateIssue(ctx context.Context, mon progress.Monitor, folderID int, name string) (*models.Issue, error) {
	var issue *models.Issue
	err := c.do(ctx, mon, "Creating issue", 1, func(ctx context.Context) error {
		resp, err := c.session.Execute(ctx, mon, fmt.Sprintf("ADD ISSUE %d %s", folderID, codec.Quote(name)))
		if err != nil {
			return err
		}
		row, err := singleRow(resp, "I", 3)
		if err != nil {
			return err
		}
		id, err := atoi(row, 1)
		if err != nil {
			return err
		}
		stamp, err := atoi(row, 2)
		if err != nil {
			return err
		}
		issue = &models.Issue{ID: id, FolderID: folderID, Name: name, Stamp: stamp}
		if folder := c.session.Environment().Folder(folderID); folder != nil && stamp > folder.Stamp {
			folder.Stamp = stamp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// RenameIssue changes an issue's name.
func (c *Client) RenameIssue(ctx context.Context, mon progress.Monitor, issueID int, name string) error {
	return c.do(ctx, mon, "Renaming issue", 1, func(ctx context.Context) error {
		_, err := c.session.Execute(ctx, mon, fmt.Sprintf("RENAME ISSUE %d %s", issueID, codec.Quote(name)))
		return err
	})
}

// MoveIssue moves an issue to another folder of the same type.
func (c *Client) MoveIssue(ctx context.Context, mon progress.Monitor, issueID, folderID int) error {
	return c.do(ctx, mon, "Moving issue", 1, func(ctx context.Context) error {
		_, err := c.session.Execute(ctx, mon, fmt.Sprintf("MOVE ISSUE %d %d", issueID, folderID))
		return err
	})
}

// DeleteIssue removes an issue and its history. The cached header, if any,
// is dropped too.
func (c *Client) DeleteIssue(ctx context.Context, mon progress.Monitor, issueID int) error {
	err := c.do(ctx, mon, "Deleting issue", 1, func(ctx context.Context) error {
		_, err := c.session.Execute(ctx, mon, fmt.Sprintf("DELETE ISSUE %d", issueID))
		return err
	})
	if err != nil {
		return err
	}
	if c.cache != nil {
		if err := c.cache.DeleteIssue(ctx, issueID); err != nil {
			c.log.Warn(ctx, "failed to drop cached issue", "id", issueID, "error", err)
		}
	}
	return nil
}

// SetAttributeValues updates one or more attribute values on an issue, one
// round-trip per attribute in ascending attribute order, and returns the
// change id of every edit. DATETIME values are reformatted to the attribute's
// wire form before sending. The issue's local value map is updated as each
// edit is acknowledged.
func (c *Client) SetAttributeValues(ctx context.Context, mon progress.Monitor, issue *models.Issue, values map[int]string) ([]int, error) {
	attributeIDs := make([]int, 0, len(values))
	for id := range values {
		attributeIDs = append(attributeIDs, id)
	}
	sort.Ints(attributeIDs)

	typ := c.session.Environment().FolderType(issue.FolderID)

	var changeIDs []int
	reported := 0
	err := c.do(ctx, mon, "Updating attribute values", len(attributeIDs), func(ctx context.Context) error {
		changeIDs = changeIDs[:0]
		for i, attributeID := range attributeIDs {
			value := values[attributeID]
			if typ != nil {
				if attr := typ.Attribute(attributeID); attr != nil && attr.Kind == models.KindDateTime && value != "" {
					t, err := models.ParseDateTime(value)
					if err != nil {
						return fmt.Errorf("attribute %d: %w", attributeID, err)
					}
					value = models.FormatDateTime(t, attr.DateOnly)
				}
			}
			resp, err := c.session.Execute(ctx, mon,
				fmt.Sprintf("SET VALUE %d %d %s", issue.ID, attributeID, codec.Quote(value)))
			if err != nil {
				return err
			}
			row, err := singleRow(resp, "C", 2)
			if err != nil {
				return err
			}
			changeID, err := atoi(row, 1)
			if err != nil {
				return err
			}
			changeIDs = append(changeIDs, changeID)
			issue.SetValue(attributeID, value)
			if i >= reported {
				mon.Progressed(1)
				reported++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changeIDs, nil
}

// AddComment appends a comment to an issue and returns its id.
func (c *Client) AddComment(ctx context.Context, mon progress.Monitor, issueID int, text string) (int, error) {
	var commentID int
	err := c.do(ctx, mon, "Adding comment", 1, func(ctx context.Context) error {
		resp, err := c.session.Execute(ctx, mon, fmt.Sprintf("ADD COMMENT %d %s", issueID, codec.Quote(text)))
		if err != nil {
			return err
		}
		row, err := singleRow(resp, "C", 2)
		if err != nil {
			return err
		}
		commentID, err = atoi(row, 1)
		return err
	})
	if err != nil {
		return 0, err
	}
	return commentID, nil
}

// PutAttachment uploads a file to an issue and returns the attachment id.
// The content is buffered up front so a transparent re-login can replay it.
func (c *Client) PutAttachment(ctx context.Context, mon progress.Monitor, issueID int, name, description string, content io.Reader) (int, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, fmt.Errorf("reading attachment content: %w", err)
	}

	var fileID int
	err = c.do(ctx, mon, "Uploading attachment", 1, func(ctx context.Context) error {
		command := fmt.Sprintf("ADD ATTACHMENT %d %s %s", issueID, codec.Quote(name), codec.Quote(description))
		resp, err := c.session.Upload(ctx, mon, command, name, bytes.NewReader(data))
		if err != nil {
			return err
		}
		row, err := singleRow(resp, "H", 2)
		if err != nil {
			return err
		}
		fileID, err = atoi(row, 1)
		return err
	})
	if err != nil {
		return 0, err
	}
	return fileID, nil
}

// GetAttachmentStream fetches an attachment's content as a stream. Ownership
// transfers to the caller, whose Close releases the underlying connection.
func (c *Client) GetAttachmentStream(ctx context.Context, mon progress.Monitor, fileID int) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := c.do(ctx, mon, "Downloading attachment", 1, func(ctx context.Context) error {
		var err error
		rc, err = c.session.Download(ctx, mon, fmt.Sprintf("GET ATTACHMENT %d", fileID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// MarkIssueRead records the read state of an issue for the current user.
func (c *Client) MarkIssueRead(ctx context.Context, mon progress.Monitor, issueID int, read bool) error {
	return c.do(ctx, mon, "Updating read state", 1, func(ctx context.Context) error {
		_, err := c.session.Execute(ctx, mon, fmt.Sprintf("SET READ ISSUE %d %d", issueID, boolToInt(read)))
		return err
	})
}

// MarkFolderRead records the read state of every issue in a folder.
func (c *Client) MarkFolderRead(ctx context.Context, mon progress.Monitor, folderID int, read bool) error {
	return c.do(ctx, mon, "Updating read state", 1, func(ctx context.Context) error {
		_, err := c.session.Execute(ctx, mon, fmt.Sprintf("SET READ FOLDER %d %d", folderID, boolToInt(read)))
		return err
	})
}

// AddProject creates a project and appends it to the live snapshot.
func (c *Client) AddProject(ctx context.Context, mon progress.Monitor, name string) (*models.Project, error) {
	var project *models.Project
	err := c.do(ctx, mon, "Creating project", 1, func(ctx context.Context) error {
		resp, err := c.session.Execute(ctx, mon, fmt.Sprintf("ADD PROJECT %s", codec.Quote(name)))
		if err != nil {
			return err
		}
		row, err := singleRow(resp, "P", 2)
		if err != nil {
			return err
		}
		id, err := atoi(row, 1)
		if err != nil {
			return err
		}
		project = models.NewProject(id, name)
		c.session.Environment().AddProject(project)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// AddFolder creates a folder in a project and appends it to the live
// snapshot.
func (c *Client) AddFolder(ctx context.Context, mon progress.Monitor, projectID, typeID int, name string) (*models.Folder, error) {
	var folder *models.Folder
	err := c.do(ctx, mon, "Creating folder", 1, func(ctx context.Context) error {
		resp, err := c.session.Execute(ctx, mon,
			fmt.Sprintf("ADD FOLDER %d %d %s", projectID, typeID, codec.Quote(name)))
		if err != nil {
			return err
		}
		row, err := singleRow(resp, "F", 3)
		if err != nil {
			return err
		}
		id, err := atoi(row, 1)
		if err != nil {
			return err
		}
		stamp, err := atoi(row, 2)
		if err != nil {
			return err
		}
		folder = &models.Folder{ID: id, TypeID: typeID, Name: name, Stamp: stamp}
		if project := c.session.Environment().Project(projectID); project != nil {
			project.AddFolder(folder)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
