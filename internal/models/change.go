package models

import "time"

// ChangeKind discriminates history entries. Comments and attachments are
// changes too: one unified history stream, not three parallel class
// hierarchies.
type ChangeKind int

const (
	ChangeIssueAdded   ChangeKind = 0
	ChangeValueEdited  ChangeKind = 1
	ChangeCommentAdded ChangeKind = 2
	ChangeFileAdded    ChangeKind = 3
	ChangeIssueMoved   ChangeKind = 4
)

// Change is one entry of an issue's history. The payload fields are
// kind-specific: AttributeID/OldValue/NewValue for value edits and moves,
// Comment for comments, Attachment for files.
type Change struct {
	ID      int
	IssueID int
	Kind    ChangeKind
	Date    time.Time
	UserID  int

	AttributeID int
	OldValue    string
	NewValue    string

	Comment    string
	Attachment *Attachment
}

// Comment is the comment view of a ChangeCommentAdded entry.
type Comment struct {
	ID     int
	Date   time.Time
	UserID int
	Text   string
}

// Attachment describes an uploaded file. Content is fetched separately as a
// stream.
type Attachment struct {
	ID          int
	Date        time.Time
	UserID      int
	Name        string
	Size        int64
	Description string
}

// IssueDetails is an issue together with its full history, populated
// transactionally from one server response stream.
type IssueDetails struct {
	Issue
	Changes []Change
}

// Comments projects the comment entries out of the unified history, in
// stream order.
func (d *IssueDetails) Comments() []Comment {
	var out []Comment
	for _, c := range d.Changes {
		if c.Kind != ChangeCommentAdded {
			continue
		}
		out = append(out, Comment{ID: c.ID, Date: c.Date, UserID: c.UserID, Text: c.Comment})
	}
	return out
}

// Attachments projects the file entries out of the unified history, in
// stream order.
func (d *IssueDetails) Attachments() []Attachment {
	var out []Attachment
	for _, c := range d.Changes {
		if c.Kind != ChangeFileAdded || c.Attachment == nil {
			continue
		}
		out = append(out, *c.Attachment)
	}
	return out
}
