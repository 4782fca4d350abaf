package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/webissues/webissues-go/internal/models"
	"github.com/webissues/webissues-go/internal/progress"
	"github.com/webissues/webissues-go/internal/session"
)

// Connect establishes the session, prompting for credentials, and seeds the
// sync watermarks from the local cache when one is configured.
func (a *App) Connect(ctx context.Context) error {
	if a.isConnected() {
		return a.Online(ctx)
	}

	if err := a.client.Connect(ctx, &progress.NilMonitor{}); err != nil {
		return err
	}

	env := a.client.Environment()
	printlnFn("Connected to", env.ServerName)

	if ch := a.client.Cache(); ch != nil {
		// A cache written against another server is wiped, not merged.
		if err := ch.BindServer(ctx, env.UUID.String()); err != nil {
			return err
		}
		stamps, err := ch.Stamps(ctx)
		if err != nil {
			return err
		}
		a.stamps = stamps
	}
	return nil
}

// Projects lists the projects of the live snapshot.
func (a *App) Projects(ctx context.Context) error {
	env := a.client.Environment()
	if env == nil {
		printlnFn("Not connected")
		return nil
	}
	for _, p := range env.Projects() {
		printlnFn(fmt.Sprintf("%d  %s", p.ID, p.Name))
	}
	return nil
}

// Folders lists every folder with its project and issue type.
func (a *App) Folders(ctx context.Context) error {
	env := a.client.Environment()
	if env == nil {
		printlnFn("Not connected")
		return nil
	}
	for _, p := range env.Projects() {
		for _, f := range p.Folders() {
			typeName := ""
			if typ := env.FolderType(f.ID); typ != nil {
				typeName = typ.Name
			}
			printlnFn(fmt.Sprintf("%d  %s / %s  [%s]", f.ID, p.Name, f.Name, typeName))
		}
	}
	return nil
}

// Issues fetches a folder incrementally and lists its issues. With a cache
// configured the listing comes from the cache, so previously synced issues
// show up too.
func (a *App) Issues(ctx context.Context, folder string) error {
	id, err := strconv.Atoi(folder)
	if err != nil {
		printlnFn("Usage: issues <folderId>")
		return nil
	}

	stamps := map[int]int{id: a.stamps[id]}
	issues, err := a.client.FindIssues(ctx, &progress.NilMonitor{}, stamps)
	if err != nil {
		return err
	}
	a.stamps[id] = stamps[id]

	if ch := a.client.Cache(); ch != nil {
		if cached, err := ch.IssuesByFolder(ctx, id); err == nil {
			issues = cached
		}
	}
	for _, issue := range issues {
		printlnFn(fmt.Sprintf("#%d  %s  (modified %s)", issue.ID, issue.Name,
			issue.ModifiedDate.Format(models.DateTimeFormat)))
	}
	return nil
}

// Show prints one issue with its attribute values and full history.
func (a *App) Show(ctx context.Context, issue string) error {
	id, err := strconv.Atoi(issue)
	if err != nil {
		printlnFn("Usage: show <issueId>")
		return nil
	}

	details, err := a.client.GetIssueDetails(ctx, &progress.NilMonitor{}, id)
	if err != nil {
		return err
	}
	env := a.client.Environment()

	printlnFn(fmt.Sprintf("#%d  %s", details.ID, details.Name))
	typ := env.FolderType(details.FolderID)
	if typ != nil {
		for _, attr := range typ.Attributes() {
			if v := details.Value(attr.ID); v != "" {
				printlnFn(fmt.Sprintf("  %s: %s", attr.Name, v))
			}
		}
	}
	for _, c := range details.Comments() {
		user := userName(env, c.UserID)
		printlnFn(fmt.Sprintf("--- %s, %s", user, c.Date.Format(models.DateTimeFormat)))
		printlnFn(c.Text)
	}
	for _, f := range details.Attachments() {
		printlnFn(fmt.Sprintf("attachment %d: %s (%d bytes) %s", f.ID, f.Name, f.Size, f.Description))
	}
	return nil
}

// Comment prompts for a multi-line comment and appends it to an issue.
func (a *App) Comment(ctx context.Context, issue string) error {
	id, err := strconv.Atoi(issue)
	if err != nil {
		printlnFn("Usage: comment <issueId>")
		return nil
	}

	text, err := GetMultiline(a.reader, "Enter comment", os.Stdout)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	commentID, err := a.client.AddComment(ctx, &progress.NilMonitor{}, id, text)
	if err != nil {
		return err
	}
	printlnFn("Added comment", commentID)
	return nil
}

// Sync fetches every folder incrementally, advancing the watermarks.
func (a *App) Sync(ctx context.Context) error {
	env := a.client.Environment()
	if env == nil {
		printlnFn("Not connected")
		return nil
	}
	for _, f := range env.Folders() {
		if _, ok := a.stamps[f.ID]; !ok {
			a.stamps[f.ID] = 0
		}
	}

	issues, err := a.client.FindIssues(ctx, &progress.NilMonitor{}, a.stamps)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Synchronized %d issue(s) across %d folder(s)", len(issues), len(a.stamps)))
	return nil
}

// Offline drops to offline mode, keeping the snapshot.
func (a *App) Offline(ctx context.Context) error {
	if err := a.client.Session().GoOffline(); err != nil {
		return err
	}
	printlnFn("Offline")
	return nil
}

// Online brings an offline session back online, re-authenticating if needed.
func (a *App) Online(ctx context.Context) error {
	if a.client.IsOnline() {
		printlnFn("Already online")
		return nil
	}
	if err := a.client.Session().EnsureOnline(ctx, &progress.NilMonitor{}); err != nil {
		return err
	}
	printlnFn("Online")
	return nil
}

func userName(env *session.Environment, id int) string {
	if u := env.User(id); u != nil {
		return u.Name
	}
	return "user " + strconv.Itoa(id)
}
