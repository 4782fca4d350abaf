package client

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/models"
	"github.com/webissues/webissues-go/internal/progress"
	"github.com/webissues/webissues-go/internal/session"
	"github.com/webissues/webissues-go/internal/transport"
)

const testUUID = "4f9f2d5a-1fd4-4a4e-95c2-0f0c2d6f67a1"

// fakeTransport scripts responses per command prefix and records every
// command sent.
type fakeTransport struct {
	t        *testing.T
	version  string
	script   map[string][]string
	override func(command string) (*transport.Response, error, bool)
	commands []string
}

func (f *fakeTransport) Execute(_ context.Context, command string) (*transport.Response, error) {
	f.commands = append(f.commands, command)
	return f.respond(command)
}

func (f *fakeTransport) Upload(_ context.Context, command, _ string, _ io.Reader) (*transport.Response, error) {
	f.commands = append(f.commands, command)
	return f.respond(command)
}

func (f *fakeTransport) Download(_ context.Context, command string) (io.ReadCloser, error) {
	f.commands = append(f.commands, command)
	return io.NopCloser(strings.NewReader("attachment content")), nil
}

func (f *fakeTransport) respond(command string) (*transport.Response, error) {
	if f.override != nil {
		if resp, err, ok := f.override(command); ok {
			return resp, err
		}
	}
	for prefix, lines := range f.script {
		if strings.HasPrefix(command, prefix) {
			return f.rows(lines...), nil
		}
	}
	f.t.Fatalf("unexpected command %q", command)
	return nil, nil
}

func (f *fakeTransport) rows(lines ...string) *transport.Response {
	f.t.Helper()
	resp := &transport.Response{Version: f.version}
	for _, l := range lines {
		row, err := codec.ParseRow(l)
		require.NoError(f.t, err)
		resp.Rows = append(resp.Rows, row)
	}
	return resp
}

// count reports how many recorded commands start with prefix.
func (f *fakeTransport) count(prefix string) int {
	n := 0
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeAuth struct{ asked int }

func (f *fakeAuth) Credentials(context.Context) (*session.Credentials, error) {
	f.asked++
	return &session.Credentials{Login: "alice", Password: "secret"}, nil
}

// frameMonitor counts Begin/Progressed/Done calls on top of NilMonitor's
// cancellation flag.
type frameMonitor struct {
	progress.NilMonitor
	begun int
	done  int
	units int
}

func (m *frameMonitor) Begin(string, int) { m.begun++ }
func (m *frameMonitor) Progressed(n int)  { m.units += n }
func (m *frameMonitor) Done()             { m.done++ }

func transcript() map[string][]string {
	return map[string][]string{
		"HELLO":         {"S 'Test Server' '" + testUUID + "'"},
		"LOGIN":         {"U 7 2"},
		"LIST TYPES":    {"T 1 'Bugs'", `A 1 1 'Severity' 'ENUM items={"low","high"}'`, "A 2 1 'Due' 'DATETIME time=1'"},
		"LIST VIEWS":    {},
		"LIST PROJECTS": {"P 1 'Alpha'", "F 10 1 1 'Backlog' 5", "F 11 1 1 'Triage' 3"},
		"LIST USERS":    {"U 7 'alice' 'Alice' 2"},
	}
}

// newConnected builds a connected client over a scripted transport.
func newConnected(t *testing.T, version string, script map[string][]string) (*Client, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{t: t, version: version, script: script}
	s := session.New(tr, &fakeAuth{}, nil)
	c := New(s, nil)
	require.NoError(t, c.Connect(context.Background(), &progress.NilMonitor{}))
	tr.commands = nil
	return c, tr
}

func TestRetryOnce_LoginExpiredThenSuccess(t *testing.T) {
	script := transcript()
	script["MOVE ISSUE"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	failed := false
	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "MOVE ISSUE") && !failed {
			failed = true
			return nil, &transport.ProtocolError{Code: transport.CodeLoginRequired, Message: "login required"}, true
		}
		return nil, nil, false
	}

	err := c.MoveIssue(context.Background(), &progress.NilMonitor{}, 42, 11)
	require.NoError(t, err)

	// One failed attempt, one full re-login cycle, one successful attempt.
	assert.Equal(t, 2, tr.count("MOVE ISSUE 42 11"))
	assert.Equal(t, 1, tr.count("LOGIN"))
	assert.True(t, c.IsOnline())
}

func TestRetryOnce_LoginExpiredTwiceSurfaces(t *testing.T) {
	script := transcript()
	script["MOVE ISSUE"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "MOVE ISSUE") {
			return nil, &transport.ProtocolError{Code: transport.CodeLoginRequired, Message: "login required"}, true
		}
		return nil, nil, false
	}

	err := c.MoveIssue(context.Background(), &progress.NilMonitor{}, 42, 11)
	require.Error(t, err)
	assert.Equal(t, transport.CodeLoginRequired, transport.ErrorCode(err))

	// Exactly two attempts, no infinite loop.
	assert.Equal(t, 2, tr.count("MOVE ISSUE 42 11"))
}

func TestDo_OtherProtocolErrorsPropagateImmediately(t *testing.T) {
	script := transcript()
	script["DELETE ISSUE"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "DELETE ISSUE") {
			return nil, &transport.ProtocolError{Code: transport.CodeAccessDenied, Message: "access denied"}, true
		}
		return nil, nil, false
	}

	err := c.DeleteIssue(context.Background(), &progress.NilMonitor{}, 42)
	assert.Equal(t, transport.CodeAccessDenied, transport.ErrorCode(err))
	assert.Equal(t, 1, tr.count("DELETE ISSUE"))
}

func TestDo_OneBeginDonePairPerOperation(t *testing.T) {
	script := transcript()
	script["DELETE ISSUE"] = []string{}
	script["MOVE ISSUE"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	mon := &frameMonitor{}
	require.NoError(t, c.DeleteIssue(context.Background(), mon, 42))
	assert.Equal(t, 1, mon.begun)
	assert.Equal(t, 1, mon.done)

	// A retried operation still reports a single frame, with the nested
	// re-login handshake silenced.
	failed := false
	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "MOVE ISSUE") && !failed {
			failed = true
			return nil, &transport.ProtocolError{Code: transport.CodeLoginRequired, Message: "login required"}, true
		}
		return nil, nil, false
	}

	mon = &frameMonitor{}
	require.NoError(t, c.MoveIssue(context.Background(), mon, 42, 11))
	assert.Equal(t, 1, mon.begun)
	assert.Equal(t, 1, mon.done)
}

func TestDo_CancelledBeforeAnyRoundTrip(t *testing.T) {
	c, tr := newConnected(t, "1.0", transcript())

	var mon progress.NilMonitor
	mon.SetCanceled(true)

	err := c.DeleteIssue(context.Background(), &mon, 42)
	assert.ErrorIs(t, err, transport.ErrCancelled)
	assert.Empty(t, tr.commands)
}

func TestFindIssues_AdvancesStampsPerFolder(t *testing.T) {
	script := transcript()
	script["LIST ISSUES 10"] = []string{
		"I 100 10 'Crash on save' 7 '2024-03-01 10:00' 7 '2024-03-02 11:30' 7",
		"V 1 100 'high'",
		"I 101 10 'Typo in dialog' 9 '2024-03-02' 7 '2024-03-02' 7",
	}
	script["LIST ISSUES 11"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	stamps := map[int]int{10: 5, 11: 3}
	issues, err := c.FindIssues(context.Background(), &progress.NilMonitor{}, stamps)
	require.NoError(t, err)

	// Each folder asks only for issues at or above its own stamp.
	assert.Equal(t, 1, tr.count("LIST ISSUES 10 5"))
	assert.Equal(t, 1, tr.count("LIST ISSUES 11 3"))

	require.Len(t, issues, 2)
	assert.Equal(t, "Crash on save", issues[0].Name)
	assert.Equal(t, "high", issues[0].Value(1))
	assert.Equal(t, 9, issues[1].Stamp)

	// Folder 10 advanced to its highest stamp; empty folder 11 kept its own.
	assert.Equal(t, map[int]int{10: 9, 11: 3}, stamps)
}

func TestFindIssues_RetryReListsFromOriginalStamps(t *testing.T) {
	script := transcript()
	script["LIST ISSUES 10 5"] = []string{
		"I 100 10 'Crash on save' 6 '2024-03-01 10:00' 7 '2024-03-01 10:00' 7",
		"I 101 10 'Typo in dialog' 9 '2024-03-02' 7 '2024-03-02' 7",
	}
	script["LIST ISSUES 10 9"] = []string{
		"I 101 10 'Typo in dialog' 9 '2024-03-02' 7 '2024-03-02' 7",
	}
	script["LIST ISSUES 11"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	// Folder 10 succeeds, then folder 11 fails once with an expired login.
	failed := false
	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "LIST ISSUES 11") && !failed {
			failed = true
			return nil, &transport.ProtocolError{Code: transport.CodeLoginRequired, Message: "login required"}, true
		}
		return nil, nil, false
	}

	stamps := map[int]int{10: 5, 11: 3}
	mon := &frameMonitor{}
	issues, err := c.FindIssues(context.Background(), mon, stamps)
	require.NoError(t, err)

	// The second attempt restarts from the caller's floors, so folder 10 is
	// re-listed at stamp 5 and issue 100 is not lost to the advanced one.
	assert.Equal(t, 2, tr.count("LIST ISSUES 10 5"))
	assert.Equal(t, 0, tr.count("LIST ISSUES 10 9"))
	require.Len(t, issues, 2)
	assert.Equal(t, 100, issues[0].ID)
	assert.Equal(t, 101, issues[1].ID)
	assert.Equal(t, map[int]int{10: 9, 11: 3}, stamps)

	// One Begin/Done frame spans both attempts and the re-login, and the
	// re-listed folder is not counted twice.
	assert.Equal(t, 1, mon.begun)
	assert.Equal(t, 1, mon.done)
	assert.Equal(t, 2, mon.units)
}

func TestFindIssues_FailureLeavesStampsUntouched(t *testing.T) {
	script := transcript()
	script["LIST ISSUES 10"] = []string{
		"I 100 10 'Crash on save' 6 '2024-03-01 10:00' 7 '2024-03-01 10:00' 7",
	}
	c, tr := newConnected(t, "1.0", script)

	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "LIST ISSUES 11") {
			return nil, &transport.ProtocolError{Code: transport.CodeAccessDenied, Message: "access denied"}, true
		}
		return nil, nil, false
	}

	stamps := map[int]int{10: 5, 11: 3}
	_, err := c.FindIssues(context.Background(), &progress.NilMonitor{}, stamps)
	require.Error(t, err)
	assert.Equal(t, map[int]int{10: 5, 11: 3}, stamps)
}

func TestFindIssues_ValueBeforeIssueIsMalformed(t *testing.T) {
	script := transcript()
	script["LIST ISSUES"] = []string{"V 1 100 'high'"}
	c, _ := newConnected(t, "1.0", script)

	_, err := c.FindIssues(context.Background(), &progress.NilMonitor{}, map[int]int{10: 0})
	assert.ErrorIs(t, err, codec.ErrMalformed)
}

func TestGetIssueDetails_ModernCrossReferencesChanges(t *testing.T) {
	script := transcript()
	script["GET DETAILS"] = []string{
		"I 100 10 'Crash on save' 7 '2024-03-01 10:00' 7 '2024-03-02 11:30' 8",
		"V 1 100 'high'",
		"G 201 100 0 '2024-03-01 10:00' 7 0 '' ''",
		"G 202 100 2 '2024-03-01 12:00' 8 0 '' ''",
		"C 202 'Reproduced on trunk'",
		"G 203 100 3 '2024-03-02 09:00' 7 0 '' ''",
		"H 203 'stacktrace.txt' 2048 'full trace'",
		"G 204 100 1 '2024-03-02 11:30' 8 1 'low' 'high'",
	}
	c, _ := newConnected(t, "1.0", script)

	details, err := c.GetIssueDetails(context.Background(), &progress.NilMonitor{}, 100)
	require.NoError(t, err)

	assert.Equal(t, 100, details.ID)
	assert.Equal(t, "high", details.Value(1))
	require.Len(t, details.Changes, 4)

	assert.Equal(t, models.ChangeIssueAdded, details.Changes[0].Kind)

	comments := details.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, 202, comments[0].ID)
	assert.Equal(t, "Reproduced on trunk", comments[0].Text)
	assert.Equal(t, 8, comments[0].UserID)

	attachments := details.Attachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, 203, attachments[0].ID)
	assert.Equal(t, "stacktrace.txt", attachments[0].Name)
	assert.Equal(t, int64(2048), attachments[0].Size)

	assert.Equal(t, models.ChangeValueEdited, details.Changes[3].Kind)
	assert.Equal(t, "low", details.Changes[3].OldValue)
	assert.Equal(t, "high", details.Changes[3].NewValue)
}

func TestGetIssueDetails_ModernDanglingCommentIsMalformed(t *testing.T) {
	script := transcript()
	script["GET DETAILS"] = []string{
		"I 100 10 'Crash on save' 7 '2024-03-01 10:00' 7 '2024-03-02 11:30' 8",
		"C 999 'orphan'",
	}
	c, _ := newConnected(t, "1.0", script)

	_, err := c.GetIssueDetails(context.Background(), &progress.NilMonitor{}, 100)
	assert.ErrorIs(t, err, codec.ErrMalformed)
}

func TestGetIssueDetails_LegacyStandaloneRows(t *testing.T) {
	script := transcript()
	script["LIST FEATURES"] = []string{"F 'attachments'"}
	script["GET DETAILS"] = []string{
		"I 100 10 'Crash on save' 7 '2024-03-01 10:00' 7 '2024-03-02 11:30' 8",
		"C 301 100 '2024-03-01 12:00' 8 'Reproduced on trunk'",
		"H 302 100 '2024-03-02 09:00' 7 'stacktrace.txt' 2048 'full trace'",
	}
	c, _ := newConnected(t, "", script)

	details, err := c.GetIssueDetails(context.Background(), &progress.NilMonitor{}, 100)
	require.NoError(t, err)
	require.Len(t, details.Changes, 2)

	comments := details.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, 301, comments[0].ID)
	assert.Equal(t, "Reproduced on trunk", comments[0].Text)

	attachments := details.Attachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, 302, attachments[0].ID)
	assert.Equal(t, 7, attachments[0].UserID)
}

func TestCreateIssue_AdvancesFolderStamp(t *testing.T) {
	script := transcript()
	script["ADD ISSUE"] = []string{"I 105 12"}
	c, tr := newConnected(t, "1.0", script)

	issue, err := c.CreateIssue(context.Background(), &progress.NilMonitor{}, 10, "New defect")
	require.NoError(t, err)

	assert.Equal(t, 1, tr.count("ADD ISSUE 10 'New defect'"))
	assert.Equal(t, 105, issue.ID)
	assert.Equal(t, 12, issue.Stamp)
	assert.False(t, issue.IsNew())
	assert.Equal(t, 12, c.Environment().Folder(10).Stamp)
}

func TestSetAttributeValues_ReformatsDateTime(t *testing.T) {
	script := transcript()
	c, tr := newConnected(t, "1.0", script)

	next := 500
	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "SET VALUE") {
			next++
			return tr.rows("C " + strconv.Itoa(next)), nil, true
		}
		return nil, nil, false
	}

	issue := &models.Issue{ID: 100, FolderID: 10}
	changeIDs, err := c.SetAttributeValues(context.Background(), &progress.NilMonitor{}, issue, map[int]string{
		2: "2024-03-05",
		1: "high",
	})
	require.NoError(t, err)

	// One round-trip per attribute, in ascending attribute order, with the
	// datetime value expanded to the attribute's wire form.
	assert.Equal(t, 1, tr.count("SET VALUE 100 1 'high'"))
	assert.Equal(t, 1, tr.count("SET VALUE 100 2 '2024-03-05 00:00'"))
	assert.Equal(t, []int{501, 502}, changeIDs)
	assert.Equal(t, "high", issue.Value(1))
	assert.Equal(t, "2024-03-05 00:00", issue.Value(2))
}

func TestAddComment(t *testing.T) {
	script := transcript()
	script["ADD COMMENT"] = []string{"C 77"}
	c, tr := newConnected(t, "1.0", script)

	id, err := c.AddComment(context.Background(), &progress.NilMonitor{}, 100, "Works\nfor me")
	require.NoError(t, err)
	assert.Equal(t, 77, id)
	assert.Equal(t, 1, tr.count(`ADD COMMENT 100 'Works\nfor me'`))
}

func TestPutAttachment(t *testing.T) {
	script := transcript()
	script["ADD ATTACHMENT"] = []string{"H 55"}
	c, tr := newConnected(t, "1.0", script)

	id, err := c.PutAttachment(context.Background(), &progress.NilMonitor{}, 100,
		"notes.txt", "my notes", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, 55, id)
	assert.Equal(t, 1, tr.count("ADD ATTACHMENT 100 'notes.txt' 'my notes'"))
}

func TestGetAttachmentStream(t *testing.T) {
	c, tr := newConnected(t, "1.0", transcript())

	rc, err := c.GetAttachmentStream(context.Background(), &progress.NilMonitor{}, 55)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "attachment content", string(data))
	assert.Equal(t, 1, tr.count("GET ATTACHMENT 55"))
}

func TestMarkRead(t *testing.T) {
	script := transcript()
	script["SET READ"] = []string{}
	c, tr := newConnected(t, "1.0", script)

	require.NoError(t, c.MarkIssueRead(context.Background(), &progress.NilMonitor{}, 100, true))
	require.NoError(t, c.MarkFolderRead(context.Background(), &progress.NilMonitor{}, 10, false))

	assert.Equal(t, 1, tr.count("SET READ ISSUE 100 1"))
	assert.Equal(t, 1, tr.count("SET READ FOLDER 10 0"))
}

func TestAddProjectAndFolder_AppendToEnvironment(t *testing.T) {
	script := transcript()
	script["ADD PROJECT"] = []string{"P 2"}
	script["ADD FOLDER"] = []string{"F 20 1"}
	c, tr := newConnected(t, "1.0", script)

	project, err := c.AddProject(context.Background(), &progress.NilMonitor{}, "Beta")
	require.NoError(t, err)
	assert.Equal(t, 2, project.ID)
	assert.Equal(t, project, c.Environment().Project(2))

	folder, err := c.AddFolder(context.Background(), &progress.NilMonitor{}, 2, 1, "Inbox")
	require.NoError(t, err)
	assert.Equal(t, 20, folder.ID)
	assert.Equal(t, 2, folder.ProjectID)
	assert.Equal(t, folder, c.Environment().Folder(20))

	assert.Equal(t, 1, tr.count("ADD PROJECT 'Beta'"))
	assert.Equal(t, 1, tr.count("ADD FOLDER 2 1 'Inbox'"))
}

func TestDo_TransportFailureFlipsOfflineAndPropagates(t *testing.T) {
	script := transcript()
	c, tr := newConnected(t, "1.0", script)

	tr.override = func(command string) (*transport.Response, error, bool) {
		if strings.HasPrefix(command, "DELETE ISSUE") {
			return nil, &transport.TransportError{Status: 0, Err: errors.New("connection reset")}, true
		}
		return nil, nil, false
	}

	err := c.DeleteIssue(context.Background(), &progress.NilMonitor{}, 42)
	require.Error(t, err)
	assert.True(t, transport.IsTransportError(err))
	assert.False(t, c.IsOnline())
}
