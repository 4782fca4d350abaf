// Package session implements the connection lifecycle against a WebIssues
// server: the Disconnected → Connected+Offline → Connected+Online state
// machine, the HELLO/LOGIN handshake with version negotiation, and the full
// snapshot reload of the entity graph into an Environment.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/logging"
	"github.com/webissues/webissues-go/internal/progress"
	"github.com/webissues/webissues-go/internal/transport"
)

// ErrInvalidState reports an illegal state transition, such as going online
// while already online. Match with errors.Is.
var ErrInvalidState = errors.New("invalid session state")

// State is the session lifecycle state.
type State int

const (
	Disconnected State = iota
	ConnectedOffline
	ConnectedOnline
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedOffline:
		return "offline"
	case ConnectedOnline:
		return "online"
	default:
		return "unknown"
	}
}

// Highest protocol version this client fully understands. Newer servers are
// talked to anyway, with a compatibility warning.
const (
	supportedMajor = 1
	supportedMinor = 0
)

// legacyVersion is assumed when the server sends no version header.
const legacyVersion = "0.8"

// Credentials carries one login attempt.
type Credentials struct {
	Login    string
	Password string
}

// Authenticator supplies credentials on demand. Returning (nil, nil) means
// the user cancelled authentication.
type Authenticator interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// PasswordChanger is optionally implemented by Authenticators that can handle
// a forced password rotation at login. Returning an empty string declines the
// change, surfacing the server's original error.
type PasswordChanger interface {
	NewPassword(ctx context.Context) (string, error)
}

// Session drives one connection. Calls are synchronous on the caller's
// goroutine; state transitions (Connect, GoOnline, GoOffline, Disconnect,
// Reload) and command execution (Execute, Upload, Download) are serialized
// under an internal lock, so the state observed through State and IsOnline
// is always consistent.
type Session struct {
	mu sync.Mutex

	tr     transport.Transport
	auth   Authenticator
	log    logging.Logger
	env    *Environment
	state  State
	legacy bool
}

func New(tr transport.Transport, auth Authenticator, log logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	return &Session{tr: tr, auth: auth, log: log}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOnline reports whether the session is Connected+Online.
func (s *Session) IsOnline() bool { return s.State() == ConnectedOnline }

// Environment returns the live snapshot, or nil while disconnected. The
// returned value stays valid until Disconnect.
func (s *Session) Environment() *Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

// Connect constructs an empty Environment and immediately attempts to go
// online. Only legal from Disconnected. On failure the session stays
// Connected+Offline; the caller may retry with GoOnline.
func (s *Session) Connect(ctx context.Context, mon progress.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Disconnected {
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, s.state)
	}
	s.env = NewEnvironment()
	s.state = ConnectedOffline
	return s.goOnline(ctx, mon)
}

// GoOnline re-runs the login handshake and full reload. Only legal from
// Connected+Offline.
func (s *Session) GoOnline(ctx context.Context, mon progress.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ConnectedOffline {
		return fmt.Errorf("%w: go online while %s", ErrInvalidState, s.state)
	}
	return s.goOnline(ctx, mon)
}

// EnsureOnline brings the session online if it is not already: a fresh
// session is connected, an offline one re-runs the handshake.
func (s *Session) EnsureOnline(ctx context.Context, mon progress.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case ConnectedOnline:
		return nil
	case Disconnected:
		s.env = NewEnvironment()
		s.state = ConnectedOffline
		return s.goOnline(ctx, mon)
	default:
		return s.goOnline(ctx, mon)
	}
}

// GoOffline clears the online flag but keeps all cached entities. Only legal
// while online.
func (s *Session) GoOffline() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ConnectedOnline {
		return fmt.Errorf("%w: go offline while %s", ErrInvalidState, s.state)
	}
	s.setOffline()
	return nil
}

// Disconnect clears every cached collection and returns to Disconnected.
// Only legal while online.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ConnectedOnline {
		return fmt.Errorf("%w: disconnect while %s", ErrInvalidState, s.state)
	}
	s.env.clear()
	s.env = nil
	s.state = Disconnected
	return nil
}

// Reload re-fetches the full snapshot without the login handshake. Only legal
// while online.
func (s *Session) Reload(ctx context.Context, mon progress.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ConnectedOnline {
		return fmt.Errorf("%w: reload while %s", ErrInvalidState, s.state)
	}

	mon.Begin("Refreshing server data", reloadSteps)
	defer mon.Done()
	return s.reloadAll(ctx, mon)
}

// Steps reported through the progress monitor: hello, login, features,
// then one per reload phase.
const (
	reloadSteps = 3
	onlineSteps = 3 + reloadSteps
)

// goOnline runs the handshake with the lock already held. Any failure leaves
// the session Connected+Offline, never Disconnected.
func (s *Session) goOnline(ctx context.Context, mon progress.Monitor) error {
	mon.Begin("Connecting", onlineSteps)
	defer mon.Done()

	if err := s.hello(ctx, mon); err != nil {
		return err
	}
	mon.SetName("Connecting to " + s.env.ServerName)
	mon.Progressed(1)

	if err := s.login(ctx, mon); err != nil {
		return err
	}
	mon.Progressed(1)

	if err := s.listFeatures(ctx, mon); err != nil {
		return err
	}
	mon.Progressed(1)

	if err := s.reloadAll(ctx, mon); err != nil {
		return err
	}

	s.state = ConnectedOnline
	s.env.Online = true
	s.log.Info(ctx, "session online",
		"server", s.env.ServerName, "version", s.env.Version, "user", s.env.UserID)
	return nil
}

func (s *Session) setOffline() {
	s.state = ConnectedOffline
	if s.env != nil {
		s.env.Online = false
	}
}

// roundTrip is the single choke point for command execution: it polls
// cancellation first and flips the session offline on transport failure.
// Callers must hold the lock or be the only user of the session.
func (s *Session) roundTrip(ctx context.Context, mon progress.Monitor, command string) (*transport.Response, error) {
	if mon.IsCanceled() {
		return nil, transport.ErrCancelled
	}
	resp, err := s.tr.Execute(ctx, command)
	if err != nil {
		if transport.IsTransportError(err) {
			s.setOffline()
		}
		return nil, err
	}
	return resp, nil
}

// Execute runs one command for the operation façade, with the same
// cancellation and offline semantics as the handshake itself.
func (s *Session) Execute(ctx context.Context, mon progress.Monitor, command string) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundTrip(ctx, mon, command)
}

// Upload runs one command with an attached file part.
func (s *Session) Upload(ctx context.Context, mon progress.Monitor, command, filename string, content io.Reader) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mon.IsCanceled() {
		return nil, transport.ErrCancelled
	}
	resp, err := s.tr.Upload(ctx, command, filename, content)
	if err != nil {
		if transport.IsTransportError(err) {
			s.setOffline()
		}
		return nil, err
	}
	return resp, nil
}

// Download runs one command and hands the raw response stream to the caller,
// who must close it to release the connection.
func (s *Session) Download(ctx context.Context, mon progress.Monitor, command string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mon.IsCanceled() {
		return nil, transport.ErrCancelled
	}
	rc, err := s.tr.Download(ctx, command)
	if err != nil {
		if transport.IsTransportError(err) {
			s.setOffline()
		}
		return nil, err
	}
	return rc, nil
}

func (s *Session) hello(ctx context.Context, mon progress.Monitor) error {
	resp, err := s.roundTrip(ctx, mon, "HELLO")
	if err != nil {
		return err
	}

	row, err := singleRow(resp, "S", 3)
	if err != nil {
		return err
	}

	s.env.ServerName = row[1]
	if resp.ServerName != "" {
		s.env.ServerName = resp.ServerName
	}
	uid, err := parseUUID(row[2])
	if err != nil {
		return err
	}
	s.env.UUID = uid

	s.env.Version = resp.Version
	s.legacy = resp.Version == ""
	if s.legacy {
		s.env.Version = legacyVersion
	}

	if major, minor, ok := parseVersion(s.env.Version); ok {
		if major > supportedMajor || (major == supportedMajor && minor > supportedMinor) {
			s.log.Warn(ctx, "server speaks a newer protocol than supported",
				"server", s.env.Version,
				"supported", fmt.Sprintf("%d.%d", supportedMajor, supportedMinor))
		}
	}
	return nil
}

func (s *Session) login(ctx context.Context, mon progress.Monitor) error {
	creds, err := s.auth.Credentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		return transport.ErrAuthenticationCancelled
	}

	cmd := "LOGIN " + codec.Quote(creds.Login) + " " + codec.Quote(creds.Password)
	resp, err := s.roundTrip(ctx, mon, cmd)
	if err != nil && transport.ErrorCode(err) == transport.CodeMustChangePassword {
		resp, err = s.changePassword(ctx, mon, creds, err)
	}
	if err != nil {
		return err
	}

	row, err := singleRow(resp, "U", 3)
	if err != nil {
		return err
	}
	if s.env.UserID, err = atoi(row, 1); err != nil {
		return err
	}
	access, err := atoi(row, 2)
	if err != nil {
		return err
	}
	s.env.Access = accessLevel(access)
	return nil
}

// changePassword retries login with the LOGIN NEW variant when the server
// demands a rotation and the authenticator can supply a new password;
// otherwise the server's original error stands.
func (s *Session) changePassword(ctx context.Context, mon progress.Monitor, creds *Credentials, original error) (*transport.Response, error) {
	pc, ok := s.auth.(PasswordChanger)
	if !ok {
		return nil, original
	}
	newPassword, err := pc.NewPassword(ctx)
	if err != nil || newPassword == "" {
		return nil, original
	}

	cmd := "LOGIN NEW " + codec.Quote(creds.Login) + " " + codec.Quote(creds.Password) + " " + codec.Quote(newPassword)
	return s.roundTrip(ctx, mon, cmd)
}

// listFeatures fetches the feature list on the legacy protocol; the modern
// one has none.
func (s *Session) listFeatures(ctx context.Context, mon progress.Monitor) error {
	if !s.legacy {
		return nil
	}
	resp, err := s.roundTrip(ctx, mon, "LIST FEATURES")
	if err != nil {
		return err
	}

	var features []string
	for _, row := range resp.Rows {
		if row[0] != "F" {
			s.log.Warn(ctx, "skipping unrecognized row", "command", "LIST FEATURES", "tag", row[0])
			continue
		}
		name, err := field(row, 1)
		if err != nil {
			return err
		}
		features = append(features, name)
	}
	s.env.Features = features
	return nil
}

// Legacy reports whether the session negotiated the legacy protocol.
func (s *Session) Legacy() bool { return s.legacy }

// ---- row helpers ----

func singleRow(resp *transport.Response, tag string, arity int) ([]string, error) {
	if len(resp.Rows) != 1 || resp.Rows[0][0] != tag {
		return nil, fmt.Errorf("%w: expected one %s row", codec.ErrMalformed, tag)
	}
	row := resp.Rows[0]
	if len(row) < arity {
		return nil, fmt.Errorf("%w: %s row has %d fields, want %d", codec.ErrMalformed, tag, len(row), arity)
	}
	return row, nil
}

func field(row []string, i int) (string, error) {
	if i >= len(row) {
		return "", fmt.Errorf("%w: %s row is missing field %d", codec.ErrMalformed, row[0], i)
	}
	return row[i], nil
}

func atoi(row []string, i int) (int, error) {
	f, err := field(row, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s row field %d: %q is not a number", codec.ErrMalformed, row[0], i, f)
	}
	return n, nil
}

func parseVersion(v string) (major, minor int, ok bool) {
	maj, min, found := strings.Cut(v, ".")
	if !found {
		return 0, 0, false
	}
	major, err := strconv.Atoi(maj)
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(min)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
