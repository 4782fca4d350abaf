// Package transport performs single command round-trips against a WebIssues
// server: HTTP POST multipart requests carrying a "command" field (plus an
// optional "file" part), and line-oriented text responses handed to the wire
// codec. It also defines the protocol error taxonomy.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/logging"
)

// Endpoint shapes. The modern server mounts its handler under /server; the
// legacy one at the site root.
const (
	modernPath = "/server/handler.php"
	legacyPath = "/handler.php"
)

// Response metadata headers.
const (
	VersionHeader    = "X-WebIssues-Version"
	ServerNameHeader = "X-WebIssues-Server"
)

// Version selects the endpoint shape to speak against.
type Version int

const (
	// VersionAuto probes the modern endpoint first and falls back to the
	// legacy one when no version header comes back.
	VersionAuto Version = iota
	VersionLegacy
	VersionModern
)

// Response is one parsed command response: protocol metadata from the HTTP
// headers plus the tokenized rows of the body.
type Response struct {
	Version    string
	ServerName string
	Rows       [][]string
}

// Transport issues one command round-trip. Implementations are not safe for
// concurrent use; the session serializes access.
type Transport interface {
	// Execute sends command and returns the parsed response rows. A
	// server-reported ERROR row is returned as a *ProtocolError; HTTP and
	// connection failures as a *TransportError.
	Execute(ctx context.Context, command string) (*Response, error)

	// Upload is Execute with an attached binary part named "file".
	Upload(ctx context.Context, command, filename string, content io.Reader) (*Response, error)

	// Download sends command and returns the raw response body. Ownership
	// of the stream passes to the caller; closing it releases the
	// underlying connection.
	Download(ctx context.Context, command string) (io.ReadCloser, error)
}

// HTTPTransport is the concrete Transport speaking to one server base URL.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	version Version
	log     logging.Logger
}

// Options configures an HTTPTransport. Zero-value timeouts fall back to 8s,
// the protocol's historical default.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Version        Version
	Logger         logging.Logger
}

const defaultTimeout = 8 * time.Second

// NewHTTPTransport creates a transport for the given server base URL
// (scheme://host[/path], no trailing slash required).
func NewHTTPTransport(baseURL string, opts Options) *HTTPTransport {
	connect := opts.ConnectTimeout
	if connect == 0 {
		connect = defaultTimeout
	}
	read := opts.ReadTimeout
	if read == 0 {
		read = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: read,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connect}).DialContext,
			},
		},
		version: opts.Version,
		log:     log,
	}
}

// ProtocolVersion reports the endpoint shape currently in use. Before the
// first successful round-trip in auto mode this is VersionAuto.
func (t *HTTPTransport) ProtocolVersion() Version { return t.version }

func (t *HTTPTransport) endpoint() string {
	if t.version == VersionLegacy {
		return t.baseURL + legacyPath
	}
	return t.baseURL + modernPath
}

func (t *HTTPTransport) Execute(ctx context.Context, command string) (*Response, error) {
	resp, err := t.post(ctx, command, "", nil)
	if err != nil {
		return nil, err
	}

	if resp.Version == "" && t.version == VersionAuto {
		// No version header: assume a legacy server and retry once
		// against the non-versioned endpoint. This can mask real
		// connectivity problems as a version mismatch; see DESIGN.md.
		t.log.Warn(ctx, "no protocol version header, retrying legacy endpoint", "url", t.baseURL)
		t.version = VersionLegacy
		return t.post(ctx, command, "", nil)
	}
	if resp.Version != "" && t.version == VersionAuto {
		t.version = VersionModern
	}
	return resp, nil
}

func (t *HTTPTransport) Upload(ctx context.Context, command, filename string, content io.Reader) (*Response, error) {
	// Uploads never auto-detect: the content reader cannot be replayed.
	// The session always negotiates the endpoint with HELLO first.
	return t.post(ctx, command, filename, content)
}

func (t *HTTPTransport) Download(ctx context.Context, command string) (io.ReadCloser, error) {
	resp, err := t.send(ctx, command, "", nil)
	if err != nil {
		return nil, err
	}

	// An error outcome arrives as a regular text response; anything else
	// is the attachment content itself.
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		defer resp.Body.Close()
		parsed, err := parseBody(resp)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: expected binary content, got %d text rows", codec.ErrMalformed, len(parsed.Rows))
	}
	return resp.Body, nil
}

// post performs one request and fully parses the text response.
func (t *HTTPTransport) post(ctx context.Context, command, filename string, content io.Reader) (*Response, error) {
	resp, err := t.send(ctx, command, filename, content)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return parseBody(resp)
}

// send performs the HTTP exchange and status check, leaving the body unread.
func (t *HTTPTransport) send(ctx context.Context, command, filename string, content io.Reader) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("command", command); err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, fmt.Errorf("encoding attachment: %w", err)
		}
		if _, err := io.Copy(fw, content); err != nil {
			return nil, fmt.Errorf("encoding attachment: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), &body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode}
	}
	return resp, nil
}

func parseBody(resp *http.Response) (*Response, error) {
	out := &Response{
		Version:    resp.Header.Get(VersionHeader),
		ServerName: resp.Header.Get(ServerNameHeader),
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		// A lone NULL on the first line is the deliberate empty-result
		// sentinel. Later lines spelled NULL are real rows.
		if first && line == "NULL" {
			first = false
			continue
		}

		row, err := codec.ParseRow(line)
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		if first && row[0] == "ERROR" {
			return nil, decodeError(row)
		}
		first = false

		out.Rows = append(out.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, &TransportError{Err: err}
	}
	return out, nil
}

func decodeError(row []string) error {
	if len(row) < 2 {
		return fmt.Errorf("%w: ERROR row with no code", codec.ErrMalformed)
	}
	code, err := strconv.Atoi(row[1])
	if err != nil {
		return fmt.Errorf("%w: ERROR code %q", codec.ErrMalformed, row[1])
	}
	msg := ""
	if len(row) > 2 {
		msg = row[2]
	}
	return &ProtocolError{Code: code, Message: msg}
}
