// Package client is the single point of entry for server interactions: it
// wraps every stateful call in a bounded retry-on-auth-expiry loop and
// exposes the operation surface consumed by UIs and task layers.
package client

import (
	"context"

	"github.com/webissues/webissues-go/internal/cache"
	"github.com/webissues/webissues-go/internal/logging"
	"github.com/webissues/webissues-go/internal/progress"
	"github.com/webissues/webissues-go/internal/session"
	"github.com/webissues/webissues-go/internal/transport"
)

// Client wraps a Session with the retry policy and the CRUD operation
// surface. Like the session, it is synchronous and not safe for concurrent
// use.
type Client struct {
	session *session.Session
	cache   *cache.Cache
	log     logging.Logger
}

func New(s *session.Session, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{session: s, log: log}
}

// SetCache attaches an optional local cache; FindIssues then persists issue
// headers and advanced stamps, best effort.
func (c *Client) SetCache(ch *cache.Cache) { c.cache = ch }

// Cache returns the attached cache, or nil.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Session exposes the underlying session for lifecycle calls that need no
// retry wrapper (GoOffline, Disconnect).
func (c *Client) Session() *session.Session { return c.session }

// Connect establishes the session; see session.Session.Connect.
func (c *Client) Connect(ctx context.Context, mon progress.Monitor) error {
	return c.session.Connect(ctx, mon)
}

// IsOnline reports whether the session is online.
func (c *Client) IsOnline() bool { return c.session.IsOnline() }

// Environment returns the live snapshot, or nil while disconnected.
func (c *Client) Environment() *session.Environment { return c.session.Environment() }

// do runs op with the retry policy: at most two attempts, each preceded by a
// cancellation check and by bringing the session online. Only a
// login-required failure on the first attempt earns a second one, after
// forcing the session offline so it re-authenticates; every other failure
// propagates immediately.
//
// The whole operation is framed by exactly one Begin/Done pair on mon, with
// the given name and unit total; a retried attempt and the nested re-login
// handshake stay inside that frame.
func (c *Client) do(ctx context.Context, mon progress.Monitor, name string, units int, op func(ctx context.Context) error) error {
	return progress.Finish(mon, name, units, func() error {
		var err error
		for attempt := 0; attempt < 2; attempt++ {
			if mon.IsCanceled() {
				return transport.ErrCancelled
			}
			if err = c.session.EnsureOnline(ctx, progress.Sub(mon)); err != nil {
				return err
			}

			if err = op(ctx); err == nil {
				return nil
			}
			if attempt == 0 && transport.ErrorCode(err) == transport.CodeLoginRequired {
				c.log.Info(ctx, "login expired, re-authenticating")
				_ = c.session.GoOffline()
				continue
			}
			return err
		}
		return err
	})
}
