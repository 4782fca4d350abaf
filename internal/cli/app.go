package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/webissues/webissues-go/internal/cache"
	"github.com/webissues/webissues-go/internal/client"
	"github.com/webissues/webissues-go/internal/config"
	"github.com/webissues/webissues-go/internal/logging"
	"github.com/webissues/webissues-go/internal/session"
	"github.com/webissues/webissues-go/internal/transport"
)

// App ties the configuration, the client and the terminal together.
type App struct {
	config *config.Config
	client *client.Client
	log    logging.Logger
	reader *bufio.Reader

	// stamps is the per-folder sync watermark, advanced by every sync.
	stamps map[int]int
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	reader := bufio.NewReader(os.Stdin)

	tr := transport.NewHTTPTransport(cfg.ServerURL, transport.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Version:        cfg.ProtocolVersion,
		Logger:         log,
	})
	s := session.New(tr, &terminalAuth{reader: reader}, log)
	c := client.New(s, log)

	app := &App{config: cfg, client: c, log: log, reader: reader, stamps: make(map[int]int)}

	if cfg.CacheFile != "" {
		ch, err := cache.Open(context.Background(), cfg.CacheFile)
		if err != nil {
			return nil, err
		}
		c.SetCache(ch)
	}
	return app, nil
}

// Run starts the REPL, connecting first. It blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if ch := a.client.Cache(); ch != nil {
			_ = ch.Close()
		}
	}()

	printlnFn("WebIssues CLI (type 'help' for commands)")
	if err := a.Connect(ctx); err != nil {
		printlnFn("Connection failed:", err.Error())
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

// status renders the prompt suffix: server name, user and online state.
func (a *App) status() string {
	env := a.client.Environment()
	if env == nil {
		return "disconnected"
	}
	s := env.ServerName
	if u := env.CurrentUser(); u != nil {
		s += " " + u.Login
	}
	if a.client.IsOnline() {
		return s + " online"
	}
	return s + " offline"
}

func (a *App) isConnected() bool {
	return a.client.Environment() != nil
}
