package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isConnected() bool
	Connect(ctx context.Context) error
	Projects(ctx context.Context) error
	Folders(ctx context.Context) error
	Issues(ctx context.Context, folder string) error
	Show(ctx context.Context, issue string) error
	Comment(ctx context.Context, issue string) error
	Sync(ctx context.Context) error
	Offline(ctx context.Context) error
	Online(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the WebIssues CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are printed and swallowed here,
// keeping the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("wi> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isConnected() {
				printlnFn("Available commands: projects, folders, issues <folderId>, show <issueId>, comment <issueId>, sync, offline, online, exit")
			} else {
				printlnFn("Available commands: connect, exit")
			}

		case "connect":
			err = a.Connect(ctx)

		case "projects":
			err = a.Projects(ctx)

		case "folders":
			err = a.Folders(ctx)

		case "issues":
			if len(args) == 0 {
				printlnFn("Usage: issues <folderId>")
				continue
			}
			err = a.Issues(ctx, args[0])

		case "show":
			if len(args) == 0 {
				printlnFn("Usage: show <issueId>")
				continue
			}
			err = a.Show(ctx, args[0])

		case "comment":
			if len(args) == 0 {
				printlnFn("Usage: comment <issueId>")
				continue
			}
			err = a.Comment(ctx, args[0])

		case "sync":
			err = a.Sync(ctx)

		case "offline":
			err = a.Offline(ctx)

		case "online":
			err = a.Online(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
