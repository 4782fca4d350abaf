// Package cli provides the interactive WebIssues command-line client.
//
// It wires configuration, the HTTP transport, a session and the operation
// client into an interactive REPL that supports online/offline operation.
// Typical flow: connect (prompting for credentials), browse projects and
// folders, list and show issues, comment, and sync incrementally.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
