package config

import (
	"flag"
	"os"
	"time"

	"github.com/webissues/webissues-go/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-u string   base URL of the WebIssues server (default from Config)
//	-t string   connect and read timeout, e.g. "8s"
//	-p string   protocol version: auto, legacy or modern
//	-d string   path of the local cache database
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-u", "-t", "-p", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "u", cfg.ServerURL, "base URL of the WebIssues server")
	timeout := fs.String("t", "", "connect and read timeout, e.g. 8s")
	version := fs.String("p", "", "protocol version: auto, legacy or modern")
	fs.StringVar(&cfg.CacheFile, "d", cfg.CacheFile, "path of the local cache database")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *timeout != "" {
		d, err := time.ParseDuration(*timeout)
		if err != nil {
			panic(err)
		}
		cfg.ConnectTimeout = d
		cfg.ReadTimeout = d
	}
	if *version != "" {
		cfg.ProtocolVersion = parseVersion(*version)
	}
}
