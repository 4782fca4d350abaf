// Package config loads runtime configuration for the WebIssues CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string   base URL of the WebIssues server
//	-t string   connect and read timeout, e.g. "8s"
//	-p string   protocol version: auto, legacy or modern
//	-d string   path of the local cache database, empty disables caching
//
// # JSON schema
//
// The JSON loader uses timex.Duration for timeouts, so values can be either
// strings like "8s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://issues.example.com/webissues",
//	  "connect_timeout": "8s",
//	  "read_timeout": "8s",
//	  "protocol_version": "auto",
//	  "cache_file": "webissues.db"
//	}
package config
