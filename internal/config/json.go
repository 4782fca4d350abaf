package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/webissues/webissues-go/internal/flagx"
	"github.com/webissues/webissues-go/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify timeouts either as strings like "8s" or
// as integer nanoseconds. After parsing, values are copied into the runtime
// Config (which uses time.Duration).
type JsonConfig struct {
	ServerURL       string         `json:"server_url"`
	ConnectTimeout  timex.Duration `json:"connect_timeout"`
	ReadTimeout     timex.Duration `json:"read_timeout"`
	ProtocolVersion string         `json:"protocol_version"`
	CacheFile       string         `json:"cache_file"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file override the defaults. Panics on read or
// unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.ConnectTimeout.Duration != 0 {
		cfg.ConnectTimeout = time.Duration(jc.ConnectTimeout.Duration)
	}
	if jc.ReadTimeout.Duration != 0 {
		cfg.ReadTimeout = time.Duration(jc.ReadTimeout.Duration)
	}
	if jc.ProtocolVersion != "" {
		cfg.ProtocolVersion = parseVersion(jc.ProtocolVersion)
	}
	if jc.CacheFile != "" {
		cfg.CacheFile = jc.CacheFile
	}
}
