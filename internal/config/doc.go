// Package config handles configuration loading for the monkai-trace CLI.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	api:
//	  token: "${MONKAI_TRACER_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// The MONKAI_TRACER_TOKEN environment variable, when set, always overrides
// api.token regardless of what the file says.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	api:
//	  timeout: "45s"
//	session:
//	  inactivity_timeout: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Collection API:
//
//	api:
//	  token: "${MONKAI_TRACER_TOKEN}"
//	  base_url: ""          # empty = production endpoint
//	  timeout: "30s"
//	  max_retries: 3
//	  chunk_size: 100
//
// Tracing defaults:
//
//	namespace: "acme"
//	agent: "support-bot"
//
// Session windowing:
//
//	session:
//	  inactivity_timeout: "2m"
//
// Failed-chunk spool:
//
//	spool:
//	  path: "~/.monkai/spool.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a file:
//
//	cfg, err := config.Load("monkai.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or from the environment alone:
//
//	cfg, err := config.Default()
package config
