// Package config handles configuration loading for coven-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides sensible defaults so the relay can run
// unconfigured for local experimentation.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	relay_key:
//	  path: "${COVEN_RELAY_KEY_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	retention:
//	  prune_interval: "60s"
//	  checkpoint_interval: "60s"
//	  max_age: "720h"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  ws_addr: ":8765"    # accepted but not bound by coven-relay
//	  http_addr: ":8766"  # /ws, health, metrics, relay-admin
//
// Store:
//
//	store:
//	  backend: "bolt"  # recorded only; coven-relay always opens bolt_path
//	  bolt_path: "/var/lib/coven-relay/log.bolt"
//	  admin_db: "/var/lib/coven-relay/admin.sqlite"
//
// Retention:
//
//	retention:
//	  prune_interval: "60s"
//	  checkpoint_interval: "60s"
//	  max_age: "720h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
