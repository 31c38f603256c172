// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML (default) or TOML files (by the .toml
// extension) with environment variable expansion. Missing values fall back to
// defaults, then the result is validated.
//
// # Configuration File
//
// The server binary looks in order at:
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/gateway.yaml
//  3. ~/.config/parley/gateway.yaml
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8000"
//	  grpc_addr: "localhost:50051"   # optional grpc.health.v1
//	  shutdown_timeout: "5s"
//
//	engine:
//	  kind: "claude"                 # claude | demo
//	  command: "claude"
//	  model: ""
//	  timeout: "5m"
//	  allowed_tools: ["Read"]
//	  demo_delay: "50ms"
//
//	profiles:
//	  chat:  { instructions: "...", turn_limit: 10 }
//	  legal: { instructions: "...", turn_limit: 2 }
//
//	database:
//	  driver: "sqlite"               # sqlite (pure Go) | sqlite3 (cgo)
//	  path: ""                       # empty disables the journal
//
//	auth:
//	  jwt_secret: ""                 # empty disables auth, else >= 32 bytes
//
//	tailscale:
//	  enabled: false
//	  hostname: "parley"
//
//	logging:
//	  level: "info"                  # debug, info, warn, error
//	  format: "text"                 # text, json
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
//	debug:
//	  include_messages: false
package config
