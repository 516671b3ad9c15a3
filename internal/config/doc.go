// Package config loads the client configuration.
//
// Configuration is YAML with ${VAR} environment expansion and duration
// strings ("1s", "30s") parsed into time.Duration values:
//
//	gateway:
//	  url: "wss://gateway.example.com"
//	  http_url: "https://gateway.example.com"
//	  token: "${COVEN_TOKEN}"
//	  session_key: "my-session"
//	reconnect:
//	  initial_delay: "1s"
//	  max_delay: "30s"
//	  max_attempts: 10
//	readiness:
//	  interval: "3s"
//	  timeout: "5m"
//	transcript:
//	  enabled: true
//	  path: "~/.local/share/coven/transcript.db"
//	logging:
//	  level: "info"
//	  format: "text"
package config
