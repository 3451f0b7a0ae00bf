// Package config loads relay configuration from an optional YAML file and
// environment variables.
//
// Precedence, lowest first: built-in defaults, the YAML file (with ${VAR}
// expansion), then the environment variables SERVER_PORT, ALLOWED_ORIGINS,
// MAX_MESSAGE_SIZE, STORE_DRIVER, STORE_PATH, STORE_RETENTION, LOG_LEVEL and
// LOG_FORMAT.
package config
