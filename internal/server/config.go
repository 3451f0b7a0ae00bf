// Package server provides configuration helpers that define runtime defaults
// and validation for the relay's HTTP and WebSocket surface.
package server

import (
	"strings"
)

// Config holds the HTTP and WebSocket settings of the relay.
type Config struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	SendBuffer     int      `yaml:"send_buffer"`
}

const (
	defaultPort           = ":3000"
	defaultMaxMessageSize = 1 << 20
	defaultSendBuffer     = 256
)

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{"*"},
		MaxMessageSize: defaultMaxMessageSize,
		SendBuffer:     defaultSendBuffer,
	}
}

// Sanitize fills unset or invalid fields with defaults. A bare port number
// is turned into a listen address.
func (c Config) Sanitize() Config {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = defaultPort
	} else if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}
