package server

import (
	"fmt"
	"strings"
)

// Role classifies a connection. The string values are the clientType sent
// to clients.
type Role string

const (
	RoleUnclassified Role = "unclassified"
	RoleProducer     Role = "extension"
	RoleObserver     Role = "dashboard"
)

func (r Role) valid() bool {
	switch r {
	case RoleUnclassified, RoleProducer, RoleObserver:
		return true
	}
	return false
}

// ParseRole accepts the wire names and their generic aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extension", "producer":
		return RoleProducer, nil
	case "dashboard", "observer":
		return RoleObserver, nil
	case "unclassified":
		return RoleUnclassified, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
