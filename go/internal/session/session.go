// Package session holds the process identity and the role/connection types
// that decide who may mutate timer state.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity is the human-transcribable session identifier. It doubles as the
// discovery address of a master and the sourceId of every sync message.
type Identity string

// NewIdentity returns a fresh identity: eight uppercase hex characters.
func NewIdentity() Identity {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Identity(strings.ToUpper(raw[:8]))
}

func (id Identity) String() string { return string(id) }

// Canonical normalizes a manually typed identity.
func Canonical(s string) Identity {
	return Identity(strings.ToUpper(strings.TrimSpace(s)))
}

// Matches compares an identity with manual input, ignoring case and padding.
func (id Identity) Matches(s string) bool {
	return id != "" && Canonical(s) == id
}

// Role is the replication mode of the local process.
type Role string

const (
	RoleStandalone Role = "standalone"
	RoleMaster     Role = "master"
	RoleSlave      Role = "slave"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStandalone, RoleMaster, RoleSlave:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Authoritative reports whether the role may mutate timers locally and run a clock.
func (r Role) Authoritative() bool {
	return r == RoleStandalone || r == RoleMaster
}

// ConnectionStatus tracks a slave's link to its master.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)
