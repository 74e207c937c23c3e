package jwt

import (
	"sync"
	"time"
)

const AdminTokenTTL = 12 * time.Hour

const (
	RoleAdmin Role = iota
)

var (
	secretsMu   sync.RWMutex
	RoleSecrets = map[Role]string{}
)

// SetRoleSecret installs the signing secret for role. An empty secret
// disables the role.
func SetRoleSecret(role Role, secret string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if secret == "" {
		delete(RoleSecrets, role)
		return
	}
	RoleSecrets[role] = secret
}

func roleSecret(role Role) (string, bool) {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	s, ok := RoleSecrets[role]
	return s, ok
}
