package redis

import "strings"

const keyNamespace = "epos"

// Key kinds.
const (
	kindIdempotency = "idempotency"
	kindLock        = "lock"
)

// key joins non-empty parts under the service namespace:
// epos:<kind>:<scope>:<id>.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IdempotencyKey names the record for one client key within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(kindIdempotency, scope, id)
}

// LockKey names the lock guarding id within scope.
func (c *Client) LockKey(scope, id string) string {
	return key(kindLock, scope, id)
}
