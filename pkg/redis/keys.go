package redis

import "strings"

// Keyspace prefixes every key this service writes.
type Keyspace string

const DefaultKeyspace Keyspace = "cc"

// Key joins the namespace and the non-blank parts with ':'.
func (k Keyspace) Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

func (c *Client) keyspace() Keyspace {
	if c.keys == "" {
		return DefaultKeyspace
	}
	return c.keys
}

// IdempotencyKey names the marker for id within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keyspace().Key("idempotency", scope, id)
}

// RateLimitKey names the counter for scope.
func (c *Client) RateLimitKey(scope string) string {
	return c.keyspace().Key("rate_limit", scope)
}

// LockKey names a distributed lease.
func (c *Client) LockKey(name string) string {
	return c.keyspace().Key("lock", name)
}
