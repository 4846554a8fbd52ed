package models

import (
	"fmt"
	"time"
)

// Class groups OCPI routes that share one request budget per client.
type Class string

const (
	ClassDiscovery   Class = "discovery"
	ClassCredentials Class = "credentials"
)

// Limit is a sliding-window budget: at most Requests within Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set only when denied
}

// RequestKey is the bucket for a client's requests of one class.
func RequestKey(class Class, ip string) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, ip)
}

// FailureKey is the bucket counting a client's rejected tokens.
func FailureKey(ip string) string {
	return "ratelimit:token_failures:" + ip
}
