package gate

import (
	"time"

	"github.com/openclaw/x402gate/internal/x402"
)

// RouteKey identifies a protected route by method and exact path.
type RouteKey struct {
	Method string
	Path   string
}

// Config drives the payment gate.
//
// Single-route mode sets Requirement alone: everything not free-listed is
// gated by it. Multi-route mode sets Routes: unlisted routes pass free
// (default-open; enumerate all routes for default-closed behavior).
// FreeRoutes always wins, even over a matching Routes entry.
type Config struct {
	Requirement *x402.Requirement
	Routes      map[RouteKey]*x402.Requirement
	FreeRoutes  []string

	// OnPayment is invoked after a successful settlement, before the
	// handler runs. Hook failures are logged and never gate the request.
	OnPayment func(*Payment) error

	// VerifyTimeout bounds the verify-and-settle call so a hung
	// facilitator cannot hold the connection. Zero means 30s.
	VerifyTimeout time.Duration
}

func (c *Config) freeSet() map[string]struct{} {
	free := make(map[string]struct{}, len(c.FreeRoutes))
	for _, p := range c.FreeRoutes {
		free[p] = struct{}{}
	}
	return free
}

// resolve returns the requirement for a request, or nil for pass-through.
func (c *Config) resolve(method, path string) *x402.Requirement {
	if c.Routes != nil {
		return c.Routes[RouteKey{Method: method, Path: path}]
	}
	return c.Requirement
}
