// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends typed events to all connected clients. Delivery is
// best-effort: a slow or gone client never blocks the caller.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
