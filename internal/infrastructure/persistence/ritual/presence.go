package ritualstore

import (
	"context"

	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

// Presence tracks which visitors currently hold an open real-time
// channel, in a single hash keyed by visitor ID. Membership gates both
// ambient anomaly generation and scheduled fan-out targeting.
type Presence struct {
	store  kvClient
	logger *logging.ChanneledLogger
	key    string
}

// NewPresence creates a presence tracker backed by the given hash key.
func NewPresence(store kvClient, key string, logger *logging.ChanneledLogger) *Presence {
	return &Presence{
		store:  store,
		logger: logger,
		key:    key,
	}
}

// Connect registers the visitor as reachable. Idempotent.
func (p *Presence) Connect(ctx context.Context, visitorID string) error {
	return p.store.HSet(ctx, p.key, visitorID, "1")
}

// Disconnect removes the visitor. A no-op when already disconnected.
func (p *Presence) Disconnect(ctx context.Context, visitorID string) error {
	return p.store.HDel(ctx, p.key, visitorID)
}

// Heartbeat re-asserts the connection. Idempotent.
func (p *Presence) Heartbeat(ctx context.Context, visitorID string) error {
	return p.store.HSet(ctx, p.key, visitorID, "1")
}

// IsConnected reports whether the visitor has an active channel.
func (p *Presence) IsConnected(ctx context.Context, visitorID string) (bool, error) {
	return p.store.HExists(ctx, p.key, visitorID)
}

// ConnectedIDs lists all currently connected visitors.
func (p *Presence) ConnectedIDs(ctx context.Context) ([]string, error) {
	return p.store.HKeys(ctx, p.key)
}

// Count returns the number of active connections.
func (p *Presence) Count(ctx context.Context) (int64, error) {
	return p.store.HLen(ctx, p.key)
}

// ClearAll drops every connection record, for shutdown.
func (p *Presence) ClearAll(ctx context.Context) error {
	_, err := p.store.Delete(ctx, p.key)
	return err
}
