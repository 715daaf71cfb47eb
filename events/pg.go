package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/internal/codecs"
	"github.com/ripkitten-co/tether/internal/pg"
)

// Channel is the NOTIFY channel external layers listen on.
const Channel = "tether_events"

// PgNotifier publishes events as JSON payloads on a Postgres NOTIFY channel.
// Delivery is best-effort: notifications are dropped when no listener is
// connected, and publish failures are the caller's to ignore or log. Lost
// notifications are compensated by reconciliation, not retried.
type PgNotifier struct {
	exec  pg.Executor
	codec codecs.Codec
}

// NewPgNotifier creates a notifier using the given backend's executor.
func NewPgNotifier(b tether.Backend) *PgNotifier {
	return &PgNotifier{
		exec:  b.DBExecutor(),
		codec: b.JSONCodec(),
	}
}

func (n *PgNotifier) Publish(ctx context.Context, evt Event) error {
	payload, err := n.codec.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: notify %s: marshal: %w", evt.BindingID, err)
	}
	_, err = n.exec.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, string(payload))
	if err != nil {
		return fmt.Errorf("events: notify %s: %w", evt.BindingID, err)
	}
	return nil
}

// Listener blocks on the NOTIFY channel and decodes event payloads for
// external layers that stay in sync without polling.
type Listener struct {
	pool  *pgxpool.Pool
	codec codecs.Codec
}

// NewListener creates a listener on the given store's pool.
func NewListener(s *tether.Store) *Listener {
	return &Listener{
		pool:  s.PgxPool(),
		codec: s.JSONCodec(),
	}
}

// Wait blocks until an event arrives on the channel or the context is
// cancelled, then returns the decoded event.
func (l *Listener) Wait(ctx context.Context) (Event, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("events: listen: acquire conn: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	if err != nil {
		return Event{}, fmt.Errorf("events: listen: %w", err)
	}

	notification, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("events: listen: wait: %w", err)
	}

	var evt Event
	if err := l.codec.Unmarshal([]byte(notification.Payload), &evt); err != nil {
		return Event{}, fmt.Errorf("events: listen: decode payload: %w", err)
	}
	return evt, nil
}
