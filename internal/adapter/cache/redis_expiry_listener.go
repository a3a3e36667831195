package cache

import (
	"context"
	"log/slog"

	"github.com/npquoc/mallcore/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// expiredEventsPattern matches the keyspace notification Redis publishes
// when any key's TTL lapses. Requires notify-keyspace-events to include Ex.
const expiredEventsPattern = "__keyevent@*__:expired"

// ExpiryListener is the event path of the expiration watchdog: it
// subscribes to key-expiry notifications and forwards marker keys to the
// coordinator. Delivery is at-most-once and best-effort; deployments
// without notification support simply never start it — the sweep path
// carries correctness alone.
type ExpiryListener struct {
	rdb   *redis.Client
	coord *usecase.ExpirationCoordinator
	log   *slog.Logger
}

func NewExpiryListener(rdb *redis.Client, coord *usecase.ExpirationCoordinator, log *slog.Logger) *ExpiryListener {
	return &ExpiryListener{rdb: rdb, coord: coord, log: log}
}

// Run blocks consuming expiry events until ctx is done.
func (l *ExpiryListener) Run(ctx context.Context) {
	sub := l.rdb.PSubscribe(ctx, expiredEventsPattern)
	defer sub.Close()

	l.log.Info("expiry listener subscribed", "pattern", expiredEventsPattern)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("expiry listener stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				l.log.Warn("expiry subscription closed")
				return
			}
			// msg.Payload is the expired key name
			l.coord.HandleExpiredKey(ctx, msg.Payload)
		}
	}
}
