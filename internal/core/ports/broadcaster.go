package ports

import (
	"context"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
)

// Broadcaster is the public publish/subscribe channel used as order book.
// Subscriptions survive transport disconnects; the returned channel is closed
// only once ctx is done. Publish is idempotent: republishing a message returns
// the same id.
type Broadcaster interface {
	Publish(ctx context.Context, msg domain.OutboundMessage) (string, error)
	Subscribe(ctx context.Context, topic string) (<-chan domain.InboundMessage, error)
	Close()
}
