package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/nbd-wtf/go-nostr"
	log "github.com/sirupsen/logrus"
)

// KindSwapIntent is the regular event kind carrying swap intents. Intents are
// immutable, so every publish is a new event.
const KindSwapIntent = 4078

const topicTag = "t"

type broadcaster struct {
	relays []string
	sk     string
	pk     string
	pool   *nostr.SimplePool
	cancel context.CancelFunc
	once   sync.Once
}

// NewBroadcaster publishes and subscribes to swap intents on the given
// relays, signing events with the identity key sk.
func NewBroadcaster(relays []string, sk string) (ports.Broadcaster, error) {
	if len(relays) == 0 {
		return nil, fmt.Errorf("missing relays")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid identity key: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &broadcaster{
		relays: relays,
		sk:     sk,
		pk:     pk,
		pool:   nostr.NewSimplePool(ctx),
		cancel: cancel,
	}, nil
}

// Publish signs msg into an event tagged with its topic and sends it to every
// relay. It succeeds as long as one relay accepted the event.
func (b *broadcaster) Publish(ctx context.Context, msg domain.OutboundMessage) (string, error) {
	ev, err := signEvent(b.sk, b.pk, msg)
	if err != nil {
		return "", err
	}

	var errs []error
	acked := 0
	for _, url := range b.relays {
		relay, err := b.pool.EnsureRelay(url)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		if err := relay.Publish(ctx, *ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		acked++
	}

	if acked == 0 {
		return "", htlc.Wrap(htlc.ErrPublishFailed, errors.Join(errs...))
	}
	if len(errs) > 0 {
		log.WithError(errors.Join(errs...)).Warnf("event %s published to %d/%d relays", ev.ID, acked, len(b.relays))
	}
	return ev.ID, nil
}

// Subscribe streams the events tagged with topic from all relays, each event
// once. The pool reconnects dropped relays until ctx is done.
func (b *broadcaster) Subscribe(ctx context.Context, topic string) (<-chan domain.InboundMessage, error) {
	filters := nostr.Filters{{
		Kinds: []int{KindSwapIntent},
		Tags:  nostr.TagMap{topicTag: []string{topic}},
	}}

	events := b.pool.SubMany(ctx, b.relays, filters)
	msgs := make(chan domain.InboundMessage)

	go func() {
		defer close(msgs)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Event == nil {
					continue
				}
				msg, err := toInboundMessage(topic, ev.Event)
				if err != nil {
					log.WithError(err).Debug("skipping event")
					continue
				}
				select {
				case msgs <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgs, nil
}

func (b *broadcaster) Close() {
	b.once.Do(b.cancel)
}

func toInboundMessage(topic string, ev *nostr.Event) (domain.InboundMessage, error) {
	envelope, err := json.Marshal(ev)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	return domain.InboundMessage{
		Id:        ev.ID,
		Topic:     topic,
		Sender:    ev.PubKey,
		Payload:   []byte(ev.Content),
		CreatedAt: int64(ev.CreatedAt),
		Envelope:  envelope,
	}, nil
}
