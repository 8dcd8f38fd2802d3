package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/nbd-wtf/go-nostr"
)

type verifier struct{}

// NewVerifier checks that a message is the content of a validly signed event
// of its sender.
func NewVerifier() ports.SignatureVerifier {
	return verifier{}
}

func (verifier) Verify(_ context.Context, msg domain.InboundMessage) error {
	if len(msg.Envelope) == 0 {
		return fmt.Errorf("missing envelope")
	}

	var ev nostr.Event
	if err := json.Unmarshal(msg.Envelope, &ev); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if ev.ID != msg.Id || ev.GetID() != ev.ID {
		return fmt.Errorf("event id mismatch")
	}
	if ev.PubKey != msg.Sender {
		return fmt.Errorf("event author mismatch")
	}
	if ev.Content != string(msg.Payload) {
		return fmt.Errorf("event content mismatch")
	}
	if ev.Kind != KindSwapIntent {
		return fmt.Errorf("unexpected event kind %d", ev.Kind)
	}
	if !hasTopic(ev.Tags, msg.Topic) {
		return fmt.Errorf("event is not tagged with topic %s", msg.Topic)
	}

	ok, err := ev.CheckSignature()
	if err != nil {
		return fmt.Errorf("failed to check signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// SignMessage wraps msg in an event signed with sk. It is how a message looks
// once received from a relay.
func SignMessage(sk string, msg domain.OutboundMessage) (domain.InboundMessage, error) {
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	ev, err := signEvent(sk, pk, msg)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	return toInboundMessage(msg.Topic, ev)
}

// signEvent builds the event of msg. The id only depends on the author and
// msg, so the same message always maps to the same event id.
func signEvent(sk, pk string, msg domain.OutboundMessage) (*nostr.Event, error) {
	createdAt := nostr.Now()
	if msg.CreatedAt > 0 {
		createdAt = nostr.Timestamp(msg.CreatedAt)
	}
	ev := &nostr.Event{
		PubKey:    pk,
		CreatedAt: createdAt,
		Kind:      KindSwapIntent,
		Tags:      nostr.Tags{{topicTag, msg.Topic}},
		Content:   string(msg.Payload),
	}
	if err := ev.Sign(sk); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}
	return ev, nil
}

func hasTopic(tags nostr.Tags, topic string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == topicTag && tag[1] == topic {
			return true
		}
	}
	return false
}
