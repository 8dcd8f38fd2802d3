package application

import (
	"context"
	"fmt"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

const DefaultOrderBookCapacity = 100

// OrderBook is the bounded local index of intents seen on the broadcast
// channel. Entries are evicted oldest first; duplicates never refresh an
// entry's position.
type OrderBook struct {
	index    *lru.Cache[string, domain.SwapIntent]
	verifier ports.SignatureVerifier
	tokens   map[htlc.Ticker]struct{}
}

// NewOrderBook returns an order book holding at most capacity intents. When
// tokens is not empty, intents for any other ticker are rejected.
func NewOrderBook(
	capacity int, verifier ports.SignatureVerifier, tokens []string,
) (*OrderBook, error) {
	if capacity <= 0 {
		capacity = DefaultOrderBookCapacity
	}
	if verifier == nil {
		return nil, fmt.Errorf("missing signature verifier")
	}

	book := &OrderBook{verifier: verifier}
	index, err := lru.NewWithEvict(capacity, func(string, domain.SwapIntent) {
		ingestTotal.WithLabelValues("evicted").Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order book index: %w", err)
	}
	book.index = index

	if len(tokens) > 0 {
		book.tokens = make(map[htlc.Ticker]struct{}, len(tokens))
		for _, t := range tokens {
			book.tokens[htlc.Ticker(t)] = struct{}{}
		}
	}
	return book, nil
}

// Ingest validates msg and adds the intent it carries to the index.
func (o *OrderBook) Ingest(ctx context.Context, msg domain.InboundMessage) domain.IngestResult {
	if o.index.Contains(msg.Id) {
		return o.result(domain.IngestDuplicate, "", nil)
	}

	intent, err := domain.DecodeIntent(msg)
	if err != nil {
		return o.result(domain.IngestRejected, err.Error(), nil)
	}
	if !o.supports(intent.Terms.FromToken) || !o.supports(intent.Terms.ToToken) {
		return o.result(domain.IngestRejected, fmt.Sprintf(
			"unsupported pair %s/%s", intent.Terms.FromToken, intent.Terms.ToToken,
		), nil)
	}

	if err := o.verifier.Verify(ctx, msg); err != nil {
		return o.result(domain.IngestRejected, fmt.Sprintf("invalid signature: %s", err), nil)
	}

	if found, _ := o.index.ContainsOrAdd(intent.Id, *intent); found {
		return o.result(domain.IngestDuplicate, "", nil)
	}

	log.WithField("intent", intent.Id).Debugf("accepted intent %s", intent)
	return o.result(domain.IngestAccepted, "", intent)
}

// Query returns the intents for the given pair, most recent first. An empty
// ticker matches any token.
func (o *OrderBook) Query(from, to htlc.Ticker) []domain.SwapIntent {
	keys := o.index.Keys()
	intents := make([]domain.SwapIntent, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		intent, ok := o.index.Peek(keys[i])
		if !ok {
			continue
		}
		if from != "" && intent.Terms.FromToken != from {
			continue
		}
		if to != "" && intent.Terms.ToToken != to {
			continue
		}
		intents = append(intents, intent)
	}
	return intents
}

func (o *OrderBook) Get(id string) (*domain.SwapIntent, bool) {
	intent, ok := o.index.Peek(id)
	if !ok {
		return nil, false
	}
	return &intent, true
}

func (o *OrderBook) Len() int {
	return o.index.Len()
}

// DropTopic discards every intent received on topic.
func (o *OrderBook) DropTopic(topic string) int {
	dropped := 0
	for _, id := range o.index.Keys() {
		if intent, ok := o.index.Peek(id); ok && intent.Topic == topic {
			if o.index.Remove(id) {
				dropped++
			}
		}
	}
	orderbookSize.Set(float64(o.index.Len()))
	return dropped
}

func (o *OrderBook) supports(t htlc.Ticker) bool {
	if o.tokens == nil {
		return true
	}
	_, ok := o.tokens[t]
	return ok
}

func (o *OrderBook) result(
	status domain.IngestStatus, reason string, intent *domain.SwapIntent,
) domain.IngestResult {
	ingestTotal.WithLabelValues(status.String()).Inc()
	orderbookSize.Set(float64(o.index.Len()))
	return domain.IngestResult{Status: status, Reason: reason, Intent: intent}
}
