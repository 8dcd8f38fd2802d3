package application_test

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/relay"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/nbd-wtf/go-nostr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func makeMessage(t *testing.T, sk string, i int, terms htlc.Terms) domain.InboundMessage {
	t.Helper()
	intent := domain.SwapIntent{
		CommitmentHash: htlc.Hash(sha256.Sum256([]byte(fmt.Sprintf("intent-%d", i)))),
		Terms:          terms,
		RefundHeight:   uint32(200 + i),
	}
	payload, err := intent.Payload()
	require.NoError(t, err)
	msg, err := relay.SignMessage(sk, domain.OutboundMessage{Topic: testTopic, Payload: payload})
	require.NoError(t, err)
	return msg
}

func TestOrderBook(t *testing.T) {
	sk := nostr.GeneratePrivateKey()

	t.Run("ingest", func(t *testing.T) {
		book, err := application.NewOrderBook(10, relay.NewVerifier(), []string{"SAT", "TEST"})
		require.NoError(t, err)

		valid := makeMessage(t, sk, 0, satForTest)

		tampered := makeMessage(t, sk, 1, satForTest)
		tampered.Payload = makeMessage(t, sk, 2, satForTest).Payload

		unsupported := makeMessage(t, sk, 3, htlc.Terms{
			FromToken: "ATOM", FromAmount: decimal.NewFromInt(1),
			ToToken: "SAT", ToAmount: decimal.NewFromInt(1),
		})

		unsigned := valid
		unsigned.Id = "other"
		unsigned.Envelope = nil

		malformed := valid
		malformed.Id = "malformed"
		malformed.Payload = []byte(`{"commitmentHash":"00"}`)

		tests := []struct {
			name   string
			msg    domain.InboundMessage
			status domain.IngestStatus
		}{
			{"valid", valid, domain.IngestAccepted},
			{"duplicate", valid, domain.IngestDuplicate},
			{"tampered", tampered, domain.IngestRejected},
			{"unsupported pair", unsupported, domain.IngestRejected},
			{"unsigned", unsigned, domain.IngestRejected},
			{"malformed", malformed, domain.IngestRejected},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := book.Ingest(ctx, tt.msg)
				require.Equal(t, tt.status, res.Status, res.Reason)
				if tt.status == domain.IngestRejected {
					require.NotEmpty(t, res.Reason)
					require.Nil(t, res.Intent)
				}
			})
		}
		require.Equal(t, 1, book.Len())

		intent, ok := book.Get(valid.Id)
		require.True(t, ok)
		require.Equal(t, valid.Sender, intent.ProposerKey)
		require.Equal(t, testTopic, intent.Topic)
	})

	t.Run("bounded", func(t *testing.T) {
		book, err := application.NewOrderBook(application.DefaultOrderBookCapacity, relay.NewVerifier(), nil)
		require.NoError(t, err)

		msgs := make([]domain.InboundMessage, 0, 150)
		for i := 0; i < 150; i++ {
			msg := makeMessage(t, sk, i, satForTest)
			msgs = append(msgs, msg)
			require.Equal(t, domain.IngestAccepted, book.Ingest(ctx, msg).Status)
		}
		require.Equal(t, 100, book.Len())

		intents := book.Query("SAT", "TEST")
		require.Len(t, intents, 100)
		require.Equal(t, msgs[149].Id, intents[0].Id)
		require.Equal(t, msgs[50].Id, intents[99].Id)

		_, ok := book.Get(msgs[0].Id)
		require.False(t, ok)

		// A duplicate of a retained entry does not refresh its position.
		require.Equal(t, domain.IngestDuplicate, book.Ingest(ctx, msgs[50]).Status)
		require.Equal(t, domain.IngestAccepted, book.Ingest(ctx, msgs[0]).Status)
		_, ok = book.Get(msgs[50].Id)
		require.False(t, ok)

		require.Empty(t, book.Query("TEST", "SAT"))
		require.Len(t, book.Query("", "TEST"), 100)
		require.Equal(t, 100, book.DropTopic(testTopic))
		require.Zero(t, book.Len())
	})

	t.Run("concurrent ingest", func(t *testing.T) {
		book, err := application.NewOrderBook(application.DefaultOrderBookCapacity, relay.NewVerifier(), nil)
		require.NoError(t, err)

		msgs := make([]domain.InboundMessage, 0, 50)
		for i := 0; i < 50; i++ {
			msgs = append(msgs, makeMessage(t, sk, i, satForTest))
		}

		var accepted atomic.Int32
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, msg := range msgs {
					if book.Ingest(ctx, msg).Status == domain.IngestAccepted {
						accepted.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(50), accepted.Load())
		require.Equal(t, 50, book.Len())
	})

	t.Run("missing verifier", func(t *testing.T) {
		book, err := application.NewOrderBook(10, nil, nil)
		require.Error(t, err)
		require.Nil(t, book)
	})
}
