package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/shopspring/decimal"
)

// SwapIntent is the public offer of an initiator that has locked its leg.
// It never carries the secret.
type SwapIntent struct {
	Id             string
	ProposerKey    string
	Topic          string
	CommitmentHash htlc.Hash
	Terms          htlc.Terms
	RefundHeight   uint32
	CreatedAt      int64
}

// InboundMessage is a signed message received from the broadcast channel.
// Envelope holds the transport specific signed form that the verifier checks.
type InboundMessage struct {
	Id        string
	Topic     string
	Sender    string
	Payload   []byte
	CreatedAt int64
	Envelope  json.RawMessage
}

// OutboundMessage is published on a topic. Publishing the same message twice
// yields the same message id.
type OutboundMessage struct {
	Topic     string
	Payload   []byte
	CreatedAt int64
}

type IngestStatus int

const (
	IngestAccepted IngestStatus = iota
	IngestRejected
	IngestDuplicate
)

func (s IngestStatus) String() string {
	switch s {
	case IngestAccepted:
		return "accepted"
	case IngestRejected:
		return "rejected"
	case IngestDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type IngestResult struct {
	Status IngestStatus
	Reason string
	Intent *SwapIntent
}

type intentPayload struct {
	CommitmentHash    string      `json:"commitmentHash"`
	FromToken         string      `json:"fromToken"`
	FromAmount        json.Number `json:"fromAmount"`
	ToToken           string      `json:"toToken"`
	ToAmount          json.Number `json:"toAmount"`
	RefundBlockHeight uint32      `json:"refundBlockHeight"`
}

// Payload is the wire form of the intent published on the broadcast channel.
func (i SwapIntent) Payload() ([]byte, error) {
	return json.Marshal(intentPayload{
		CommitmentHash:    i.CommitmentHash.String(),
		FromToken:         string(i.Terms.FromToken),
		FromAmount:        json.Number(i.Terms.FromAmount.String()),
		ToToken:           string(i.Terms.ToToken),
		ToAmount:          json.Number(i.Terms.ToAmount.String()),
		RefundBlockHeight: i.RefundHeight,
	})
}

// DecodeIntent validates the payload of msg against the wire schema. Unknown
// fields are ignored, missing or mistyped ones are rejected.
func DecodeIntent(msg InboundMessage) (*SwapIntent, error) {
	if msg.Id == "" {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "missing message id")
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "payload is not a json object")
	}

	hashStr, err := stringField(fields, "commitmentHash")
	if err != nil {
		return nil, err
	}
	hash, err := htlc.ParseHash(hashStr)
	if err != nil {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "invalid commitmentHash")
	}

	fromToken, err := stringField(fields, "fromToken")
	if err != nil {
		return nil, err
	}
	toToken, err := stringField(fields, "toToken")
	if err != nil {
		return nil, err
	}
	fromAmount, err := amountField(fields, "fromAmount")
	if err != nil {
		return nil, err
	}
	toAmount, err := amountField(fields, "toAmount")
	if err != nil {
		return nil, err
	}
	refundHeight, err := heightField(fields, "refundBlockHeight")
	if err != nil {
		return nil, err
	}

	from, err := htlc.ParseTicker(fromToken)
	if err != nil {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "invalid fromToken: %s", err)
	}
	to, err := htlc.ParseTicker(toToken)
	if err != nil {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "invalid toToken: %s", err)
	}

	terms := htlc.Terms{
		FromToken:  from,
		FromAmount: fromAmount,
		ToToken:    to,
		ToAmount:   toAmount,
	}
	if err := terms.Validate(); err != nil {
		return nil, htlc.Errorf(htlc.ErrMalformedMessage, "invalid terms: %s", err)
	}

	createdAt := msg.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	return &SwapIntent{
		Id:             msg.Id,
		ProposerKey:    msg.Sender,
		Topic:          msg.Topic,
		CommitmentHash: hash,
		Terms:          terms,
		RefundHeight:   refundHeight,
		CreatedAt:      createdAt,
	}, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", htlc.Errorf(htlc.ErrMalformedMessage, "missing %s", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", htlc.Errorf(htlc.ErrMalformedMessage, "%s must be a string", name)
	}
	return s, nil
}

func amountField(fields map[string]json.RawMessage, name string) (decimal.Decimal, error) {
	raw, ok := fields[name]
	if !ok {
		return decimal.Zero, htlc.Errorf(htlc.ErrMalformedMessage, "missing %s", name)
	}
	raw = bytes.TrimSpace(raw)
	if !isJSONNumber(raw) {
		return decimal.Zero, htlc.Errorf(htlc.ErrMalformedMessage, "%s must be a number", name)
	}
	amount, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, htlc.Errorf(htlc.ErrMalformedMessage, "%s must be a number", name)
	}
	if !amount.IsPositive() {
		return decimal.Zero, htlc.Errorf(htlc.ErrMalformedMessage, "%s must be positive", name)
	}
	return amount, nil
}

func heightField(fields map[string]json.RawMessage, name string) (uint32, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, htlc.Errorf(htlc.ErrMalformedMessage, "missing %s", name)
	}
	height, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 32)
	if err != nil {
		return 0, htlc.Errorf(htlc.ErrMalformedMessage, "%s must be an integer", name)
	}
	return uint32(height), nil
}

func isJSONNumber(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	if c != '-' && (c < '0' || c > '9') {
		return false
	}
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}

func (i SwapIntent) String() string {
	return fmt.Sprintf(
		"%s %s %s for %s %s (refund %d)",
		i.Id, i.Terms.FromAmount, i.Terms.FromToken, i.Terms.ToAmount, i.Terms.ToToken, i.RefundHeight,
	)
}
