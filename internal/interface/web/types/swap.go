package types

import "github.com/shopspring/decimal"

type Swap struct {
	Id                  string `json:"id"`
	Role                string `json:"role"`
	Status              string `json:"status"`
	CommitmentHash      string `json:"commitmentHash"`
	FromToken           string `json:"fromToken"`
	FromAmount          string `json:"fromAmount"`
	ToToken             string `json:"toToken"`
	ToAmount            string `json:"toAmount"`
	LockerKey           string `json:"lockerKey"`
	CounterpartyKey     string `json:"counterpartyKey,omitempty"`
	RefundHeight        uint32 `json:"refundHeight"`
	CounterRefundHeight uint32 `json:"counterRefundHeight,omitempty"`
	Topic               string `json:"topic,omitempty"`
	IntentId            string `json:"intentId,omitempty"`
	LockTxid            string `json:"lockTxid,omitempty"`
	CounterLockTxid     string `json:"counterLockTxid,omitempty"`
	ClaimTxid           string `json:"claimTxid,omitempty"`
	RefundTxid          string `json:"refundTxid,omitempty"`
	CreatedAt           int64  `json:"createdAt"`
	UpdatedAt           int64  `json:"updatedAt"`
	Error               string `json:"error,omitempty"`
}

type Intent struct {
	Id             string `json:"id"`
	ProposerKey    string `json:"proposerKey"`
	Topic          string `json:"topic"`
	CommitmentHash string `json:"commitmentHash"`
	FromToken      string `json:"fromToken"`
	FromAmount     string `json:"fromAmount"`
	ToToken        string `json:"toToken"`
	ToAmount       string `json:"toAmount"`
	RefundHeight   uint32 `json:"refundHeight"`
	CreatedAt      int64  `json:"createdAt"`
}

type ProposeRequest struct {
	FromToken    string          `json:"fromToken" binding:"required"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToToken      string          `json:"toToken" binding:"required"`
	ToAmount     decimal.Decimal `json:"toAmount"`
	RefundHeight uint32          `json:"refundHeight"`
}

type TakeRequest struct {
	RefundHeight uint32 `json:"refundHeight"`
}

type Info struct {
	PublicKey string `json:"publicKey"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Orderbook int    `json:"orderbookSize"`
}

type Error struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Retryable   bool   `json:"retryable"`
	FundsAtRisk bool   `json:"fundsAtRisk"`
}
