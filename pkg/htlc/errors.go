package htlc

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell "nothing happened, retry"
// apart from "funds may be at risk".
type Kind int

const (
	KindValidation Kind = iota + 1
	KindCrypto
	KindNetwork
	KindState
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCrypto:
		return "crypto"
	case KindNetwork:
		return "network"
	case KindState:
		return "state"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error codes for programmatic handling.
const (
	CodeInvalidTerms        = "INVALID_TERMS"
	CodeSameToken           = "SAME_TOKEN"
	CodeNonPositiveAmount   = "NON_POSITIVE_AMOUNT"
	CodeRefundHeightExpired = "REFUND_HEIGHT_EXPIRED"
	CodeInvalidHash         = "INVALID_HASH"
	CodeInvalidKey          = "INVALID_KEY"
	CodeEntropy             = "ENTROPY_EXHAUSTED"
	CodeHashMismatch        = "HASH_MISMATCH"
	CodeSecretNotFound      = "SECRET_NOT_FOUND"
	CodePublishFailed       = "PUBLISH_FAILED"
	CodeMalformedMessage    = "MALFORMED_MESSAGE"
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeBusy                = "BUSY"
	CodeRefundNotYet        = "REFUND_NOT_YET"
	CodeNotLocker           = "NOT_LOCKER"
	CodeExecutionRejected   = "EXECUTION_REJECTED"
	CodeExecutionAmbiguous  = "EXECUTION_AMBIGUOUS"
)

var (
	ErrInvalidTerms        = &Error{Kind: KindValidation, Code: CodeInvalidTerms, Msg: "invalid swap terms"}
	ErrSameToken           = &Error{Kind: KindValidation, Code: CodeSameToken, Msg: "from and to token must differ"}
	ErrNonPositiveAmount   = &Error{Kind: KindValidation, Code: CodeNonPositiveAmount, Msg: "amount must be positive"}
	ErrRefundHeightExpired = &Error{Kind: KindValidation, Code: CodeRefundHeightExpired, Msg: "refund height already reached"}
	ErrInvalidHash         = &Error{Kind: KindValidation, Code: CodeInvalidHash, Msg: "invalid commitment hash"}
	ErrInvalidKey          = &Error{Kind: KindValidation, Code: CodeInvalidKey, Msg: "invalid public key"}

	ErrEntropy        = &Error{Kind: KindCrypto, Code: CodeEntropy, Msg: "random source exhausted"}
	ErrHashMismatch   = &Error{Kind: KindCrypto, Code: CodeHashMismatch, Msg: "preimage does not match commitment"}
	ErrSecretNotFound = &Error{Kind: KindCrypto, Code: CodeSecretNotFound, Msg: "secret not found"}

	ErrPublishFailed    = &Error{Kind: KindNetwork, Code: CodePublishFailed, Msg: "publish failed"}
	ErrMalformedMessage = &Error{Kind: KindNetwork, Code: CodeMalformedMessage, Msg: "malformed message"}

	ErrIllegalTransition = &Error{Kind: KindState, Code: CodeIllegalTransition, Msg: "illegal state transition"}
	ErrBusy              = &Error{Kind: KindState, Code: CodeBusy, Msg: "operation already in progress for commitment"}
	ErrRefundNotYet      = &Error{Kind: KindState, Code: CodeRefundNotYet, Msg: "refund height not reached"}
	ErrNotLocker         = &Error{Kind: KindState, Code: CodeNotLocker, Msg: "only the locker may refund"}

	ErrExecutionRejected  = &Error{Kind: KindExecution, Code: CodeExecutionRejected, Msg: "program execution rejected"}
	ErrExecutionAmbiguous = &Error{Kind: KindExecution, Code: CodeExecutionAmbiguous, Msg: "program execution outcome unknown"}
)

// Error is the domain error type. Two errors match under errors.Is when their
// codes are equal, so the sentinels above can be compared against any error
// built from them.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf derives an error from a sentinel with a more specific message.
func Errorf(sentinel *Error, format string, args ...any) error {
	return &Error{
		Kind: sentinel.Kind,
		Code: sentinel.Code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap derives an error from a sentinel keeping err as the cause.
func Wrap(sentinel *Error, err error) error {
	return &Error{
		Kind: sentinel.Kind,
		Code: sentinel.Code,
		Msg:  sentinel.Msg,
		Err:  err,
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether nothing happened and the operation may be
// attempted again as is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindNetwork:
		return true
	case KindExecution:
		return errors.Is(err, ErrExecutionRejected)
	default:
		return false
	}
}

// FundsAtRisk reports whether the outcome on chain is unknown and the caller
// must reconcile before retrying.
func FundsAtRisk(err error) bool {
	return errors.Is(err, ErrExecutionAmbiguous)
}
