package contract

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAssertionFailed    = errors.New("assertion failed")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrUnsupportedHash    = errors.New("unsupported hash algorithm")
	ErrInvalidOperand     = errors.New("invalid operand")
)

type EffectKind uint8

const (
	EffectStore EffectKind = iota + 1
	EffectLockFunds
	EffectAdjustBalance
	EffectTransfer
)

// Effect is a state change a program requests from the execution engine.
type Effect struct {
	Kind    EffectKind
	Key     string
	Value   Value
	Account string
	From    string
	To      string
	Token   string
	Amount  decimal.Decimal
}

type StepResult struct {
	Index  int
	Op     Opcode
	Passed bool
	Err    error
}

// Trace is the outcome of evaluating a program. When Aborted is set, Effects
// is empty: a program either applies all of its effects or none.
type Trace struct {
	Steps      []StepResult
	Effects    []Effect
	Aborted    bool
	FailedStep int
	Err        error
}

// Step returns the first evaluated step with the given opcode.
func (t *Trace) Step(op Opcode) (StepResult, bool) {
	for _, s := range t.Steps {
		if s.Op == op {
			return s, true
		}
	}
	return StepResult{}, false
}

// Evaluate runs the program against an empty stack without touching any
// external state and reports which steps passed and the effects to apply.
func Evaluate(p Program) *Trace {
	trace := &Trace{FailedStep: -1}
	stack := make([]Value, 0, 4)
	effects := make([]Effect, 0, p.Len())

	pop := func() (Value, error) {
		if len(stack) == 0 {
			return Value{}, ErrStackUnderflow
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for i, in := range p.instructions {
		var err error
		stop := false

		switch v := in.(type) {
		case PushValue:
			if !v.Value.IsValid() {
				err = fmt.Errorf("%w: push of invalid value", ErrInvalidOperand)
				break
			}
			stack = append(stack, v.Value)
		case StoreKeyValue:
			effects = append(effects, Effect{Kind: EffectStore, Key: v.Key, Value: v.Value})
		case Hash:
			var top Value
			if top, err = pop(); err != nil {
				break
			}
			var digest Value
			if digest, err = hashValue(v.Algorithm, top); err != nil {
				break
			}
			stack = append(stack, digest)
		case AssertEqual:
			var a, b Value
			if b, err = pop(); err != nil {
				break
			}
			if a, err = pop(); err != nil {
				break
			}
			if !a.Equal(b) {
				err = ErrAssertionFailed
			}
		case AdjustBalance:
			effects = append(effects, Effect{
				Kind: EffectAdjustBalance, Account: v.Account, Token: v.Token, Amount: v.Delta,
			})
		case Transfer:
			if v.Amount.IsNegative() {
				err = fmt.Errorf("%w: negative transfer amount", ErrInvalidOperand)
				break
			}
			effects = append(effects, Effect{
				Kind: EffectTransfer, From: v.From, To: v.To, Token: v.Token, Amount: v.Amount,
			})
		case LockFunds:
			if !v.Amount.IsPositive() {
				err = fmt.Errorf("%w: lock amount must be positive", ErrInvalidOperand)
				break
			}
			effects = append(effects, Effect{
				Kind: EffectLockFunds, Token: v.Token, Amount: v.Amount,
			})
		case Return:
			stop = true
		default:
			err = fmt.Errorf("%w: %T", ErrUnknownInstruction, in)
		}

		trace.Steps = append(trace.Steps, StepResult{
			Index: i, Op: in.Op(), Passed: err == nil, Err: err,
		})
		if err != nil {
			trace.Aborted = true
			trace.FailedStep = i
			trace.Err = fmt.Errorf("step %d (%s): %w", i, in.Op(), err)
			return trace
		}
		if stop {
			break
		}
	}

	trace.Effects = effects
	return trace
}

func hashValue(algo HashAlgorithm, v Value) (Value, error) {
	var payload []byte
	switch v.Kind() {
	case KindBytes:
		payload = v.bytes
	case KindString:
		payload = []byte(v.str)
	default:
		return Value{}, fmt.Errorf("%w: cannot hash %s", ErrInvalidOperand, v.Kind())
	}

	switch algo {
	case SHA256:
		h := sha256.Sum256(payload)
		return Bytes(h[:]), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnsupportedHash, algo)
	}
}
