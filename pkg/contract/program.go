package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Program is an immutable, ordered sequence of instructions with no branching.
type Program struct {
	instructions []Instruction
}

func NewProgram(instructions ...Instruction) Program {
	buf := make([]Instruction, len(instructions))
	copy(buf, instructions)
	return Program{buf}
}

func (p Program) Len() int {
	return len(p.instructions)
}

func (p Program) At(i int) Instruction {
	return p.instructions[i]
}

// Instructions returns a copy of the program body.
func (p Program) Instructions() []Instruction {
	buf := make([]Instruction, len(p.instructions))
	copy(buf, p.instructions)
	return buf
}

// Find returns the indexes of every instruction with the given opcode.
func (p Program) Find(op Opcode) []int {
	var idx []int
	for i, in := range p.instructions {
		if in.Op() == op {
			idx = append(idx, i)
		}
	}
	return idx
}

// ID is the hex sha256 of the canonical JSON encoding.
func (p Program) ID() string {
	buf, err := p.MarshalJSON()
	if err != nil {
		return ""
	}
	h := sha256.Sum256(buf)
	return hex.EncodeToString(h[:])
}

// Builder appends instructions fluently. It never fails: operands are
// expected to have been validated by the caller.
type Builder struct {
	instructions []Instruction
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Push(v Value) *Builder {
	return b.add(PushValue{Value: v})
}

func (b *Builder) Store(key string, v Value) *Builder {
	return b.add(StoreKeyValue{Key: key, Value: v})
}

func (b *Builder) Hash(algo HashAlgorithm) *Builder {
	return b.add(Hash{Algorithm: algo})
}

func (b *Builder) AssertEqual() *Builder {
	return b.add(AssertEqual{})
}

func (b *Builder) AdjustBalance(account, token string, delta decimal.Decimal) *Builder {
	return b.add(AdjustBalance{Account: account, Token: token, Delta: delta})
}

func (b *Builder) Transfer(from, to, token string, amount decimal.Decimal) *Builder {
	return b.add(Transfer{From: from, To: to, Token: token, Amount: amount})
}

func (b *Builder) LockFunds(token string, amount decimal.Decimal) *Builder {
	return b.add(LockFunds{Token: token, Amount: amount})
}

func (b *Builder) Return() *Builder {
	return b.add(Return{})
}

func (b *Builder) Build() Program {
	return NewProgram(b.instructions...)
}

func (b *Builder) add(in Instruction) *Builder {
	b.instructions = append(b.instructions, in)
	return b
}

type instructionJSON struct {
	Op        Opcode           `json:"op"`
	Value     *Value           `json:"value,omitempty"`
	Key       string           `json:"key,omitempty"`
	Algorithm HashAlgorithm    `json:"algorithm,omitempty"`
	Account   string           `json:"account,omitempty"`
	From      string           `json:"from,omitempty"`
	To        string           `json:"to,omitempty"`
	Token     string           `json:"token,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func (p Program) MarshalJSON() ([]byte, error) {
	out := make([]instructionJSON, 0, len(p.instructions))
	for i, in := range p.instructions {
		enc, err := encodeInstruction(in)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, enc)
	}
	return json.Marshal(out)
}

func (p *Program) UnmarshalJSON(data []byte) error {
	var in []instructionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	instructions := make([]Instruction, 0, len(in))
	for i, enc := range in {
		dec, err := decodeInstruction(enc)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions = append(instructions, dec)
	}
	p.instructions = instructions
	return nil
}

func encodeInstruction(in Instruction) (instructionJSON, error) {
	out := instructionJSON{Op: in.Op()}
	switch v := in.(type) {
	case PushValue:
		val := v.Value
		out.Value = &val
	case StoreKeyValue:
		val := v.Value
		out.Key, out.Value = v.Key, &val
	case Hash:
		out.Algorithm = v.Algorithm
	case AssertEqual, Return:
	case AdjustBalance:
		delta := v.Delta
		out.Account, out.Token, out.Amount = v.Account, v.Token, &delta
	case Transfer:
		amount := v.Amount
		out.From, out.To, out.Token, out.Amount = v.From, v.To, v.Token, &amount
	case LockFunds:
		amount := v.Amount
		out.Token, out.Amount = v.Token, &amount
	default:
		return out, fmt.Errorf("%w: %T", ErrUnknownInstruction, in)
	}
	return out, nil
}

func decodeInstruction(in instructionJSON) (Instruction, error) {
	amount := decimal.Zero
	if in.Amount != nil {
		amount = *in.Amount
	}

	switch in.Op {
	case OpPushValue:
		if in.Value == nil {
			return nil, fmt.Errorf("push without value")
		}
		return PushValue{Value: *in.Value}, nil
	case OpStoreKeyValue:
		if in.Value == nil || in.Key == "" {
			return nil, fmt.Errorf("store requires key and value")
		}
		return StoreKeyValue{Key: in.Key, Value: *in.Value}, nil
	case OpHash:
		return Hash{Algorithm: in.Algorithm}, nil
	case OpAssertEqual:
		return AssertEqual{}, nil
	case OpAdjustBalance:
		return AdjustBalance{Account: in.Account, Token: in.Token, Delta: amount}, nil
	case OpTransfer:
		return Transfer{From: in.From, To: in.To, Token: in.Token, Amount: amount}, nil
	case OpLockFunds:
		return LockFunds{Token: in.Token, Amount: amount}, nil
	case OpReturn:
		return Return{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, in.Op)
	}
}
