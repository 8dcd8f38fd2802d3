package contract

import (
	"github.com/shopspring/decimal"
)

type Opcode string

const (
	OpPushValue     Opcode = "push"
	OpStoreKeyValue Opcode = "store"
	OpHash          Opcode = "hash"
	OpAssertEqual   Opcode = "assert_equal"
	OpAdjustBalance Opcode = "adjust_balance"
	OpTransfer      Opcode = "transfer"
	OpLockFunds     Opcode = "lock_funds"
	OpReturn        Opcode = "return"
)

type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Instruction is one operation of a straight-line program. The set of
// implementations is closed: only the types declared in this file satisfy it.
type Instruction interface {
	Op() Opcode
	instruction()
}

// PushValue pushes a constant on the stack.
type PushValue struct {
	Value Value
}

// StoreKeyValue durably records Value under Key.
type StoreKeyValue struct {
	Key   string
	Value Value
}

// Hash pops the top of the stack and pushes its digest.
type Hash struct {
	Algorithm HashAlgorithm
}

// AssertEqual pops two values and aborts the whole program if they differ.
type AssertEqual struct{}

// AdjustBalance credits (or debits, with a negative Delta) Account.
type AdjustBalance struct {
	Account string
	Token   string
	Delta   decimal.Decimal
}

// Transfer moves Amount of Token from one account to another. A zero Amount
// moves the whole balance of Token held by From; an empty Token applies to
// every token held by From.
type Transfer struct {
	From   string
	To     string
	Token  string
	Amount decimal.Decimal
}

// LockFunds takes Amount of Token out of the caller's spendable balance.
type LockFunds struct {
	Token  string
	Amount decimal.Decimal
}

// Return ends the program.
type Return struct{}

func (PushValue) Op() Opcode     { return OpPushValue }
func (StoreKeyValue) Op() Opcode { return OpStoreKeyValue }
func (Hash) Op() Opcode          { return OpHash }
func (AssertEqual) Op() Opcode   { return OpAssertEqual }
func (AdjustBalance) Op() Opcode { return OpAdjustBalance }
func (Transfer) Op() Opcode      { return OpTransfer }
func (LockFunds) Op() Opcode     { return OpLockFunds }
func (Return) Op() Opcode        { return OpReturn }

func (PushValue) instruction()     {}
func (StoreKeyValue) instruction() {}
func (Hash) instruction()          {}
func (AssertEqual) instruction()   {}
func (AdjustBalance) instruction() {}
func (Transfer) instruction()      {}
func (LockFunds) instruction()     {}
func (Return) instruction()        {}
