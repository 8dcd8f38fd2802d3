// Package memchain is an in-memory execution engine for contract programs.
// It enforces the hash-time-lock rules on escrow accounts and applies the
// effects of a program atomically.
package memchain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Option func(*Chain)

// WithHeight sets the starting height of a locally mined chain.
func WithHeight(height uint32) Option {
	return func(c *Chain) {
		c.height = height
	}
}

// WithHeightSource makes the chain follow the height reported by src
// instead of mining locally.
func WithHeightSource(src ports.ChainInfo) Option {
	return func(c *Chain) {
		c.heights = src
	}
}

type Chain struct {
	mu       sync.RWMutex
	height   uint32
	heights  ports.ChainInfo
	store    map[string]contract.Value
	records  map[string]htlc.LockRecord
	balances map[string]map[string]decimal.Decimal
	byHash   map[htlc.Hash][]ports.ExecutedProgram
	seq      uint64
}

func New(opts ...Option) *Chain {
	c := &Chain{
		store:    make(map[string]contract.Value),
		records:  make(map[string]htlc.LockRecord),
		balances: make(map[string]map[string]decimal.Decimal),
		byHash:   make(map[htlc.Hash][]ports.ExecutedProgram),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fund credits account out of thin air.
func (c *Chain) Fund(account, token string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bal, ok := c.balances[account]
	if !ok {
		bal = make(map[string]decimal.Decimal)
		c.balances[account] = bal
	}
	bal[token] = bal[token].Add(amount)
}

// Mine advances a locally mined chain by n blocks and returns the new height.
func (c *Chain) Mine(n uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

func (c *Chain) GetBlockHeight(ctx context.Context) (uint32, error) {
	if c.heights != nil {
		height, err := c.heights.GetBlockHeight(ctx)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		if height > c.height {
			c.height = height
		}
		c.mu.Unlock()
		return height, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height, nil
}

func (c *Chain) Balances(_ context.Context, account string) (map[string]decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	balances := make(map[string]decimal.Decimal, len(c.balances[account]))
	for token, amount := range c.balances[account] {
		if amount.IsPositive() {
			balances[token] = amount
		}
	}
	return balances, nil
}

func (c *Chain) ExecutedPrograms(_ context.Context, hash htlc.Hash) ([]ports.ExecutedProgram, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	programs := make([]ports.ExecutedProgram, len(c.byHash[hash]))
	copy(programs, c.byHash[hash])
	return programs, nil
}

// Execute runs program on behalf of executor. Either every effect is applied
// or, on an error matching htlc.ErrExecutionRejected, none is.
func (c *Chain) Execute(
	ctx context.Context, executor string, program contract.Program,
) (string, error) {
	trace := contract.Evaluate(program)
	if trace.Aborted {
		return "", htlc.Wrap(htlc.ErrExecutionRejected, trace.Err)
	}

	height, err := c.GetBlockHeight(ctx)
	if err != nil {
		return "", htlc.Wrap(htlc.ErrExecutionRejected, fmt.Errorf("failed to get height: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.newTx(executor, height, program)
	for i, effect := range trace.Effects {
		if err := tx.apply(effect); err != nil {
			return "", htlc.Wrap(htlc.ErrExecutionRejected, fmt.Errorf("effect %d: %w", i, err))
		}
	}
	if !tx.locked.isEmpty() {
		return "", htlc.Errorf(htlc.ErrExecutionRejected, "locked funds not assigned to any escrow")
	}
	tx.commit()

	c.seq++
	txid := c.txid(executor, program, height)
	executed := ports.ExecutedProgram{
		TxId: txid, Executor: executor, Height: height, Program: program,
	}
	for hash := range tx.hashes {
		c.byHash[hash] = append(c.byHash[hash], executed)
	}

	log.Debugf("executed program %s for %s at height %d", txid, executor, height)
	return txid, nil
}

func (c *Chain) txid(executor string, program contract.Program, height uint32) string {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], c.seq)
	binary.BigEndian.PutUint32(buf[8:], height)

	h := sha256.New()
	h.Write([]byte(executor))
	h.Write([]byte(program.ID()))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

type tokenAmounts map[string]decimal.Decimal

func (t tokenAmounts) isEmpty() bool {
	for _, amount := range t {
		if !amount.IsZero() {
			return false
		}
	}
	return true
}

// tx stages the effects of one program on copies of the touched state.
type tx struct {
	chain    *Chain
	executor string
	height   uint32
	program  contract.Program

	balances map[string]map[string]decimal.Decimal
	store    map[string]contract.Value
	records  map[string]htlc.LockRecord
	locked   tokenAmounts
	hashes   map[htlc.Hash]struct{}
}

func (c *Chain) newTx(executor string, height uint32, program contract.Program) *tx {
	return &tx{
		chain:    c,
		executor: executor,
		height:   height,
		program:  program,
		balances: make(map[string]map[string]decimal.Decimal),
		store:    make(map[string]contract.Value),
		records:  make(map[string]htlc.LockRecord),
		locked:   make(tokenAmounts),
		hashes:   make(map[htlc.Hash]struct{}),
	}
}

func (t *tx) apply(effect contract.Effect) error {
	switch effect.Kind {
	case contract.EffectStore:
		return t.applyStore(effect.Key, effect.Value)
	case contract.EffectLockFunds:
		return t.applyLock(effect.Token, effect.Amount)
	case contract.EffectAdjustBalance:
		return t.applyAdjust(effect.Account, effect.Token, effect.Amount)
	case contract.EffectTransfer:
		return t.applyTransfer(effect.From, effect.To, effect.Token, effect.Amount)
	default:
		return fmt.Errorf("%w: effect %d", contract.ErrUnknownInstruction, effect.Kind)
	}
}

func (t *tx) applyStore(key string, value contract.Value) error {
	if _, ok := t.chain.store[key]; ok {
		return fmt.Errorf("key %s already set", key)
	}
	if _, ok := t.store[key]; ok {
		return fmt.Errorf("key %s already set", key)
	}

	if hash, locker, ok := htlc.ParseLockKey(key); ok {
		if locker != t.executor {
			return fmt.Errorf("key %s belongs to %s", key, locker)
		}
		t.hashes[hash] = struct{}{}

		if !strings.HasSuffix(key, "/refund") {
			raw, ok := value.AsString()
			if !ok {
				return fmt.Errorf("lock record must be a string")
			}
			var record htlc.LockRecord
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				return fmt.Errorf("invalid lock record: %w", err)
			}
			if record.CommitmentHash != hash || record.Locker != locker {
				return fmt.Errorf("lock record does not match key %s", key)
			}
			t.records[key] = record
		}
	}

	t.store[key] = value
	return nil
}

func (t *tx) applyLock(token string, amount decimal.Decimal) error {
	bal := t.balance(t.executor)
	if bal[token].LessThan(amount) {
		return fmt.Errorf("insufficient %s balance: %s < %s", token, bal[token], amount)
	}
	bal[token] = bal[token].Sub(amount)
	t.locked[token] = t.locked[token].Add(amount)
	return nil
}

func (t *tx) applyAdjust(account, token string, delta decimal.Decimal) error {
	hash, locker, ok := htlc.ParseEscrowAccount(account)
	if !ok {
		return fmt.Errorf("balance of %s cannot be adjusted", account)
	}
	if locker != t.executor {
		return fmt.Errorf("escrow %s belongs to %s", account, locker)
	}
	if !delta.IsPositive() {
		return fmt.Errorf("escrow can only be credited")
	}
	if t.locked[token].LessThan(delta) {
		return fmt.Errorf("not enough %s locked to credit %s", token, delta)
	}
	if _, ok := t.record(hash, locker); !ok {
		return fmt.Errorf("escrow %s has no lock record", account)
	}

	t.locked[token] = t.locked[token].Sub(delta)
	bal := t.balance(account)
	bal[token] = bal[token].Add(delta)
	t.hashes[hash] = struct{}{}
	return nil
}

func (t *tx) applyTransfer(from, to, token string, amount decimal.Decimal) error {
	from = t.resolve(from)
	to = t.resolve(to)

	if hash, locker, ok := htlc.ParseEscrowAccount(from); ok {
		if err := t.authorizeEscrowSpend(hash, locker, to); err != nil {
			return err
		}
		t.hashes[hash] = struct{}{}
	} else if from != t.executor {
		return fmt.Errorf("cannot spend from %s", from)
	}

	src := t.balance(from)
	moved := make(tokenAmounts)
	switch {
	case token == "":
		for tk, bal := range src {
			if bal.IsPositive() {
				moved[tk] = bal
			}
		}
	case amount.IsZero():
		if src[token].IsPositive() {
			moved[token] = src[token]
		}
	default:
		if src[token].LessThan(amount) {
			return fmt.Errorf("insufficient %s balance in %s", token, from)
		}
		moved[token] = amount
	}
	if moved.isEmpty() {
		return fmt.Errorf("nothing to transfer from %s", from)
	}

	dst := t.balance(to)
	for tk, amt := range moved {
		src[tk] = src[tk].Sub(amt)
		dst[tk] = dst[tk].Add(amt)
	}
	return nil
}

// authorizeEscrowSpend allows the refund path to the locker once the height is
// strictly above the refund height, and the claim path to the party the leg
// is payable to when it reveals the preimage. A leg locked without recipient
// is payable to whoever locked the counter leg under the same hash in favour
// of its locker.
func (t *tx) authorizeEscrowSpend(hash htlc.Hash, locker, to string) error {
	record, ok := t.record(hash, locker)
	if !ok {
		return fmt.Errorf("no lock for %s by %s", hash, locker)
	}

	if t.executor == locker {
		if to != locker {
			return fmt.Errorf("refund must pay the locker")
		}
		if t.height <= record.RefundHeight {
			return fmt.Errorf(
				"refund not allowed at height %d, refundable above %d", t.height, record.RefundHeight,
			)
		}
		return nil
	}

	if _, revealed := htlc.ExtractSecret(t.program, hash); !revealed {
		return fmt.Errorf("claim of %s does not reveal the preimage", hash)
	}
	if record.Recipient != "" && record.Recipient != t.executor {
		return fmt.Errorf("escrow is payable to %s only", record.Recipient)
	}
	if record.Recipient == "" {
		counter, ok := t.record(hash, t.executor)
		if !ok || counter.Recipient != locker {
			return fmt.Errorf("escrow is payable to the counter locker of %s only", hash)
		}
	}
	if to != t.executor {
		return fmt.Errorf("claim must pay the claimant")
	}
	return nil
}

func (t *tx) resolve(account string) string {
	if account == htlc.CallerAccount {
		return t.executor
	}
	return account
}

func (t *tx) record(hash htlc.Hash, locker string) (htlc.LockRecord, bool) {
	key := htlc.LockKey(hash, locker)
	if record, ok := t.records[key]; ok {
		return record, true
	}
	record, ok := t.chain.records[key]
	return record, ok
}

func (t *tx) balance(account string) map[string]decimal.Decimal {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	bal := make(map[string]decimal.Decimal, len(t.chain.balances[account]))
	for token, amount := range t.chain.balances[account] {
		bal[token] = amount
	}
	t.balances[account] = bal
	return bal
}

func (t *tx) commit() {
	for account, bal := range t.balances {
		t.chain.balances[account] = bal
	}
	for key, value := range t.store {
		t.chain.store[key] = value
	}
	for key, record := range t.records {
		t.chain.records[key] = record
	}
}
