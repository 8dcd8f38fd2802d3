package contract_test

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProgram(t *testing.T) {
	t.Run("immutable", func(t *testing.T) {
		instrs := []contract.Instruction{contract.AssertEqual{}, contract.Return{}}
		p := contract.NewProgram(instrs...)
		instrs[0] = contract.Return{}

		require.Equal(t, contract.OpAssertEqual, p.At(0).Op())

		body := p.Instructions()
		body[0] = contract.Return{}
		require.Equal(t, contract.OpAssertEqual, p.At(0).Op())
	})

	t.Run("json", func(t *testing.T) {
		p := contract.NewBuilder().
			Store("htlc/abc", contract.String(`{"a":1}`)).
			LockFunds("SAT", decimal.NewFromInt(100)).
			AdjustBalance("escrow/abc", "SAT", decimal.NewFromInt(100)).
			Push(contract.Bytes([]byte{0x01, 0x02})).
			Hash(contract.SHA256).
			Push(contract.Number(decimal.RequireFromString("1.5"))).
			Transfer("escrow/abc", "alice", "", decimal.Zero).
			Return().
			Build()

		buf, err := json.Marshal(p)
		require.NoError(t, err)

		var decoded contract.Program
		require.NoError(t, json.Unmarshal(buf, &decoded))
		require.Equal(t, p.Len(), decoded.Len())
		require.Equal(t, p.ID(), decoded.ID())

		push, ok := decoded.At(3).(contract.PushValue)
		require.True(t, ok)
		require.Equal(t, []byte{0x01, 0x02}, push.Value.AsBytes())
	})

	t.Run("unknown opcode", func(t *testing.T) {
		var p contract.Program
		err := json.Unmarshal([]byte(`[{"op":"jump"}]`), &p)
		require.ErrorIs(t, err, contract.ErrUnknownInstruction)
	})

	t.Run("ambiguous value", func(t *testing.T) {
		var v contract.Value
		err := json.Unmarshal([]byte(`{"bytes":"00","string":"x"}`), &v)
		require.Error(t, err)
	})
}

func TestEvaluate(t *testing.T) {
	secret := []byte("correct horse battery staple")
	digest := sha256.Sum256(secret)

	claimLike := func(preimage []byte) contract.Program {
		return contract.NewBuilder().
			Push(contract.Bytes(preimage)).
			Hash(contract.SHA256).
			Push(contract.Bytes(digest[:])).
			AssertEqual().
			Transfer("escrow", "caller", "", decimal.Zero).
			Return().
			Build()
	}

	t.Run("assertion passes", func(t *testing.T) {
		trace := contract.Evaluate(claimLike(secret))
		require.False(t, trace.Aborted)
		require.NoError(t, trace.Err)
		require.Equal(t, -1, trace.FailedStep)

		step, ok := trace.Step(contract.OpAssertEqual)
		require.True(t, ok)
		require.True(t, step.Passed)
		require.Len(t, trace.Effects, 1)
		require.Equal(t, contract.EffectTransfer, trace.Effects[0].Kind)
	})

	t.Run("assertion fails without effects", func(t *testing.T) {
		trace := contract.Evaluate(claimLike([]byte("wrong")))
		require.True(t, trace.Aborted)
		require.ErrorIs(t, trace.Err, contract.ErrAssertionFailed)
		require.Equal(t, 3, trace.FailedStep)
		require.Empty(t, trace.Effects)

		step, ok := trace.Step(contract.OpAssertEqual)
		require.True(t, ok)
		require.False(t, step.Passed)
	})

	t.Run("effects before a failing assertion are discarded", func(t *testing.T) {
		p := contract.NewBuilder().
			Store("k", contract.String("v")).
			Push(contract.String("a")).
			Push(contract.String("b")).
			AssertEqual().
			Build()
		trace := contract.Evaluate(p)
		require.True(t, trace.Aborted)
		require.Empty(t, trace.Effects)
	})

	t.Run("stack underflow", func(t *testing.T) {
		trace := contract.Evaluate(contract.NewProgram(contract.AssertEqual{}))
		require.True(t, trace.Aborted)
		require.ErrorIs(t, trace.Err, contract.ErrStackUnderflow)
	})

	t.Run("unsupported hash", func(t *testing.T) {
		p := contract.NewBuilder().Push(contract.String("x")).Hash("md5").Build()
		trace := contract.Evaluate(p)
		require.ErrorIs(t, trace.Err, contract.ErrUnsupportedHash)
	})

	t.Run("return stops evaluation", func(t *testing.T) {
		p := contract.NewBuilder().
			LockFunds("SAT", decimal.NewFromInt(1)).
			Return().
			AssertEqual().
			Build()
		trace := contract.Evaluate(p)
		require.False(t, trace.Aborted)
		require.Len(t, trace.Steps, 2)
		require.Len(t, trace.Effects, 1)
	})
}
