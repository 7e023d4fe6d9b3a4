package chain_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/chain"
	"go.dedis.ch/contractsim/contract"
	z "go.dedis.ch/contractsim/internal/testing"
	"go.dedis.ch/contractsim/types"
)

// counterChain returns a chain with alice owning a counter contract.
func counterChain(t *testing.T, m z.Module, amount types.Amount) (*chain.Chain, types.ContractAddress) {
	c, engine := z.NewChain(t, z.WithAccount(alice, initialBalance), z.WithAccount(bob, initialBalance),
		z.WithBlockTime(100))
	ref := z.Deploy(t, c, engine, alice, m)
	return c, z.InitContract(t, c, alice, ref, "counter", amount, nil)
}

func call(addr types.ContractAddress, name string) chain.UpdateContractPayload {
	return chain.UpdateContractPayload{Address: addr, ReceiveName: types.MustReceiveName(name)}
}

// charged returns how much alice paid during fn.
func charged(t *testing.T, c *chain.Chain, fn func()) types.Amount {
	before, ok := c.AccountBalance(alice)
	require.True(t, ok)
	fn()
	after, _ := c.AccountBalance(alice)
	return before.Total - after.Total
}

func invokeErr(t *testing.T, err error) *chain.ContractInvokeError {
	var invokeErr *chain.ContractInvokeError
	require.ErrorAs(t, err, &invokeErr)
	return invokeErr
}

func Test_Update_Counter(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)
	payload := call(addr, "counter.inc")

	var res *chain.ContractInvokeSuccess
	paid := charged(t, c, func() {
		var err error
		res, err = update(c, types.AccountAddr(alice), 10_000, payload)
		require.NoError(t, err)
	})

	// Header, base, lookup, interpreter and the changed state entry.
	expected := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), 1) + 300 + 20 + 1 + 13
	require.Equal(t, types.Energy(534), expected)
	require.Equal(t, expected, res.EnergyUsed)
	require.Equal(t, types.Amount(expected), res.TransactionFee)
	require.Equal(t, res.TransactionFee, paid)

	require.Equal(t, le(1), res.ReturnValue)
	require.True(t, res.StateChanged)
	require.Equal(t, []chain.ContractEvent{{1}}, res.Events)
	require.Equal(t, []chain.ChainEvent{chain.Updated{
		Address:     addr,
		Instigator:  types.AccountAddr(alice),
		ReceiveName: "counter.inc",
		Events:      []chain.ContractEvent{{1}},
	}}, res.TraceElements)
	require.Equal(t, uint64(1), count(t, c, addr))

	res, err := update(c, types.AccountAddr(alice), 10_000, payload)
	require.NoError(t, err)
	require.Equal(t, le(2), res.ReturnValue)
	require.Equal(t, uint64(2), count(t, c, addr))
}

func Test_Update_Without_State_Change(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)

	res, err := update(c, types.AccountAddr(alice), 10_000, call(addr, "counter.get"))
	require.NoError(t, err)
	require.False(t, res.StateChanged)
	require.Equal(t, le(0), res.ReturnValue)
	require.Empty(t, res.Events)
}

func Test_Update_Moves_Amount(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)
	payload := call(addr, "counter.inc")
	payload.Amount = 50

	var res *chain.ContractInvokeSuccess
	paid := charged(t, c, func() {
		var err error
		res, err = update(c, types.AccountAddr(alice), 10_000, payload)
		require.NoError(t, err)
	})
	require.Equal(t, res.TransactionFee+50, paid)
	require.Equal(t, types.Amount(50), res.NewBalance)
	balance, _ := c.ContractBalance(addr)
	require.Equal(t, types.Amount(50), balance)
}

func Test_Update_From_Contract_Sender(t *testing.T) {
	m := counterModule()
	var sender types.Address
	m.Receives["counter.who"] = func(rc *z.Receive) z.Result {
		sender = rc.Ctx.Sender
		return z.Ok()
	}
	c, funded := counterChain(t, m, 100)
	ref, _ := c.GetContract(funded)
	other := z.InitContract(t, c, alice, ref.ModuleReference, "counter", 0, nil)

	payload := call(other, "counter.who")
	payload.Amount = 30
	_, err := c.ContractUpdate(context.Background(), types.SignerWithOneKey(), alice, types.ContractAddr(funded),
		10_000, payload)
	require.NoError(t, err)
	require.Equal(t, types.ContractAddr(funded), sender)

	balance, _ := c.ContractBalance(funded)
	require.Equal(t, types.Amount(70), balance)
	balance, _ = c.ContractBalance(other)
	require.Equal(t, types.Amount(30), balance)

	payload.Amount = 1000
	_, err = c.ContractUpdate(context.Background(), types.SignerWithOneKey(), alice, types.ContractAddr(funded),
		10_000, payload)
	var execErr *chain.InvokeExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, contract.FailureAmountTooLarge, execErr.Failure.Kind)
}

func Test_Update_Receive_Context(t *testing.T) {
	m := counterModule()
	var seen contract.ReceiveContext
	var inv contract.ReceiveInvocation
	m.Receives["counter.ctx"] = func(rc *z.Receive) z.Result {
		seen = rc.Ctx
		inv = rc.Inv
		return z.Ok()
	}
	c, addr := counterChain(t, m, 10)

	payload := call(addr, "counter.ctx")
	payload.Amount = 5
	payload.Message = []byte{4, 2}
	_, err := c.ContractUpdate(context.Background(), types.SignerWithOneKey(), bob, types.AccountAddr(alice),
		10_000, payload)
	require.NoError(t, err)

	require.Equal(t, types.Timestamp(100), seen.SlotTime)
	require.Equal(t, bob, seen.Invoker)
	require.Equal(t, addr, seen.SelfAddress)
	require.Equal(t, types.Amount(15), seen.SelfBalance)
	require.Equal(t, types.AccountAddr(alice), seen.Sender)
	require.Equal(t, alice, seen.Owner)
	require.Equal(t, types.EmptyPolicy().Bytes(), seen.SenderPolicies)

	require.Equal(t, types.Amount(5), inv.Amount)
	require.Equal(t, types.ReceiveName("counter.ctx"), inv.ReceiveName)
	require.Equal(t, "ctx", inv.Entrypoint)
	require.Equal(t, []byte{4, 2}, inv.Parameter)
}

func Test_Update_Reject_Charges_Energy_Used(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)
	payload := call(addr, "counter.fail")

	var err error
	paid := charged(t, c, func() {
		_, err = update(c, types.AccountAddr(alice), 10_000, payload)
	})
	e := invokeErr(t, err)
	expected := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), 1) + 300 + 20 + 1
	require.Equal(t, expected, e.EnergyUsed)
	require.Equal(t, types.Amount(expected), e.TransactionFee)
	require.Equal(t, e.TransactionFee, paid)

	var execErr *chain.InvokeExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, contract.FailureMessageFailed, execErr.Failure.Kind)
	require.Equal(t, int32(-3), execErr.Failure.RejectReason)
	require.Equal(t, []byte{7}, execErr.Failure.ReturnValue)

	require.Equal(t, uint64(0), count(t, c, addr))

	_, err = update(c, types.AccountAddr(alice), 10_000, call(addr, "counter.trap"))
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, contract.FailureTrap, execErr.Failure.Kind)
}

func Test_Update_Preconditions_Are_Free(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)
	stranger := z.Address(7)

	tooLarge := call(addr, "counter.inc")
	tooLarge.Message = make([]byte, fee.MaxParameterLen+1)
	tooMuch := call(addr, "counter.inc")
	tooMuch.Amount = initialBalance

	cases := map[string]struct {
		invoker types.AccountAddress
		sender  types.Address
		payload chain.UpdateContractPayload
		check   func(error)
	}{
		"missing sender": {alice, types.AccountAddr(stranger), call(addr, "counter.inc"), func(err error) {
			var e *chain.SenderDoesNotExistError
			require.ErrorAs(t, err, &e)
		}},
		"missing invoker": {stranger, types.AccountAddr(alice), call(addr, "counter.inc"), func(err error) {
			var e *chain.InvokerDoesNotExistError
			require.ErrorAs(t, err, &e)
		}},
		"missing contract": {alice, types.AccountAddr(alice), call(types.NewContractAddress(5, 0), "counter.inc"), func(err error) {
			var e *chain.ContractDoesNotExistError
			require.ErrorAs(t, err, &e)
		}},
		"parameter too large": {alice, types.AccountAddr(alice), tooLarge, func(err error) {
			require.ErrorIs(t, err, chain.ErrParameterTooLarge)
		}},
		"insufficient funds": {alice, types.AccountAddr(alice), tooMuch, func(err error) {
			require.ErrorIs(t, err, chain.ErrInsufficientFunds)
		}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			paid := charged(t, c, func() {
				_, err = c.ContractUpdate(context.Background(), types.SignerWithOneKey(), tc.invoker, tc.sender,
					10_000, tc.payload)
			})
			tc.check(err)
			require.Equal(t, types.Amount(0), paid)
			require.Equal(t, types.Energy(0), invokeErr(t, err).EnergyUsed)
		})
	}
}

func Test_Update_Missing_Entrypoint(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 0)

	for _, name := range []string{"counter.nope", "other.inc"} {
		payload := call(addr, name)
		var err error
		paid := charged(t, c, func() {
			_, err = update(c, types.AccountAddr(alice), 10_000, payload)
		})
		var missing *chain.EntrypointDoesNotExistError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, payload.ReceiveName, missing.ReceiveName)

		expected := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), 1) + 300 + 20
		require.Equal(t, expected, invokeErr(t, err).EnergyUsed)
		require.Equal(t, types.Amount(expected), paid)
	}
}

func Test_Update_Fallback_Entrypoint(t *testing.T) {
	m := counterModule()
	var inv contract.ReceiveInvocation
	m.Receives["counter."] = func(rc *z.Receive) z.Result {
		inv = rc.Inv
		return z.Ok([]byte(rc.Inv.Entrypoint)...)
	}
	c, addr := counterChain(t, m, 0)

	res, err := update(c, types.AccountAddr(alice), 10_000, call(addr, "counter.anything"))
	require.NoError(t, err)
	require.Equal(t, []byte("anything"), res.ReturnValue)
	require.Equal(t, types.ReceiveName("counter."), inv.ReceiveName)

	// Exported entrypoints still run themselves.
	res, err = update(c, types.AccountAddr(alice), 10_000, call(addr, "counter.get"))
	require.NoError(t, err)
	require.Equal(t, le(0), res.ReturnValue)

	updated := res.TraceElements[0].(chain.Updated)
	require.Equal(t, types.ReceiveName("counter.get"), updated.ReceiveName)
}

func Test_Update_Out_Of_Energy_During_Execution(t *testing.T) {
	m := counterModule()
	m.Receives["counter.loop"] = func(rc *z.Receive) z.Result {
		for {
			rc.Use(1000)
		}
	}
	c, addr := counterChain(t, m, 0)

	var err error
	paid := charged(t, c, func() {
		_, err = update(c, types.AccountAddr(alice), 5000, call(addr, "counter.loop"))
	})
	require.ErrorIs(t, err, chain.ErrOutOfEnergy)
	require.Equal(t, types.Energy(5000), invokeErr(t, err).EnergyUsed)
	require.Equal(t, types.Amount(5000), paid)
}

func Test_Update_Out_Of_Energy_For_State(t *testing.T) {
	m := counterModule()
	m.Receives["counter.big"] = func(rc *z.Receive) z.Result {
		rc.State.Put([]byte("big"), make([]byte, 1000))
		return z.Ok()
	}
	c, addr := counterChain(t, m, 0)
	payload := call(addr, "counter.big")
	needed := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), 1) + 300 + 20 + 1 + 1003

	var err error
	paid := charged(t, c, func() {
		_, err = update(c, types.AccountAddr(alice), needed-1, payload)
	})
	require.ErrorIs(t, err, chain.ErrOutOfEnergy)
	require.Equal(t, types.Amount(needed-1), paid)
	_, ok := c.ContractStateLookup(addr, []byte("big"))
	require.False(t, ok)

	res, err := update(c, types.AccountAddr(alice), needed, payload)
	require.NoError(t, err)
	require.Equal(t, needed, res.EnergyUsed)
	v, ok := c.ContractStateLookup(addr, []byte("big"))
	require.True(t, ok)
	require.Len(t, v, 1000)
}

func Test_Update_Invoker_Sees_Reserved_Energy_Charged(t *testing.T) {
	m := counterModule()
	var total uint64
	m.Receives["counter.balance"] = func(rc *z.Receive) z.Result {
		resp := rc.Interrupt(contract.QueryAccountBalance{Address: rc.Ctx.Invoker})
		if !resp.Success {
			return z.RejectWith(-1)
		}
		total = binary.LittleEndian.Uint64(resp.Data)
		return z.Ok()
	}
	c, addr := counterChain(t, m, 0)
	before, _ := c.AccountBalance(alice)

	payload := call(addr, "counter.balance")
	payload.Amount = 5
	res, err := update(c, types.AccountAddr(alice), 10_000, payload)
	require.NoError(t, err)
	require.Equal(t, uint64(before.Total-c.CalculateEnergyCost(10_000)-5), total)

	after, _ := c.AccountBalance(alice)
	require.Equal(t, before.Total-5-res.TransactionFee, after.Total)
}

func Test_Invoke_Leaves_Chain_Unchanged(t *testing.T) {
	c, addr := counterChain(t, counterModule(), 7)
	payload := call(addr, "counter.inc")
	payload.Amount = 3

	var res *chain.ContractInvokeSuccess
	paid := charged(t, c, func() {
		var err error
		res, err = c.ContractInvoke(context.Background(), alice, types.AccountAddr(alice), 10_000, payload)
		require.NoError(t, err)
	})
	require.Equal(t, types.Amount(0), paid)

	// Lookup, interpreter and state, without header and base cost.
	require.Equal(t, types.Energy(20+1+13), res.EnergyUsed)
	require.Equal(t, types.Amount(34), res.TransactionFee)
	require.True(t, res.StateChanged)
	require.Equal(t, le(1), res.ReturnValue)
	require.Equal(t, types.Amount(10), res.NewBalance)

	require.Equal(t, uint64(0), count(t, c, addr))
	balance, _ := c.ContractBalance(addr)
	require.Equal(t, types.Amount(7), balance)

	_, err := c.ContractInvoke(context.Background(), alice, types.AccountAddr(alice), 10_000, call(addr, "counter.fail"))
	var execErr *chain.InvokeExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, types.Energy(21), invokeErr(t, err).EnergyUsed)

	_, err = c.ContractInvoke(context.Background(), alice, types.AccountAddr(alice), 30, payload)
	require.ErrorIs(t, err, chain.ErrOutOfEnergy)
	require.Equal(t, types.Energy(30), invokeErr(t, err).EnergyUsed)
	require.Equal(t, uint64(0), count(t, c, addr))
}
