package impl_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/contract/impl"
	"go.dedis.ch/contractsim/types"
)

func le(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, n)
}

// counterWasm assembles a counter contract. Memory layout: the state key
// "count" at 0, scratch results at 8, the counter value at 16, the init
// origin at 40, and parameters at 32 (invoke tag at 31).
func counterWasm() []byte {
	i32, i64 := tI32, tI64
	b := newModule()
	paramSize := b.host("get_parameter_size", []byte{i32}, []byte{i32})
	paramSection := b.host("get_parameter_section", []byte{i32, i32, i32, i32}, []byte{i32})
	writeOutput := b.host("write_output", []byte{i32, i32, i32}, []byte{i32})
	logEvent := b.host("log_event", []byte{i32, i32}, []byte{i32})
	stateRead := b.host("state_read", []byte{i32, i32, i32, i32, i32}, []byte{i32})
	stateWrite := b.host("state_write", []byte{i32, i32, i32, i32}, []byte{i32})
	slotTime := b.host("get_slot_time", nil, []byte{i64})
	selfBalance := b.host("get_receive_self_balance", nil, []byte{i64})
	invoke := b.host("invoke", []byte{i32, i32, i32}, []byte{i64})
	upgrade := b.host("upgrade", []byte{i32}, []byte{i64})
	initOrigin := b.host("get_init_origin", []byte{i32}, nil)

	b.dataAt(0, []byte("count"))

	outputScratch := cat(i32c(8), i32c(8), i32c(0), call(writeOutput), drop)

	b.entry("init_counter", 0,
		i32c(0), i32c(5), i32c(16), i32c(8), call(stateWrite), drop,
		i32c(40), call(initOrigin),
		i32c(40), i32c(32), i32c(0), call(writeOutput), drop,
		i32c(0))
	b.entry("counter.inc", 0,
		i32c(0), i32c(5), i32c(16), i32c(8), i32c(0), call(stateRead), drop,
		i32c(16), i32c(16), i64Load, i64c(1), i64Add, i64Store,
		i32c(0), i32c(5), i32c(16), i32c(8), call(stateWrite), drop,
		i32c(16), i32c(8), i32c(0), call(writeOutput), drop,
		i32c(16), i32c(1), call(logEvent), drop,
		i32c(0))
	b.entry("counter.reject", 0, i32c(-5))
	b.entry("counter.trap", 0, unreachable)
	b.entry("counter.spin", 0,
		loop, call(slotTime), drop, br0, end,
		i32c(0))
	b.entry("counter.echo", 1,
		i32c(0), call(paramSize), localSet(1),
		i32c(0), i32c(32), localGet(1), i32c(0), call(paramSection), drop,
		i32c(32), localGet(1), i32c(0), call(writeOutput), drop,
		i32c(0))
	// forward sends the parameter, a tag byte followed by the payload, to
	// invoke and returns the result.
	b.entry("counter.forward", 1,
		i32c(0), call(paramSize), localSet(1),
		i32c(0), i32c(31), localGet(1), i32c(0), call(paramSection), drop,
		i32c(8),
		i32c(31), i32Load8U,
		i32c(32), localGet(1), i32c(1), i32Sub,
		call(invoke),
		i64Store,
		outputScratch,
		i32c(0))
	// spend is forward, returning the balance after the request instead of
	// its result.
	b.entry("counter.spend", 1,
		i32c(0), call(paramSize), localSet(1),
		i32c(0), i32c(31), localGet(1), i32c(0), call(paramSection), drop,
		i32c(31), i32Load8U,
		i32c(32), localGet(1), i32c(1), i32Sub,
		call(invoke), drop,
		i32c(8), call(selfBalance), i64Store,
		outputScratch,
		i32c(0))
	b.entry("counter.upgrade", 0,
		i32c(0), i32c(32), i32c(32), i32c(0), call(paramSection), drop,
		i32c(8), i32c(32), call(upgrade), i64Store,
		outputScratch,
		i32c(0))
	b.entry("counter.balance", 0,
		i32c(8), call(selfBalance), i64Store,
		outputScratch,
		i32c(0))
	b.entry("counter.bad", 0, i32c(40), call(initOrigin), i32c(0))
	b.function("helper", nil, nil, nil)
	return b.bytes()
}

func newEngine(t *testing.T) *impl.Engine {
	e := impl.NewEngine(context.Background(), impl.DefaultConfig())
	t.Cleanup(func() { require.NoError(t, e.Close(context.Background())) })
	return e
}

func instantiate(t *testing.T, e *impl.Engine) contract.Artifact {
	a, err := e.Instantiate(context.Background(), counterWasm())
	require.NoError(t, err)
	return a
}

// hostFunc answers interrupts, resuming with the remaining energy.
type hostFunc func(intr contract.Interrupt) (contract.InterruptResponse, error)

func (f hostFunc) Interrupt(_ context.Context, intr contract.Interrupt) (contract.InterruptResponse, error) {
	resp, err := f(intr)
	resp.Energy = intr.RemainingEnergy
	return resp, err
}

var noHost = hostFunc(func(contract.Interrupt) (contract.InterruptResponse, error) {
	panic("unexpected interrupt")
})

func receive(t *testing.T, a contract.Artifact, name string, param []byte, state *storage.MutableState,
	host contract.Host) contract.ReceiveResult {

	if state == nil {
		state = storage.NewMutableState()
	}
	rn := types.MustReceiveName(name)
	res, err := a.Receive(context.Background(), contract.ReceiveContext{SelfBalance: 77}, contract.ReceiveInvocation{
		ReceiveName: rn,
		Entrypoint:  rn.Entrypoint(),
		Parameter:   param,
		Energy:      1_000_000,
	}, state, host)
	require.NoError(t, err)
	return res
}

func Test_Engine_Exports(t *testing.T) {
	a := instantiate(t, newEngine(t))

	require.Equal(t, contract.Exports{
		Inits: []types.ContractName{"init_counter"},
		Receives: []types.ReceiveName{
			"counter.bad", "counter.balance", "counter.echo", "counter.forward", "counter.inc",
			"counter.reject", "counter.spend", "counter.spin", "counter.trap", "counter.upgrade",
		},
	}, a.Exports())
	require.True(t, a.HasInit("init_counter"))
	require.False(t, a.HasInit("init_other"))
	require.True(t, a.HasReceive("counter.inc"))
	require.False(t, a.HasReceive("helper"))
}

func Test_Engine_Rejects_Invalid_Modules(t *testing.T) {
	e := newEngine(t)
	build := func(fn func(b *wasmBuilder)) []byte {
		b := newModule()
		fn(b)
		return b.bytes()
	}

	cases := map[string][]byte{
		"garbage": []byte("not wasm"),
		"unknown host function": build(func(b *wasmBuilder) {
			b.host("nope", nil, nil)
		}),
		"unknown module": build(func(b *wasmBuilder) {
			b.importFunc("env", "abort", nil, nil)
		}),
		"wrong host type": build(func(b *wasmBuilder) {
			b.host("state_size", []byte{tI32}, []byte{tI32})
		}),
		"wrong entry type": build(func(b *wasmBuilder) {
			b.function("init_x", nil, []byte{tI32}, nil, i32c(0))
		}),
		"receive without init": build(func(b *wasmBuilder) {
			b.entry("init_x", 0, i32c(0))
			b.entry("y.go", 0, i32c(0))
		}),
		"invalid init name": build(func(b *wasmBuilder) {
			b.entry("init_x.y", 0, i32c(0))
		}),
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Instantiate(context.Background(), source)
			require.Error(t, err)
		})
	}
}

func Test_Engine_Init(t *testing.T) {
	a := instantiate(t, newEngine(t))
	origin := types.AccountAddress{1, 2, 3}
	state := storage.NewMutableState()

	res, err := a.Init(context.Background(), contract.InitContext{InitOrigin: origin}, contract.InitInvocation{
		InitName: "init_counter",
		Energy:   1_000_000,
	}, state)
	require.NoError(t, err)
	require.Equal(t, contract.Success, res.Outcome)
	require.Equal(t, origin[:], res.ReturnValue)

	v, ok := state.Lookup([]byte("count"))
	require.True(t, ok)
	require.Equal(t, le(0), v)

	// Entry, then three host calls moving 13, 32 and 32 bytes.
	used := types.InterpreterEnergy(1000 + 3*200 + (13+32+32)*10)
	require.Equal(t, types.InterpreterEnergy(1_000_000)-used, res.RemainingEnergy)

	_, err = a.Init(context.Background(), contract.InitContext{}, contract.InitInvocation{InitName: "init_other"}, state)
	require.Error(t, err)
	require.Contains(t, err.Error(), "module does not export init_other")
}

func Test_Engine_Receive_Updates_State(t *testing.T) {
	a := instantiate(t, newEngine(t))
	state := storage.NewMutableState()
	require.NoError(t, state.Put([]byte("count"), le(41)))

	res := receive(t, a, "counter.inc", nil, state, noHost)
	require.Equal(t, contract.Success, res.Outcome)
	require.Equal(t, le(42), res.ReturnValue)
	require.Equal(t, [][]byte{{42}}, res.Logs)

	v, _ := state.Lookup([]byte("count"))
	require.Equal(t, le(42), v)
}

func Test_Engine_Outcomes(t *testing.T) {
	a := instantiate(t, newEngine(t))

	res := receive(t, a, "counter.reject", nil, nil, noHost)
	require.Equal(t, contract.Reject, res.Outcome)
	require.Equal(t, int32(-5), res.RejectReason)

	res = receive(t, a, "counter.trap", nil, nil, noHost)
	require.Equal(t, contract.Trap, res.Outcome)
	require.Error(t, res.TrapError)

	res = receive(t, a, "counter.bad", nil, nil, noHost)
	require.Equal(t, contract.Trap, res.Outcome)

	res = receive(t, a, "counter.spin", nil, nil, noHost)
	require.Equal(t, contract.OutOfEnergy, res.Outcome)
	require.Equal(t, types.InterpreterEnergy(0), res.RemainingEnergy)

	rn := types.MustReceiveName("counter.inc")
	res, err := a.Receive(context.Background(), contract.ReceiveContext{}, contract.ReceiveInvocation{
		ReceiveName: rn,
		Energy:      999,
	}, storage.NewMutableState(), noHost)
	require.NoError(t, err)
	require.Equal(t, contract.OutOfEnergy, res.Outcome)
}

func Test_Engine_Parameter_And_Balance(t *testing.T) {
	a := instantiate(t, newEngine(t))

	res := receive(t, a, "counter.echo", []byte("hello"), nil, noHost)
	require.Equal(t, contract.Success, res.Outcome)
	require.Equal(t, []byte("hello"), res.ReturnValue)

	res = receive(t, a, "counter.balance", nil, nil, noHost)
	require.Equal(t, le(77), res.ReturnValue)
}

func Test_Engine_Invoke_Requests(t *testing.T) {
	a := instantiate(t, newEngine(t))
	to := types.AccountAddress{9}
	sig := make([]byte, 64)
	sig[0] = 0xaa

	cases := map[string]struct {
		payload  []byte
		request  contract.Request
		response contract.InterruptResponse
		result   int64
	}{
		"transfer": {
			payload:  cat([]byte{byte(impl.TagTransfer)}, to[:], le(500)),
			request:  contract.Transfer{To: to, Amount: 500},
			response: contract.Succeeded(nil),
			result:   0,
		},
		"call": {
			payload: cat([]byte{byte(impl.TagCall)}, le(3), le(0), []byte{2, 0, 1, 2}, []byte{3, 0},
				[]byte("inc"), le(5)),
			request: contract.Call{To: types.NewContractAddress(3, 0), Entrypoint: "inc",
				Parameter: []byte{1, 2}, Amount: 5},
			response: contract.InterruptResponse{Success: true, Data: []byte{9}, StateModified: true},
			result:   1<<1 | 1,
		},
		"rejected call": {
			payload: cat([]byte{byte(impl.TagCall)}, le(3), le(0), []byte{0, 0}, []byte{1, 0}, []byte("x"),
				le(0)),
			request: contract.Call{To: types.NewContractAddress(3, 0), Entrypoint: "x"},
			response: contract.InterruptResponse{Failure: contract.FailureMessageFailed, RejectReason: -7,
				Data: []byte{1}},
			result: -(int64(contract.FailureMessageFailed)<<48 | 1<<32 | int64(uint32(0xfffffff9))),
		},
		"account balance": {
			payload:  cat([]byte{byte(impl.TagQueryAccountBalance)}, to[:]),
			request:  contract.QueryAccountBalance{Address: to},
			response: contract.Failed(contract.FailureMissingAccount),
			result:   -(int64(contract.FailureMissingAccount) << 48),
		},
		"contract balance": {
			payload:  cat([]byte{byte(impl.TagQueryContractBalance)}, le(1), le(2)),
			request:  contract.QueryContractBalance{Address: types.NewContractAddress(1, 2)},
			response: contract.Succeeded(le(10)),
			result:   1 << 1,
		},
		"exchange rates": {
			payload:  []byte{byte(impl.TagQueryExchangeRates)},
			request:  contract.QueryExchangeRates{},
			response: contract.Succeeded(nil),
		},
		"signature": {
			payload: cat([]byte{byte(impl.TagCheckAccountSignature)}, to[:], []byte{3, 0, 0, 0}, []byte("msg"),
				[]byte{1, 0}, sig),
			request: contract.CheckAccountSignature{Address: to, Message: []byte("msg"),
				Signatures: []contract.IndexedSignature{{KeyIndex: 0, Signature: sig}}},
			response: contract.Failed(contract.FailureSignatureCheckFailed),
			result:   -(int64(contract.FailureSignatureCheckFailed) << 48),
		},
		"account keys": {
			payload:  cat([]byte{byte(impl.TagQueryAccountKeys)}, to[:]),
			request:  contract.QueryAccountKeys{Address: to},
			response: contract.Succeeded([]byte{1, 0}),
			result:   1 << 1,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got contract.Request
			host := hostFunc(func(intr contract.Interrupt) (contract.InterruptResponse, error) {
				got = intr.Request
				return tc.response, nil
			})
			res := receive(t, a, "counter.forward", tc.payload, nil, host)
			require.Equal(t, contract.Success, res.Outcome, "%v", res.TrapError)
			require.Equal(t, tc.request, got)
			require.Equal(t, tc.result, int64(binary.LittleEndian.Uint64(res.ReturnValue)))
		})
	}
}

func Test_Engine_Resumes_With_New_Balance(t *testing.T) {
	a := instantiate(t, newEngine(t))
	to := types.AccountAddress{9}

	host := hostFunc(func(intr contract.Interrupt) (contract.InterruptResponse, error) {
		require.Equal(t, contract.Transfer{To: to, Amount: 4}, intr.Request)
		resp := contract.Succeeded(nil)
		resp.NewBalance = 73
		return resp, nil
	})
	res := receive(t, a, "counter.spend", cat([]byte{byte(impl.TagTransfer)}, to[:], le(4)), nil, host)
	require.Equal(t, contract.Success, res.Outcome, "%v", res.TrapError)
	require.Equal(t, le(73), res.ReturnValue)
}

func Test_Engine_Invoke_Failures(t *testing.T) {
	a := instantiate(t, newEngine(t))

	res := receive(t, a, "counter.forward", []byte{byte(impl.TagTransfer), 1, 2, 3}, nil, noHost)
	require.Equal(t, contract.Trap, res.Outcome)

	res = receive(t, a, "counter.forward", []byte{99}, nil, noHost)
	require.Equal(t, contract.Trap, res.Outcome)
	require.Contains(t, res.TrapError.Error(), "unknown invoke tag 99")

	aborted := errors.New("aborted")
	host := hostFunc(func(contract.Interrupt) (contract.InterruptResponse, error) {
		return contract.InterruptResponse{}, aborted
	})
	rn := types.MustReceiveName("counter.forward")
	_, err := a.Receive(context.Background(), contract.ReceiveContext{}, contract.ReceiveInvocation{
		ReceiveName: rn,
		Parameter:   []byte{byte(impl.TagQueryExchangeRates)},
		Energy:      1_000_000,
	}, storage.NewMutableState(), host)
	require.ErrorIs(t, err, aborted)
}

func Test_Engine_Upgrade_Request(t *testing.T) {
	a := instantiate(t, newEngine(t))
	ref := types.ModuleReference{7, 7, 7}

	var got contract.Request
	host := hostFunc(func(intr contract.Interrupt) (contract.InterruptResponse, error) {
		got = intr.Request
		return contract.Failed(contract.FailureMissingModule), nil
	})
	res := receive(t, a, "counter.upgrade", ref[:], nil, host)
	require.Equal(t, contract.Success, res.Outcome)
	require.Equal(t, contract.Upgrade{Module: ref}, got)
	require.Equal(t, -(int64(contract.FailureMissingModule) << 48), int64(binary.LittleEndian.Uint64(res.ReturnValue)))
}
