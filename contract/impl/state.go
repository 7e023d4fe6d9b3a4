package impl

import (
	"context"

	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// Host function costs in interpreter energy.
const (
	hostCallCost types.InterpreterEnergy = 200
	// byteCost is charged per byte copied between the contract memory and
	// the host.
	byteCost types.InterpreterEnergy = 10
)

// Limits on what a single entrypoint execution may produce.
const (
	maxEvents    = 64
	maxEventSize = 512
	maxOutput    = 65535
	// maxResponses is the number of call responses an execution can hold.
	maxResponses = 0xffff
)

type entryKind int

const (
	initEntry entryKind = iota
	receiveEntry
)

var errOutOfEnergy = xerrors.New("out of energy")

// trap stops the contract because it misused a host function.
type trap string

func (t trap) Error() string {
	return string(t)
}

// execution is the state of one running entrypoint. Host functions reach it
// through the context of the call.
type execution struct {
	kind   entryKind
	energy types.InterpreterEnergy
	// params holds the parameter at index 0, then the data of the responses
	// to interrupts.
	params   [][]byte
	policies []byte
	slotTime types.Timestamp
	state    *storage.MutableState
	// logs since the previous interrupt.
	logs      [][]byte
	numEvents int
	output    []byte

	origin types.AccountAddress

	receive    contract.ReceiveContext
	entrypoint string
	host       contract.Host

	outOfEnergy bool
	abort       error
}

type executionKey struct{}

func withExecution(ctx context.Context, x *execution) context.Context {
	return context.WithValue(ctx, executionKey{}, x)
}

func executionFrom(ctx context.Context) *execution {
	x, ok := ctx.Value(executionKey{}).(*execution)
	if !ok {
		panic(trap("host function called outside of an entrypoint"))
	}
	return x
}

// charge spends energy and stops the contract if there is not enough.
func (x *execution) charge(cost types.InterpreterEnergy) {
	if err := x.energy.TickEnergy(cost); err != nil {
		x.outOfEnergy = true
		panic(errOutOfEnergy)
	}
}

func (x *execution) chargeBytes(n int) {
	x.charge(byteCost * types.InterpreterEnergy(n))
}

func (x *execution) requireReceive(name string) {
	if x.kind != receiveEntry {
		panic(trap(name + " is only available to receive functions"))
	}
}

// interrupt hands req to the chain and resumes with the energy and balance it
// returns.
func (x *execution) interrupt(ctx context.Context, req contract.Request) contract.InterruptResponse {
	resp, err := x.host.Interrupt(ctx, contract.Interrupt{
		Request:         req,
		RemainingEnergy: x.energy,
		Logs:            x.logs,
	})
	if err != nil {
		x.abort = err
		panic(err)
	}
	x.logs = nil
	x.energy = resp.Energy
	x.receive.SelfBalance = resp.NewBalance
	return resp
}

// addResponse stores the data of a response and returns its parameter
// index, or 0 when there is no data.
func (x *execution) addResponse(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	if len(x.params) > maxResponses {
		panic(trap("too many call responses"))
	}
	x.params = append(x.params, data)
	return uint32(len(x.params) - 1)
}

// encodeResponse encodes the result of invoke and upgrade. Non-negative
// values are successes: the parameter index of the response data shifted
// left by one, with the lowest bit set when the state of the contract was
// modified. Negative values are failures: the negation of the failure kind
// in bits 48 and up, the parameter index of the response data in bits 32 to
// 47 and the reject reason in the low 32 bits.
func (x *execution) encodeResponse(resp contract.InterruptResponse) int64 {
	index := int64(x.addResponse(resp.Data))
	if resp.Success {
		r := index << 1
		if resp.StateModified {
			r |= 1
		}
		return r
	}
	return -(int64(resp.Failure)<<48 | index<<32 | int64(uint32(resp.RejectReason)))
}
