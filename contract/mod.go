// Package contract defines the boundary between the chain and the Wasm
// interpreter that executes smart contract code.
//
// An entrypoint runs until it returns. Contract requests that need the chain,
// such as transfers, calls to other contracts or balance queries, are
// delivered synchronously through Host while the entrypoint is running, and
// execution resumes with the response.
package contract

import (
	"context"
	"fmt"

	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/types"
)

// Engine validates module source and prepares it for execution.
type Engine interface {
	// Instantiate validates source and returns an executable artifact.
	Instantiate(ctx context.Context, source []byte) (Artifact, error)

	Close(ctx context.Context) error
}

// Artifact is a validated module ready to run.
type Artifact interface {
	// Exports lists the init and receive functions of the module.
	Exports() Exports

	HasInit(name types.ContractName) bool
	HasReceive(name types.ReceiveName) bool

	// Init runs an init function. state starts empty and holds the initial
	// contract state on success.
	Init(ctx context.Context, ictx InitContext, inv InitInvocation, state *storage.MutableState) (InitResult, error)

	// Receive runs a receive function on state. Requests of the contract are
	// delivered to host. A non nil error means execution was aborted by host.
	Receive(ctx context.Context, rctx ReceiveContext, inv ReceiveInvocation,
		state *storage.MutableState, host Host) (ReceiveResult, error)
}

// Exports are the functions a module makes available to the chain.
type Exports struct {
	Inits    []types.ContractName
	Receives []types.ReceiveName
}

// Host answers the requests a contract makes while executing.
type Host interface {
	// Interrupt handles one request. An error aborts the whole execution.
	Interrupt(ctx context.Context, intr Interrupt) (InterruptResponse, error)
}

// InitContext is the chain information available to init functions.
type InitContext struct {
	SlotTime       types.Timestamp
	InitOrigin     types.AccountAddress
	SenderPolicies []byte
}

// InitInvocation describes one init call.
type InitInvocation struct {
	Amount    types.Amount
	InitName  types.ContractName
	Parameter []byte
	Energy    types.InterpreterEnergy
}

// ReceiveContext is the chain information available to receive functions.
type ReceiveContext struct {
	SlotTime       types.Timestamp
	Invoker        types.AccountAddress
	SelfAddress    types.ContractAddress
	SelfBalance    types.Amount
	Sender         types.Address
	Owner          types.AccountAddress
	SenderPolicies []byte
}

// ReceiveInvocation describes one receive call. ReceiveName is the function
// that is run, which can be the fallback of the requested entrypoint.
type ReceiveInvocation struct {
	Amount      types.Amount
	ReceiveName types.ReceiveName
	Entrypoint  string
	Parameter   []byte
	Energy      types.InterpreterEnergy
}

// Outcome is how an execution ended.
type Outcome int

const (
	Success Outcome = iota
	Reject
	Trap
	OutOfEnergy
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Reject:
		return "reject"
	case Trap:
		return "trap"
	case OutOfEnergy:
		return "out of energy"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// InitResult is the result of an init function.
type InitResult struct {
	Outcome Outcome
	Logs    [][]byte
	// RejectReason is negative and only set for Reject.
	RejectReason int32
	ReturnValue  []byte
	// TrapError describes a trap.
	TrapError       error
	RemainingEnergy types.InterpreterEnergy
}

// ReceiveResult is the result of a receive function. Logs are the events
// logged after the last interrupt.
type ReceiveResult struct {
	Outcome         Outcome
	Logs            [][]byte
	RejectReason    int32
	ReturnValue     []byte
	TrapError       error
	RemainingEnergy types.InterpreterEnergy
}

// Interrupt is a request of a running contract. Logs are the events logged
// since the previous interrupt.
type Interrupt struct {
	Request         Request
	RemainingEnergy types.InterpreterEnergy
	Logs            [][]byte
}

// InterruptResponse answers an Interrupt.
type InterruptResponse struct {
	Success bool
	// Failure is set when Success is false.
	Failure FailureKind
	// Data is the response of a query or the return value of a call. It is
	// also set for calls that were rejected.
	Data []byte
	// RejectReason is the reason of a rejected call.
	RejectReason int32
	// StateModified reports whether the state of the interrupted contract was
	// changed while handling a call.
	StateModified bool
	// Energy is what execution resumes with.
	Energy types.InterpreterEnergy
	// NewBalance is the balance of the interrupted contract once the request
	// is handled.
	NewBalance types.Amount
}

// FailureKind is why a request failed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureAmountTooLarge: the sender does not hold enough CCD.
	FailureAmountTooLarge
	FailureMissingAccount
	FailureMissingContract
	FailureNonExistentEntrypoint
	// FailureMessageFailed: the called contract rejected.
	FailureMessageFailed
	// FailureTrap: the called contract trapped.
	FailureTrap
	FailureMissingModule
	// FailureMissingInit: the module of an upgrade does not export the
	// contract.
	FailureMissingInit
	FailureUnsupportedModuleVersion
	FailureSignatureDataMalformed
	FailureSignatureCheckFailed
)

var failureNames = map[FailureKind]string{
	FailureNone:                     "none",
	FailureAmountTooLarge:           "amount too large",
	FailureMissingAccount:           "missing account",
	FailureMissingContract:          "missing contract",
	FailureNonExistentEntrypoint:    "non existent entrypoint",
	FailureMessageFailed:            "message failed",
	FailureTrap:                     "trap",
	FailureMissingModule:            "missing module",
	FailureMissingInit:              "missing contract in module",
	FailureUnsupportedModuleVersion: "unsupported module version",
	FailureSignatureDataMalformed:   "signature data malformed",
	FailureSignatureCheckFailed:     "signature check failed",
}

func (f FailureKind) String() string {
	name, ok := failureNames[f]
	if !ok {
		return fmt.Sprintf("failure(%d)", int(f))
	}
	return name
}

// Failed returns the response to a failed request.
func Failed(kind FailureKind) InterruptResponse {
	return InterruptResponse{Failure: kind}
}

// Succeeded returns the response to a successful request.
func Succeeded(data []byte) InterruptResponse {
	return InterruptResponse{Success: true, Data: data}
}
