package chain

import (
	"encoding/hex"

	"go.dedis.ch/contractsim/types"
)

// ContractEvent is one event logged by a contract.
type ContractEvent []byte

func (e ContractEvent) String() string {
	return hex.EncodeToString(e)
}

func eventsFromLogs(logs [][]byte) []ContractEvent {
	events := make([]ContractEvent, len(logs))
	for i, l := range logs {
		events[i] = ContractEvent(l)
	}
	return events
}

// ChainEvent is an element of the trace of an invocation.
type ChainEvent interface {
	// Contract is the contract the event belongs to.
	Contract() types.ContractAddress
}

// Interrupted is recorded when a contract hands control to the chain for a
// transfer, a call or an upgrade. Events were logged before the interrupt.
type Interrupted struct {
	Address types.ContractAddress
	Events  []ContractEvent
}

func (e Interrupted) Contract() types.ContractAddress { return e.Address }

// Resumed is recorded when control returns to an interrupted contract.
type Resumed struct {
	Address types.ContractAddress
	Success bool
}

func (e Resumed) Contract() types.ContractAddress { return e.Address }

// Upgraded is recorded when a contract replaces its module.
type Upgraded struct {
	Address types.ContractAddress
	From    types.ModuleReference
	To      types.ModuleReference
}

func (e Upgraded) Contract() types.ContractAddress { return e.Address }

// Updated is recorded when an entrypoint completes successfully.
type Updated struct {
	Address     types.ContractAddress
	Instigator  types.Address
	Amount      types.Amount
	Message     []byte
	ReceiveName types.ReceiveName
	Events      []ContractEvent
}

func (e Updated) Contract() types.ContractAddress { return e.Address }

// Transferred is recorded when a contract sends CCD to an account.
type Transferred struct {
	From   types.ContractAddress
	Amount types.Amount
	To     types.AccountAddress
}

func (e Transferred) Contract() types.ContractAddress { return e.From }

// Transfers returns the transfers from contracts to accounts, in order.
func (s *ContractInvokeSuccess) Transfers() []Transferred {
	var transfers []Transferred
	for _, e := range s.TraceElements {
		if t, ok := e.(Transferred); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers
}

// TraceElementsPerContract groups the trace by contract, keeping the order
// within each contract.
func (s *ContractInvokeSuccess) TraceElementsPerContract() map[types.ContractAddress][]ChainEvent {
	grouped := make(map[types.ContractAddress][]ChainEvent)
	for _, e := range s.TraceElements {
		grouped[e.Contract()] = append(grouped[e.Contract()], e)
	}
	return grouped
}
