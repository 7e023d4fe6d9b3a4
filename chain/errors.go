package chain

import (
	"errors"
	"fmt"

	"go.dedis.ch/contractsim/blockchain/account"
	"go.dedis.ch/contractsim/blockchain/module"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot pay for the
	// reserved energy and the amount.
	ErrInsufficientFunds error = errors.New("insufficient funds to pay for the energy and amount")
	// ErrOutOfEnergy is returned when the reserved energy is used up.
	ErrOutOfEnergy = types.ErrOutOfEnergy
	// ErrParameterTooLarge is returned for parameters above
	// fee.MaxParameterLen bytes.
	ErrParameterTooLarge error = errors.New("parameter exceeds the maximum size")
)

// AccountDoesNotExistError is returned for unknown accounts.
type AccountDoesNotExistError = account.DoesNotExistError

// UnsupportedModuleVersionError is returned when deploying a module that is
// not version 1.
type UnsupportedModuleVersionError = module.UnsupportedModuleVersionError

// ContractDoesNotExistError is returned for unknown contract instances.
type ContractDoesNotExistError struct {
	Address types.ContractAddress
}

func (e *ContractDoesNotExistError) Error() string {
	return fmt.Sprintf("contract %s does not exist", e.Address)
}

// ModuleDoesNotExistError is returned for modules that were never deployed.
type ModuleDoesNotExistError struct {
	Reference types.ModuleReference
}

func (e *ModuleDoesNotExistError) Error() string {
	return fmt.Sprintf("module %s does not exist", e.Reference)
}

// DuplicateModuleError is returned when deploying a module twice.
type DuplicateModuleError struct {
	Reference types.ModuleReference
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %s already exists", e.Reference)
}

// InvalidModuleError is returned when the engine rejects a module.
type InvalidModuleError struct {
	Err error
}

func (e *InvalidModuleError) Error() string {
	return fmt.Sprintf("module is invalid: %v", e.Err)
}

func (e *InvalidModuleError) Unwrap() error {
	return e.Err
}

// SenderDoesNotExistError is returned when the sender of a transaction is
// unknown.
type SenderDoesNotExistError struct {
	Address types.Address
}

func (e *SenderDoesNotExistError) Error() string {
	return fmt.Sprintf("sender %s does not exist", e.Address)
}

// InvokerDoesNotExistError is returned when the account paying for an update
// is unknown.
type InvokerDoesNotExistError struct {
	Address types.AccountAddress
}

func (e *InvokerDoesNotExistError) Error() string {
	return fmt.Sprintf("invoker account %s does not exist", e.Address)
}

// EntrypointDoesNotExistError is returned when neither the entrypoint nor a
// fallback entrypoint is exported.
type EntrypointDoesNotExistError struct {
	ReceiveName types.ReceiveName
}

func (e *EntrypointDoesNotExistError) Error() string {
	return fmt.Sprintf("entrypoint %s does not exist", e.ReceiveName)
}

// ExecutionFailure is how contract code failed. Kind is
// contract.FailureMessageFailed for rejects and contract.FailureTrap for
// traps, other kinds are request failures of a top level invocation, such as
// an amount the sender cannot pay.
type ExecutionFailure struct {
	Kind         contract.FailureKind
	RejectReason int32
	ReturnValue  []byte
	TrapError    error
}

func (f ExecutionFailure) String() string {
	switch f.Kind {
	case contract.FailureMessageFailed:
		return fmt.Sprintf("rejected with reason %d", f.RejectReason)
	case contract.FailureTrap:
		if f.TrapError != nil {
			return fmt.Sprintf("trapped: %v", f.TrapError)
		}
		return "trapped"
	default:
		return f.Kind.String()
	}
}

// InitExecutionError is returned when an init function rejects or traps.
type InitExecutionError struct {
	Failure ExecutionFailure
}

func (e *InitExecutionError) Error() string {
	return fmt.Sprintf("init %s", e.Failure)
}

// InvokeExecutionError is returned when an entrypoint rejects, traps or
// fails a request.
type InvokeExecutionError struct {
	Failure ExecutionFailure
}

func (e *InvokeExecutionError) Error() string {
	return fmt.Sprintf("invocation %s", e.Failure)
}

// ModuleDeployError is returned by ModuleDeployV1. The fee has been charged.
type ModuleDeployError struct {
	EnergyUsed     types.Energy
	TransactionFee types.Amount
	Kind           error
}

func (e *ModuleDeployError) Error() string {
	return fmt.Sprintf("module deployment failed (energy %d, fee %s): %v", e.EnergyUsed, e.TransactionFee, e.Kind)
}

func (e *ModuleDeployError) Unwrap() error {
	return e.Kind
}

// ContractInitError is returned by ContractInit. The fee has been charged.
type ContractInitError struct {
	EnergyUsed     types.Energy
	TransactionFee types.Amount
	Kind           error
}

func (e *ContractInitError) Error() string {
	return fmt.Sprintf("contract init failed (energy %d, fee %s): %v", e.EnergyUsed, e.TransactionFee, e.Kind)
}

func (e *ContractInitError) Unwrap() error {
	return e.Kind
}

// ContractInvokeError is returned by ContractUpdate and ContractInvoke.
type ContractInvokeError struct {
	EnergyUsed     types.Energy
	TransactionFee types.Amount
	Kind           error
}

func (e *ContractInvokeError) Error() string {
	return fmt.Sprintf("contract invocation failed (energy %d, fee %s): %v", e.EnergyUsed, e.TransactionFee, e.Kind)
}

func (e *ContractInvokeError) Unwrap() error {
	return e.Kind
}
