package chain

import (
	"context"

	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

// InitContractPayload describes a contract to create.
type InitContractPayload struct {
	// Amount is the initial balance of the contract, paid by the sender.
	Amount   types.Amount
	ModRef   types.ModuleReference
	InitName types.ContractName
	Param    []byte
}

// Size returns the size of the serialized payload: amount (8), module
// reference (32), then the init name and the parameter, each prefixed by a
// 2 byte length.
func (p InitContractPayload) Size() uint64 {
	return 8 + 32 + 2 + uint64(len(p.InitName)) + 2 + uint64(len(p.Param))
}

// ContractInitSuccess is the result of creating a contract.
type ContractInitSuccess struct {
	ContractAddress types.ContractAddress
	Events          []ContractEvent
	EnergyUsed      types.Energy
	TransactionFee  types.Amount
}

// ContractInit creates a contract instance owned by sender. The sender is
// charged for the energy used whether or not the contract is created; the
// amount only moves on success.
func (c *Chain) ContractInit(ctx context.Context, signer types.Signer, sender types.AccountAddress,
	energyReserved types.Energy, payload InitContractPayload) (*ContractInitSuccess, error) {

	if !c.accounts.Exists(sender) {
		return nil, &ContractInitError{Kind: &SenderDoesNotExistError{Address: types.AccountAddr(sender)}}
	}

	remaining := energyReserved
	res, kind := c.contractInitWorker(ctx, signer, sender, energyReserved, payload, &remaining)

	var transactionFee types.Amount
	var err error
	if kind == nil {
		transactionFee = res.TransactionFee
	} else {
		energyUsed := energyReserved - remaining
		transactionFee = c.params.EnergyCost(energyUsed)
		err = &ContractInitError{EnergyUsed: energyUsed, TransactionFee: transactionFee, Kind: kind}
		res = nil
		c.logger.Debug().Str("sender", sender.String()).Err(kind).Msg("contract init failed")
	}

	if debitErr := c.accounts.Debit(sender, transactionFee); debitErr != nil {
		panic("funds for the reserved energy were checked: " + debitErr.Error())
	}
	return res, err
}

// contractInitWorker returns as soon as the energy runs out. The error is the
// kind of the failure.
func (c *Chain) contractInitWorker(ctx context.Context, signer types.Signer, sender types.AccountAddress,
	energyReserved types.Energy, payload InitContractPayload, remaining *types.Energy) (*ContractInitSuccess, error) {

	acc, err := c.accounts.Get(sender)
	if err != nil {
		return nil, &SenderDoesNotExistError{Address: types.AccountAddr(sender)}
	}
	required, err := c.params.EnergyCost(energyReserved).CheckedAdd(payload.Amount)
	if err != nil || acc.Balance.Available() < required {
		return nil, ErrInsufficientFunds
	}
	if len(payload.Param) > fee.MaxParameterLen {
		return nil, ErrParameterTooLarge
	}

	// 1 byte for the payload tag.
	headerEnergy := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), signer.NumKeys)
	if err := remaining.TickEnergy(headerEnergy); err != nil {
		return nil, outOfEnergy(remaining)
	}
	if err := remaining.TickEnergy(fee.InitializeContractInstanceBaseCost); err != nil {
		return nil, outOfEnergy(remaining)
	}

	mod, ok := c.modules[payload.ModRef]
	if !ok {
		return nil, &ModuleDoesNotExistError{Reference: payload.ModRef}
	}
	if err := remaining.TickEnergy(fee.LookupModuleCost(mod.Size)); err != nil {
		return nil, outOfEnergy(remaining)
	}

	ictx := contract.InitContext{
		SlotTime:       c.params.BlockTime,
		InitOrigin:     sender,
		SenderPolicies: acc.Policy.Bytes(),
	}
	given := types.ToInterpreterEnergy(*remaining)
	state := storage.NewMutableState()
	res, err := mod.Artifact.Init(ctx, ictx, contract.InitInvocation{
		Amount:    payload.Amount,
		InitName:  payload.InitName,
		Parameter: payload.Param,
		Energy:    given,
	}, state)
	if err != nil {
		return nil, &InitExecutionError{Failure: ExecutionFailure{Kind: contract.FailureTrap, TrapError: err}}
	}
	if res.Outcome == contract.OutOfEnergy {
		return nil, outOfEnergy(remaining)
	}

	if err := remaining.TickEnergy(types.InterpreterEnergyUsed(given, res.RemainingEnergy)); err != nil {
		return nil, outOfEnergy(remaining)
	}

	switch res.Outcome {
	case contract.Reject:
		return nil, &InitExecutionError{Failure: ExecutionFailure{
			Kind:         contract.FailureMessageFailed,
			RejectReason: res.RejectReason,
			ReturnValue:  res.ReturnValue,
		}}
	case contract.Trap:
		return nil, &InitExecutionError{Failure: ExecutionFailure{Kind: contract.FailureTrap, TrapError: res.TrapError}}
	}

	var collector storage.SizeCollector
	persisted := state.Freeze(&collector)
	if err := remaining.TickEnergy(types.Energy(collector.Collect())); err != nil {
		return nil, outOfEnergy(remaining)
	}
	if err := remaining.TickEnergy(fee.InitializeContractInstanceCreateCost); err != nil {
		return nil, outOfEnergy(remaining)
	}

	addr := c.createContractAddress()
	c.contracts[addr] = &Contract{
		ModuleReference: payload.ModRef,
		ContractName:    payload.InitName,
		State:           persisted,
		Owner:           sender,
		SelfBalance:     payload.Amount,
	}
	acc.Balance.Total -= payload.Amount

	energyUsed := energyReserved - *remaining
	transactionFee := c.params.EnergyCost(energyUsed)
	c.logger.Debug().Str("sender", sender.String()).Str("contract", addr.String()).
		Uint64("energy", uint64(energyUsed)).Str("fee", transactionFee.String()).Msg("contract initialized")

	return &ContractInitSuccess{
		ContractAddress: addr,
		Events:          eventsFromLogs(res.Logs),
		EnergyUsed:      energyUsed,
		TransactionFee:  transactionFee,
	}, nil
}

// outOfEnergy empties the budget: running out of energy uses all of it.
func outOfEnergy(remaining *types.Energy) error {
	*remaining = 0
	return ErrOutOfEnergy
}
