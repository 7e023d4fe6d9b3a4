package chain

import (
	"context"
	"errors"

	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

// UpdateContractPayload describes a call to an entrypoint.
type UpdateContractPayload struct {
	// Amount is sent from the sender to the contract.
	Amount      types.Amount
	Address     types.ContractAddress
	ReceiveName types.ReceiveName
	Message     []byte
}

// Size returns the size of the serialized payload: amount (8), contract
// address (16), then the receive name and the message, each prefixed by a 2
// byte length.
func (p UpdateContractPayload) Size() uint64 {
	return 8 + types.ContractAddressSize + 2 + uint64(len(p.ReceiveName)) + 2 + uint64(len(p.Message))
}

// ContractInvokeSuccess is the result of a successful update or invoke.
type ContractInvokeSuccess struct {
	TraceElements  []ChainEvent
	EnergyUsed     types.Energy
	TransactionFee types.Amount
	ReturnValue    []byte
	// StateChanged reports whether the state of the invoked contract changed.
	StateChanged bool
	// NewBalance is the balance of the invoked contract afterwards.
	NewBalance types.Amount
	Events     []ContractEvent
}

// ContractUpdate calls an entrypoint and keeps its effects if it succeeds.
//
// The invoker pays for the transaction: the cost of all reserved energy is
// taken up front, so contracts querying the invoker balance see it, and the
// unused part is refunded afterwards. sender is who the contract sees as
// the sender and pays the payload amount.
func (c *Chain) ContractUpdate(ctx context.Context, signer types.Signer, invoker types.AccountAddress,
	sender types.Address, energyReserved types.Energy, payload UpdateContractPayload) (*ContractInvokeSuccess, error) {

	reservedCost, err := c.checkInvocation(invoker, sender, energyReserved, payload)
	if err != nil {
		return nil, err
	}
	c.chargeReserved(invoker, reservedCost)

	remaining := energyReserved
	res, err := c.contractUpdateWorker(ctx, signer, invoker, sender, energyReserved, payload, &remaining)

	transactionFee := feeOf(res, err)
	if refundErr := c.accounts.Credit(invoker, reservedCost-transactionFee); refundErr != nil {
		panic("refund restores a debited balance: " + refundErr.Error())
	}
	return res, err
}

func (c *Chain) contractUpdateWorker(ctx context.Context, signer types.Signer, invoker types.AccountAddress,
	sender types.Address, energyReserved types.Energy, payload UpdateContractPayload,
	remaining *types.Energy) (*ContractInvokeSuccess, error) {

	// 1 byte for the payload tag.
	headerEnergy := fee.BaseCost(fee.TransactionHeaderSize+1+payload.Size(), signer.NumKeys)
	if err := remaining.TickEnergy(headerEnergy); err != nil {
		return nil, c.invokeError(ErrOutOfEnergy, energyReserved, 0)
	}
	if err := remaining.TickEnergy(fee.UpdateContractInstanceBaseCost); err != nil {
		return nil, c.invokeError(ErrOutOfEnergy, energyReserved, 0)
	}

	h := c.newInvocationHandler(invoker, remaining)
	var trace []ChainEvent
	resp, err := h.invokeEntrypoint(ctx, sender, payload, &trace)
	if err != nil {
		return nil, c.invokeError(err, energyReserved, *remaining)
	}
	if !resp.success {
		return nil, c.invokeError(invokeFailureKind(resp, payload), energyReserved, *remaining)
	}

	stateChanged, err := h.changeset.persist(remaining, payload.Address)
	if err != nil {
		return nil, c.invokeError(ErrOutOfEnergy, energyReserved, 0)
	}
	return c.invokeSuccess(resp, trace, energyReserved, *remaining, stateChanged), nil
}

// ContractInvoke calls an entrypoint like ContractUpdate but discards every
// effect, including the fee. The result reports what the update would
// cost, including the state it would store, apart from the transaction
// header and base cost.
func (c *Chain) ContractInvoke(ctx context.Context, invoker types.AccountAddress, sender types.Address,
	energyReserved types.Energy, payload UpdateContractPayload) (*ContractInvokeSuccess, error) {

	reservedCost, err := c.checkInvocation(invoker, sender, energyReserved, payload)
	if err != nil {
		return nil, err
	}
	c.chargeReserved(invoker, reservedCost)
	defer func() {
		if refundErr := c.accounts.Credit(invoker, reservedCost); refundErr != nil {
			panic("refund restores a debited balance: " + refundErr.Error())
		}
	}()

	remaining := energyReserved
	h := c.newInvocationHandler(invoker, &remaining)
	var trace []ChainEvent
	resp, err := h.invokeEntrypoint(ctx, sender, payload, &trace)
	if err != nil {
		return nil, c.invokeError(err, energyReserved, remaining)
	}
	if !resp.success {
		return nil, c.invokeError(invokeFailureKind(resp, payload), energyReserved, remaining)
	}

	stateChanged, err := h.changeset.collectEnergyForState(&remaining, payload.Address)
	if err != nil {
		return nil, c.invokeError(ErrOutOfEnergy, energyReserved, 0)
	}
	return c.invokeSuccess(resp, trace, energyReserved, remaining, stateChanged), nil
}

// checkInvocation checks everything that makes an invocation fail without
// any cost and returns the cost of the reserved energy.
func (c *Chain) checkInvocation(invoker types.AccountAddress, sender types.Address,
	energyReserved types.Energy, payload UpdateContractPayload) (types.Amount, error) {

	if !c.addressExists(sender) {
		return 0, &ContractInvokeError{Kind: &SenderDoesNotExistError{Address: sender}}
	}
	acc, err := c.accounts.Get(invoker)
	if err != nil {
		return 0, &ContractInvokeError{Kind: &InvokerDoesNotExistError{Address: invoker}}
	}
	if !c.ContractExists(payload.Address) {
		return 0, &ContractInvokeError{Kind: &ContractDoesNotExistError{Address: payload.Address}}
	}
	if len(payload.Message) > fee.MaxParameterLen {
		return 0, &ContractInvokeError{Kind: ErrParameterTooLarge}
	}

	reservedCost := c.params.EnergyCost(energyReserved)
	required, err := reservedCost.CheckedAdd(payload.Amount)
	if err != nil || acc.Balance.Available() < required {
		return 0, &ContractInvokeError{Kind: ErrInsufficientFunds}
	}
	return reservedCost, nil
}

func (c *Chain) chargeReserved(invoker types.AccountAddress, reservedCost types.Amount) {
	if err := c.accounts.Debit(invoker, reservedCost); err != nil {
		panic("funds for the reserved energy were checked: " + err.Error())
	}
}

func (c *Chain) newInvocationHandler(invoker types.AccountAddress, remaining *types.Energy) *invocationHandler {
	acc, err := c.accounts.Get(invoker)
	if err != nil {
		panic("invoker existence was checked: " + err.Error())
	}
	return &invocationHandler{
		chain:     c,
		changeset: newChangeset(c),
		remaining: remaining,
		invoker:   invoker,
		policies:  acc.Policy.Bytes(),
		logger:    c.logger.With().Str("invoker", invoker.String()).Logger(),
	}
}

// invokeError builds the error of a failed invocation. Running out of energy
// uses all reserved energy.
func (c *Chain) invokeError(kind error, energyReserved, remaining types.Energy) *ContractInvokeError {
	if errors.Is(kind, ErrOutOfEnergy) {
		kind = ErrOutOfEnergy
		remaining = 0
	}
	energyUsed := energyReserved - remaining
	c.logger.Debug().Err(kind).Uint64("energy", uint64(energyUsed)).Msg("contract invocation failed")
	return &ContractInvokeError{
		EnergyUsed:     energyUsed,
		TransactionFee: c.params.EnergyCost(energyUsed),
		Kind:           kind,
	}
}

func (c *Chain) invokeSuccess(resp invokeResponse, trace []ChainEvent, energyReserved, remaining types.Energy,
	stateChanged bool) *ContractInvokeSuccess {

	energyUsed := energyReserved - remaining
	transactionFee := c.params.EnergyCost(energyUsed)
	c.logger.Debug().Uint64("energy", uint64(energyUsed)).Str("fee", transactionFee.String()).
		Bool("state_changed", stateChanged).Msg("contract invoked")

	returnValue := resp.returnValue
	if returnValue == nil {
		returnValue = []byte{}
	}
	return &ContractInvokeSuccess{
		TraceElements:  trace,
		EnergyUsed:     energyUsed,
		TransactionFee: transactionFee,
		ReturnValue:    returnValue,
		StateChanged:   stateChanged,
		NewBalance:     resp.newBalance,
		Events:         eventsFromLogs(resp.logs),
	}
}

// invokeFailureKind is the error kind of a failed top level entrypoint.
func invokeFailureKind(resp invokeResponse, payload UpdateContractPayload) error {
	switch resp.failure {
	case contract.FailureNonExistentEntrypoint:
		return &EntrypointDoesNotExistError{ReceiveName: payload.ReceiveName}
	case contract.FailureMissingContract:
		return &ContractDoesNotExistError{Address: payload.Address}
	default:
		return &InvokeExecutionError{Failure: resp.executionFailure()}
	}
}

// feeOf returns the transaction fee of a result.
func feeOf(res *ContractInvokeSuccess, err error) types.Amount {
	if err == nil {
		return res.TransactionFee
	}
	var invokeErr *ContractInvokeError
	if errors.As(err, &invokeErr) {
		return invokeErr.TransactionFee
	}
	return 0
}
