package chain

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/rs/zerolog"
	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

// invocationHandler executes an entrypoint together with every call it makes
// to other contracts. All of them spend energy from remaining and stage
// their effects in changeset.
type invocationHandler struct {
	chain     *Chain
	changeset *changeset
	remaining *types.Energy
	invoker   types.AccountAddress
	policies  []byte
	logger    zerolog.Logger
}

// invokeResponse is the result of one entrypoint.
type invokeResponse struct {
	success      bool
	failure      contract.FailureKind
	rejectReason int32
	returnValue  []byte
	trapError    error
	newBalance   types.Amount
	logs         [][]byte
}

func failedWith(kind contract.FailureKind) invokeResponse {
	return invokeResponse{failure: kind}
}

// executionFailure describes a failed response.
func (r invokeResponse) executionFailure() ExecutionFailure {
	return ExecutionFailure{
		Kind:         r.failure,
		RejectReason: r.rejectReason,
		ReturnValue:  r.returnValue,
		TrapError:    r.trapError,
	}
}

// tick charges energy, emptying the budget when it does not suffice.
func (h *invocationHandler) tick(cost types.Energy) error {
	if err := h.remaining.TickEnergy(cost); err != nil {
		*h.remaining = 0
		return err
	}
	return nil
}

// invokeEntrypoint runs one entrypoint of a contract on behalf of sender.
// Failures of the entrypoint are part of the response, the error is only
// set when the whole invocation must stop, i.e. when the energy runs out.
//
// Trace elements are appended to trace; the caller discards them when the
// response is a failure.
func (h *invocationHandler) invokeEntrypoint(ctx context.Context, sender types.Address,
	payload UpdateContractPayload, trace *[]ChainEvent) (invokeResponse, error) {

	inst, ok := h.chain.contracts[payload.Address]
	if !ok {
		return failedWith(contract.FailureMissingContract), nil
	}
	cc, _ := h.changeset.contract(payload.Address)
	mod, ok := h.chain.modules[cc.module]
	if !ok {
		panic("module of an existing contract is deployed")
	}
	if err := h.tick(fee.LookupModuleCost(mod.Size)); err != nil {
		return invokeResponse{}, err
	}

	if resp, ok := h.moveAmount(sender, payload.Address, payload.Amount); !ok {
		return resp, nil
	}

	name, ok := resolveEntrypoint(mod.Artifact, inst.ContractName, payload.ReceiveName)
	if !ok {
		return failedWith(contract.FailureNonExistentEntrypoint), nil
	}

	state, _ := h.changeset.state(payload.Address)
	rctx := contract.ReceiveContext{
		SlotTime:       h.chain.params.BlockTime,
		Invoker:        h.invoker,
		SelfAddress:    payload.Address,
		SelfBalance:    cc.balance,
		Sender:         sender,
		Owner:          inst.Owner,
		SenderPolicies: h.policies,
	}
	f := &frame{
		handler: h,
		address: payload.Address,
		trace:   trace,
		given:   types.ToInterpreterEnergy(*h.remaining),
	}
	inv := contract.ReceiveInvocation{
		Amount:      payload.Amount,
		ReceiveName: name,
		Entrypoint:  payload.ReceiveName.Entrypoint(),
		Parameter:   payload.Message,
		Energy:      f.given,
	}

	h.logger.Debug().Str("contract", payload.Address.String()).Str("entrypoint", string(name)).
		Str("sender", sender.String()).Str("amount", payload.Amount.String()).Msg("invoke entrypoint")

	res, err := mod.Artifact.Receive(ctx, rctx, inv, state, f)
	if err != nil {
		return invokeResponse{}, err
	}
	if res.Outcome == contract.OutOfEnergy {
		*h.remaining = 0
		return invokeResponse{}, ErrOutOfEnergy
	}
	if err := h.tick(types.InterpreterEnergyUsed(f.given, res.RemainingEnergy)); err != nil {
		return invokeResponse{}, err
	}

	switch res.Outcome {
	case contract.Success:
		*trace = append(*trace, Updated{
			Address:     payload.Address,
			Instigator:  sender,
			Amount:      payload.Amount,
			Message:     payload.Message,
			ReceiveName: payload.ReceiveName,
			Events:      eventsFromLogs(res.Logs),
		})
		return invokeResponse{
			success:     true,
			returnValue: res.ReturnValue,
			newBalance:  cc.balance,
			logs:        res.Logs,
		}, nil
	case contract.Reject:
		return invokeResponse{
			failure:      contract.FailureMessageFailed,
			rejectReason: res.RejectReason,
			returnValue:  res.ReturnValue,
		}, nil
	default:
		return invokeResponse{failure: contract.FailureTrap, trapError: res.TrapError}, nil
	}
}

// moveAmount stages the transfer of the invocation amount from sender to the
// invoked contract.
func (h *invocationHandler) moveAmount(sender types.Address, to types.ContractAddress, amount types.Amount) (invokeResponse, bool) {
	var err error
	if acc, ok := sender.Account(); ok {
		err = h.changeset.transferFromAccount(acc, to, amount)
	} else {
		from, _ := sender.Contract()
		err = h.changeset.transferFromContract(from, types.ContractAddr(to), amount)
	}
	switch {
	case err == nil:
		return invokeResponse{}, true
	case errors.Is(err, types.ErrInsufficientBalance), errors.Is(err, types.ErrBalanceOverflow):
		return failedWith(contract.FailureAmountTooLarge), false
	default:
		var missing *AccountDoesNotExistError
		if errors.As(err, &missing) {
			return failedWith(contract.FailureMissingAccount), false
		}
		return failedWith(contract.FailureMissingContract), false
	}
}

// resolveEntrypoint returns the receive function that handles name: name
// itself if exported, otherwise the fallback entrypoint of the contract.
func resolveEntrypoint(artifact contract.Artifact, contractName types.ContractName, name types.ReceiveName) (types.ReceiveName, bool) {
	if name.Contract() != contractName.Bare() {
		return "", false
	}
	if artifact.HasReceive(name) {
		return name, true
	}
	if fallback := name.Fallback(); artifact.HasReceive(fallback) {
		return fallback, true
	}
	return "", false
}

// frame is the Host of one running entrypoint.
type frame struct {
	handler *invocationHandler
	address types.ContractAddress
	trace   *[]ChainEvent
	// given is the interpreter energy the entrypoint last started or resumed
	// with.
	given types.InterpreterEnergy
}

var _ contract.Host = (*frame)(nil)

// Interrupt charges the energy spent by the interpreter up to the interrupt,
// handles the request and resumes the interpreter with what is left and the
// current balance of the contract.
func (f *frame) Interrupt(ctx context.Context, intr contract.Interrupt) (contract.InterruptResponse, error) {
	h := f.handler
	if err := h.tick(types.InterpreterEnergyUsed(f.given, intr.RemainingEnergy)); err != nil {
		return contract.InterruptResponse{}, err
	}

	resp, err := f.handle(ctx, intr)
	if err != nil {
		return contract.InterruptResponse{}, err
	}

	f.given = types.ToInterpreterEnergy(*h.remaining)
	resp.Energy = f.given
	cc, _ := h.changeset.contract(f.address)
	resp.NewBalance = cc.balance
	return resp, nil
}

func (f *frame) handle(ctx context.Context, intr contract.Interrupt) (contract.InterruptResponse, error) {
	h := f.handler
	h.logger.Debug().Str("contract", f.address.String()).Str("request", intr.Request.Name()).Msg("interrupt")

	switch req := intr.Request.(type) {
	case contract.Transfer:
		return f.transfer(req, intr.Logs)
	case contract.Call:
		return f.call(ctx, req, intr.Logs)
	case contract.Upgrade:
		return f.upgrade(req, intr.Logs)
	case contract.QueryAccountBalance:
		if err := h.tick(fee.QueryAccountBalanceCost); err != nil {
			return contract.InterruptResponse{}, err
		}
		ac, ok := h.changeset.account(req.Address)
		if !ok {
			return contract.Failed(contract.FailureMissingAccount), nil
		}
		return contract.Succeeded(contract.EncodeAccountBalance(ac.balance)), nil
	case contract.QueryContractBalance:
		if err := h.tick(fee.QueryContractBalanceCost); err != nil {
			return contract.InterruptResponse{}, err
		}
		cc, ok := h.changeset.contract(req.Address)
		if !ok {
			return contract.Failed(contract.FailureMissingContract), nil
		}
		return contract.Succeeded(contract.EncodeAmount(cc.balance)), nil
	case contract.QueryExchangeRates:
		if err := h.tick(fee.QueryExchangeRateCost); err != nil {
			return contract.InterruptResponse{}, err
		}
		params := h.chain.params
		return contract.Succeeded(contract.EncodeExchangeRates(params.EuroPerEnergy, params.MicroCCDPerEuro)), nil
	case contract.CheckAccountSignature:
		return f.checkSignature(req)
	case contract.QueryAccountKeys:
		acc, err := h.chain.accounts.Get(req.Address)
		if err != nil {
			if err := h.tick(fee.QueryAccountKeysBaseCost); err != nil {
				return contract.InterruptResponse{}, err
			}
			return contract.Failed(contract.FailureMissingAccount), nil
		}
		if err := h.tick(fee.QueryAccountKeysCost(len(acc.Keys.Keys))); err != nil {
			return contract.InterruptResponse{}, err
		}
		return contract.Succeeded(contract.EncodeAccountKeys(acc.Keys)), nil
	default:
		// Unknown requests trap the contract in the engine before reaching
		// the host, so this is a programming error.
		panic("unknown contract request " + intr.Request.Name())
	}
}

func (f *frame) interrupted(logs [][]byte) {
	*f.trace = append(*f.trace, Interrupted{Address: f.address, Events: eventsFromLogs(logs)})
}

func (f *frame) resumed(success bool) {
	*f.trace = append(*f.trace, Resumed{Address: f.address, Success: success})
}

func (f *frame) transfer(req contract.Transfer, logs [][]byte) (contract.InterruptResponse, error) {
	h := f.handler
	if err := h.tick(fee.SimpleTransferCost); err != nil {
		return contract.InterruptResponse{}, err
	}
	f.interrupted(logs)

	resp := contract.Succeeded(nil)
	err := h.changeset.transferFromContract(f.address, types.AccountAddr(req.To), req.Amount)
	switch {
	case err == nil:
		*f.trace = append(*f.trace, Transferred{From: f.address, Amount: req.Amount, To: req.To})
	case errors.Is(err, types.ErrInsufficientBalance), errors.Is(err, types.ErrBalanceOverflow):
		resp = contract.Failed(contract.FailureAmountTooLarge)
	default:
		resp = contract.Failed(contract.FailureMissingAccount)
	}
	f.resumed(resp.Success)
	return resp, nil
}

func (f *frame) call(ctx context.Context, req contract.Call, logs [][]byte) (contract.InterruptResponse, error) {
	h := f.handler
	f.interrupted(logs)

	target, ok := h.chain.contracts[req.To]
	if !ok {
		f.resumed(false)
		return contract.Failed(contract.FailureMissingContract), nil
	}
	name, err := types.ReceiveNameFor(target.ContractName.Bare(), req.Entrypoint)
	if err != nil {
		f.resumed(false)
		return contract.Failed(contract.FailureNonExistentEntrypoint), nil
	}

	before := h.changeset.stateVersion(f.address)
	h.changeset.checkpoint()

	var nested []ChainEvent
	res, err := h.invokeEntrypoint(ctx, types.ContractAddr(f.address), UpdateContractPayload{
		Amount:      req.Amount,
		Address:     req.To,
		ReceiveName: name,
		Message:     req.Parameter,
	}, &nested)
	if err != nil {
		return contract.InterruptResponse{}, err
	}

	if !res.success {
		h.changeset.rollback()
		f.resumed(false)
		resp := contract.Failed(res.failure)
		resp.Data = res.returnValue
		resp.RejectReason = res.rejectReason
		return resp, nil
	}

	h.changeset.commit()
	*f.trace = append(*f.trace, nested...)
	f.resumed(true)
	resp := contract.Succeeded(res.returnValue)
	resp.StateModified = h.changeset.stateVersion(f.address) != before
	return resp, nil
}

func (f *frame) upgrade(req contract.Upgrade, logs [][]byte) (contract.InterruptResponse, error) {
	h := f.handler
	f.interrupted(logs)

	mod, ok := h.chain.modules[req.Module]
	if !ok {
		f.resumed(false)
		return contract.Failed(contract.FailureMissingModule), nil
	}
	if err := h.tick(fee.LookupModuleCost(mod.Size)); err != nil {
		return contract.InterruptResponse{}, err
	}
	inst := h.chain.contracts[f.address]
	if !mod.Artifact.HasInit(inst.ContractName) {
		f.resumed(false)
		return contract.Failed(contract.FailureMissingInit), nil
	}

	cc, _ := h.changeset.contract(f.address)
	from := cc.module
	cc.module = req.Module
	*f.trace = append(*f.trace, Upgraded{Address: f.address, From: from, To: req.Module})
	f.resumed(true)
	return contract.Succeeded(nil), nil
}

// checkSignature verifies that every signature is valid for the key at its
// index and that at least threshold distinct keys signed.
func (f *frame) checkSignature(req contract.CheckAccountSignature) (contract.InterruptResponse, error) {
	h := f.handler
	if err := h.tick(fee.CheckAccountSignatureCost(len(req.Signatures))); err != nil {
		return contract.InterruptResponse{}, err
	}
	acc, err := h.chain.accounts.Get(req.Address)
	if err != nil {
		return contract.Failed(contract.FailureMissingAccount), nil
	}

	keys := acc.Keys
	signed := make(map[uint8]bool)
	for _, sig := range req.Signatures {
		if int(sig.KeyIndex) >= len(keys.Keys) || len(sig.Signature) != ed25519.SignatureSize {
			return contract.Failed(contract.FailureSignatureDataMalformed), nil
		}
		if !ed25519.Verify(keys.Keys[sig.KeyIndex], req.Message, sig.Signature) {
			return contract.Failed(contract.FailureSignatureCheckFailed), nil
		}
		signed[sig.KeyIndex] = true
	}
	if len(signed) == 0 || len(signed) < int(keys.Threshold) {
		return contract.Failed(contract.FailureSignatureCheckFailed), nil
	}
	return contract.Succeeded(nil), nil
}
