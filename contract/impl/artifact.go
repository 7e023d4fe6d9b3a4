package impl

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// entryCost is charged for every entrypoint execution, before the module is
// instantiated.
const entryCost types.InterpreterEnergy = 1000

// artifact is a compiled module. Every entrypoint execution runs in a fresh
// instance, so nested calls into the same module do not share memory.
type artifact struct {
	engine   *Engine
	compiled wazero.CompiledModule
	exports  contract.Exports
	inits    map[types.ContractName]bool
	receives map[types.ReceiveName]bool
}

var _ contract.Artifact = (*artifact)(nil)

func (a *artifact) Exports() contract.Exports {
	return contract.Exports{
		Inits:    append([]types.ContractName{}, a.exports.Inits...),
		Receives: append([]types.ReceiveName{}, a.exports.Receives...),
	}
}

func (a *artifact) HasInit(name types.ContractName) bool {
	return a.inits[name]
}

func (a *artifact) HasReceive(name types.ReceiveName) bool {
	return a.receives[name]
}

func (a *artifact) Init(ctx context.Context, ictx contract.InitContext, inv contract.InitInvocation,
	state *storage.MutableState) (contract.InitResult, error) {

	if !a.HasInit(inv.InitName) {
		return contract.InitResult{}, xerrors.Errorf("module does not export %s", inv.InitName)
	}
	x := &execution{
		kind:     initEntry,
		energy:   inv.Energy,
		params:   [][]byte{inv.Parameter},
		policies: ictx.SenderPolicies,
		slotTime: ictx.SlotTime,
		state:    state,
		origin:   ictx.InitOrigin,
	}
	res, err := a.run(ctx, x, string(inv.InitName), inv.Amount)
	if err != nil {
		return contract.InitResult{}, err
	}
	out := contract.InitResult{
		Outcome:         res.outcome,
		RejectReason:    res.rejectReason,
		TrapError:       res.trapErr,
		RemainingEnergy: x.energy,
	}
	switch res.outcome {
	case contract.Success:
		out.Logs = x.logs
		out.ReturnValue = x.output
	case contract.Reject:
		out.ReturnValue = x.output
	}
	return out, nil
}

func (a *artifact) Receive(ctx context.Context, rctx contract.ReceiveContext, inv contract.ReceiveInvocation,
	state *storage.MutableState, host contract.Host) (contract.ReceiveResult, error) {

	if !a.HasReceive(inv.ReceiveName) {
		return contract.ReceiveResult{}, xerrors.Errorf("module does not export %s", inv.ReceiveName)
	}
	x := &execution{
		kind:       receiveEntry,
		energy:     inv.Energy,
		params:     [][]byte{inv.Parameter},
		policies:   rctx.SenderPolicies,
		slotTime:   rctx.SlotTime,
		state:      state,
		receive:    rctx,
		entrypoint: inv.Entrypoint,
		host:       host,
	}
	res, err := a.run(ctx, x, string(inv.ReceiveName), inv.Amount)
	if err != nil {
		return contract.ReceiveResult{}, err
	}
	out := contract.ReceiveResult{
		Outcome:         res.outcome,
		RejectReason:    res.rejectReason,
		TrapError:       res.trapErr,
		RemainingEnergy: x.energy,
	}
	switch res.outcome {
	case contract.Success:
		out.Logs = x.logs
		out.ReturnValue = x.output
	case contract.Reject:
		out.ReturnValue = x.output
	}
	return out, nil
}

type entryResult struct {
	outcome      contract.Outcome
	rejectReason int32
	trapErr      error
}

// run executes the export in a fresh instance. The error is only set when
// the host aborted the execution or the context is done.
func (a *artifact) run(ctx context.Context, x *execution, export string, amount types.Amount) (entryResult, error) {
	if err := x.energy.TickEnergy(entryCost); err != nil {
		return entryResult{outcome: contract.OutOfEnergy}, nil
	}

	mod, err := a.engine.runtime.InstantiateModule(ctx, a.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entryResult{}, ctxErr
		}
		return entryResult{outcome: contract.Trap, trapErr: err}, nil
	}
	defer mod.Close(context.Background())

	results, err := mod.ExportedFunction(export).Call(withExecution(ctx, x), uint64(amount))
	switch {
	case x.abort != nil:
		return entryResult{}, x.abort
	case x.outOfEnergy:
		x.energy = 0
		return entryResult{outcome: contract.OutOfEnergy}, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entryResult{}, ctxErr
		}
		return entryResult{outcome: contract.Trap, trapErr: err}, nil
	}

	code := api.DecodeI32(results[0])
	switch {
	case code == 0:
		return entryResult{outcome: contract.Success}, nil
	case code < 0:
		return entryResult{outcome: contract.Reject, rejectReason: code}, nil
	default:
		return entryResult{outcome: contract.Trap, trapErr: xerrors.Errorf("%s returned %d", export, code)}, nil
	}
}
