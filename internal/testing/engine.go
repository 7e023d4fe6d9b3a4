package testing

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.dedis.ch/contractsim/blockchain/module"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

// sourceMagic starts the source of every scripted module, so that it can
// never be mistaken for Wasm.
var sourceMagic = []byte("\x00zsim")

// InitFunc is the code of a scripted init function.
type InitFunc func(c *Init) Result

// ReceiveFunc is the code of a scripted receive function.
type ReceiveFunc func(c *Receive) Result

// Module is a contract module whose functions are Go closures.
type Module struct {
	// Name makes the module source, and thus its reference, unique.
	Name string
	// Inits by chain name, e.g. "init_counter".
	Inits map[types.ContractName]InitFunc
	// Receives by chain name, e.g. "counter.inc".
	Receives map[types.ReceiveName]ReceiveFunc
	// BaseCost is the interpreter energy every function call uses.
	BaseCost types.InterpreterEnergy
	// Padding is added to the source to make the module larger.
	Padding int
}

// Source returns the module source the engine recognizes.
func (m Module) Source() []byte {
	src := append(append([]byte{}, sourceMagic...), m.Name...)
	return append(src, make([]byte, m.Padding)...)
}

// Wasm returns the module as a version 1 module ready to deploy.
func (m Module) Wasm() module.WasmModule {
	return module.NewV1(m.Source())
}

// Result ends a scripted function.
type Result struct {
	outcome      contract.Outcome
	rejectReason int32
	returnValue  []byte
	trapErr      error
}

// Ok ends successfully with an optional return value.
func Ok(returnValue ...byte) Result {
	return Result{outcome: contract.Success, returnValue: returnValue}
}

// RejectWith ends with a reject. reason must be negative.
func RejectWith(reason int32, returnValue ...byte) Result {
	return Result{outcome: contract.Reject, rejectReason: reason, returnValue: returnValue}
}

// TrapWith ends with a trap.
func TrapWith(err error) Result {
	return Result{outcome: contract.Trap, trapErr: err}
}

// Engine runs scripted modules. It implements contract.Engine.
type Engine struct {
	modules map[string]Module
	closed  bool
}

var _ contract.Engine = (*Engine)(nil)

// NewEngine returns an engine without modules.
func NewEngine() *Engine {
	return &Engine{modules: make(map[string]Module)}
}

// Register makes m known to the engine and returns it as a deployable
// module.
func (e *Engine) Register(m Module) module.WasmModule {
	e.modules[string(m.Source())] = m
	return m.Wasm()
}

func (e *Engine) Instantiate(_ context.Context, source []byte) (contract.Artifact, error) {
	if !bytes.HasPrefix(source, sourceMagic) {
		return nil, fmt.Errorf("not a scripted module")
	}
	m, ok := e.modules[string(source)]
	if !ok {
		return nil, fmt.Errorf("unknown scripted module %q", source[len(sourceMagic):])
	}
	return &artifact{module: m}, nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	return e.closed
}

func (e *Engine) Close(context.Context) error {
	e.closed = true
	return nil
}

type artifact struct {
	module Module
}

func (a *artifact) Exports() contract.Exports {
	var exports contract.Exports
	for name := range a.module.Inits {
		exports.Inits = append(exports.Inits, name)
	}
	for name := range a.module.Receives {
		exports.Receives = append(exports.Receives, name)
	}
	sort.Slice(exports.Inits, func(i, j int) bool { return exports.Inits[i] < exports.Inits[j] })
	sort.Slice(exports.Receives, func(i, j int) bool { return exports.Receives[i] < exports.Receives[j] })
	return exports
}

func (a *artifact) HasInit(name types.ContractName) bool {
	_, ok := a.module.Inits[name]
	return ok
}

func (a *artifact) HasReceive(name types.ReceiveName) bool {
	_, ok := a.module.Receives[name]
	return ok
}

// outOfEnergy and aborted unwind a scripted function.
type outOfEnergy struct{}

type aborted struct {
	err error
}

// meter is the energy accounting shared by scripted functions.
type meter struct {
	energy types.InterpreterEnergy
	logs   [][]byte
}

// Use spends interpreter energy, ending the function with OutOfEnergy when
// there is not enough left.
func (m *meter) Use(e types.InterpreterEnergy) {
	if err := m.energy.TickEnergy(e); err != nil {
		panic(outOfEnergy{})
	}
}

// Log records an event.
func (m *meter) Log(event []byte) {
	m.logs = append(m.logs, append([]byte{}, event...))
}

// Init is what a scripted init function can see and do.
type Init struct {
	meter
	Ctx   contract.InitContext
	Inv   contract.InitInvocation
	State *storage.MutableState
}

// Receive is what a scripted receive function can see and do.
type Receive struct {
	meter
	Ctx   contract.ReceiveContext
	Inv   contract.ReceiveInvocation
	State *storage.MutableState

	ctx  context.Context
	host contract.Host
}

// Interrupt hands req to the chain and returns its response. Ctx.SelfBalance
// is updated to the balance after the request.
func (r *Receive) Interrupt(req contract.Request) contract.InterruptResponse {
	resp, err := r.host.Interrupt(r.ctx, contract.Interrupt{
		Request:         req,
		RemainingEnergy: r.energy,
		Logs:            r.logs,
	})
	if err != nil {
		panic(aborted{err: err})
	}
	r.logs = nil
	r.energy = resp.Energy
	r.Ctx.SelfBalance = resp.NewBalance
	return resp
}

// run executes fn, turning the panics of Use and Interrupt into outcomes.
func run(m *meter, base types.InterpreterEnergy, fn func() Result) (res Result, err error) {
	defer func() {
		r := recover()
		switch v := r.(type) {
		case nil:
		case outOfEnergy:
			res = Result{outcome: contract.OutOfEnergy}
		case aborted:
			err = v.err
		default:
			res = TrapWith(fmt.Errorf("panic: %v", v))
		}
	}()
	m.Use(base)
	return fn(), nil
}

func (a *artifact) Init(_ context.Context, ictx contract.InitContext, inv contract.InitInvocation,
	state *storage.MutableState) (contract.InitResult, error) {

	fn, ok := a.module.Inits[inv.InitName]
	if !ok {
		return contract.InitResult{}, fmt.Errorf("module %s does not export %s", a.module.Name, inv.InitName)
	}
	c := &Init{meter: meter{energy: inv.Energy}, Ctx: ictx, Inv: inv, State: state}
	res, err := run(&c.meter, a.module.BaseCost, func() Result { return fn(c) })
	if err != nil {
		return contract.InitResult{}, err
	}
	out := contract.InitResult{
		Outcome:         res.outcome,
		RejectReason:    res.rejectReason,
		ReturnValue:     res.returnValue,
		TrapError:       res.trapErr,
		RemainingEnergy: c.energy,
	}
	if res.outcome == contract.Success {
		out.Logs = c.logs
	}
	return out, nil
}

func (a *artifact) Receive(ctx context.Context, rctx contract.ReceiveContext, inv contract.ReceiveInvocation,
	state *storage.MutableState, host contract.Host) (contract.ReceiveResult, error) {

	fn, ok := a.module.Receives[inv.ReceiveName]
	if !ok {
		return contract.ReceiveResult{}, fmt.Errorf("module %s does not export %s", a.module.Name, inv.ReceiveName)
	}
	c := &Receive{meter: meter{energy: inv.Energy}, Ctx: rctx, Inv: inv, State: state, ctx: ctx, host: host}
	res, err := run(&c.meter, a.module.BaseCost, func() Result { return fn(c) })
	if err != nil {
		return contract.ReceiveResult{}, err
	}
	out := contract.ReceiveResult{
		Outcome:         res.outcome,
		RejectReason:    res.rejectReason,
		ReturnValue:     res.returnValue,
		TrapError:       res.trapErr,
		RemainingEnergy: c.energy,
	}
	if res.outcome == contract.Success {
		out.Logs = c.logs
	}
	return out, nil
}
