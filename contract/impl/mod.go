// Package impl runs Wasm contract modules with wazero. Modules import their
// host functions from the "concordium" module and export init functions
// "init_<contract>" and receive functions "<contract>.<entrypoint>", all of
// type (amount i64) -> i32.
//
// Energy is metered per entry and per host function call, not per
// instruction.
package impl

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/logging"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// HostModule is the module name contracts import host functions from.
const HostModule = "concordium"

// Config configures the engine.
type Config struct {
	// MemoryLimitPages bounds the linear memory of a contract, in 64 KiB
	// pages.
	MemoryLimitPages uint32
	// CloseOnContextDone stops running contracts once the context of their
	// invocation is done.
	CloseOnContextDone bool
}

// DefaultConfig returns a 2 MiB memory limit and cancellable execution.
func DefaultConfig() Config {
	return Config{MemoryLimitPages: 32, CloseOnContextDone: true}
}

// Engine compiles and runs Wasm modules. It implements contract.Engine.
type Engine struct {
	runtime wazero.Runtime
	logger  zerolog.Logger
}

var _ contract.Engine = (*Engine)(nil)

// NewEngine returns an engine with the host functions instantiated.
func NewEngine(ctx context.Context, cfg Config) *Engine {
	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rcfg)

	builder := r.NewHostModuleBuilder(HostModule)
	for _, hf := range hostFunctions {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(hf.goFunc(), hf.params, hf.results).
			Export(hf.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		panic("host functions have unique names: " + err.Error())
	}

	return &Engine{
		runtime: r,
		logger:  logging.RootLogger.With().Str("engine", "wazero").Logger(),
	}
}

// Instantiate compiles source and checks that it only imports known host
// functions and that its entrypoints are well formed.
func (e *Engine) Instantiate(ctx context.Context, source []byte) (contract.Artifact, error) {
	compiled, err := e.runtime.CompileModule(ctx, source)
	if err != nil {
		return nil, xerrors.Errorf("failed to compile module: %v", err)
	}

	a, err := newArtifact(e, compiled)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	e.logger.Debug().Int("size", len(source)).Int("inits", len(a.exports.Inits)).
		Int("receives", len(a.exports.Receives)).Msg("module compiled")
	return a, nil
}

// Close releases every compiled module.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func newArtifact(e *Engine, compiled wazero.CompiledModule) (*artifact, error) {
	if len(compiled.ImportedMemories()) > 0 {
		return nil, xerrors.New("module must not import memory")
	}
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != HostModule {
			return nil, xerrors.Errorf("import %s.%s: unknown module", module, name)
		}
		hf, ok := hostFunctionsByName[name]
		if !ok {
			return nil, xerrors.Errorf("import %s.%s: unknown host function", module, name)
		}
		if !sameTypes(def.ParamTypes(), hf.params) || !sameTypes(def.ResultTypes(), hf.results) {
			return nil, xerrors.Errorf("import %s.%s: wrong type", module, name)
		}
	}

	a := &artifact{
		engine:   e,
		compiled: compiled,
		inits:    make(map[types.ContractName]bool),
		receives: make(map[types.ReceiveName]bool),
	}
	for name, def := range compiled.ExportedFunctions() {
		switch {
		case strings.HasPrefix(name, "init_"):
			cn, err := types.NewContractName(name)
			if err != nil {
				return nil, xerrors.Errorf("export %s: %v", name, err)
			}
			a.inits[cn] = true
			a.exports.Inits = append(a.exports.Inits, cn)
		case strings.Contains(name, "."):
			rn, err := types.NewReceiveName(name)
			if err != nil {
				return nil, xerrors.Errorf("export %s: %v", name, err)
			}
			a.receives[rn] = true
			a.exports.Receives = append(a.exports.Receives, rn)
		default:
			continue
		}
		if !sameTypes(def.ParamTypes(), entryParams) || !sameTypes(def.ResultTypes(), entryResults) {
			return nil, xerrors.Errorf("export %s: entrypoints must have type (i64) -> i32", name)
		}
	}

	for rn := range a.receives {
		if !a.inits[types.ContractName("init_"+rn.Contract())] {
			return nil, xerrors.Errorf("export %s: no init function for contract %q", rn, rn.Contract())
		}
	}

	sort.Slice(a.exports.Inits, func(i, j int) bool { return a.exports.Inits[i] < a.exports.Inits[j] })
	sort.Slice(a.exports.Receives, func(i, j int) bool { return a.exports.Receives[i] < a.exports.Receives[j] })
	return a, nil
}

var (
	entryParams  = []api.ValueType{api.ValueTypeI64}
	entryResults = []api.ValueType{api.ValueTypeI32}
)

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
