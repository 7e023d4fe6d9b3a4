package scenario

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/contractsim/blockchain/account"
	"go.dedis.ch/contractsim/blockchain/module"
	"go.dedis.ch/contractsim/chain"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/logging"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// Options configure a run.
type Options struct {
	// Engine executes contracts. The chain creates a wazero engine if nil,
	// and closes it at the end of the run.
	Engine contract.Engine
	Logger *zerolog.Logger
}

// StepReport is the outcome of a step.
type StepReport struct {
	Name      string
	Kind      string
	Succeeded bool
	// Error is the error of a failed step.
	Error          string
	EnergyUsed     types.Energy
	TransactionFee types.Amount
	ReturnValue    []byte
	// Passed reports whether the outcome matched the expectations, and
	// Mismatch says how it did not.
	Passed   bool
	Mismatch string
}

// Report is the outcome of a run.
type Report struct {
	RunID xid.ID
	Steps []StepReport
}

// Failed returns the number of steps whose expectations were not met.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Passed {
			n++
		}
	}
	return n
}

// Write prints the report as a table.
func (r *Report) Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run %s\n", r.RunID)
	fmt.Fprintln(w, "STEP\tKIND\tOUTCOME\tENERGY\tFEE\tRESULT")
	for _, s := range r.Steps {
		outcome := "success"
		if !s.Succeeded {
			outcome = "failure: " + s.Error
		}
		result := "ok"
		if !s.Passed {
			result = "FAIL " + s.Mismatch
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Name, s.Kind, outcome, s.EnergyUsed, s.TransactionFee, result)
	}
	fmt.Fprintf(w, "%d of %d steps failed\n", r.Failed(), len(r.Steps))
	return w.Flush()
}

// runner holds what earlier steps created.
type runner struct {
	doc       *Document
	chain     *chain.Chain
	logger    zerolog.Logger
	modules   map[string]types.ModuleReference
	contracts map[string]types.ContractAddress
}

// Run executes doc against a fresh chain. Failing steps are recorded in the
// report; the error is only set when the scenario cannot be carried out,
// for example because a module file is missing or refers to a step that
// failed.
func Run(ctx context.Context, doc *Document, opts Options) (*Report, error) {
	report := &Report{RunID: xid.New()}

	logger := logging.RootLogger.With().Str("run", report.RunID.String()).Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	chainOpts := []chain.Option{
		chain.WithBlockTime(types.TimestampFromMillis(doc.BlockTime)),
		chain.WithLogger(logger),
	}
	if rates := doc.ExchangeRates; rates != nil {
		microCCDPerEuro, err := rates.MicroCCDPerEuro.exchangeRate()
		if err != nil {
			return nil, xerrors.Errorf("micro_ccd_per_euro: %w", err)
		}
		euroPerEnergy, err := rates.EuroPerEnergy.exchangeRate()
		if err != nil {
			return nil, xerrors.Errorf("euro_per_energy: %w", err)
		}
		chainOpts = append(chainOpts, chain.WithExchangeRates(microCCDPerEuro, euroPerEnergy))
	}
	if opts.Engine != nil {
		chainOpts = append(chainOpts, chain.WithEngine(opts.Engine))
	}
	c, err := chain.NewWithOptions(chainOpts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create chain: %w", err)
	}
	if opts.Engine == nil {
		defer c.Close(context.Background())
	}

	r := &runner{
		doc:       doc,
		chain:     c,
		logger:    logger,
		modules:   make(map[string]types.ModuleReference),
		contracts: make(map[string]types.ContractAddress),
	}
	if err := r.createAccounts(); err != nil {
		return nil, err
	}

	for _, step := range doc.Steps {
		sr, err := r.step(ctx, step)
		if err != nil {
			return report, xerrors.Errorf("step %s: %w", step.Name, err)
		}
		expect(step, &sr)
		report.Steps = append(report.Steps, sr)

		r.logger.Info().Str("step", step.Name).Str("kind", step.Kind).Bool("succeeded", sr.Succeeded).
			Bool("passed", sr.Passed).Uint64("energy", uint64(sr.EnergyUsed)).Msg("step done")
	}
	return report, nil
}

func (r *runner) createAccounts() error {
	for _, a := range r.doc.Accounts {
		addr, err := parseAccount(a.Address)
		if err != nil {
			return err
		}
		balance, err := types.NewAccountBalance(types.Amount(a.Balance), types.Amount(a.Staked), types.Amount(a.Locked))
		if err != nil {
			return xerrors.Errorf("account %s: %w", addr, err)
		}
		keys, err := parseKeys(a.Keys)
		if err != nil {
			return xerrors.Errorf("account %s: %w", addr, err)
		}
		b := account.NewAccountBuilder(addr).WithAccountBalance(balance)
		if len(keys) > 0 {
			threshold := a.Threshold
			if threshold == 0 {
				threshold = 1
			}
			b = b.WithKeys(threshold, keys...)
		}
		r.chain.CreateAccount(b.Build())
	}
	return nil
}

func (r *runner) step(ctx context.Context, s Step) (StepReport, error) {
	sr := StepReport{Name: s.Name, Kind: s.Kind}

	if s.Kind == KindBlockTime {
		r.chain.SetBlockTime(types.TimestampFromMillis(s.Time))
		sr.Succeeded = true
		return sr, nil
	}

	sender, err := parseAccount(s.Sender)
	if err != nil {
		return sr, err
	}
	numKeys := s.Signers
	if numKeys == 0 {
		numKeys = 1
	}
	signer, err := types.SignerWithKeys(numKeys)
	if err != nil {
		return sr, err
	}
	param, err := parseHex(s.Param)
	if err != nil {
		return sr, err
	}

	switch s.Kind {
	case KindDeploy:
		m, err := r.loadModule(s)
		if err != nil {
			return sr, err
		}
		res, err := r.chain.ModuleDeployV1(ctx, signer, sender, m)
		if err != nil {
			var deployErr *chain.ModuleDeployError
			if errors.As(err, &deployErr) {
				sr.EnergyUsed, sr.TransactionFee = deployErr.EnergyUsed, deployErr.TransactionFee
			}
			sr.Error = err.Error()
			return sr, nil
		}
		r.modules[s.Name] = res.ModuleReference
		sr.Succeeded = true
		sr.EnergyUsed, sr.TransactionFee = res.EnergyUsed, res.TransactionFee

	case KindInit:
		ref, ok := r.modules[s.Module]
		if !ok {
			return sr, xerrors.Errorf("deploy step %s failed", s.Module)
		}
		name, err := types.ContractNameFor(s.Contract)
		if err != nil {
			return sr, err
		}
		res, err := r.chain.ContractInit(ctx, signer, sender, types.Energy(s.Energy), chain.InitContractPayload{
			Amount:   types.Amount(s.Amount),
			ModRef:   ref,
			InitName: name,
			Param:    param,
		})
		if err != nil {
			var initErr *chain.ContractInitError
			if errors.As(err, &initErr) {
				sr.EnergyUsed, sr.TransactionFee = initErr.EnergyUsed, initErr.TransactionFee
			}
			sr.Error = err.Error()
			return sr, nil
		}
		r.contracts[s.Name] = res.ContractAddress
		sr.Succeeded = true
		sr.EnergyUsed, sr.TransactionFee = res.EnergyUsed, res.TransactionFee

	case KindUpdate, KindInvoke:
		addr, ok := r.contracts[s.Contract]
		if !ok {
			return sr, xerrors.Errorf("init step %s failed", s.Contract)
		}
		from := types.AccountAddr(sender)
		if s.SenderContract != "" {
			senderAddr, ok := r.contracts[s.SenderContract]
			if !ok {
				return sr, xerrors.Errorf("init step %s failed", s.SenderContract)
			}
			from = types.ContractAddr(senderAddr)
		}
		rn, err := types.NewReceiveName(s.ReceiveName)
		if err != nil {
			return sr, err
		}
		payload := chain.UpdateContractPayload{
			Amount:      types.Amount(s.Amount),
			Address:     addr,
			ReceiveName: rn,
			Message:     param,
		}

		var res *chain.ContractInvokeSuccess
		if s.Kind == KindUpdate {
			res, err = r.chain.ContractUpdate(ctx, signer, sender, from, types.Energy(s.Energy), payload)
		} else {
			res, err = r.chain.ContractInvoke(ctx, sender, from, types.Energy(s.Energy), payload)
		}
		if err != nil {
			var invokeErr *chain.ContractInvokeError
			if errors.As(err, &invokeErr) {
				sr.EnergyUsed, sr.TransactionFee = invokeErr.EnergyUsed, invokeErr.TransactionFee
			}
			sr.Error = err.Error()
			return sr, nil
		}
		sr.Succeeded = true
		sr.EnergyUsed, sr.TransactionFee = res.EnergyUsed, res.TransactionFee
		sr.ReturnValue = res.ReturnValue
	}
	return sr, nil
}

func (r *runner) loadModule(s Step) (module.WasmModule, error) {
	path := r.doc.modulePath(s.Module)
	if s.Raw {
		return module.LoadV1Raw(path)
	}
	return module.LoadV1(path)
}

// expect compares the outcome of a step with its expectations.
func expect(s Step, sr *StepReport) {
	wantSuccess := s.Expect != ExpectFailure
	switch {
	case sr.Succeeded != wantSuccess:
		if wantSuccess {
			sr.Mismatch = "expected success"
		} else {
			sr.Mismatch = "expected failure"
		}
	case s.ExpectError != "" && !strings.Contains(sr.Error, s.ExpectError):
		sr.Mismatch = fmt.Sprintf("expected error containing %q", s.ExpectError)
	case s.ExpectReturn != nil && hex.EncodeToString(sr.ReturnValue) != *s.ExpectReturn:
		sr.Mismatch = fmt.Sprintf("expected return value %s, got %x", *s.ExpectReturn, sr.ReturnValue)
	default:
		sr.Passed = true
	}
}
