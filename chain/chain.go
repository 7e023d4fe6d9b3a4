// Package chain simulates the smart contract layer of a chain: accounts,
// deployed modules and contract instances, and the energy accounting of
// deploying, initializing and updating contracts.
//
// A Chain is not safe for concurrent use.
package chain

import (
	"context"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/contractsim/blockchain/account"
	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/contract/impl"
	"go.dedis.ch/contractsim/logging"
	"go.dedis.ch/contractsim/types"
)

var (
	// DefaultMicroCCDPerEuro together with DefaultEuroPerEnergy makes one
	// energy cost one microCCD.
	DefaultMicroCCDPerEuro = types.NewExchangeRateUnchecked(50000, 1)
	DefaultEuroPerEnergy   = types.NewExchangeRateUnchecked(1, 50000)
)

// Parameters of the chain that contracts and fees depend on.
type Parameters struct {
	BlockTime       types.Timestamp
	MicroCCDPerEuro types.ExchangeRate
	EuroPerEnergy   types.ExchangeRate
}

// NewParameters validates the exchange rates and returns the parameters.
func NewParameters(blockTime types.Timestamp, microCCDPerEuro, euroPerEnergy types.ExchangeRate) (Parameters, error) {
	if err := fee.CheckExchangeRates(euroPerEnergy, microCCDPerEuro); err != nil {
		return Parameters{}, err
	}
	return Parameters{
		BlockTime:       blockTime,
		MicroCCDPerEuro: microCCDPerEuro,
		EuroPerEnergy:   euroPerEnergy,
	}, nil
}

// EnergyCost converts energy into microCCD at the current rates.
func (p Parameters) EnergyCost(energy types.Energy) types.Amount {
	return fee.EnergyToAmount(energy, p.EuroPerEnergy, p.MicroCCDPerEuro)
}

// ContractModule is a deployed module.
type ContractModule struct {
	// Size of the module source, used to bill lookups.
	Size     uint64
	Artifact contract.Artifact
}

// Contract is a contract instance.
type Contract struct {
	ModuleReference types.ModuleReference
	ContractName    types.ContractName
	State           *storage.PersistentState
	Owner           types.AccountAddress
	SelfBalance     types.Amount
}

// Chain is the simulated chain.
type Chain struct {
	params            Parameters
	accounts          *account.Ledger
	modules           map[types.ModuleReference]*ContractModule
	contracts         map[types.ContractAddress]*Contract
	nextContractIndex uint64

	engine contract.Engine
	logger zerolog.Logger
}

type config struct {
	blockTime       types.Timestamp
	microCCDPerEuro types.ExchangeRate
	euroPerEnergy   types.ExchangeRate
	engine          contract.Engine
	logger          *zerolog.Logger
}

// Option configures a new chain.
type Option func(*config)

// WithBlockTime sets the block time seen by contracts.
func WithBlockTime(t types.Timestamp) Option {
	return func(c *config) {
		c.blockTime = t
	}
}

// WithExchangeRates sets both exchange rates.
func WithExchangeRates(microCCDPerEuro, euroPerEnergy types.ExchangeRate) Option {
	return func(c *config) {
		c.microCCDPerEuro = microCCDPerEuro
		c.euroPerEnergy = euroPerEnergy
	}
}

// WithEngine sets the engine executing contract code. By default the Wasm
// engine of contract/impl is used.
func WithEngine(e contract.Engine) Option {
	return func(c *config) {
		c.engine = e
	}
}

// WithLogger sets the logger of the chain.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = &l
	}
}

// NewWithOptions creates a chain without accounts, modules or contracts.
func NewWithOptions(opts ...Option) (*Chain, error) {
	conf := config{
		microCCDPerEuro: DefaultMicroCCDPerEuro,
		euroPerEnergy:   DefaultEuroPerEnergy,
	}
	for _, opt := range opts {
		opt(&conf)
	}

	params, err := NewParameters(conf.blockTime, conf.microCCDPerEuro, conf.euroPerEnergy)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		params:    params,
		accounts:  account.NewLedger(),
		modules:   make(map[types.ModuleReference]*ContractModule),
		contracts: make(map[types.ContractAddress]*Contract),
		engine:    conf.engine,
	}
	if c.engine == nil {
		c.engine = impl.NewEngine(context.Background(), impl.DefaultConfig())
	}
	if conf.logger != nil {
		c.logger = *conf.logger
	} else {
		c.logger = logging.RootLogger.With().Str("Chain", xid.New().String()).Logger()
	}
	return c, nil
}

// New creates a chain with block time 0 and the default exchange rates.
func New() *Chain {
	c, err := NewWithOptions()
	if err != nil {
		panic("default exchange rates are valid: " + err.Error())
	}
	return c
}

// NewWithTime creates a chain with the given block time and the default
// exchange rates.
func NewWithTime(blockTime types.Timestamp) *Chain {
	c, err := NewWithOptions(WithBlockTime(blockTime))
	if err != nil {
		panic("default exchange rates are valid: " + err.Error())
	}
	return c
}

// NewWithTimeAndRates creates a chain with the given block time and exchange
// rates. It fails with fee.ErrExchangeRate if one energy would cost too much.
func NewWithTimeAndRates(blockTime types.Timestamp, microCCDPerEuro, euroPerEnergy types.ExchangeRate) (*Chain, error) {
	return NewWithOptions(WithBlockTime(blockTime), WithExchangeRates(microCCDPerEuro, euroPerEnergy))
}

// Close releases the resources of the contract engine.
func (c *Chain) Close(ctx context.Context) error {
	return c.engine.Close(ctx)
}

// CalculateEnergyCost converts energy into microCCD at the current rates.
func (c *Chain) CalculateEnergyCost(energy types.Energy) types.Amount {
	return c.params.EnergyCost(energy)
}

// SetExchangeRates changes the exchange rates. The rates are left unchanged
// when they fail validation.
func (c *Chain) SetExchangeRates(microCCDPerEuro, euroPerEnergy types.ExchangeRate) error {
	params, err := NewParameters(c.params.BlockTime, microCCDPerEuro, euroPerEnergy)
	if err != nil {
		return err
	}
	c.params = params
	return nil
}

// MicroCCDPerEuro returns the current microCCD per euro rate.
func (c *Chain) MicroCCDPerEuro() types.ExchangeRate {
	return c.params.MicroCCDPerEuro
}

// EuroPerEnergy returns the current euro per energy rate.
func (c *Chain) EuroPerEnergy() types.ExchangeRate {
	return c.params.EuroPerEnergy
}

// BlockTime returns the block time seen by contracts.
func (c *Chain) BlockTime() types.Timestamp {
	return c.params.BlockTime
}

// SetBlockTime changes the block time seen by contracts.
func (c *Chain) SetBlockTime(t types.Timestamp) {
	c.params.BlockTime = t
}

// CreateAccount adds an account, replacing and returning any account that
// is an alias of it.
func (c *Chain) CreateAccount(acc *account.Account) *account.Account {
	prev := c.accounts.Create(acc)
	c.logger.Debug().Str("account", acc.Address.String()).Str("balance", acc.Balance.String()).
		Bool("replaced", prev != nil).Msg("create account")
	return prev
}

// Account returns a copy of an account.
func (c *Chain) Account(addr types.AccountAddress) (*account.Account, error) {
	acc, ok := c.accounts.Lookup(addr)
	if !ok {
		return nil, &AccountDoesNotExistError{Address: addr}
	}
	return acc, nil
}

// AccountExists reports whether an account or one of its aliases exists.
func (c *Chain) AccountExists(addr types.AccountAddress) bool {
	return c.accounts.Exists(addr)
}

// AccountBalance returns the balance of an account.
func (c *Chain) AccountBalance(addr types.AccountAddress) (types.AccountBalance, bool) {
	return c.accounts.Balance(addr)
}

// AccountBalanceAvailable returns the part of the balance of an account that
// is neither staked nor locked.
func (c *Chain) AccountBalanceAvailable(addr types.AccountAddress) (types.Amount, bool) {
	return c.accounts.BalanceAvailable(addr)
}

// Accounts returns the addresses of all accounts.
func (c *Chain) Accounts() []types.AccountAddress {
	return c.accounts.Addresses()
}

// GetModule returns a deployed module.
func (c *Chain) GetModule(ref types.ModuleReference) (*ContractModule, bool) {
	m, ok := c.modules[ref]
	return m, ok
}

// GetContract returns a copy of a contract instance.
func (c *Chain) GetContract(addr types.ContractAddress) (*Contract, bool) {
	inst, ok := c.contracts[addr]
	if !ok {
		return nil, false
	}
	cp := *inst
	return &cp, true
}

// ContractExists reports whether a contract instance exists.
func (c *Chain) ContractExists(addr types.ContractAddress) bool {
	_, ok := c.contracts[addr]
	return ok
}

// ContractBalance returns the balance of a contract instance.
func (c *Chain) ContractBalance(addr types.ContractAddress) (types.Amount, bool) {
	inst, ok := c.contracts[addr]
	if !ok {
		return 0, false
	}
	return inst.SelfBalance, true
}

// ContractStateLookup reads one entry of the state of a contract instance.
func (c *Chain) ContractStateLookup(addr types.ContractAddress, key []byte) ([]byte, bool) {
	inst, ok := c.contracts[addr]
	if !ok {
		return nil, false
	}
	return inst.State.Lookup(key)
}

func (c *Chain) addressExists(addr types.Address) bool {
	if acc, ok := addr.Account(); ok {
		return c.AccountExists(acc)
	}
	ca, _ := addr.Contract()
	return c.ContractExists(ca)
}

func (c *Chain) createContractAddress() types.ContractAddress {
	index := c.nextContractIndex
	c.nextContractIndex++
	return types.NewContractAddress(index, 0)
}
