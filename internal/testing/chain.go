package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/contractsim/blockchain/account"
	"go.dedis.ch/contractsim/chain"
	"go.dedis.ch/contractsim/types"
)

type configTemplate struct {
	blockTime       types.Timestamp
	microCCDPerEuro types.ExchangeRate
	euroPerEnergy   types.ExchangeRate
	accounts        []*account.Account
	engine          *Engine
}

func newConfigTemplate() configTemplate {
	return configTemplate{
		microCCDPerEuro: chain.DefaultMicroCCDPerEuro,
		euroPerEnergy:   chain.DefaultEuroPerEnergy,
	}
}

// Option changes the chain built by NewChain.
type Option func(*configTemplate)

// WithBlockTime sets the block time.
func WithBlockTime(t types.Timestamp) Option {
	return func(ct *configTemplate) {
		ct.blockTime = t
	}
}

// WithExchangeRates sets the exchange rates.
func WithExchangeRates(microCCDPerEuro, euroPerEnergy types.ExchangeRate) Option {
	return func(ct *configTemplate) {
		ct.microCCDPerEuro = microCCDPerEuro
		ct.euroPerEnergy = euroPerEnergy
	}
}

// WithAccount creates an account with a total balance.
func WithAccount(addr types.AccountAddress, total types.Amount) Option {
	return func(ct *configTemplate) {
		ct.accounts = append(ct.accounts, account.New(addr, total))
	}
}

// WithAccountObject creates a prepared account.
func WithAccountObject(acc *account.Account) Option {
	return func(ct *configTemplate) {
		ct.accounts = append(ct.accounts, acc)
	}
}

// WithEngine uses an existing engine, so that modules registered on it can
// be deployed.
func WithEngine(e *Engine) Option {
	return func(ct *configTemplate) {
		ct.engine = e
	}
}

// NewChain builds a chain backed by a scripted engine for testing purposes.
func NewChain(t *testing.T, opts ...Option) (*chain.Chain, *Engine) {
	template := newConfigTemplate()
	for _, opt := range opts {
		opt(&template)
	}
	if template.engine == nil {
		template.engine = NewEngine()
	}

	c, err := chain.NewWithOptions(
		chain.WithBlockTime(template.blockTime),
		chain.WithExchangeRates(template.microCCDPerEuro, template.euroPerEnergy),
		chain.WithEngine(template.engine),
	)
	require.NoError(t, err)
	for _, acc := range template.accounts {
		c.CreateAccount(acc)
	}
	return c, template.engine
}

// Address returns an account address whose bytes are all b.
func Address(b byte) types.AccountAddress {
	var addr types.AccountAddress
	for i := range addr {
		addr[i] = b
	}
	return addr
}

// Deploy registers m on engine and deploys it from sender.
func Deploy(t *testing.T, c *chain.Chain, engine *Engine, sender types.AccountAddress, m Module) types.ModuleReference {
	res, err := c.ModuleDeployV1(context.Background(), types.SignerWithOneKey(), sender, engine.Register(m))
	require.NoError(t, err)
	return res.ModuleReference
}

// InitContract creates an instance of contract from module ref with the given
// amount.
func InitContract(t *testing.T, c *chain.Chain, sender types.AccountAddress, ref types.ModuleReference,
	contract string, amount types.Amount, param []byte) types.ContractAddress {

	name, err := types.ContractNameFor(contract)
	require.NoError(t, err)
	res, err := c.ContractInit(context.Background(), types.SignerWithOneKey(), sender, 10_000, chain.InitContractPayload{
		Amount:   amount,
		ModRef:   ref,
		InitName: name,
		Param:    param,
	})
	require.NoError(t, err)
	return res.ContractAddress
}
