package account

import (
	"crypto/ed25519"
	"fmt"

	"go.dedis.ch/contractsim/types"
)

// Account on the simulated chain.
type Account struct {
	Address types.AccountAddress
	Balance types.AccountBalance
	Policy  types.OwnedPolicy
	Keys    types.AccountKeys
}

// New creates an account with a total balance, nothing staked or locked, and
// the empty policy.
func New(addr types.AccountAddress, total types.Amount) *Account {
	return NewAccountBuilder(addr).WithBalance(total).Build()
}

// GetAddr returns the address the account was created with.
func (a *Account) GetAddr() types.AccountAddress {
	return a.Address
}

func (a *Account) String() string {
	return fmt.Sprintf("{addr: %s, balance: %s}", a.Address, a.Balance)
}

// clone returns a deep enough copy for callers that must not mutate the
// ledger.
func (a *Account) clone() *Account {
	c := *a
	c.Policy.Items = append([]types.PolicyItem(nil), a.Policy.Items...)
	c.Keys.Keys = append([]ed25519.PublicKey(nil), a.Keys.Keys...)
	return &c
}

// AccountBuilder builds accounts step by step.
type AccountBuilder struct {
	address types.AccountAddress
	balance types.AccountBalance
	policy  types.OwnedPolicy
	keys    types.AccountKeys
}

// NewAccountBuilder starts an account at addr with a zero balance and the
// empty policy.
func NewAccountBuilder(addr types.AccountAddress) *AccountBuilder {
	return &AccountBuilder{address: addr, policy: types.EmptyPolicy()}
}

// WithBalance sets the total balance.
func (ab *AccountBuilder) WithBalance(total types.Amount) *AccountBuilder {
	ab.balance.Total = total
	return ab
}

// WithAccountBalance sets the full balance record, including staked and
// locked amounts.
func (ab *AccountBuilder) WithAccountBalance(balance types.AccountBalance) *AccountBuilder {
	ab.balance = balance
	return ab
}

// WithPolicy sets the identity policy.
func (ab *AccountBuilder) WithPolicy(policy types.OwnedPolicy) *AccountBuilder {
	ab.policy = policy
	return ab
}

// WithKeys sets the public keys and the signature threshold.
func (ab *AccountBuilder) WithKeys(threshold uint8, keys ...ed25519.PublicKey) *AccountBuilder {
	ab.keys = types.AccountKeys{Threshold: threshold, Keys: keys}
	return ab
}

// Build returns the account.
func (ab *AccountBuilder) Build() *Account {
	return &Account{Address: ab.address, Balance: ab.balance, Policy: ab.policy, Keys: ab.keys}
}
