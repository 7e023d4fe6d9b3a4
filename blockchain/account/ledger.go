package account

import (
	"fmt"
	"sort"

	"go.dedis.ch/contractsim/types"
)

// DoesNotExistError is returned when no account matches an address.
type DoesNotExistError struct {
	Address types.AccountAddress
}

func (e *DoesNotExistError) Error() string {
	return fmt.Sprintf("account %s does not exist", e.Address)
}

// Ledger holds the accounts of the chain, indexed so that aliases resolve to
// one account.
type Ledger struct {
	accounts map[Key]*Account
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[Key]*Account)}
}

// Create inserts acc, replacing and returning any account with the same key.
func (l *Ledger) Create(acc *Account) *Account {
	key := KeyOf(acc.Address)
	prev := l.accounts[key]
	l.accounts[key] = acc
	return prev
}

// Get returns the account for addr or any of its aliases. The returned
// account is the stored one; changes to it are changes to the ledger.
func (l *Ledger) Get(addr types.AccountAddress) (*Account, error) {
	acc, ok := l.accounts[KeyOf(addr)]
	if !ok {
		return nil, &DoesNotExistError{Address: addr}
	}
	return acc, nil
}

// Lookup returns a copy of the account for addr.
func (l *Ledger) Lookup(addr types.AccountAddress) (*Account, bool) {
	acc, ok := l.accounts[KeyOf(addr)]
	if !ok {
		return nil, false
	}
	return acc.clone(), true
}

// Exists reports whether an account for addr exists.
func (l *Ledger) Exists(addr types.AccountAddress) bool {
	_, ok := l.accounts[KeyOf(addr)]
	return ok
}

// Balance returns the balance record of addr.
func (l *Ledger) Balance(addr types.AccountAddress) (types.AccountBalance, bool) {
	acc, ok := l.accounts[KeyOf(addr)]
	if !ok {
		return types.AccountBalance{}, false
	}
	return acc.Balance, true
}

// BalanceAvailable returns the available balance of addr.
func (l *Ledger) BalanceAvailable(addr types.AccountAddress) (types.Amount, bool) {
	balance, ok := l.Balance(addr)
	if !ok {
		return 0, false
	}
	return balance.Available(), true
}

// Debit subtracts amount from the total balance of addr.
func (l *Ledger) Debit(addr types.AccountAddress, amount types.Amount) error {
	acc, err := l.Get(addr)
	if err != nil {
		return err
	}
	total, err := acc.Balance.Total.CheckedSub(amount)
	if err != nil {
		return fmt.Errorf("debit %s from %s: %w", amount, addr, err)
	}
	acc.Balance.Total = total
	return nil
}

// Credit adds amount to the total balance of addr.
func (l *Ledger) Credit(addr types.AccountAddress, amount types.Amount) error {
	acc, err := l.Get(addr)
	if err != nil {
		return err
	}
	total, err := acc.Balance.Total.CheckedAdd(amount)
	if err != nil {
		return fmt.Errorf("credit %s to %s: %w", amount, addr, err)
	}
	acc.Balance.Total = total
	return nil
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Addresses returns the address of every account ordered by key.
func (l *Ledger) Addresses() []types.AccountAddress {
	keys := make([]Key, 0, len(l.accounts))
	for k := range l.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	out := make([]types.AccountAddress, len(keys))
	for i, k := range keys {
		out[i] = l.accounts[k].Address
	}
	return out
}
