package chain

import (
	"go.dedis.ch/contractsim/blockchain/account"
	"go.dedis.ch/contractsim/blockchain/storage"
	"go.dedis.ch/contractsim/types"
)

// changeset stages the effects of one top level invocation. Nothing reaches
// the chain until persist.
//
// Balances are absolute values, loaded from the chain on first use. Contract
// states are thawed on first use and shared by every frame of the same
// contract on the call stack.
type changeset struct {
	chain       *Chain
	accounts    map[account.Key]*accountChanges
	contracts   map[types.ContractAddress]*contractChanges
	checkpoints []*snapshot
}

type accountChanges struct {
	address types.AccountAddress
	balance types.AccountBalance
}

type contractChanges struct {
	balance types.Amount
	module  types.ModuleReference
	// state is nil until the contract runs.
	state *storage.MutableState
}

type snapshot struct {
	accounts  map[account.Key]accountChanges
	contracts map[types.ContractAddress]contractChanges
}

func newChangeset(c *Chain) *changeset {
	return &changeset{
		chain:     c,
		accounts:  make(map[account.Key]*accountChanges),
		contracts: make(map[types.ContractAddress]*contractChanges),
	}
}

// account returns the staged balance of an account. The account must exist.
func (cs *changeset) account(addr types.AccountAddress) (*accountChanges, bool) {
	key := account.KeyOf(addr)
	if ac, ok := cs.accounts[key]; ok {
		return ac, true
	}
	acc, err := cs.chain.accounts.Get(addr)
	if err != nil {
		return nil, false
	}
	ac := &accountChanges{address: acc.Address, balance: acc.Balance}
	cs.accounts[key] = ac
	return ac, true
}

// contract returns the staged changes of a contract. The contract must
// exist.
func (cs *changeset) contract(addr types.ContractAddress) (*contractChanges, bool) {
	if cc, ok := cs.contracts[addr]; ok {
		return cc, true
	}
	inst, ok := cs.chain.contracts[addr]
	if !ok {
		return nil, false
	}
	cc := &contractChanges{balance: inst.SelfBalance, module: inst.ModuleReference}
	cs.contracts[addr] = cc
	return cc, true
}

// state returns the working state of a contract, thawing it on first use.
func (cs *changeset) state(addr types.ContractAddress) (*storage.MutableState, bool) {
	cc, ok := cs.contract(addr)
	if !ok {
		return nil, false
	}
	if cc.state == nil {
		cc.state = cs.chain.contracts[addr].State.Thaw()
	}
	return cc.state, true
}

// stateVersion returns the modification counter of a contract state, or 0
// when the contract has not run yet.
func (cs *changeset) stateVersion(addr types.ContractAddress) uint64 {
	cc, ok := cs.contracts[addr]
	if !ok || cc.state == nil {
		return 0
	}
	return cc.state.Version()
}

// transferFromAccount moves amount from an account to a contract. It fails
// with types.ErrInsufficientBalance when the available balance is too small.
func (cs *changeset) transferFromAccount(from types.AccountAddress, to types.ContractAddress, amount types.Amount) error {
	ac, ok := cs.account(from)
	if !ok {
		return &AccountDoesNotExistError{Address: from}
	}
	cc, ok := cs.contract(to)
	if !ok {
		return &ContractDoesNotExistError{Address: to}
	}
	if ac.balance.Available() < amount {
		return types.ErrInsufficientBalance
	}
	credited, err := cc.balance.CheckedAdd(amount)
	if err != nil {
		return err
	}
	ac.balance.Total -= amount
	cc.balance = credited
	return nil
}

// transferFromContract moves amount from a contract to an account or another
// contract.
func (cs *changeset) transferFromContract(from types.ContractAddress, to types.Address, amount types.Amount) error {
	src, ok := cs.contract(from)
	if !ok {
		return &ContractDoesNotExistError{Address: from}
	}
	if src.balance < amount {
		return types.ErrInsufficientBalance
	}

	if acc, isAccount := to.Account(); isAccount {
		dst, ok := cs.account(acc)
		if !ok {
			return &AccountDoesNotExistError{Address: acc}
		}
		credited, err := dst.balance.Total.CheckedAdd(amount)
		if err != nil {
			return err
		}
		src.balance -= amount
		dst.balance.Total = credited
		return nil
	}

	addr, _ := to.Contract()
	dst, ok := cs.contract(addr)
	if !ok {
		return &ContractDoesNotExistError{Address: addr}
	}
	if addr == from {
		return nil
	}
	credited, err := dst.balance.CheckedAdd(amount)
	if err != nil {
		return err
	}
	src.balance -= amount
	dst.balance = credited
	return nil
}

// checkpoint records the current changes so that a failing nested call can
// be undone with rollback.
func (cs *changeset) checkpoint() {
	snap := &snapshot{
		accounts:  make(map[account.Key]accountChanges, len(cs.accounts)),
		contracts: make(map[types.ContractAddress]contractChanges, len(cs.contracts)),
	}
	for k, ac := range cs.accounts {
		snap.accounts[k] = *ac
	}
	for addr, cc := range cs.contracts {
		saved := *cc
		if cc.state != nil {
			saved.state = cc.state.Clone()
		}
		snap.contracts[addr] = saved
	}
	cs.checkpoints = append(cs.checkpoints, snap)
}

// commit keeps the changes made since the last checkpoint.
func (cs *changeset) commit() {
	cs.checkpoints = cs.checkpoints[:len(cs.checkpoints)-1]
}

// rollback undoes every change made since the last checkpoint. Working
// states are restored in place, as frames further up the call stack hold
// them.
func (cs *changeset) rollback() {
	snap := cs.checkpoints[len(cs.checkpoints)-1]
	cs.checkpoints = cs.checkpoints[:len(cs.checkpoints)-1]

	cs.accounts = make(map[account.Key]*accountChanges, len(snap.accounts))
	for k, ac := range snap.accounts {
		restored := ac
		cs.accounts[k] = &restored
	}

	for addr, cc := range cs.contracts {
		saved, ok := snap.contracts[addr]
		if !ok {
			delete(cs.contracts, addr)
			continue
		}
		cc.balance = saved.balance
		cc.module = saved.module
		if saved.state != nil {
			cc.state.Restore(saved.state)
		} else {
			cc.state = nil
		}
	}
}

// frozenStates freezes every modified contract state and returns the new
// checkpoints together with the number of bytes they add.
func (cs *changeset) frozenStates() (map[types.ContractAddress]*storage.PersistentState, uint64) {
	var collector storage.SizeCollector
	frozen := make(map[types.ContractAddress]*storage.PersistentState)
	for addr, cc := range cs.contracts {
		if cc.state == nil || !cc.state.Modified() {
			continue
		}
		frozen[addr] = cc.state.Freeze(&collector)
	}
	return frozen, collector.Collect()
}

// collectEnergyForState charges one energy per byte the staged contract
// states add and reports whether the state of invoked changed. Nothing is
// written to the chain.
func (cs *changeset) collectEnergyForState(remaining *types.Energy, invoked types.ContractAddress) (bool, error) {
	frozen, size := cs.frozenStates()
	if err := remaining.TickEnergy(types.Energy(size)); err != nil {
		return false, err
	}
	_, changed := frozen[invoked]
	return changed, nil
}

// persist charges for the added state bytes and then writes every staged
// change to the chain. When the energy does not cover the state the chain is
// left untouched.
func (cs *changeset) persist(remaining *types.Energy, invoked types.ContractAddress) (bool, error) {
	frozen, size := cs.frozenStates()
	if err := remaining.TickEnergy(types.Energy(size)); err != nil {
		return false, err
	}

	for _, ac := range cs.accounts {
		acc, err := cs.chain.accounts.Get(ac.address)
		if err != nil {
			panic("staged account exists: " + err.Error())
		}
		acc.Balance.Total = ac.balance.Total
	}
	for addr, cc := range cs.contracts {
		inst := cs.chain.contracts[addr]
		inst.SelfBalance = cc.balance
		inst.ModuleReference = cc.module
		if state, ok := frozen[addr]; ok {
			inst.State = state
		}
	}

	_, changed := frozen[invoked]
	return changed, nil
}
