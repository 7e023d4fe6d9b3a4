package chain

import (
	"context"

	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/blockchain/module"
	"go.dedis.ch/contractsim/types"
)

// ModuleDeploySuccess is the result of deploying a module.
type ModuleDeploySuccess struct {
	ModuleReference types.ModuleReference
	EnergyUsed      types.Energy
	TransactionFee  types.Amount
}

// ModuleDeployV1 deploys a version 1 module paid for by sender.
//
// The cost of checking the transaction header is charged as soon as the
// module version is known to be supported, even if the module turns out to
// be invalid. A duplicate module is charged in full.
func (c *Chain) ModuleDeployV1(ctx context.Context, signer types.Signer, sender types.AccountAddress,
	m module.WasmModule) (*ModuleDeploySuccess, error) {

	acc, err := c.accounts.Get(sender)
	if err != nil {
		return nil, &ModuleDeployError{Kind: &SenderDoesNotExistError{Address: types.AccountAddr(sender)}}
	}

	// 1 byte for the payload tag and 8 for the version and length.
	headerEnergy := fee.BaseCost(1+8+m.Size()+fee.TransactionHeaderSize, signer.NumKeys)
	headerCost := c.params.EnergyCost(headerEnergy)
	if acc.Balance.Available() < headerCost {
		return nil, &ModuleDeployError{Kind: ErrInsufficientFunds}
	}
	if m.Version != module.V1 {
		return nil, &ModuleDeployError{Kind: &UnsupportedModuleVersionError{Version: m.Version}}
	}

	logger := c.logger.With().Str("sender", sender.String()).Uint64("size", m.Size()).Logger()
	acc.Balance.Total -= headerCost

	artifact, err := c.engine.Instantiate(ctx, m.Source)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid module")
		return nil, &ModuleDeployError{
			EnergyUsed:     headerEnergy,
			TransactionFee: headerCost,
			Kind:           &InvalidModuleError{Err: err},
		}
	}

	deployEnergy := fee.DeployModuleCost(m.Size())
	deployCost := c.params.EnergyCost(deployEnergy)
	if acc.Balance.Available() < deployCost {
		return nil, &ModuleDeployError{
			EnergyUsed:     headerEnergy,
			TransactionFee: headerCost,
			Kind:           ErrInsufficientFunds,
		}
	}
	acc.Balance.Total -= deployCost

	energyUsed := headerEnergy + deployEnergy
	transactionFee := headerCost + deployCost

	ref := m.Ref()
	if _, ok := c.modules[ref]; ok {
		return nil, &ModuleDeployError{
			EnergyUsed:     energyUsed,
			TransactionFee: transactionFee,
			Kind:           &DuplicateModuleError{Reference: ref},
		}
	}
	c.modules[ref] = &ContractModule{Size: m.Size(), Artifact: artifact}

	logger.Debug().Str("module", ref.String()).Uint64("energy", uint64(energyUsed)).
		Str("fee", transactionFee.String()).Msg("module deployed")

	return &ModuleDeploySuccess{
		ModuleReference: ref,
		EnergyUsed:      energyUsed,
		TransactionFee:  transactionFee,
	}, nil
}
