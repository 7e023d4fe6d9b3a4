package fee

import "go.dedis.ch/contractsim/types"

// Limits of the simulated protocol.
const (
	// MaxAllowedInvokeEnergy bounds the energy of a single invocation.
	MaxAllowedInvokeEnergy types.Energy = 100_000_000_000
	// MaxWasmModuleSize is the largest accepted Wasm module source.
	MaxWasmModuleSize = 8 * 65536
	// MaxParameterLen is the largest accepted contract parameter.
	MaxParameterLen = 65535
	// TransactionHeaderSize is the size of a serialized transaction header:
	// sender (32), nonce (8), energy (8), payload size (4) and expiry (8).
	TransactionHeaderSize = 60
)

// Energy costs of host side operations.
const (
	InitializeContractInstanceBaseCost   types.Energy = 300
	InitializeContractInstanceCreateCost types.Energy = 200
	UpdateContractInstanceBaseCost       types.Energy = 300
	SimpleTransferCost                   types.Energy = 300

	QueryAccountBalanceCost  types.Energy = 200
	QueryContractBalanceCost types.Energy = 200
	QueryExchangeRateCost    types.Energy = 100

	QueryAccountKeysBaseCost   types.Energy = 200
	QueryAccountKeysPerKeyCost types.Energy = 5

	CheckAccountSignatureBaseCost     types.Energy = 200
	CheckAccountSignaturePerSignature types.Energy = 100
)

const (
	costPerSignature = 100
	costPerByte      = 1
)

// BaseCost is the cost of checking a transaction header: size bytes signed
// by numSignatures keys.
func BaseCost(size uint64, numSignatures uint32) types.Energy {
	return types.Energy(costPerSignature*uint64(numSignatures) + costPerByte*size)
}

// DeployModuleCost is the cost of deploying a module of size bytes.
func DeployModuleCost(size uint64) types.Energy {
	return types.Energy(size / 10)
}

// LookupModuleCost is the cost of loading a module of size bytes.
func LookupModuleCost(size uint64) types.Energy {
	return types.Energy(size / 50)
}

// QueryAccountKeysCost is the cost of returning numKeys public keys.
func QueryAccountKeysCost(numKeys int) types.Energy {
	return QueryAccountKeysBaseCost + QueryAccountKeysPerKeyCost*types.Energy(numKeys)
}

// CheckAccountSignatureCost is the cost of verifying numSignatures
// signatures.
func CheckAccountSignatureCost(numSignatures int) types.Energy {
	return CheckAccountSignatureBaseCost + CheckAccountSignaturePerSignature*types.Energy(numSignatures)
}
