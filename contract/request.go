package contract

import (
	"crypto/ed25519"
	"encoding/binary"

	"go.dedis.ch/contractsim/types"
)

// Request is something a contract asks of the chain.
type Request interface {
	// Name is used in logs.
	Name() string
}

// Transfer sends CCD from the contract to an account.
type Transfer struct {
	To     types.AccountAddress
	Amount types.Amount
}

func (Transfer) Name() string { return "transfer" }

// Call invokes an entrypoint of a contract, sending it CCD.
type Call struct {
	To         types.ContractAddress
	Entrypoint string
	Parameter  []byte
	Amount     types.Amount
}

func (Call) Name() string { return "call" }

// Upgrade replaces the module of the contract.
type Upgrade struct {
	Module types.ModuleReference
}

func (Upgrade) Name() string { return "upgrade" }

// QueryAccountBalance asks for the balance of an account.
type QueryAccountBalance struct {
	Address types.AccountAddress
}

func (QueryAccountBalance) Name() string { return "query account balance" }

// QueryContractBalance asks for the balance of a contract.
type QueryContractBalance struct {
	Address types.ContractAddress
}

func (QueryContractBalance) Name() string { return "query contract balance" }

// QueryExchangeRates asks for the current exchange rates.
type QueryExchangeRates struct{}

func (QueryExchangeRates) Name() string { return "query exchange rates" }

// IndexedSignature is a signature made with the key at KeyIndex of an
// account.
type IndexedSignature struct {
	KeyIndex  uint8
	Signature []byte
}

// CheckAccountSignature asks whether message is signed by an account.
type CheckAccountSignature struct {
	Address    types.AccountAddress
	Message    []byte
	Signatures []IndexedSignature
}

func (CheckAccountSignature) Name() string { return "check account signature" }

// QueryAccountKeys asks for the public keys of an account.
type QueryAccountKeys struct {
	Address types.AccountAddress
}

func (QueryAccountKeys) Name() string { return "query account keys" }

// The encodings below are the Data of successful query responses. Integers
// are little-endian.

// EncodeAccountBalance encodes total, staked and locked as three u64.
func EncodeAccountBalance(b types.AccountBalance) []byte {
	buf := make([]byte, 0, 24)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Total))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Staked))
	return binary.LittleEndian.AppendUint64(buf, uint64(b.Locked))
}

// EncodeAmount encodes an amount as u64.
func EncodeAmount(a types.Amount) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(a))
}

// EncodeExchangeRates encodes euro per energy followed by microCCD per euro,
// each as numerator and denominator u64.
func EncodeExchangeRates(euroPerEnergy, microCCDPerEuro types.ExchangeRate) []byte {
	buf := make([]byte, 0, 32)
	buf = binary.LittleEndian.AppendUint64(buf, euroPerEnergy.Numerator)
	buf = binary.LittleEndian.AppendUint64(buf, euroPerEnergy.Denominator)
	buf = binary.LittleEndian.AppendUint64(buf, microCCDPerEuro.Numerator)
	return binary.LittleEndian.AppendUint64(buf, microCCDPerEuro.Denominator)
}

// EncodeAccountKeys encodes the threshold (u8), the number of keys (u8) and
// every 32 byte key.
func EncodeAccountKeys(keys types.AccountKeys) []byte {
	buf := make([]byte, 0, 2+len(keys.Keys)*ed25519.PublicKeySize)
	buf = append(buf, keys.Threshold, uint8(len(keys.Keys)))
	for _, k := range keys.Keys {
		buf = append(buf, k...)
	}
	return buf
}
