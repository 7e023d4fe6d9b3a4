package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// AccountAddressSize is the size in bytes of an account address.
const AccountAddressSize = 32

// AccountAddress identifies an account. Addresses sharing the first 29 bytes
// are aliases of the same account, see account.Key.
type AccountAddress [AccountAddressSize]byte

// AccountAddressFromHex parses a hex encoded account address.
func AccountAddressFromHex(s string) (AccountAddress, error) {
	var addr AccountAddress
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("invalid account address %q: %w", s, err)
	}
	if len(raw) != AccountAddressSize {
		return addr, fmt.Errorf("invalid account address %q: expected %d bytes, got %d", s, AccountAddressSize, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func (a AccountAddress) String() string {
	return hex.EncodeToString(a[:])
}

// ContractAddressSize is the size of a serialized contract address.
const ContractAddressSize = 16

// ContractAddress identifies a contract instance.
type ContractAddress struct {
	Index    uint64
	Subindex uint64
}

// NewContractAddress returns the address <index, subindex>.
func NewContractAddress(index, subindex uint64) ContractAddress {
	return ContractAddress{Index: index, Subindex: subindex}
}

// Bytes encodes the address as two little-endian uint64.
func (c ContractAddress) Bytes() []byte {
	buf := make([]byte, ContractAddressSize)
	binary.LittleEndian.PutUint64(buf[:8], c.Index)
	binary.LittleEndian.PutUint64(buf[8:], c.Subindex)
	return buf
}

// ContractAddressFromBytes decodes an address encoded with Bytes.
func ContractAddressFromBytes(b []byte) (ContractAddress, error) {
	if len(b) != ContractAddressSize {
		return ContractAddress{}, fmt.Errorf("invalid contract address length %d", len(b))
	}
	return ContractAddress{
		Index:    binary.LittleEndian.Uint64(b[:8]),
		Subindex: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

func (c ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", c.Index, c.Subindex)
}

// Address is either an account or a contract address.
type Address struct {
	isContract bool
	account    AccountAddress
	contract   ContractAddress
}

// AccountAddr wraps an account address.
func AccountAddr(a AccountAddress) Address {
	return Address{account: a}
}

// ContractAddr wraps a contract address.
func ContractAddr(c ContractAddress) Address {
	return Address{isContract: true, contract: c}
}

// Account returns the account address, if this is one.
func (a Address) Account() (AccountAddress, bool) {
	return a.account, !a.isContract
}

// Contract returns the contract address, if this is one.
func (a Address) Contract() (ContractAddress, bool) {
	return a.contract, a.isContract
}

// IsContract reports whether the address is a contract address.
func (a Address) IsContract() bool {
	return a.isContract
}

// Bytes encodes the address as a tag byte (0 account, 1 contract) followed by
// the address.
func (a Address) Bytes() []byte {
	if c, ok := a.Contract(); ok {
		return append([]byte{1}, c.Bytes()...)
	}
	acc, _ := a.Account()
	return append([]byte{0}, acc[:]...)
}

func (a Address) String() string {
	if c, ok := a.Contract(); ok {
		return c.String()
	}
	acc, _ := a.Account()
	return acc.String()
}

// ModuleReference is the content derived identifier of a module.
type ModuleReference [32]byte

// ModuleReferenceFromHex parses a hex encoded module reference.
func ModuleReferenceFromHex(s string) (ModuleReference, error) {
	var ref ModuleReference
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(ref) {
		return ref, fmt.Errorf("invalid module reference %q", s)
	}
	copy(ref[:], raw)
	return ref, nil
}

func (m ModuleReference) String() string {
	return hex.EncodeToString(m[:])
}
