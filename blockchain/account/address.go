package account

import (
	"bytes"

	"go.dedis.ch/contractsim/types"
)

// aliasPrefixLen is the number of leading address bytes that identify an
// account. The remaining bytes only distinguish aliases.
const aliasPrefixLen = 29

// Key is the map key of an account. Two addresses map to the same Key iff
// they are aliases, i.e. their first 29 bytes are equal.
type Key struct {
	prefix [aliasPrefixLen]byte
}

// KeyOf returns the alias-insensitive key of addr.
func KeyOf(addr types.AccountAddress) Key {
	var k Key
	copy(k.prefix[:], addr[:aliasPrefixLen])
	return k
}

// SameAccount reports whether a and b are aliases of one account.
func SameAccount(a, b types.AccountAddress) bool {
	return KeyOf(a) == KeyOf(b)
}

// Compare orders keys by their alias prefix.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k.prefix[:], other.prefix[:])
}

// Alias returns the address with the same account prefix and the given
// trailing three bytes.
func Alias(addr types.AccountAddress, suffix [3]byte) types.AccountAddress {
	out := addr
	copy(out[aliasPrefixLen:], suffix[:])
	return out
}
