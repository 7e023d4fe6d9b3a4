package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"math"
)

// ErrZeroKeys is returned when creating a signer without keys.
var ErrZeroKeys error = errors.New("signer requires at least one key")

// PolicyItem is one attribute of an identity policy.
type PolicyItem struct {
	Tag   uint8
	Value []byte
}

// OwnedPolicy is the identity policy of an account, exposed to contracts as
// bytes.
type OwnedPolicy struct {
	IdentityProvider uint32
	CreatedAt        Timestamp
	ValidTo          Timestamp
	Items            []PolicyItem
}

// EmptyPolicy has identity provider 0, no items, and is valid from the unix
// epoch until the largest representable timestamp.
func EmptyPolicy() OwnedPolicy {
	return OwnedPolicy{
		IdentityProvider: 0,
		CreatedAt:        TimestampFromMillis(0),
		ValidTo:          TimestampFromMillis(math.MaxUint64),
	}
}

// Bytes serializes the policy: identity provider (u32), created at (u64),
// valid to (u64), item count (u16), then tag (u8), length (u16) and value for
// every item. All integers are little-endian.
func (p OwnedPolicy) Bytes() []byte {
	buf := make([]byte, 0, 22)
	buf = binary.LittleEndian.AppendUint32(buf, p.IdentityProvider)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.ValidTo))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.Items)))
	for _, item := range p.Items {
		buf = append(buf, item.Tag)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(item.Value)))
		buf = append(buf, item.Value...)
	}
	return buf
}

// AccountKeys are the public keys of an account and how many of them must
// sign.
type AccountKeys struct {
	Threshold uint8
	Keys      []ed25519.PublicKey
}

// Signer describes how many keys sign a transaction, which affects its cost.
type Signer struct {
	NumKeys uint32
}

// SignerWithOneKey returns a signer with a single key.
func SignerWithOneKey() Signer {
	return Signer{NumKeys: 1}
}

// SignerWithKeys returns a signer with numKeys keys.
func SignerWithKeys(numKeys uint32) (Signer, error) {
	if numKeys == 0 {
		return Signer{}, ErrZeroKeys
	}
	return Signer{NumKeys: numKeys}, nil
}
