// Package storage holds contract state: a mutable key/value store used while
// a contract executes, and immutable, content addressed checkpoints it is
// frozen into between executions.
package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var ErrKeyNotFound error = errors.New("key not found")

// KV is a basic key/value mapping over byte strings.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Del(key []byte) error
	// Hash returns the content hash of all entries.
	Hash() common.Hash
}

// SizeCollector accumulates the number of bytes newly stored while freezing
// state. The total is charged one energy per byte.
type SizeCollector struct {
	size uint64
}

// Add records n new bytes.
func (sc *SizeCollector) Add(n uint64) {
	sc.size += n
}

// Collect returns the number of bytes recorded so far.
func (sc *SizeCollector) Collect() uint64 {
	return sc.size
}
