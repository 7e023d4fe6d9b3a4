package storage

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PersistentState is an immutable checkpoint of a contract's state,
// identified by the hash of its content.
type PersistentState struct {
	entries *SimpleKV
	root    common.Hash
}

// EmptyState returns the checkpoint without entries.
func EmptyState() *PersistentState {
	kv := NewSimpleKV()
	return &PersistentState{entries: kv, root: kv.Hash()}
}

// Hash returns the content hash of the checkpoint.
func (ps *PersistentState) Hash() common.Hash {
	return ps.root
}

// Lookup returns the value stored under key.
func (ps *PersistentState) Lookup(key []byte) ([]byte, bool) {
	v, err := ps.entries.Get(key)
	if err != nil {
		return nil, false
	}
	return append([]byte{}, v...), true
}

// Len returns the number of entries.
func (ps *PersistentState) Len() int {
	return ps.entries.Len()
}

// Iterate calls fn for every entry whose key starts with prefix, in key
// order, until fn returns false.
func (ps *PersistentState) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	for _, k := range ps.entries.sortedKeys() {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if !fn([]byte(k), ps.entries.Internal[k]) {
			return
		}
	}
}

// Thaw returns a mutable view of the checkpoint. Writes to it never affect
// the checkpoint.
func (ps *PersistentState) Thaw() *MutableState {
	return &MutableState{base: ps}
}

// MutableState is the working state of a contract during execution. It is
// copy on write over the checkpoint it was thawed from.
type MutableState struct {
	base *PersistentState
	kv   *SimpleKV
	// version counts the writes and deletes since thawing.
	version uint64
}

var _ KV = (*MutableState)(nil)

// NewMutableState returns an empty working state.
func NewMutableState() *MutableState {
	return EmptyState().Thaw()
}

func (ms *MutableState) current() *SimpleKV {
	if ms.kv != nil {
		return ms.kv
	}
	return ms.base.entries
}

func (ms *MutableState) writable() *SimpleKV {
	if ms.kv == nil {
		ms.kv = ms.base.entries.Copy()
	}
	return ms.kv
}

func (ms *MutableState) Get(key []byte) ([]byte, error) {
	v, err := ms.current().Get(key)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, v...), nil
}

// Lookup is Get without an error for missing keys.
func (ms *MutableState) Lookup(key []byte) ([]byte, bool) {
	v, err := ms.Get(key)
	return v, err == nil
}

func (ms *MutableState) Put(key []byte, value []byte) error {
	ms.version++
	return ms.writable().Put(key, value)
}

func (ms *MutableState) Del(key []byte) error {
	if _, err := ms.current().Get(key); err != nil {
		return err
	}
	ms.version++
	return ms.writable().Del(key)
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// how many were removed.
func (ms *MutableState) DeletePrefix(prefix []byte) int {
	var doomed []string
	for k := range ms.current().Internal {
		if strings.HasPrefix(k, string(prefix)) {
			doomed = append(doomed, k)
		}
	}
	if len(doomed) == 0 {
		return 0
	}
	ms.version++
	kv := ms.writable()
	for _, k := range doomed {
		delete(kv.Internal, k)
	}
	return len(doomed)
}

// Len returns the number of entries.
func (ms *MutableState) Len() int {
	return ms.current().Len()
}

func (ms *MutableState) Hash() common.Hash {
	if ms.kv == nil {
		return ms.base.root
	}
	return ms.kv.Hash()
}

// Modified reports whether any write or delete happened since thawing.
func (ms *MutableState) Modified() bool {
	return ms.version > 0
}

// Version increases with every write or delete, so comparing versions tells
// whether the state was touched in between.
func (ms *MutableState) Version() uint64 {
	return ms.version
}

// Clone returns an independent copy of the working state.
func (ms *MutableState) Clone() *MutableState {
	c := &MutableState{base: ms.base, version: ms.version}
	if ms.kv != nil {
		c.kv = ms.kv.Copy()
	}
	return c
}

// Restore resets the working state in place to a copy of snapshot, keeping
// the identity of ms for everyone holding it.
func (ms *MutableState) Restore(snapshot *MutableState) {
	*ms = *snapshot.Clone()
}

// Freeze turns the working state into a checkpoint. Every entry that is new
// or changed relative to the checkpoint it was thawed from adds its key and
// value size to collector.
func (ms *MutableState) Freeze(collector *SizeCollector) *PersistentState {
	if ms.kv == nil {
		return ms.base
	}
	for k, v := range ms.kv.Internal {
		old, ok := ms.base.entries.Internal[k]
		if ok && bytes.Equal(old, v) {
			continue
		}
		collector.Add(uint64(len(k) + len(v)))
	}
	frozen := ms.kv.Copy()
	return &PersistentState{entries: frozen, root: frozen.Hash()}
}
