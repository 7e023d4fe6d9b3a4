package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SimpleKV is a map backed KV.
type SimpleKV struct {
	Internal map[string][]byte
}

var _ KV = (*SimpleKV)(nil)

func NewSimpleKV() *SimpleKV {
	return &SimpleKV{Internal: make(map[string][]byte)}
}

func (skv *SimpleKV) Get(key []byte) ([]byte, error) {
	value, ok := skv.Internal[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Put stores a copy of value.
func (skv *SimpleKV) Put(key []byte, value []byte) error {
	skv.Internal[string(key)] = append([]byte{}, value...)
	return nil
}

func (skv *SimpleKV) Del(key []byte) error {
	_, ok := skv.Internal[string(key)]
	if !ok {
		return ErrKeyNotFound
	}

	delete(skv.Internal, string(key))
	return nil
}

// Copy returns an independent copy. Values are never mutated in place, so
// they are shared.
func (skv *SimpleKV) Copy() *SimpleKV {
	ret := &SimpleKV{Internal: make(map[string][]byte, len(skv.Internal))}
	for k, v := range skv.Internal {
		ret.Internal[k] = v
	}
	return ret
}

// Len returns the number of entries.
func (skv *SimpleKV) Len() int {
	return len(skv.Internal)
}

func (skv *SimpleKV) sortedKeys() []string {
	keys := make([]string, 0, len(skv.Internal))
	for k := range skv.Internal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (skv *SimpleKV) String() string {
	ret := new(strings.Builder)
	ret.WriteString("{")
	for i, key := range skv.sortedKeys() {
		if i > 0 {
			ret.WriteString(",")
		}
		fmt.Fprintf(ret, "%x->%x", key, skv.Internal[key])
	}
	ret.WriteString("}")
	return ret.String()
}

// Hash is the Keccak256 of every entry in key order, each key and value
// prefixed by its length.
func (skv *SimpleKV) Hash() common.Hash {
	var buf bytes.Buffer
	var lenBuf [binary.MaxVarintLen64]byte
	for _, key := range skv.sortedKeys() {
		value := skv.Internal[key]
		n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
		buf.Write(lenBuf[:n])
		buf.WriteString(key)
		n = binary.PutUvarint(lenBuf[:], uint64(len(value)))
		buf.Write(lenBuf[:n])
		buf.Write(value)
	}
	return crypto.Keccak256Hash(buf.Bytes())
}
