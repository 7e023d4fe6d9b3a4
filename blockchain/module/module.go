// Package module holds Wasm smart contract modules in the form they are
// deployed: a version tag and the module source.
package module

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"go.dedis.ch/contractsim/blockchain/fee"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// Version of the Wasm module format.
type Version uint32

const (
	V0 Version = 0
	V1 Version = 1
)

func (v Version) String() string {
	return fmt.Sprintf("V%d", uint32(v))
}

// prefixSize is the size of the version and length prefix of a versioned
// module.
const prefixSize = 8

// WasmModule is a versioned module source.
type WasmModule struct {
	Version Version
	Source  []byte
}

// NewV1 wraps raw module source as a version 1 module.
func NewV1(source []byte) WasmModule {
	return WasmModule{Version: V1, Source: source}
}

// Size returns the size of the module source.
func (m WasmModule) Size() uint64 {
	return uint64(len(m.Source))
}

// Bytes serializes the module: version (u32), source length (u32), then the
// source. Integers are big-endian.
func (m WasmModule) Bytes() []byte {
	buf := make([]byte, prefixSize, prefixSize+len(m.Source))
	binary.BigEndian.PutUint32(buf[:4], uint32(m.Version))
	binary.BigEndian.PutUint32(buf[4:], uint32(len(m.Source)))
	return append(buf, m.Source...)
}

// Ref returns the module reference: the SHA-256 of the serialized module.
func (m WasmModule) Ref() types.ModuleReference {
	return types.ModuleReference(sha256.Sum256(m.Bytes()))
}

// UnsupportedModuleVersionError is returned for modules that are not version
// 1.
type UnsupportedModuleVersionError struct {
	Version Version
}

func (e *UnsupportedModuleVersionError) Error() string {
	return fmt.Sprintf("unsupported module version %s, only %s is supported", e.Version, V1)
}

// FromBytes parses a serialized module. Bytes after the declared source
// length, such as appended build metadata, are ignored.
func FromBytes(data []byte) (WasmModule, error) {
	if len(data) < prefixSize {
		return WasmModule{}, xerrors.Errorf("module too short: %d bytes", len(data))
	}
	version := Version(binary.BigEndian.Uint32(data[:4]))
	if version != V0 && version != V1 {
		return WasmModule{}, xerrors.Errorf("unknown module version %d", uint32(version))
	}
	size := binary.BigEndian.Uint32(data[4:prefixSize])
	if size > fee.MaxWasmModuleSize {
		return WasmModule{}, xerrors.Errorf("module source of %d bytes exceeds the maximum of %d", size, fee.MaxWasmModuleSize)
	}
	rest := data[prefixSize:]
	if uint64(len(rest)) < uint64(size) {
		return WasmModule{}, xerrors.Errorf("module source truncated: declared %d bytes, found %d", size, len(rest))
	}
	source := append([]byte{}, rest[:size]...)
	return WasmModule{Version: version, Source: source}, nil
}
