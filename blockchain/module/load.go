package module

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.dedis.ch/contractsim/blockchain/fee"
	"golang.org/x/xerrors"
)

// LoadError is returned when a module file cannot be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrModuleTooLarge is returned for raw module files above
// fee.MaxWasmModuleSize.
var ErrModuleTooLarge error = errors.New("module too large")

// LoadV1 loads a module file in the versioned format produced by the build
// tool. The module must be version 1.
func LoadV1(path string) (WasmModule, error) {
	f, err := os.Open(path)
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: xerrors.Errorf("open: %w", err)}
	}
	defer f.Close()

	// The prefix declares the source length, so reading more than that is
	// never needed.
	data, err := io.ReadAll(io.LimitReader(f, prefixSize+fee.MaxWasmModuleSize))
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: xerrors.Errorf("read: %w", err)}
	}
	m, err := FromBytes(data)
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: err}
	}
	if m.Version != V1 {
		return WasmModule{}, &LoadError{Path: path, Err: &UnsupportedModuleVersionError{Version: m.Version}}
	}
	return m, nil
}

// LoadV1Raw loads a file holding bare Wasm module bytes, without the version
// and length prefix, as a version 1 module.
func LoadV1Raw(path string) (WasmModule, error) {
	f, err := os.Open(path)
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: xerrors.Errorf("open: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: xerrors.Errorf("stat: %w", err)}
	}
	if info.Size() > fee.MaxWasmModuleSize {
		return WasmModule{}, &LoadError{Path: path,
			Err: xerrors.Errorf("maximum size of a Wasm module is %d: %w", fee.MaxWasmModuleSize, ErrModuleTooLarge)}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return WasmModule{}, &LoadError{Path: path, Err: xerrors.Errorf("read: %w", err)}
	}
	return NewV1(data), nil
}
