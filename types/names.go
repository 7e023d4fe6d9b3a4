package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned for malformed contract or receive names.
var ErrInvalidName error = errors.New("invalid name")

const (
	initPrefix = "init_"
	// MaxFuncNameSize is the maximum length of an init or receive name.
	MaxFuncNameSize = 100
)

// ContractName is the chain name of a contract init function, for example
// "init_counter".
type ContractName string

// NewContractName validates name as an init function name.
func NewContractName(name string) (ContractName, error) {
	if !strings.HasPrefix(name, initPrefix) {
		return "", fmt.Errorf("%w: %q must start with %q", ErrInvalidName, name, initPrefix)
	}
	if err := checkFuncName(name); err != nil {
		return "", err
	}
	if strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: %q must not contain '.'", ErrInvalidName, name)
	}
	return ContractName(name), nil
}

// MustContractName is like NewContractName but panics on invalid input.
func MustContractName(name string) ContractName {
	n, err := NewContractName(name)
	if err != nil {
		panic(err)
	}
	return n
}

// ContractNameFor returns the init name for a bare contract name.
func ContractNameFor(contract string) (ContractName, error) {
	return NewContractName(initPrefix + contract)
}

// Bare returns the contract name without the "init_" prefix.
func (c ContractName) Bare() string {
	return strings.TrimPrefix(string(c), initPrefix)
}

// ReceiveName is the chain name of a receive function, "<contract>.<entrypoint>".
type ReceiveName string

// NewReceiveName validates name as a receive function name.
func NewReceiveName(name string) (ReceiveName, error) {
	if err := checkFuncName(name); err != nil {
		return "", err
	}
	if !strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: %q must be of the form <contract>.<entrypoint>", ErrInvalidName, name)
	}
	return ReceiveName(name), nil
}

// MustReceiveName is like NewReceiveName but panics on invalid input.
func MustReceiveName(name string) ReceiveName {
	n, err := NewReceiveName(name)
	if err != nil {
		panic(err)
	}
	return n
}

// ReceiveNameFor builds the receive name of entrypoint on contract.
func ReceiveNameFor(contract, entrypoint string) (ReceiveName, error) {
	return NewReceiveName(contract + "." + entrypoint)
}

// Contract returns the contract part of the name.
func (r ReceiveName) Contract() string {
	contract, _, _ := strings.Cut(string(r), ".")
	return contract
}

// Entrypoint returns the entrypoint part of the name.
func (r ReceiveName) Entrypoint() string {
	_, entrypoint, _ := strings.Cut(string(r), ".")
	return entrypoint
}

// Fallback returns the name of the fallback entrypoint of the same contract.
func (r ReceiveName) Fallback() ReceiveName {
	return ReceiveName(r.Contract() + ".")
}

func checkFuncName(name string) error {
	if len(name) > MaxFuncNameSize {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidName, name, MaxFuncNameSize)
	}
	for _, c := range []byte(name) {
		if c < 0x21 || c > 0x7e {
			return fmt.Errorf("%w: %q must be printable ASCII", ErrInvalidName, name)
		}
	}
	return nil
}
