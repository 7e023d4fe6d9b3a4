// Package scenario runs sequences of chain operations described in YAML
// files and checks their outcome against expectations.
//
// A scenario configures a fresh chain with accounts, a block time and
// exchange rates, then executes its steps in order. Steps refer to earlier
// steps by name: an init step names the deploy step of its module, update
// and invoke steps name the init step of their contract.
//
//	accounts:
//	  - address: 0101010101010101010101010101010101010101010101010101010101010101
//	    balance: 10000000
//	steps:
//	  - name: deploy
//	    kind: deploy
//	    sender: 0101010101010101010101010101010101010101010101010101010101010101
//	    module: counter.wasm
//	    raw: true
//	  - name: counter
//	    kind: init
//	    sender: 0101010101010101010101010101010101010101010101010101010101010101
//	    module: deploy
//	    contract: counter
//	    energy: 10000
package scenario

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"

	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Step kinds.
const (
	KindDeploy    = "deploy"
	KindInit      = "init"
	KindUpdate    = "update"
	KindInvoke    = "invoke"
	KindBlockTime = "block_time"
)

// Expectations of a step.
const (
	ExpectSuccess = "success"
	ExpectFailure = "failure"
)

// Document is a parsed scenario file.
type Document struct {
	// BlockTime in milliseconds.
	BlockTime     uint64         `yaml:"block_time"`
	ExchangeRates *ExchangeRates `yaml:"exchange_rates"`
	Accounts      []Account      `yaml:"accounts"`
	Steps         []Step         `yaml:"steps"`

	// dir resolves relative module paths.
	dir string
}

// ExchangeRates overrides the default rates of the chain.
type ExchangeRates struct {
	MicroCCDPerEuro Rate `yaml:"micro_ccd_per_euro"`
	EuroPerEnergy   Rate `yaml:"euro_per_energy"`
}

// Rate is a fraction.
type Rate struct {
	Numerator   uint64 `yaml:"numerator"`
	Denominator uint64 `yaml:"denominator"`
}

func (r Rate) exchangeRate() (types.ExchangeRate, error) {
	return types.NewExchangeRate(r.Numerator, r.Denominator)
}

// Account is created before the first step.
type Account struct {
	Address string `yaml:"address"`
	// Balance in microCCD.
	Balance uint64 `yaml:"balance"`
	Staked  uint64 `yaml:"staked"`
	Locked  uint64 `yaml:"locked"`
	// Keys are hex encoded ed25519 public keys.
	Keys      []string `yaml:"keys"`
	Threshold uint8    `yaml:"threshold"`
}

// Step is one operation on the chain.
type Step struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Sender is the account sending the transaction. For updates and invokes
	// it is the invoker, and SenderContract optionally makes a contract the
	// sender.
	Sender         string `yaml:"sender"`
	SenderContract string `yaml:"sender_contract"`
	// Signers is the number of keys signing the transaction, 1 by default.
	Signers uint32 `yaml:"signers"`
	Energy  uint64 `yaml:"energy"`
	// Amount in microCCD.
	Amount uint64 `yaml:"amount"`

	// Module is a file path for deploy steps and the name of a deploy step
	// for init steps.
	Module string `yaml:"module"`
	// Raw marks a module file holding bare Wasm without the version prefix.
	Raw bool `yaml:"raw"`
	// Contract is the bare contract name for init steps and the name of an
	// init step for update and invoke steps.
	Contract    string `yaml:"contract"`
	ReceiveName string `yaml:"receive_name"`
	// Param is hex encoded.
	Param string `yaml:"param"`

	// Time is the new block time of block_time steps.
	Time uint64 `yaml:"time"`

	// Expect is "success" (the default) or "failure".
	Expect string `yaml:"expect"`
	// ExpectError must be a substring of the error of a failed step.
	ExpectError string `yaml:"expect_error"`
	// ExpectReturn is the hex encoded return value of an update or invoke.
	ExpectReturn *string `yaml:"expect_return"`
}

// Parse decodes a scenario. Unknown fields are errors.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, xerrors.Errorf("failed to decode scenario: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses a scenario file. Module paths in the file are
// relative to its directory.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read scenario: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	doc.dir = filepath.Dir(path)
	return doc, nil
}

func (d *Document) validate() error {
	names := make(map[string]string)
	for i, s := range d.Steps {
		if s.Name == "" {
			return xerrors.Errorf("step %d: missing name", i)
		}
		if _, ok := names[s.Name]; ok {
			return xerrors.Errorf("step %s: duplicate name", s.Name)
		}
		switch s.Expect {
		case "", ExpectSuccess, ExpectFailure:
		default:
			return xerrors.Errorf("step %s: unknown expectation %q", s.Name, s.Expect)
		}

		switch s.Kind {
		case KindDeploy:
			if s.Module == "" {
				return xerrors.Errorf("step %s: missing module path", s.Name)
			}
		case KindInit:
			if names[s.Module] != KindDeploy {
				return xerrors.Errorf("step %s: module %q is not an earlier deploy step", s.Name, s.Module)
			}
		case KindUpdate, KindInvoke:
			if names[s.Contract] != KindInit {
				return xerrors.Errorf("step %s: contract %q is not an earlier init step", s.Name, s.Contract)
			}
			if s.SenderContract != "" && names[s.SenderContract] != KindInit {
				return xerrors.Errorf("step %s: sender contract %q is not an earlier init step",
					s.Name, s.SenderContract)
			}
		case KindBlockTime:
		default:
			return xerrors.Errorf("step %s: unknown kind %q", s.Name, s.Kind)
		}
		names[s.Name] = s.Kind
	}
	return nil
}

func (d *Document) modulePath(path string) string {
	if filepath.IsAbs(path) || d.dir == "" {
		return path
	}
	return filepath.Join(d.dir, path)
}

func parseAccount(s string) (types.AccountAddress, error) {
	addr, err := types.AccountAddressFromHex(s)
	if err != nil {
		return types.AccountAddress{}, xerrors.Errorf("invalid account address %q: %w", s, err)
	}
	return addr, nil
}

func parseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func parseKeys(keys []string) ([]ed25519.PublicKey, error) {
	out := make([]ed25519.PublicKey, 0, len(keys))
	for _, k := range keys {
		b, err := parseHex(k)
		if err != nil {
			return nil, err
		}
		if len(b) != ed25519.PublicKeySize {
			return nil, xerrors.Errorf("key %q is not %d bytes", k, ed25519.PublicKeySize)
		}
		out = append(out, ed25519.PublicKey(b))
	}
	return out, nil
}
