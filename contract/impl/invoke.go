package impl

import (
	"crypto/ed25519"
	"encoding/binary"

	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
	"golang.org/x/xerrors"
)

// Tags of the requests a contract can make with invoke. Integers in the
// payloads are little-endian.
const (
	// TagTransfer: account address (32), amount (8).
	TagTransfer uint32 = iota
	// TagCall: contract index (8), subindex (8), parameter (2 byte length
	// and bytes), entrypoint (2 byte length and bytes), amount (8).
	TagCall
	// TagQueryAccountBalance: account address (32).
	TagQueryAccountBalance
	// TagQueryContractBalance: contract index (8), subindex (8).
	TagQueryContractBalance
	// TagQueryExchangeRates: empty.
	TagQueryExchangeRates
	// TagCheckAccountSignature: account address (32), message (4 byte
	// length and bytes), number of signatures (1) and for each the key
	// index (1) and the signature (64).
	TagCheckAccountSignature
	// TagQueryAccountKeys: account address (32).
	TagQueryAccountKeys
)

// payloadReader consumes a request payload.
type payloadReader struct {
	buf []byte
	err error
}

// next returns the next n bytes. Once the payload is exhausted it returns
// zeros for fixed size fields and nil otherwise.
func (r *payloadReader) next(n int) []byte {
	if r.err == nil && len(r.buf) < n {
		r.err = xerrors.Errorf("payload too short")
	}
	if r.err != nil {
		if n > 8 {
			return nil
		}
		return make([]byte, n)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *payloadReader) u8() uint8 {
	return r.next(1)[0]
}

func (r *payloadReader) u16() uint16 {
	return binary.LittleEndian.Uint16(r.next(2))
}

func (r *payloadReader) u32() uint32 {
	return binary.LittleEndian.Uint32(r.next(4))
}

func (r *payloadReader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.next(8))
}

func (r *payloadReader) bytes(n int) []byte {
	return append([]byte(nil), r.next(n)...)
}

func (r *payloadReader) account() types.AccountAddress {
	var addr types.AccountAddress
	copy(addr[:], r.next(types.AccountAddressSize))
	return addr
}

func (r *payloadReader) contract() types.ContractAddress {
	index := r.u64()
	return types.NewContractAddress(index, r.u64())
}

// done fails when the payload was short or has trailing bytes.
func (r *payloadReader) done() error {
	if r.err == nil && len(r.buf) > 0 {
		r.err = xerrors.Errorf("%d trailing bytes in payload", len(r.buf))
	}
	return r.err
}

func decodeRequest(tag uint32, payload []byte) (contract.Request, error) {
	r := &payloadReader{buf: payload}
	var req contract.Request
	switch tag {
	case TagTransfer:
		to := r.account()
		req = contract.Transfer{To: to, Amount: types.Amount(r.u64())}
	case TagCall:
		call := contract.Call{To: r.contract()}
		call.Parameter = r.bytes(int(r.u16()))
		call.Entrypoint = string(r.next(int(r.u16())))
		call.Amount = types.Amount(r.u64())
		req = call
	case TagQueryAccountBalance:
		req = contract.QueryAccountBalance{Address: r.account()}
	case TagQueryContractBalance:
		req = contract.QueryContractBalance{Address: r.contract()}
	case TagQueryExchangeRates:
		req = contract.QueryExchangeRates{}
	case TagCheckAccountSignature:
		check := contract.CheckAccountSignature{Address: r.account()}
		check.Message = r.bytes(int(r.u32()))
		n := int(r.u8())
		for i := 0; i < n && r.err == nil; i++ {
			index := r.u8()
			check.Signatures = append(check.Signatures, contract.IndexedSignature{
				KeyIndex:  index,
				Signature: r.bytes(ed25519.SignatureSize),
			})
		}
		req = check
	case TagQueryAccountKeys:
		req = contract.QueryAccountKeys{Address: r.account()}
	default:
		return nil, xerrors.Errorf("unknown invoke tag %d", tag)
	}
	if err := r.done(); err != nil {
		return nil, xerrors.Errorf("malformed %s request: %v", req.Name(), err)
	}
	return req, nil
}
