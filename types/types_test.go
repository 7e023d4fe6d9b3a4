package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Energy_Tick(t *testing.T) {
	e := Energy(10)
	require.NoError(t, e.TickEnergy(4))
	require.Equal(t, Energy(6), e)
	require.ErrorIs(t, e.TickEnergy(7), ErrOutOfEnergy)
	require.Equal(t, Energy(6), e)
	require.NoError(t, e.TickEnergy(6))
	require.Equal(t, Energy(0), e)

	ie := InterpreterEnergy(5)
	require.ErrorIs(t, ie.TickEnergy(6), ErrOutOfEnergy)
	require.Equal(t, InterpreterEnergy(0), ie)
}

func Test_Interpreter_Energy_Roundtrip(t *testing.T) {
	for _, e := range []Energy{0, 1, 999, 123456} {
		require.Equal(t, e, FromInterpreterEnergy(ToInterpreterEnergy(e)))
	}

	// Rounding is floor, never to nearest.
	require.Equal(t, Energy(0), FromInterpreterEnergy(999))
	require.Equal(t, Energy(1), FromInterpreterEnergy(1999))

	given := ToInterpreterEnergy(10)
	require.Equal(t, Energy(0), InterpreterEnergyUsed(given, given))
	require.Equal(t, Energy(0), InterpreterEnergyUsed(given, given-999))
	require.Equal(t, Energy(1), InterpreterEnergyUsed(given, given-1000))
	require.Equal(t, Energy(10), InterpreterEnergyUsed(given, 0))

	// Reporting more remaining energy than was given never counts as
	// negative spending.
	require.Equal(t, Energy(0), InterpreterEnergyUsed(given, given+5000))
}

func Test_Amount_Checked(t *testing.T) {
	_, err := Amount(math.MaxUint64).CheckedAdd(1)
	require.ErrorIs(t, err, ErrBalanceOverflow)

	_, err = Amount(1).CheckedSub(2)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	sum, err := AmountFromCCD(1).CheckedAdd(AmountFromMicroCCD(5))
	require.NoError(t, err)
	require.Equal(t, "1.000005 CCD", sum.String())
}

func Test_AccountBalance_Available(t *testing.T) {
	require.Equal(t, Amount(5), AccountBalance{Total: 10, Staked: 3, Locked: 2}.Available())
	require.Equal(t, Amount(0), AccountBalance{Total: 10, Staked: 7, Locked: 5}.Available())
	require.Equal(t, Amount(0), AccountBalance{Total: 10, Staked: math.MaxUint64, Locked: 2}.Available())

	_, err := NewAccountBalance(10, 6, 5)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	balance, err := NewAccountBalance(10, 6, 4)
	require.NoError(t, err)
	require.Equal(t, Amount(0), balance.Available())
}

func Test_ExchangeRate(t *testing.T) {
	_, err := NewExchangeRate(0, 1)
	require.ErrorIs(t, err, ErrZeroDenominator)
	_, err = NewExchangeRate(1, 0)
	require.ErrorIs(t, err, ErrZeroDenominator)

	rate, err := NewExchangeRate(3, 4)
	require.NoError(t, err)
	require.Equal(t, "3/4", rate.String())
}

func Test_Names(t *testing.T) {
	name, err := NewContractName("init_counter")
	require.NoError(t, err)
	require.Equal(t, "counter", name.Bare())

	for _, bad := range []string{"counter", "init_a.b", "init_ space", string(make([]byte, 101))} {
		_, err := NewContractName(bad)
		require.ErrorIs(t, err, ErrInvalidName, bad)
	}

	receive, err := ReceiveNameFor("counter", "inc")
	require.NoError(t, err)
	require.Equal(t, ReceiveName("counter.inc"), receive)
	require.Equal(t, "counter", receive.Contract())
	require.Equal(t, "inc", receive.Entrypoint())
	require.Equal(t, ReceiveName("counter."), receive.Fallback())

	_, err = NewReceiveName("nodot")
	require.ErrorIs(t, err, ErrInvalidName)
	require.Panics(t, func() { MustReceiveName("nodot") })
}

func Test_Addresses(t *testing.T) {
	c := NewContractAddress(7, 0)
	require.Equal(t, "<7,0>", c.String())
	decoded, err := ContractAddressFromBytes(c.Bytes())
	require.NoError(t, err)
	require.Equal(t, c, decoded)

	addr := ContractAddr(c)
	require.True(t, addr.IsContract())
	got, ok := addr.Contract()
	require.True(t, ok)
	require.Equal(t, c, got)
	require.Equal(t, byte(1), addr.Bytes()[0])

	var acc AccountAddress
	acc[0] = 0xab
	a := AccountAddr(acc)
	_, ok = a.Contract()
	require.False(t, ok)
	require.Len(t, a.Bytes(), 33)
	require.Equal(t, AccountAddr(acc), a)

	parsed, err := AccountAddressFromHex(acc.String())
	require.NoError(t, err)
	require.Equal(t, acc, parsed)
	_, err = AccountAddressFromHex("abcd")
	require.Error(t, err)
}

func Test_Policy_Bytes(t *testing.T) {
	raw := EmptyPolicy().Bytes()
	require.Len(t, raw, 22)
	require.Equal(t, byte(0xff), raw[12])

	policy := OwnedPolicy{IdentityProvider: 1, Items: []PolicyItem{{Tag: 3, Value: []byte("DK")}}}
	raw = policy.Bytes()
	require.Equal(t, []byte{1, 0, 0, 0}, raw[:4])
	require.Equal(t, []byte{1, 0}, raw[20:22])
	require.Equal(t, []byte{3, 2, 0, 'D', 'K'}, raw[22:])
}

func Test_Signer(t *testing.T) {
	_, err := SignerWithKeys(0)
	require.ErrorIs(t, err, ErrZeroKeys)

	signer, err := SignerWithKeys(3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), signer.NumKeys)
	require.Equal(t, uint32(1), SignerWithOneKey().NumKeys)
}
