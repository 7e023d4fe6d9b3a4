package fee

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/contractsim/types"
)

var (
	defaultEuroPerEnergy   = types.NewExchangeRateUnchecked(1, 50000)
	defaultMicroCCDPerEuro = types.NewExchangeRateUnchecked(50000, 1)
)

func Test_CheckExchangeRates(t *testing.T) {
	max := MaxMicroCCDPerEnergy()

	err := CheckExchangeRates(types.NewExchangeRateUnchecked(max+1, 1), types.NewExchangeRateUnchecked(1, 1))
	require.ErrorIs(t, err, ErrExchangeRate)

	err = CheckExchangeRates(types.NewExchangeRateUnchecked(max/2+1, 1), types.NewExchangeRateUnchecked(2, 1))
	require.ErrorIs(t, err, ErrExchangeRate)

	require.NoError(t, CheckExchangeRates(types.NewExchangeRateUnchecked(max, 1), types.NewExchangeRateUnchecked(1, 1)))
	require.NoError(t, CheckExchangeRates(defaultEuroPerEnergy, defaultMicroCCDPerEuro))
}

func Test_CheckExchangeRates_Overflowing_Ratio(t *testing.T) {
	rate := types.NewExchangeRateUnchecked(math.MaxUint64, 1)
	require.ErrorIs(t, CheckExchangeRates(rate, rate), ErrExchangeRate)
}

func Test_EnergyToAmount_Default_Rates(t *testing.T) {
	for _, e := range []types.Energy{0, 1, 42, 1_000_000, MaxAllowedInvokeEnergy} {
		require.Equal(t, types.Amount(e), EnergyToAmount(e, defaultEuroPerEnergy, defaultMicroCCDPerEuro))
	}
}

func Test_EnergyToAmount_Floors(t *testing.T) {
	// 1/3 microCCD per energy.
	euroPerEnergy := types.NewExchangeRateUnchecked(1, 3)
	microCCDPerEuro := types.NewExchangeRateUnchecked(1, 1)

	require.Equal(t, types.Amount(0), EnergyToAmount(2, euroPerEnergy, microCCDPerEuro))
	require.Equal(t, types.Amount(1), EnergyToAmount(3, euroPerEnergy, microCCDPerEuro))
	require.Equal(t, types.Amount(1), EnergyToAmount(5, euroPerEnergy, microCCDPerEuro))
	require.Equal(t, types.Amount(2), EnergyToAmount(6, euroPerEnergy, microCCDPerEuro))
}

func Test_EnergyToAmount_Max_Energy_At_Boundary(t *testing.T) {
	euroPerEnergy := types.NewExchangeRateUnchecked(MaxMicroCCDPerEnergy(), 1)
	microCCDPerEuro := types.NewExchangeRateUnchecked(1, 1)
	require.NoError(t, CheckExchangeRates(euroPerEnergy, microCCDPerEuro))

	amount := EnergyToAmount(MaxAllowedInvokeEnergy, euroPerEnergy, microCCDPerEuro)
	require.Equal(t, types.Amount(MaxMicroCCDPerEnergy()*uint64(MaxAllowedInvokeEnergy)), amount)
}

func Test_EnergyToAmount_Large_Intermediate(t *testing.T) {
	// Both numerators are large but cancel against the denominators.
	euroPerEnergy := types.NewExchangeRateUnchecked(math.MaxUint64, math.MaxUint64)
	microCCDPerEuro := types.NewExchangeRateUnchecked(math.MaxUint64, math.MaxUint64)
	require.Equal(t, types.Amount(123456789), EnergyToAmount(123456789, euroPerEnergy, microCCDPerEuro))
}

func Test_Costs(t *testing.T) {
	require.Equal(t, types.Energy(100+60), BaseCost(60, 1))
	require.Equal(t, types.Energy(300+10), BaseCost(10, 3))
	require.Equal(t, types.Energy(99), DeployModuleCost(999))
	require.Equal(t, types.Energy(19), LookupModuleCost(999))
	require.Equal(t, types.Energy(210), QueryAccountKeysCost(2))
	require.Equal(t, types.Energy(400), CheckAccountSignatureCost(2))
}
