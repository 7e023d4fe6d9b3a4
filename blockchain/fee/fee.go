// Package fee converts energy to CCD and holds the energy cost table of the
// simulated chain.
//
// Conversion uses two exchange rates:
//
//	euro     microCCD   euro * microCCD   microCCD
//	----  *  -------- = --------------- = --------
//	NRG      euro       NRG * euro        NRG
//
// Intermediate products are computed on 256-bit integers, so multiplying an
// energy value by both numerators can never overflow before the division.
package fee

import (
	"errors"
	"math"

	"github.com/holiman/uint256"

	"go.dedis.ch/contractsim/types"
)

// ErrExchangeRate is returned when the exchange rates would make one energy
// cost more than math.MaxUint64 / MaxAllowedInvokeEnergy microCCD.
var ErrExchangeRate error = errors.New("exchange rates make one energy too expensive")

// microCCDPerEnergy returns the numerator and denominator of the microCCD per
// energy ratio.
func microCCDPerEnergy(euroPerEnergy, microCCDPerEuro types.ExchangeRate) (*uint256.Int, *uint256.Int) {
	num := new(uint256.Int).Mul(uint256.NewInt(euroPerEnergy.Numerator), uint256.NewInt(microCCDPerEuro.Numerator))
	den := new(uint256.Int).Mul(uint256.NewInt(euroPerEnergy.Denominator), uint256.NewInt(microCCDPerEuro.Denominator))
	return num, den
}

// EnergyToAmount computes floor(energy * euroPerEnergy * microCCDPerEuro).
//
// The result saturates at the maximum amount. That cannot happen for rates
// accepted by CheckExchangeRates and energy up to MaxAllowedInvokeEnergy.
func EnergyToAmount(energy types.Energy, euroPerEnergy, microCCDPerEuro types.ExchangeRate) types.Amount {
	num, den := microCCDPerEnergy(euroPerEnergy, microCCDPerEuro)
	if den.IsZero() {
		return types.Amount(math.MaxUint64)
	}
	cost := new(uint256.Int).Mul(num, uint256.NewInt(uint64(energy)))
	cost.Div(cost, den)
	if !cost.IsUint64() {
		return types.Amount(math.MaxUint64)
	}
	return types.Amount(cost.Uint64())
}

// CheckExchangeRates fails with ErrExchangeRate if one energy costs more than
// math.MaxUint64 / MaxAllowedInvokeEnergy microCCD.
func CheckExchangeRates(euroPerEnergy, microCCDPerEuro types.ExchangeRate) error {
	num, den := microCCDPerEnergy(euroPerEnergy, microCCDPerEuro)
	if den.IsZero() {
		return ErrExchangeRate
	}
	perEnergy := new(uint256.Int).Div(num, den)
	if !perEnergy.IsUint64() {
		return ErrExchangeRate
	}
	if perEnergy.Uint64() > MaxMicroCCDPerEnergy() {
		return ErrExchangeRate
	}
	return nil
}

// MaxMicroCCDPerEnergy is the largest accepted microCCD per energy ratio.
func MaxMicroCCDPerEnergy() uint64 {
	return math.MaxUint64 / uint64(MaxAllowedInvokeEnergy)
}
