package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrBalanceOverflow is returned when an addition would exceed the
	// maximum representable amount.
	ErrBalanceOverflow error = errors.New("balance overflow")
	// ErrInsufficientBalance is returned when a subtraction would go below
	// zero.
	ErrInsufficientBalance error = errors.New("insufficient balance")
	// ErrZeroDenominator is returned for exchange rates with a zero part.
	ErrZeroDenominator error = errors.New("exchange rate numerator and denominator must be non-zero")
)

const microCCDPerCCD = 1_000_000

// Amount is a quantity of CCD expressed in microCCD.
type Amount uint64

// AmountFromCCD returns the amount of ccd whole CCDs.
func AmountFromCCD(ccd uint64) Amount {
	return Amount(ccd * microCCDPerCCD)
}

// AmountFromMicroCCD returns the amount of micro microCCDs.
func AmountFromMicroCCD(micro uint64) Amount {
	return Amount(micro)
}

// MicroCCD returns the amount in microCCD.
func (a Amount) MicroCCD() uint64 {
	return uint64(a)
}

// CheckedAdd adds two amounts and fails on overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return 0, ErrBalanceOverflow
	}
	return a + b, nil
}

// CheckedSub subtracts b and fails if the result would be negative.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if a < b {
		return 0, ErrInsufficientBalance
	}
	return a - b, nil
}

func (a Amount) String() string {
	return fmt.Sprintf("%d.%06d CCD", uint64(a)/microCCDPerCCD, uint64(a)%microCCDPerCCD)
}

// AccountBalance is the balance of an account. Only Total is changed by the
// simulator; Staked and Locked are kept as given.
type AccountBalance struct {
	Total  Amount
	Staked Amount
	Locked Amount
}

// NewAccountBalance returns a balance where the staked and locked parts must
// fit inside the total.
func NewAccountBalance(total, staked, locked Amount) (AccountBalance, error) {
	reserved, err := staked.CheckedAdd(locked)
	if err != nil || reserved > total {
		return AccountBalance{}, fmt.Errorf("staked + locked exceeds total %s: %w", total, ErrInsufficientBalance)
	}
	return AccountBalance{Total: total, Staked: staked, Locked: locked}, nil
}

// Available returns the part of the balance that is neither staked nor
// locked.
func (b AccountBalance) Available() Amount {
	reserved := b.Staked + b.Locked
	if reserved < b.Staked || reserved >= b.Total {
		return 0
	}
	return b.Total - reserved
}

func (b AccountBalance) String() string {
	return fmt.Sprintf("{total=%s, staked=%s, locked=%s}", b.Total, b.Staked, b.Locked)
}

// ExchangeRate is a positive rational number.
type ExchangeRate struct {
	Numerator   uint64
	Denominator uint64
}

// NewExchangeRate returns the rate numerator/denominator.
func NewExchangeRate(numerator, denominator uint64) (ExchangeRate, error) {
	if numerator == 0 || denominator == 0 {
		return ExchangeRate{}, ErrZeroDenominator
	}
	return ExchangeRate{Numerator: numerator, Denominator: denominator}, nil
}

// NewExchangeRateUnchecked returns the rate without validating it.
func NewExchangeRateUnchecked(numerator, denominator uint64) ExchangeRate {
	return ExchangeRate{Numerator: numerator, Denominator: denominator}
}

func (r ExchangeRate) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}

// Timestamp is a point in time in milliseconds since the unix epoch.
type Timestamp uint64

// TimestampFromMillis returns the timestamp ms milliseconds after the epoch.
func TimestampFromMillis(ms uint64) Timestamp {
	return Timestamp(ms)
}

// Millis returns the timestamp in milliseconds since the epoch.
func (t Timestamp) Millis() uint64 {
	return uint64(t)
}

func (t Timestamp) String() string {
	if uint64(t) > math.MaxInt64 {
		return fmt.Sprintf("%dms", uint64(t))
	}
	return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339Nano)
}
