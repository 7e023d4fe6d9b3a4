package types

import (
	"errors"
	"fmt"
)

// ErrOutOfEnergy is returned when an energy budget cannot cover a charge.
var ErrOutOfEnergy error = errors.New("out of energy")

// interpreterEnergyFactor is how many interpreter energy units make up one
// unit of energy.
const interpreterEnergyFactor = 1000

// Energy is the gas unit charged to accounts.
type Energy uint64

// InterpreterEnergy is the finer grained gas unit consumed while executing
// Wasm code. One Energy is 1000 InterpreterEnergy.
type InterpreterEnergy uint64

// TickEnergy subtracts cost from the remaining energy. The remaining energy is
// left untouched when it is insufficient.
func (e *Energy) TickEnergy(cost Energy) error {
	if *e < cost {
		return ErrOutOfEnergy
	}
	*e -= cost
	return nil
}

// CheckedSub returns e - other, or false if that would underflow.
func (e Energy) CheckedSub(other Energy) (Energy, bool) {
	if e < other {
		return 0, false
	}
	return e - other, true
}

func (e Energy) String() string {
	return fmt.Sprintf("%d NRG", uint64(e))
}

// SaturatingSub returns ie - other, or zero if other is larger.
func (ie InterpreterEnergy) SaturatingSub(other InterpreterEnergy) InterpreterEnergy {
	if ie < other {
		return 0
	}
	return ie - other
}

// TickEnergy subtracts cost from the remaining interpreter energy.
func (ie *InterpreterEnergy) TickEnergy(cost InterpreterEnergy) error {
	if *ie < cost {
		*ie = 0
		return ErrOutOfEnergy
	}
	*ie -= cost
	return nil
}

// ToInterpreterEnergy converts energy into interpreter energy.
func ToInterpreterEnergy(e Energy) InterpreterEnergy {
	return InterpreterEnergy(uint64(e) * interpreterEnergyFactor)
}

// FromInterpreterEnergy converts interpreter energy into energy, rounding
// down.
func FromInterpreterEnergy(ie InterpreterEnergy) Energy {
	return Energy(uint64(ie) / interpreterEnergyFactor)
}

// InterpreterEnergyUsed returns the energy spent by the interpreter given the
// amount it was handed and the amount it reported back. The subtraction
// happens in interpreter units before rounding down, and never reports more
// than was given.
func InterpreterEnergyUsed(given, remaining InterpreterEnergy) Energy {
	return FromInterpreterEnergy(given.SaturatingSub(remaining))
}
