// Package uq112x112 implements the unsigned Q112.112 fixed-point format used for
// cumulative pool prices. Values are stored in a uint256 word; the low 112 bits are
// the fraction.
package uq112x112

import (
	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits.
const Resolution = 112

// Q112 is 2^112, the fixed-point representation of 1.
var Q112 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)

// Encode converts a uint112 into Q112.112.
func Encode(y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(y, Resolution)
}

// Div divides a Q112.112 value by a uint112. A zero divisor yields zero.
func Div(x, y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(x, y)
}

// Decode truncates a Q112.112 value to its integer part.
func Decode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, Resolution)
}

// Price returns numerator/denominator as Q112.112.
func Price(numerator, denominator *uint256.Int) *uint256.Int {
	return Div(Encode(numerator), denominator)
}

// Accumulate returns acc + price*elapsed, wrapping modulo 2^256.
func Accumulate(acc, price *uint256.Int, elapsed uint32) *uint256.Int {
	step := new(uint256.Int).Mul(price, uint256.NewInt(uint64(elapsed)))
	return step.Add(step, acc)
}

// Average returns the time-weighted average price between two cumulative
// observations taken elapsed seconds apart. Wraparound of the accumulator
// between the observations is handled by modular subtraction.
func Average(cumulativeNow, cumulativeThen *uint256.Int, elapsed uint32) *uint256.Int {
	if elapsed == 0 {
		return new(uint256.Int)
	}
	diff := new(uint256.Int).Sub(cumulativeNow, cumulativeThen)
	return diff.Div(diff, uint256.NewInt(uint64(elapsed)))
}

// Elapsed returns now - then modulo 2^32, matching a 32-bit block timestamp.
func Elapsed(now, then uint32) uint32 {
	return now - then
}
