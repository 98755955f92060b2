package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-amm-go/math/safemath"
	"github.com/defistate/defistate-amm-go/math/uq112x112"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/holiman/uint256"
)

// ErrNoElapsedTime is returned when two observations share a timestamp.
var ErrNoElapsedTime = errors.New("observations are at the same timestamp")

// Observation is a pair's cumulative prices, in Q112.112 seconds, as of Timestamp.
type Observation struct {
	Timestamp        uint32
	Price0Cumulative *uint256.Int
	Price1Cumulative *uint256.Int
}

// Observe returns the cumulative prices of pool as they stand at timestamp.
// The time since the pool's last update is counted at its current reserves,
// so a reading does not have to wait for the pair to be touched.
func Observe(pool uniswapv2.Pool, timestamp uint32) (Observation, error) {
	p0, err := toUint256(pool.Price0CumulativeLast)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: price0CumulativeLast: %w", ErrInvalidState, err)
	}
	p1, err := toUint256(pool.Price1CumulativeLast)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: price1CumulativeLast: %w", ErrInvalidState, err)
	}
	r0, err := reserve112(pool.Reserve0)
	if err != nil {
		return Observation{}, err
	}
	r1, err := reserve112(pool.Reserve1)
	if err != nil {
		return Observation{}, err
	}

	if elapsed := uq112x112.Elapsed(timestamp, pool.BlockTimestampLast); elapsed > 0 && !r0.IsZero() && !r1.IsZero() {
		p0 = uq112x112.Accumulate(p0, uq112x112.Price(r1, r0), elapsed)
		p1 = uq112x112.Accumulate(p1, uq112x112.Price(r0, r1), elapsed)
	}
	return Observation{Timestamp: timestamp, Price0Cumulative: p0, Price1Cumulative: p1}, nil
}

// AveragePrices returns the time-weighted average prices, in Q112.112, between
// two observations of the same pair. Both the accumulators and the 32-bit
// timestamps may have wrapped in between.
func AveragePrices(older, newer Observation) (price0, price1 *uint256.Int, err error) {
	elapsed := uq112x112.Elapsed(newer.Timestamp, older.Timestamp)
	if elapsed == 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoElapsedTime, newer.Timestamp)
	}
	price0 = uq112x112.Average(newer.Price0Cumulative, older.Price0Cumulative, elapsed)
	price1 = uq112x112.Average(newer.Price1Cumulative, older.Price1Cumulative, elapsed)
	return price0, price1, nil
}

// Consult converts amountIn at a Q112.112 price, truncating the fraction.
func Consult(price *uint256.Int, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	amount, err := toUint256(amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	product, err := safemath.Mul(price, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return uq112x112.Decode(product).ToBig(), nil
}

func reserve112(b *big.Int) (*uint256.Int, error) {
	v, err := toUint256(b)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve: %w", ErrInvalidState, err)
	}
	v, err = safemath.ToUint112(v)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve: %w", ErrInvalidState, err)
	}
	return v, nil
}

// toUint256 converts b, treating nil as zero.
func toUint256(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits", b)
	}
	return v, nil
}
