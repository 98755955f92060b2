// Package calculator quotes swaps against pool views without touching chain state.
package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	one     = big.NewInt(1)
	ten     = big.NewInt(10)
	hundred = big.NewInt(100)

	// precomputed 10^dec for typical ERC20 decimals (0..18)
	precomputedScales [19]*big.Int

	bigIntPool = sync.Pool{
		New: func() any {
			return new(big.Int)
		},
	}

	// ErrInvalidAmount is returned when an input/output amount is negative, or zero where a quote needs it positive.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when a reserve is empty or an amountOut is not below the reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrInvalidPath is returned for swap paths shorter than two tokens.
	ErrInvalidPath = errors.New("invalid path")
)

func init() {
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// getBig grabs a *big.Int from the pool and zeros it.
func getBig() *big.Int {
	b := bigIntPool.Get().(*big.Int)
	b.SetUint64(0)
	return b
}

// putBig returns a *big.Int to the pool.
func putBig(b *big.Int) {
	if b != nil {
		bigIntPool.Put(b)
	}
}

// GetScaledDecimal returns 10^dec. It returns a *big.Int that MUST NOT be modified.
func GetScaledDecimal(dec uint8) *big.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(dec)), nil)
}

// Calculator holds reusable big.Int objects to avoid allocations during calculations.
// Instances are NOT safe for concurrent use; they are handed out by calculatorPool.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	numeratorIn   *big.Int
	denominatorIn *big.Int

	newReserve0 *big.Int
	newReserve1 *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
			newReserve0:     new(big.Int),
			newReserve1:     new(big.Int),
		}
	},
}

// PoolLookup resolves the pool for two tokens given in either order.
type PoolLookup func(tokenA, tokenB common.Address) (uniswapv2.Pool, error)

// SortTokens orders two token addresses, rejecting identical and zero addresses.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address, err error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, uniswapv2.ErrIdenticalAddresses
	}
	token0, token1 = uniswapv2.SortTokens(tokenA, tokenB)
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, uniswapv2.ErrZeroAddress
	}
	return token0, token1, nil
}

// PairFor returns the address the factory deploys the pair of tokenA and tokenB at.
func PairFor(factory, tokenA, tokenB common.Address) (common.Address, error) {
	if _, _, err := SortTokens(tokenA, tokenB); err != nil {
		return common.Address{}, err
	}
	return uniswapv2.PairAddress(factory, tokenA, tokenB), nil
}

// Quote returns the amount of B equal in value to amountA at the pool's current ratio, ignoring fees.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || reserveA == nil || reserveB == nil {
		return nil, ErrNilAmount
	}
	if amountA.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quote amount %s", ErrInvalidAmount, amountA)
	}
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountB := new(big.Int).Mul(amountA, reserveB)
	return amountB.Div(amountB, reserveA), nil
}

// GetAmountOut calculates the output amount for a swap of amountIn.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountIn calculates the input required to receive amountOut.
func GetAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, pool)
}

// SimulateSwap returns the output of a swap and the pool as it would be afterwards.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountsOut chains GetAmountOut along path. amounts[0] is amountIn.
func GetAmountsOut(amountIn *big.Int, path []common.Address, lookup PoolLookup) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", ErrInvalidPath, len(path))
	}
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)

	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		pool, err := lookup(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if err := requireLiquidity(pool); err != nil {
			return nil, err
		}
		if amounts[i+1], err = calc.getAmountOut(amounts[i], path[i], path[i+1], pool); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// GetAmountsIn walks path backwards from the desired output. amounts[len-1] is amountOut.
func GetAmountsIn(amountOut *big.Int, path []common.Address, lookup PoolLookup) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", ErrInvalidPath, len(path))
	}
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)

	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		pool, err := lookup(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		if amounts[i-1], err = calc.getAmountIn(amounts[i], path[i-1], path[i], pool); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

func requireLiquidity(pool uniswapv2.Pool) error {
	if pool.Reserve0 == nil || pool.Reserve1 == nil || pool.Reserve0.Sign() <= 0 || pool.Reserve1.Sign() <= 0 {
		return fmt.Errorf("%w: pool %s is empty", ErrInsufficientLiquidity, pool.Address.Hex())
	}
	return nil
}

func (c *Calculator) getAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	// amountOut = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}
	return new(big.Int).Div(c.numerator, c.denominator), nil
}

func (c *Calculator) getAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	// amountIn = reserveIn*amountOut*10000 / ((reserveOut-amountOut)*(10000-fee)) + 1
	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)
	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	if c.denominatorIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}
	amountIn := new(big.Int).Div(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, one), nil
}

func (c *Calculator) simulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	amountOut, err := c.getAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}

	next := pool
	if tokenIn == pool.Token0 {
		c.newReserve0.Add(pool.Reserve0, amountIn)
		c.newReserve1.Sub(pool.Reserve1, amountOut)
	} else {
		c.newReserve1.Add(pool.Reserve1, amountIn)
		c.newReserve0.Sub(pool.Reserve0, amountOut)
	}
	next.Reserve0 = new(big.Int).Set(c.newReserve0)
	next.Reserve1 = new(big.Int).Set(c.newReserve1)
	return amountOut, next, nil
}

// GetReserves returns the pool's reserves ordered as (tokenIn, tokenOut).
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		return pool.Reserve0, pool.Reserve1, nil
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

// GetExchangeRate returns the output for one whole unit of tokenIn, sampled
// with 1% of the input reserve so the fee and price impact are included.
func GetExchangeRate(tokenIn, tokenOut common.Address, decimalsIn uint8, pool uniswapv2.Pool) (*big.Int, error) {
	amountIn := getBig()
	temp := getBig()
	defer func() {
		putBig(amountIn)
		putBig(temp)
	}()

	switch tokenIn {
	case pool.Token0:
		if pool.Reserve0.Sign() == 0 {
			return nil, fmt.Errorf("%w: zero reserve for token0", ErrInsufficientLiquidity)
		}
		amountIn.Div(pool.Reserve0, hundred)
	case pool.Token1:
		if pool.Reserve1.Sign() == 0 {
			return nil, fmt.Errorf("%w: zero reserve for token1", ErrInsufficientLiquidity)
		}
		amountIn.Div(pool.Reserve1, hundred)
	default:
		return nil, fmt.Errorf("%w: %s not in pool", ErrTokenMismatch, tokenIn.Hex())
	}
	if amountIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: sample amount is zero", ErrInvalidAmount)
	}

	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	temp.Mul(GetScaledDecimal(decimalsIn), amountOut)
	return new(big.Int).Div(temp, amountIn), nil
}
