package calculator

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

var (
	usdc    = common.HexToAddress("0x1000000000000000000000000000000000000000")
	weth    = common.HexToAddress("0x2000000000000000000000000000000000000000")
	dai     = common.HexToAddress("0x3000000000000000000000000000000000000000")
	unknown = common.HexToAddress("0x9900000000000000000000000000000000000000")
)

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name           string
		amountIn       *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		pool           uniswapv2.Pool
		expectedAmount *big.Int
		expectError    bool
		expectedErr    error // Use specific error types for checking
	}{
		{
			name:     "Standard Swap (Token0 -> Token1)",
			amountIn: big.NewInt(1_000_000), // 1 USDC (6 decimals)
			tokenIn:  usdc,
			tokenOut: weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),                     // 100 USDC
				Reserve1: newBigIntFromString("50000000000000000000"), // 50 WETH (18 decimals)
				FeeBps:   30,
			},
			expectedAmount: newBigIntFromString("493579017198530649"),
			expectError:    false,
		},
		{
			name:     "Standard Swap (Token1 -> Token0)",
			amountIn: newBigIntFromString("1000000000000000000"), // 1 WETH
			tokenIn:  weth,
			tokenOut: usdc,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedAmount: big.NewInt(1955016),
			expectError:    false,
		},
		{
			name:     "Swap with Different Fee",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  usdc,
			tokenOut: weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   100, // 1% fee
			},
			expectedAmount: newBigIntFromString("490147539360332706"),
			expectError:    false,
		},
		{
			name:     "Edge Case: Zero Liquidity",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  usdc,
			tokenOut: weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(0), // Zero reserve
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedAmount: big.NewInt(0),
			expectError:    false,
		},
		{
			name:        "Invalid Input: Nil AmountIn",
			amountIn:    nil,
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        uniswapv2.Pool{},
			expectError: true,
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Invalid Input: Negative AmountIn",
			amountIn:    big.NewInt(-100),
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        uniswapv2.Pool{},
			expectError: true,
			expectedErr: ErrInvalidAmount,
		},
		{
			name:     "Invalid Input: Token Mismatch",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  unknown,
			tokenOut: weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
			},
			expectError: true,
			expectedErr: ErrTokenMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountOut, err := GetAmountOut(tc.amountIn, tc.tokenIn, tc.tokenOut, tc.pool)

			if tc.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				require.NotNil(t, amountOut)
				assert.Zero(t, tc.expectedAmount.Cmp(amountOut), "Expected %s, but got %s", tc.expectedAmount.String(), amountOut.String())
			}
		})
	}
}

func TestGetAmountIn(t *testing.T) {
	testCases := []struct {
		name           string
		amountOut      *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		pool           uniswapv2.Pool
		expectedAmount *big.Int
		expectError    bool
		expectedErr    error
	}{
		{
			name:      "Standard Swap (Token0 -> Token1)",
			amountOut: newBigIntFromString("493579017198530649"),
			tokenIn:   usdc,
			tokenOut:  weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedAmount: big.NewInt(1000000),
			expectError:    false,
		},
		{
			name:      "Standard Swap (Token1 -> Token0)",
			amountOut: big.NewInt(1955016),
			tokenIn:   weth,
			tokenOut:  usdc,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedAmount: newBigIntFromString("999999498234537320"),
			expectError:    false,
		},
		{
			name:        "Invalid Input: Nil AmountOut",
			amountOut:   nil,
			expectError: true,
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Invalid Input: Negative AmountOut",
			amountOut:   big.NewInt(-100),
			expectError: true,
			expectedErr: ErrInvalidAmount,
		},
		{
			name:      "Invalid State: Insufficient Liquidity",
			amountOut: newBigIntFromString("60000000000000000000"), // Request more than is in the pool
			tokenIn:   usdc,
			tokenOut:  weth,
			pool: uniswapv2.Pool{
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
			},
			expectError: true,
			expectedErr: ErrInsufficientLiquidity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountIn, err := GetAmountIn(tc.amountOut, tc.tokenIn, tc.tokenOut, tc.pool)

			if tc.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				require.NotNil(t, amountIn)
				assert.Zero(t, tc.expectedAmount.Cmp(amountIn), "Expected %s, but got %s", tc.expectedAmount.String(), amountIn.String())
			}
		})
	}
}

func TestSimulateSwap(t *testing.T) {
	pool := uniswapv2.Pool{
		Token0:   usdc,
		Token1:   weth,
		Reserve0: big.NewInt(100_000_000),
		Reserve1: newBigIntFromString("50000000000000000000"),
		FeeBps:   30,
	}
	amountIn := big.NewInt(1_000_000)

	amountOut, newPool, err := SimulateSwap(amountIn, usdc, weth, pool)
	require.NoError(t, err)

	// Check amountOut
	expectedAmountOut := newBigIntFromString("493579017198530649")
	assert.Zero(t, expectedAmountOut.Cmp(amountOut))

	// Check new reserves
	expectedReserve0 := new(big.Int).Add(pool.Reserve0, amountIn)
	expectedReserve1 := new(big.Int).Sub(pool.Reserve1, amountOut)
	assert.Zero(t, expectedReserve0.Cmp(newPool.Reserve0))
	assert.Zero(t, expectedReserve1.Cmp(newPool.Reserve1))
}

// TestSimulateSwap_IdempotencyAndStateIsolation verifies that the simulation
// function does not mutate its inputs and that the returned new state is a
// proper deep copy of its mutable fields, preventing side effects.
func TestSimulateSwap_IdempotencyAndStateIsolation(t *testing.T) {
	originalPool := uniswapv2.Pool{
		Token0:   usdc,
		Token1:   weth,
		Reserve0: big.NewInt(100_000_000),
		Reserve1: newBigIntFromString("50000000000000000000"),
		FeeBps:   30,
	}
	amountIn := big.NewInt(1_000_000)

	amountOut1, newPoolState1, err1 := SimulateSwap(amountIn, usdc, weth, originalPool)
	require.NoError(t, err1, "First simulation should succeed")

	amountOut2, newPoolState2, err2 := SimulateSwap(amountIn, usdc, weth, originalPool)
	require.NoError(t, err2, "Second simulation should succeed")

	t.Run("Idempotency Check", func(t *testing.T) {
		// This proves that the first simulation did not mutate the 'originalPool' object.
		// If it had, the second simulation would have started from a different state
		// and produced a different result.
		assert.Equal(t, amountOut1.String(), amountOut2.String(), "Amount out should be identical on consecutive runs")
		assert.True(t, reflect.DeepEqual(newPoolState1, newPoolState2), "The new pool state should be identical on consecutive runs")
	})

	t.Run("Deep Copy Check (Reserves)", func(t *testing.T) {
		// This proves that the mutable *big.Int fields in the new state are new
		// instances in memory, not just copies of the original pointers.
		assert.NotSame(t, originalPool.Reserve0, newPoolState1.Reserve0, "New state's Reserve0 should be a new big.Int instance")
		assert.NotSame(t, originalPool.Reserve1, newPoolState1.Reserve1, "New state's Reserve1 should be a new big.Int instance")
	})

	t.Run("Result Isolation Check", func(t *testing.T) {
		// This is the definitive test. We modify the result of the first simulation
		// and verify that the result of the second simulation is not affected.
		// This proves that the two returned states are truly independent of each other.
		originalReserve2 := new(big.Int).Set(newPoolState2.Reserve0)

		// Mutate the result of the first simulation
		newPoolState1.Reserve0.Add(newPoolState1.Reserve0, big.NewInt(12345))

		// Assert that the second result remains unchanged
		assert.NotEqual(t, newPoolState1.Reserve0.String(), newPoolState2.Reserve0.String(), "Modifying state 1 should not affect state 2")
		assert.Equal(t, originalReserve2.String(), newPoolState2.Reserve0.String(), "State 2's Reserve0 should remain pristine")
	})
}

// result is a package-level variable to ensure the compiler does not optimize away the benchmarked function call.
var result *big.Int
var resultPool uniswapv2.Pool

func BenchmarkGetAmountOut(b *testing.B) {
	pool := uniswapv2.Pool{
		Token0:   usdc,
		Token1:   weth,
		Reserve0: newBigIntFromString("2000000000000"),          // 2,000,000 USDC
		Reserve1: newBigIntFromString("1000000000000000000000"), // 1,000 WETH
		FeeBps:   30,
	}
	amountIn := newBigIntFromString("1000000000000000000") // 1 WETH
	tokenIn := weth
	tokenOut := usdc

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountOut, _ := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
		result = amountOut
	}
}

func BenchmarkGetAmountIn(b *testing.B) {
	pool := uniswapv2.Pool{
		Token0:   usdc,
		Token1:   weth,
		Reserve0: newBigIntFromString("2000000000000"),
		Reserve1: newBigIntFromString("1000000000000000000000"),
		FeeBps:   30,
	}
	amountOut := newBigIntFromString("1994000000") // ~1994 USDC
	tokenIn := weth
	tokenOut := usdc

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountIn, _ := GetAmountIn(amountOut, tokenIn, tokenOut, pool)
		result = amountIn
	}
}

func BenchmarkSimulateSwap(b *testing.B) {
	pool := uniswapv2.Pool{
		Token0:   usdc,
		Token1:   weth,
		Reserve0: newBigIntFromString("2000000000000"),
		Reserve1: newBigIntFromString("1000000000000000000000"),
		FeeBps:   30,
	}
	amountIn := newBigIntFromString("1000000000000000000")
	tokenIn := weth
	tokenOut := usdc

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountOut, newPool, _ := SimulateSwap(amountIn, tokenIn, tokenOut, pool)
		result = amountOut
		resultPool = newPool
	}
}

func TestGetExchangeRate(t *testing.T) {
	// 1,000 WETH against 3,000,000 USDC
	reserve0 := new(big.Int).Mul(big.NewInt(1000), GetScaledDecimal(18))
	reserve1 := new(big.Int).Mul(big.NewInt(3000000), GetScaledDecimal(6))

	mockPool := uniswapv2.Pool{
		Token0:   weth,
		Token1:   usdc,
		Reserve0: reserve0,
		Reserve1: reserve1,
	}

	testCases := []struct {
		name          string
		tokenIn       common.Address
		tokenOut      common.Address
		decimalsIn    uint8
		pool          uniswapv2.Pool
		expectedPrice string
		expectedErr   error
	}{
		{
			name:          "native direction",
			tokenIn:       weth,
			tokenOut:      usdc,
			decimalsIn:    18,
			pool:          mockPool,
			expectedPrice: "2970297029",
		},
		{
			name:          "inverse direction",
			tokenIn:       usdc,
			tokenOut:      weth,
			decimalsIn:    6,
			pool:          mockPool,
			expectedPrice: "330033003300330",
		},
		{
			name:        "token not in pool",
			tokenIn:     unknown,
			tokenOut:    usdc,
			decimalsIn:  18,
			pool:        mockPool,
			expectedErr: ErrTokenMismatch,
		},
		{
			name:       "zero reserve",
			tokenIn:    weth,
			tokenOut:   usdc,
			decimalsIn: 18,
			pool: uniswapv2.Pool{
				Token0:   weth,
				Token1:   usdc,
				Reserve0: big.NewInt(0),
				Reserve1: reserve1,
			},
			expectedErr: ErrInsufficientLiquidity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := GetExchangeRate(tc.tokenIn, tc.tokenOut, tc.decimalsIn, tc.pool)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedPrice, rate.String())
		})
	}
}

func TestQuote(t *testing.T) {
	amountB, err := Quote(big.NewInt(1_000_000), big.NewInt(100_000_000), newBigIntFromString("50000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", amountB.String())

	_, err = Quote(big.NewInt(0), big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Quote(big.NewInt(1), big.NewInt(0), big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = Quote(nil, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNilAmount)
}

func TestSortTokensAndPairFor(t *testing.T) {
	token0, token1, err := SortTokens(weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdc, token0)
	assert.Equal(t, weth, token1)

	_, _, err = SortTokens(usdc, usdc)
	assert.ErrorIs(t, err, uniswapv2.ErrIdenticalAddresses)
	_, _, err = SortTokens(common.Address{}, usdc)
	assert.ErrorIs(t, err, uniswapv2.ErrZeroAddress)

	factory := common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	pair, err := PairFor(factory, weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, uniswapv2.DeriveAddress(factory, usdc, weth, uniswapv2.PairCodeHash), pair)

	_, err = PairFor(factory, weth, weth)
	assert.ErrorIs(t, err, uniswapv2.ErrIdenticalAddresses)
}

// routePools is a two hop route usdc -> weth -> dai.
func routePools() PoolLookup {
	pools := []uniswapv2.Pool{
		{
			Token0:   usdc,
			Token1:   weth,
			Reserve0: big.NewInt(100_000_000),
			Reserve1: newBigIntFromString("50000000000000000000"),
			FeeBps:   30,
		},
		{
			Token0:   weth,
			Token1:   dai,
			Reserve0: newBigIntFromString("50000000000000000000"),
			Reserve1: newBigIntFromString("200000000000000000000"),
			FeeBps:   30,
		},
	}
	return func(tokenA, tokenB common.Address) (uniswapv2.Pool, error) {
		token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)
		for _, p := range pools {
			if p.Token0 == token0 && p.Token1 == token1 {
				return p, nil
			}
		}
		return uniswapv2.Pool{}, errors.New("no pool")
	}
}

func TestGetAmountsOut(t *testing.T) {
	amounts, err := GetAmountsOut(big.NewInt(1_000_000), []common.Address{usdc, weth, dai}, routePools())
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	assert.Equal(t, "1000000", amounts[0].String())
	assert.Equal(t, "493579017198530649", amounts[1].String())
	assert.Equal(t, "1949209071948685200", amounts[2].String())

	_, err = GetAmountsOut(big.NewInt(1), []common.Address{usdc}, routePools())
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = GetAmountsOut(big.NewInt(1), []common.Address{usdc, dai}, routePools())
	assert.EqualError(t, err, "no pool")

	empty := func(tokenA, tokenB common.Address) (uniswapv2.Pool, error) {
		return uniswapv2.Pool{Token0: usdc, Token1: weth, Reserve0: big.NewInt(0), Reserve1: big.NewInt(0)}, nil
	}
	_, err = GetAmountsOut(big.NewInt(1), []common.Address{usdc, weth}, empty)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestGetAmountsIn(t *testing.T) {
	amounts, err := GetAmountsIn(newBigIntFromString("1000000000000000000"), []common.Address{usdc, weth, dai}, routePools())
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	assert.Equal(t, "508103", amounts[0].String())
	assert.Equal(t, "252012318362121541", amounts[1].String())
	assert.Equal(t, "1000000000000000000", amounts[2].String())

	_, err = GetAmountsIn(big.NewInt(1), nil, routePools())
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = GetAmountsIn(newBigIntFromString("500000000000000000000"), []common.Address{usdc, weth, dai}, routePools())
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}
