package safemath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedArithmetic(t *testing.T) {
	max := MaxUint256
	one := uint256.NewInt(1)
	two := uint256.NewInt(2)

	testCases := []struct {
		name        string
		op          func(x, y *uint256.Int) (*uint256.Int, error)
		x, y        *uint256.Int
		expected    *uint256.Int
		expectedErr error
	}{
		{name: "add", op: Add, x: one, y: two, expected: uint256.NewInt(3)},
		{name: "add overflow", op: Add, x: max, y: one, expectedErr: ErrOverflow},
		{name: "sub", op: Sub, x: two, y: one, expected: one},
		{name: "sub to zero", op: Sub, x: two, y: two, expected: new(uint256.Int)},
		{name: "sub underflow", op: Sub, x: one, y: two, expectedErr: ErrUnderflow},
		{name: "mul", op: Mul, x: two, y: uint256.NewInt(21), expected: uint256.NewInt(42)},
		{name: "mul by zero", op: Mul, x: max, y: new(uint256.Int), expected: new(uint256.Int)},
		{name: "mul overflow", op: Mul, x: max, y: two, expectedErr: ErrOverflow},
		{name: "div floors", op: Div, x: uint256.NewInt(7), y: two, expected: uint256.NewInt(3)},
		{name: "div by zero", op: Div, x: one, y: new(uint256.Int), expectedErr: ErrDivisionByZero},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.op(tc.x, tc.y)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Eq(got), "expected %s, got %s", tc.expected.Dec(), got.Dec())
		})
	}
}

func TestInputsAreNotMutated(t *testing.T) {
	x := uint256.NewInt(10)
	y := uint256.NewInt(4)

	_, err := Sub(x, y)
	require.NoError(t, err)
	_, err = Mul(x, y)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), x.Uint64())
	assert.Equal(t, uint64(4), y.Uint64())
}

func TestToUint112(t *testing.T) {
	v, err := ToUint112(MaxUint112)
	require.NoError(t, err)
	assert.True(t, v.Eq(MaxUint112))
	assert.NotSame(t, MaxUint112, v)

	tooBig := new(uint256.Int).AddUint64(MaxUint112, 1)
	_, err = ToUint112(tooBig)
	assert.ErrorIs(t, err, ErrUint112Overflow)
}

func TestSqrtAndMin(t *testing.T) {
	assert.Equal(t, uint64(2), Sqrt(uint256.NewInt(4)).Uint64())
	assert.Equal(t, uint64(2), Sqrt(uint256.NewInt(8)).Uint64())
	assert.Equal(t, uint64(0), Sqrt(new(uint256.Int)).Uint64())

	// sqrt(1e18 * 4e18) = 2e18
	a := uint256.MustFromDecimal("1000000000000000000")
	b := uint256.MustFromDecimal("4000000000000000000")
	prod, err := Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", Sqrt(prod).Dec())

	assert.Equal(t, uint64(3), Min(uint256.NewInt(3), uint256.NewInt(9)).Uint64())
	assert.Equal(t, uint64(3), Min(uint256.NewInt(9), uint256.NewInt(3)).Uint64())
}
