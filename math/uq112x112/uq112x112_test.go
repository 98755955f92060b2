package uq112x112

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecode(t *testing.T) {
	v := uint256.NewInt(12345)
	enc := Encode(v)
	assert.True(t, new(uint256.Int).Mul(v, Q112).Eq(enc))
	assert.Equal(t, uint64(12345), Decode(enc).Uint64())
}

func TestPrice(t *testing.T) {
	testCases := []struct {
		name      string
		num, den  uint64
		wantInt   uint64
		wantExact bool
	}{
		{name: "two to one", num: 2, den: 1, wantInt: 2, wantExact: true},
		{name: "one to four", num: 1, den: 4, wantInt: 0, wantExact: true},
		{name: "ten to three", num: 10, den: 3, wantInt: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := Price(uint256.NewInt(tc.num), uint256.NewInt(tc.den))
			assert.Equal(t, tc.wantInt, Decode(p).Uint64())
			back := new(uint256.Int).Mul(p, uint256.NewInt(tc.den))
			if tc.wantExact {
				assert.True(t, back.Eq(Encode(uint256.NewInt(tc.num))))
			} else {
				assert.True(t, back.Lt(Encode(uint256.NewInt(tc.num))))
			}
		})
	}
}

func TestAccumulateWraps(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	price := Encode(uint256.NewInt(1))

	acc := Accumulate(max, price, 1)
	// (2^256 - 1) + 2^112 wraps to 2^112 - 1
	want := new(uint256.Int).Sub(Q112, uint256.NewInt(1))
	assert.True(t, want.Eq(acc), "got %s", acc.Hex())

	avg := Average(acc, max, 1)
	assert.True(t, price.Eq(avg))
}

func TestAverage(t *testing.T) {
	price := Price(uint256.NewInt(4), uint256.NewInt(1))
	c0 := Accumulate(new(uint256.Int), price, 10)
	c1 := Accumulate(c0, price, 30)

	assert.True(t, price.Eq(Average(c1, c0, 30)))
	assert.True(t, Average(c1, c0, 0).IsZero())
}

func TestElapsedWraps(t *testing.T) {
	assert.Equal(t, uint32(10), Elapsed(5, ^uint32(0)-4))
	assert.Equal(t, uint32(0), Elapsed(7, 7))
}
