package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a point-in-time view of a pair, shaped for JSON consumers and the calculator.
type Pool struct {
	Address              common.Address `json:"address"`
	Token0               common.Address `json:"token0"`
	Token1               common.Address `json:"token1"`
	Reserve0             *big.Int       `json:"reserve0"`
	Reserve1             *big.Int       `json:"reserve1"`
	BlockTimestampLast   uint32         `json:"blockTimestampLast"`
	Price0CumulativeLast *big.Int       `json:"price0CumulativeLast,omitempty"`
	Price1CumulativeLast *big.Int       `json:"price1CumulativeLast,omitempty"`
	KLast                *big.Int       `json:"kLast,omitempty"`
	TotalSupply          *big.Int       `json:"totalSupply,omitempty"`
	FeeBps               uint16         `json:"feeBps"` // i.e 30 for 0.3%
}
