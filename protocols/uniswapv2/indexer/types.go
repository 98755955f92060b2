package indexer

import (
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedUniswapV2 defines the methods for accessing indexed pool views.
type IndexedUniswapV2 interface {
	GetByAddress(pair common.Address) (uniswapv2.Pool, bool)
	GetByTokens(tokenA, tokenB common.Address) (uniswapv2.Pool, bool)
	All() []uniswapv2.Pool
}
