package indexer

import (
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedUniswapV2 views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed view from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv2.Pool) IndexedUniswapV2 {
	return NewIndexableUniswapV2System(pools)
}

type tokenPair [2]common.Address

// IndexableUniswapV2System provides lookups of pool views by pair address and by token pair.
type IndexableUniswapV2System struct {
	byAddress map[common.Address]uniswapv2.Pool
	byTokens  map[tokenPair]uniswapv2.Pool
	all       []uniswapv2.Pool
}

// NewIndexableUniswapV2System creates a new indexed system. pools is not copied.
func NewIndexableUniswapV2System(pools []uniswapv2.Pool) *IndexableUniswapV2System {
	byAddress := make(map[common.Address]uniswapv2.Pool, len(pools))
	byTokens := make(map[tokenPair]uniswapv2.Pool, len(pools))
	for _, p := range pools {
		byAddress[p.Address] = p
		byTokens[tokenPair{p.Token0, p.Token1}] = p
	}
	return &IndexableUniswapV2System{
		byAddress: byAddress,
		byTokens:  byTokens,
		all:       pools,
	}
}

// GetByAddress retrieves a pool by its pair address.
func (ius *IndexableUniswapV2System) GetByAddress(pair common.Address) (uniswapv2.Pool, bool) {
	p, ok := ius.byAddress[pair]
	return p, ok
}

// GetByTokens retrieves the pool for two tokens given in either order.
func (ius *IndexableUniswapV2System) GetByTokens(tokenA, tokenB common.Address) (uniswapv2.Pool, bool) {
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)
	p, ok := ius.byTokens[tokenPair{token0, token1}]
	return p, ok
}

// All returns a copy of the slice of all pools.
func (ius *IndexableUniswapV2System) All() []uniswapv2.Pool {
	allCopy := make([]uniswapv2.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
