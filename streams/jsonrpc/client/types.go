package client

import (
	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
)

// PoolSet is the mirrored state of every pair as of Block. Pools are sorted by
// address and must be treated as read-only.
type PoolSet struct {
	Block chain.BlockSummary
	Pools []uniswapv2.Pool
}
