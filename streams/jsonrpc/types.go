package jsonrpc

import (
	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// Namespace is the namespace under which the API is registered.
	Namespace = "amm"

	LogsSubscriptionMethod  = "subscribeLogs"
	PoolsSubscriptionMethod = "subscribePools"

	PoolsEventFull = "full"
	PoolsEventDiff = "diff"
)

// Reserves is the result of amm_getReserves.
type Reserves struct {
	Reserve0           *hexutil.Big   `json:"reserve0"`
	Reserve1           *hexutil.Big   `json:"reserve1"`
	BlockTimestampLast hexutil.Uint64 `json:"blockTimestampLast"`
}

// TokenInfo is the metadata of an ERC20 token, liquidity tokens included.
type TokenInfo struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *hexutil.Big   `json:"totalSupply"`
}

// LogFilter narrows amm_subscribeLogs to logs emitted by Addresses. An empty
// filter matches every log.
type LogFilter struct {
	Addresses []common.Address `json:"addresses,omitempty"`
}

func (f *LogFilter) matches(addr common.Address) bool {
	if f == nil || len(f.Addresses) == 0 {
		return true
	}
	for _, a := range f.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// PoolsEvent is one message of the pools stream. The first message is a full
// snapshot; every later one is the diff from the block of the previous message.
type PoolsEvent struct {
	Type      string               `json:"type"`
	FromBlock uint64               `json:"fromBlock,omitempty"`
	Block     chain.BlockSummary   `json:"block"`
	Pools     []uniswapv2.Pool     `json:"pools,omitempty"`
	Diff      *uniswapv2.PoolsDiff `json:"diff,omitempty"`
	SentAt    int64                `json:"sentAt"`
}
