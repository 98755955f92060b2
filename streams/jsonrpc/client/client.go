// Package client is a typed client for the amm JSON-RPC namespace.
package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps an rpc.Client with one method per amm_ call.
type Client struct {
	c *rpc.Client
}

// Dial connects to url, which may be http(s), ws(s) or an IPC path.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(c), nil
}

func New(c *rpc.Client) *Client {
	return &Client{c: c}
}

func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return c.c.CallContext(ctx, result, jsonrpc.Namespace+"_"+method, args...)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.call(ctx, &id, "chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	err := c.call(ctx, &n, "blockNumber")
	return uint64(n), err
}

func (c *Client) Block(ctx context.Context) (chain.BlockSummary, error) {
	var b chain.BlockSummary
	err := c.call(ctx, &b, "block")
	return b, err
}

func (c *Client) Factory(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, "factory")
	return addr, err
}

func (c *Client) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	var pair common.Address
	err := c.call(ctx, &pair, "getPair", tokenA, tokenB)
	return pair, err
}

func (c *Client) AllPairsLength(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	err := c.call(ctx, &n, "allPairsLength")
	return uint64(n), err
}

func (c *Client) AllPairs(ctx context.Context, i uint64) (common.Address, error) {
	var pair common.Address
	err := c.call(ctx, &pair, "allPairs", hexutil.Uint64(i))
	return pair, err
}

// GetReserves returns the reserves of pair and the block time they were last updated.
func (c *Client) GetReserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, blockTimestampLast uint32, err error) {
	var res jsonrpc.Reserves
	if err := c.call(ctx, &res, "getReserves", pair); err != nil {
		return nil, nil, 0, err
	}
	return res.Reserve0.ToInt(), res.Reserve1.ToInt(), uint32(res.BlockTimestampLast), nil
}

func (c *Client) Pool(ctx context.Context, pair common.Address) (uniswapv2.Pool, error) {
	var pool uniswapv2.Pool
	err := c.call(ctx, &pool, "pool", pair)
	return pool, err
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var balance hexutil.Big
	if err := c.call(ctx, &balance, "balanceOf", token, owner); err != nil {
		return nil, err
	}
	return balance.ToInt(), nil
}

func (c *Client) Token(ctx context.Context, token common.Address) (jsonrpc.TokenInfo, error) {
	var info jsonrpc.TokenInfo
	err := c.call(ctx, &info, "token", token)
	return info, err
}

func (c *Client) PairsForToken(ctx context.Context, token common.Address) ([]common.Address, error) {
	var pairs []common.Address
	err := c.call(ctx, &pairs, "pairsForToken", token)
	return pairs, err
}

// Quote returns the output amounts along path for an exact amountIn.
func (c *Client) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var amounts []*hexutil.Big
	if err := c.call(ctx, &amounts, "quote", (*hexutil.Big)(amountIn), path); err != nil {
		return nil, err
	}
	return fromHexBigs(amounts), nil
}

// QuoteIn returns the input amounts along path needed for an exact amountOut.
func (c *Client) QuoteIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	var amounts []*hexutil.Big
	if err := c.call(ctx, &amounts, "quoteIn", (*hexutil.Big)(amountOut), path); err != nil {
		return nil, err
	}
	return fromHexBigs(amounts), nil
}

func fromHexBigs(vals []*hexutil.Big) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = v.ToInt()
	}
	return out
}

// SubscribeLogs delivers committed logs emitted by any of addresses, or every
// log when addresses is empty.
func (c *Client) SubscribeLogs(ctx context.Context, ch chan<- types.Log, addresses ...common.Address) (*rpc.ClientSubscription, error) {
	return c.c.Subscribe(ctx, jsonrpc.Namespace, ch, jsonrpc.LogsSubscriptionMethod, &jsonrpc.LogFilter{Addresses: addresses})
}

// SubscribePools delivers the raw pools stream. Most callers want PoolStream,
// which applies the diffs.
func (c *Client) SubscribePools(ctx context.Context, ch chan<- jsonrpc.PoolsEvent) (*rpc.ClientSubscription, error) {
	return c.c.Subscribe(ctx, jsonrpc.Namespace, ch, jsonrpc.PoolsSubscriptionMethod)
}
