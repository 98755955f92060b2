// Package jsonrpc exposes the AMM over go-ethereum's JSON-RPC server under the
// amm namespace, including log and pool-state subscriptions.
package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/pairindex"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownPair  = errors.New("unknown pair")
	ErrUnknownToken = errors.New("unknown token")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of the API.
type Config struct {
	Chain   *chain.Chain
	Factory *uniswapv2.Factory
	Index   *pairindex.Index
	Logger  Logger
	// BufferSize is the per-subscription queue of committed log batches.
	BufferSize uint
}

func (c *Config) validate() error {
	if c.Chain == nil {
		return errors.New("config: Chain cannot be nil")
	}
	if c.Factory == nil {
		return errors.New("config: Factory cannot be nil")
	}
	if c.Index == nil {
		return errors.New("config: Index cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

// API is the receiver registered under Namespace. Exported methods become
// amm_<method> with a lowercase first letter.
type API struct {
	chain      *chain.Chain
	factory    *uniswapv2.Factory
	index      *pairindex.Index
	indexer    *indexer.Indexer
	logger     Logger
	bufferSize uint
}

func NewAPI(cfg Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &API{
		chain:      cfg.Chain,
		factory:    cfg.Factory,
		index:      cfg.Index,
		indexer:    indexer.New(),
		logger:     cfg.Logger,
		bufferSize: cfg.BufferSize,
	}, nil
}

// NewServer returns an rpc.Server with api registered under Namespace.
func NewServer(api *API) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, api); err != nil {
		return nil, fmt.Errorf("register %s api: %w", Namespace, err)
	}
	return srv, nil
}

func (api *API) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.chain.ChainID())
}

func (api *API) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Block().Number)
}

// Block returns the head block summary.
func (api *API) Block() chain.BlockSummary {
	return api.chain.Block()
}

func (api *API) Factory() common.Address {
	return api.factory.Address()
}

// GetPair returns the pair of tokenA and tokenB in either order, or the zero address.
func (api *API) GetPair(tokenA, tokenB common.Address) (pair common.Address, err error) {
	err = api.chain.View(func(chain.Env) error {
		pair = api.factory.GetPair(tokenA, tokenB)
		return nil
	})
	return pair, err
}

func (api *API) AllPairsLength() (n hexutil.Uint64, err error) {
	err = api.chain.View(func(chain.Env) error {
		n = hexutil.Uint64(api.factory.AllPairsLength())
		return nil
	})
	return n, err
}

func (api *API) AllPairs(i hexutil.Uint64) (pair common.Address, err error) {
	err = api.chain.View(func(chain.Env) error {
		pair, err = api.factory.AllPairs(uint64(i))
		return err
	})
	return pair, err
}

func (api *API) GetReserves(pair common.Address) (*Reserves, error) {
	var res *Reserves
	err := api.chain.View(func(chain.Env) error {
		p, ok := api.factory.Pair(pair)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPair, pair.Hex())
		}
		r0, r1, ts := p.GetReserves()
		res = &Reserves{
			Reserve0:           (*hexutil.Big)(r0.ToBig()),
			Reserve1:           (*hexutil.Big)(r1.ToBig()),
			BlockTimestampLast: hexutil.Uint64(ts),
		}
		return nil
	})
	return res, err
}

// Pool returns the full view of a pair.
func (api *API) Pool(pair common.Address) (*uniswapv2.Pool, error) {
	var pool uniswapv2.Pool
	err := api.chain.View(func(chain.Env) error {
		p, ok := api.factory.Pair(pair)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPair, pair.Hex())
		}
		pool = p.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

type balanceReader interface {
	BalanceOf(owner common.Address) *uint256.Int
}

// BalanceOf returns owner's balance of token. Pairs are tokens too, so this
// also reads liquidity positions.
func (api *API) BalanceOf(token, owner common.Address) (*hexutil.Big, error) {
	var balance *big.Int
	err := api.chain.View(func(env chain.Env) error {
		t, ok := chain.At[balanceReader](env, token)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
		balance = t.BalanceOf(owner).ToBig()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

type tokenReader interface {
	Name() string
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
}

func (api *API) Token(token common.Address) (*TokenInfo, error) {
	var info *TokenInfo
	err := api.chain.View(func(env chain.Env) error {
		t, ok := chain.At[tokenReader](env, token)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
		info = &TokenInfo{
			Address:     token,
			Name:        t.Name(),
			Symbol:      t.Symbol(),
			Decimals:    t.Decimals(),
			TotalSupply: (*hexutil.Big)(t.TotalSupply().ToBig()),
		}
		return nil
	})
	return info, err
}

// PairsForToken lists the pairs containing token, in creation order.
func (api *API) PairsForToken(token common.Address) []common.Address {
	pairs := api.index.PairsForToken(token)
	if pairs == nil {
		return []common.Address{}
	}
	return pairs
}

// Quote returns the amounts along path for an exact input, amounts[0] being amountIn.
func (api *API) Quote(amountIn *hexutil.Big, path []common.Address) ([]*hexutil.Big, error) {
	if amountIn == nil {
		return nil, calculator.ErrNilAmount
	}
	lookup, err := api.pathLookup(path)
	if err != nil {
		return nil, err
	}
	amounts, err := calculator.GetAmountsOut(amountIn.ToInt(), path, lookup)
	if err != nil {
		return nil, err
	}
	return toHexBigs(amounts), nil
}

// QuoteIn returns the amounts along path for an exact output, the last being amountOut.
func (api *API) QuoteIn(amountOut *hexutil.Big, path []common.Address) ([]*hexutil.Big, error) {
	if amountOut == nil {
		return nil, calculator.ErrNilAmount
	}
	lookup, err := api.pathLookup(path)
	if err != nil {
		return nil, err
	}
	amounts, err := calculator.GetAmountsIn(amountOut.ToInt(), path, lookup)
	if err != nil {
		return nil, err
	}
	return toHexBigs(amounts), nil
}

// pathLookup snapshots every pool on path in one read so that all hops of a
// quote see the same block.
func (api *API) pathLookup(path []common.Address) (calculator.PoolLookup, error) {
	var pools []uniswapv2.Pool
	err := api.chain.View(func(chain.Env) error {
		for i := 0; i+1 < len(path); i++ {
			addr, ok := api.index.Pair(path[i], path[i+1])
			if !ok {
				return fmt.Errorf("%w: no pair for %s and %s", ErrUnknownPair, path[i].Hex(), path[i+1].Hex())
			}
			p, ok := api.factory.Pair(addr)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownPair, addr.Hex())
			}
			pools = append(pools, p.Snapshot())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	indexed := api.indexer.Index(pools)
	return func(tokenA, tokenB common.Address) (uniswapv2.Pool, error) {
		pool, ok := indexed.GetByTokens(tokenA, tokenB)
		if !ok {
			return uniswapv2.Pool{}, fmt.Errorf("%w: no pair for %s and %s", ErrUnknownPair, tokenA.Hex(), tokenB.Hex())
		}
		return pool, nil
	}, nil
}

func toHexBigs(vals []*big.Int) []*hexutil.Big {
	out := make([]*hexutil.Big, len(vals))
	for i, v := range vals {
		out[i] = (*hexutil.Big)(v)
	}
	return out
}

// SubscribeLogs streams every committed log matching filter, one notification per log.
func (api *API) SubscribeLogs(ctx context.Context, filter *LogFilter) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	ch := make(chan []*types.Log, api.bufferSize)
	sub := api.chain.SubscribeLogs(ch)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case logs := <-ch:
				for _, l := range logs {
					if !filter.matches(l.Address) {
						continue
					}
					if err := notifier.Notify(rpcSub.ID, l); err != nil {
						api.logger.Warn("failed to notify log", "subscription", rpcSub.ID, "error", err)
						return
					}
				}
			case <-rpcSub.Err():
				return
			case err := <-sub.Err():
				if err != nil {
					api.logger.Error("log feed failed", "error", err)
				}
				return
			}
		}
	}()
	return rpcSub, nil
}

// SubscribePools streams a full snapshot of every pair followed by one diff
// per block that changed any of them.
func (api *API) SubscribePools(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	// subscribe before the first snapshot so no block falls between the two
	ch := make(chan []*types.Log, api.bufferSize)
	sub := api.chain.SubscribeLogs(ch)

	go func() {
		defer sub.Unsubscribe()

		pools, block, err := api.snapshotPools()
		if err != nil {
			api.logger.Error("failed to snapshot pools", "error", err)
			return
		}
		full := PoolsEvent{Type: PoolsEventFull, Block: block, Pools: pools, SentAt: time.Now().UnixNano()}
		if err := notifier.Notify(rpcSub.ID, full); err != nil {
			api.logger.Warn("failed to send full pools", "subscription", rpcSub.ID, "error", err)
			return
		}

		for {
			select {
			case <-ch:
				next, nextBlock, err := api.snapshotPools()
				if err != nil {
					api.logger.Error("failed to snapshot pools", "error", err)
					return
				}
				diff := uniswapv2.Differ(pools, next)
				if diff.IsEmpty() {
					continue
				}
				ev := PoolsEvent{
					Type:      PoolsEventDiff,
					FromBlock: block.Number,
					Block:     nextBlock,
					Diff:      &diff,
					SentAt:    time.Now().UnixNano(),
				}
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					api.logger.Warn("failed to send pools diff", "subscription", rpcSub.ID, "error", err)
					return
				}
				pools, block = next, nextBlock
			case <-rpcSub.Err():
				return
			case err := <-sub.Err():
				if err != nil {
					api.logger.Error("log feed failed", "error", err)
				}
				return
			}
		}
	}()
	return rpcSub, nil
}

func (api *API) snapshotPools() ([]uniswapv2.Pool, chain.BlockSummary, error) {
	var (
		pools []uniswapv2.Pool
		block chain.BlockSummary
	)
	err := api.chain.ViewHead(func(_ chain.Env, head chain.BlockSummary) error {
		block = head
		n := api.factory.AllPairsLength()
		pools = make([]uniswapv2.Pool, 0, n)
		for i := uint64(0); i < n; i++ {
			addr, err := api.factory.AllPairs(i)
			if err != nil {
				return err
			}
			p, ok := api.factory.Pair(addr)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownPair, addr.Hex())
			}
			pools = append(pools, p.Snapshot())
		}
		return nil
	})
	if err != nil {
		return nil, chain.BlockSummary{}, err
	}
	return pools, block, nil
}
