// Package pairindex keeps a token to pairs index of one factory, fed by its
// committed PairCreated logs.
package pairindex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogSource delivers batches of committed logs, one batch per block.
type LogSource interface {
	SubscribeLogs(ch chan<- []*types.Log) event.Subscription
}

// Index is safe for concurrent use. Writes take the mutex and reads of View go
// through an atomically swapped snapshot.
type Index struct {
	factory common.Address
	logger  Logger

	mu         sync.RWMutex
	registry   *registry
	cachedView atomic.Pointer[View]
}

// New creates an empty index of the pairs created by factory.
func New(factory common.Address, logger Logger) *Index {
	return newIndex(factory, logger, newRegistry())
}

// NewFromView restores an index from a snapshot taken with View.
func NewFromView(factory common.Address, logger Logger, view *View) *Index {
	return newIndex(factory, logger, newRegistryFromView(view))
}

func newIndex(factory common.Address, logger Logger, r *registry) *Index {
	idx := &Index{factory: factory, logger: logger, registry: r}
	idx.cachedView.Store(r.view())
	return idx
}

// Factory returns the factory whose pairs are indexed.
func (idx *Index) Factory() common.Address { return idx.factory }

// Add records a pair directly. It reports whether the pair was new.
func (idx *Index) Add(e Entry) bool {
	e.Token0, e.Token1 = uniswapv2.SortTokens(e.Token0, e.Token1)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.registry.add(e) {
		return false
	}
	idx.cachedView.Store(idx.registry.view())
	return true
}

// Apply indexes the PairCreated logs of the factory found in logs and skips
// everything else. It returns the number of new pairs.
func (idx *Index) Apply(logs []*types.Log) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	added := 0
	for _, log := range logs {
		if log.Address != idx.factory || len(log.Topics) == 0 || log.Topics[0] != uniswapv2.PairCreatedEventID {
			continue
		}
		ev, err := uniswapv2.ParsePairCreated(log)
		if err != nil {
			idx.logger.Warn("skipping malformed PairCreated log", "tx", log.TxHash, "error", err)
			continue
		}
		if idx.registry.add(Entry{Pair: ev.Pair, Token0: ev.Token0, Token1: ev.Token1, Index: ev.Index - 1}) {
			added++
		}
	}
	if added > 0 {
		idx.cachedView.Store(idx.registry.view())
		idx.logger.Debug("indexed pairs", "added", added, "total", len(idx.registry.entries))
	}
	return added
}

// Run applies every batch from src until ctx is cancelled or the subscription fails.
func (idx *Index) Run(ctx context.Context, src LogSource) error {
	ch := make(chan []*types.Log, 16)
	sub := src.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return errors.New("pairindex: log subscription closed")
			}
			return err
		case logs := <-ch:
			idx.Apply(logs)
		}
	}
}

// PairsForToken returns the pairs containing token in creation order.
func (idx *Index) PairsForToken(token common.Address) []common.Address {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.registry.pairsForToken(token)
}

// Pair returns the pair of tokenA and tokenB in either order.
func (idx *Index) Pair(tokenA, tokenB common.Address) (common.Address, bool) {
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.registry.byTokens[[2]common.Address{token0, token1}]
	if !ok {
		return common.Address{}, false
	}
	return idx.registry.entries[pos].Pair, true
}

// Len returns the number of indexed pairs.
func (idx *Index) Len() int {
	return len(idx.cachedView.Load().Entries)
}

// View returns the current snapshot. Callers must not modify it.
func (idx *Index) View() *View {
	return idx.cachedView.Load()
}
