package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolsDiff is the change between two sets of pool views, keyed by pair address.
type PoolsDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolsDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of a pool set.
// Both lists are mapped by address first so the comparison is linear.
func Differ(old, new []Pool) PoolsDiff {
	oldPools := make(map[common.Address]Pool, len(old))
	for _, pool := range old {
		oldPools[pool.Address] = pool
	}
	newPools := make(map[common.Address]Pool, len(new))
	for _, pool := range new {
		newPools[pool.Address] = pool
	}

	var diff PoolsDiff
	for _, pool := range new {
		prev, exists := oldPools[pool.Address]
		if !exists {
			diff.Additions = append(diff.Additions, pool)
			continue
		}
		if poolChanged(prev, pool) {
			diff.Updates = append(diff.Updates, pool)
		}
	}
	for _, pool := range old {
		if _, exists := newPools[pool.Address]; !exists {
			diff.Deletions = append(diff.Deletions, pool.Address)
		}
	}
	return diff
}

// poolChanged compares the fields a pair mutates. Tokens and fee never change after creation.
func poolChanged(a, b Pool) bool {
	return a.BlockTimestampLast != b.BlockTimestampLast ||
		!bigEqual(a.Reserve0, b.Reserve0) ||
		!bigEqual(a.Reserve1, b.Reserve1) ||
		!bigEqual(a.Price0CumulativeLast, b.Price0CumulativeLast) ||
		!bigEqual(a.Price1CumulativeLast, b.Price1CumulativeLast) ||
		!bigEqual(a.KLast, b.KLast) ||
		!bigEqual(a.TotalSupply, b.TotalSupply)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
