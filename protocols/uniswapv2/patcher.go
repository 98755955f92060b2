package uniswapv2

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

// deepCopyPool creates a new Pool with its own memory for every *big.Int field.
func deepCopyPool(p Pool) Pool {
	out := p
	out.Reserve0 = copyBig(p.Reserve0)
	out.Reserve1 = copyBig(p.Reserve1)
	out.Price0CumulativeLast = copyBig(p.Price0CumulativeLast)
	out.Price1CumulativeLast = copyBig(p.Price1CumulativeLast)
	out.KLast = copyBig(p.KLast)
	out.TotalSupply = copyBig(p.TotalSupply)
	return out
}

// Patcher builds the next pool set by applying diff to prevState. The result
// shares no memory with its inputs and is ordered by pair address.
func Patcher(prevState []Pool, diff PoolsDiff) ([]Pool, error) {
	next := make(map[common.Address]Pool, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		next[pool.Address] = deepCopyPool(pool)
	}
	for _, addr := range diff.Deletions {
		delete(next, addr)
	}
	for _, pool := range diff.Updates {
		next[pool.Address] = deepCopyPool(pool)
	}
	for _, pool := range diff.Additions {
		next[pool.Address] = deepCopyPool(pool)
	}

	out := make([]Pool, 0, len(next))
	for _, pool := range next {
		out = append(out, pool)
	}
	slices.SortFunc(out, func(a, b Pool) int { return a.Address.Cmp(b.Address) })
	return out, nil
}
