package pairindex

import (
	"github.com/ethereum/go-ethereum/common"
)

// Entry is one pair known to the index.
type Entry struct {
	Pair   common.Address `json:"pair"`
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	// Index is the factory's allPairs position, starting at 0.
	Index uint64 `json:"index"`
}

// View is an immutable snapshot of the index. Entries are in creation order and
// TokenPairs[i] lists the positions in Entries of the pairs containing Tokens[i].
type View struct {
	Tokens     []common.Address `json:"tokens"`
	Entries    []Entry          `json:"entries"`
	TokenPairs [][]int          `json:"tokenPairs"`
}

// registry is the non-thread-safe store behind Index.
type registry struct {
	tokenToIndex map[common.Address]int
	pairToIndex  map[common.Address]int
	byTokens     map[[2]common.Address]int

	tokens     []common.Address
	entries    []Entry
	tokenPairs [][]int
}

func newRegistry() *registry {
	return &registry{
		tokenToIndex: make(map[common.Address]int),
		pairToIndex:  make(map[common.Address]int),
		byTokens:     make(map[[2]common.Address]int),
	}
}

// newRegistryFromView replays the entries of a snapshot.
func newRegistryFromView(view *View) *registry {
	r := newRegistry()
	for _, e := range view.Entries {
		r.add(e)
	}
	return r
}

func (r *registry) tokenIndex(token common.Address) int {
	i, ok := r.tokenToIndex[token]
	if !ok {
		i = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenPairs = append(r.tokenPairs, nil)
		r.tokenToIndex[token] = i
	}
	return i
}

// add records e and reports whether it was new. Re-adding a known pair is a no-op.
func (r *registry) add(e Entry) bool {
	if _, exists := r.pairToIndex[e.Pair]; exists {
		return false
	}
	pos := len(r.entries)
	r.entries = append(r.entries, e)
	r.pairToIndex[e.Pair] = pos
	r.byTokens[[2]common.Address{e.Token0, e.Token1}] = pos

	i0 := r.tokenIndex(e.Token0)
	r.tokenPairs[i0] = append(r.tokenPairs[i0], pos)
	i1 := r.tokenIndex(e.Token1)
	r.tokenPairs[i1] = append(r.tokenPairs[i1], pos)
	return true
}

func (r *registry) pairsForToken(token common.Address) []common.Address {
	i, ok := r.tokenToIndex[token]
	if !ok {
		return nil
	}
	out := make([]common.Address, len(r.tokenPairs[i]))
	for j, pos := range r.tokenPairs[i] {
		out[j] = r.entries[pos].Pair
	}
	return out
}

// view builds a snapshot that shares no memory with the registry.
func (r *registry) view() *View {
	tokens := make([]common.Address, len(r.tokens))
	copy(tokens, r.tokens)
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	tokenPairs := make([][]int, len(r.tokenPairs))
	for i, list := range r.tokenPairs {
		tokenPairs[i] = append([]int(nil), list...)
	}
	return &View{Tokens: tokens, Entries: entries, TokenPairs: tokenPairs}
}
