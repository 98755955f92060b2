package uniswapv2

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	feeToKey          = state.Key("uniswapv2/factory/feeTo")
	feeToSetterKey    = state.Key("uniswapv2/factory/feeToSetter")
	allPairsLengthKey = state.Key("uniswapv2/factory/allPairsLength")
)

func getPairKey(tokenA, tokenB common.Address) common.Hash {
	return state.Key("uniswapv2/factory/getPair", tokenA.Bytes(), tokenB.Bytes())
}

func allPairsKey(index uint64) common.Hash {
	word := uint256.NewInt(index).Bytes32()
	return state.Key("uniswapv2/factory/allPairs", word[:])
}

// Factory deploys one pair per unordered token pair and administers the protocol fee recipient.
type Factory struct {
	env     chain.Env
	address common.Address
}

// NewFactory creates a factory at addr administered by feeToSetter.
func NewFactory(env chain.Env, addr, feeToSetter common.Address) *Factory {
	env.State().SetAddress(addr, feeToSetterKey, feeToSetter)
	return &Factory{env: env, address: addr}
}

func (f *Factory) Address() common.Address { return f.address }

func (f *Factory) FeeTo() common.Address {
	return f.env.State().GetAddress(f.address, feeToKey)
}

func (f *Factory) FeeToSetter() common.Address {
	return f.env.State().GetAddress(f.address, feeToSetterKey)
}

// GetPair returns the pair for tokenA and tokenB in either order, or the zero address.
func (f *Factory) GetPair(tokenA, tokenB common.Address) common.Address {
	return f.env.State().GetAddress(f.address, getPairKey(tokenA, tokenB))
}

func (f *Factory) AllPairsLength() uint64 {
	return f.env.State().GetUint(f.address, allPairsLengthKey).Uint64()
}

// AllPairs returns the i-th pair created.
func (f *Factory) AllPairs(i uint64) (common.Address, error) {
	if length := f.AllPairsLength(); i >= length {
		return common.Address{}, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, length)
	}
	return f.env.State().GetAddress(f.address, allPairsKey(i)), nil
}

// Pair returns the pair contract deployed at addr.
func (f *Factory) Pair(addr common.Address) (*Pair, bool) {
	return chain.At[*Pair](f.env, addr)
}

// CreatePair deploys the pair for tokenA and tokenB at its CREATE2 address.
// Anyone may call it.
func (f *Factory) CreatePair(caller, tokenA, tokenB common.Address) (common.Address, error) {
	var pair common.Address
	err := chain.Call(f.env, func() (err error) {
		pair, err = f.createPair(tokenA, tokenB)
		return err
	})
	if err != nil {
		return common.Address{}, err
	}
	return pair, nil
}

func (f *Factory) createPair(tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalAddresses, tokenA.Hex())
	}
	token0, token1 := SortTokens(tokenA, tokenB)
	// token0 is the smaller address, so only it can be zero
	if token0 == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	if existing := f.GetPair(token0, token1); existing != (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrPairExists, existing.Hex())
	}

	db := f.env.State()
	addr := DeriveAddress(f.address, token0, token1, PairCodeHash)
	pair := NewPair(f.env, addr, f.address)
	if err := db.CreateContract(addr, pair); err != nil {
		return common.Address{}, err
	}
	if err := pair.Initialize(f.address, token0, token1); err != nil {
		return common.Address{}, err
	}

	db.SetAddress(f.address, getPairKey(token0, token1), addr)
	db.SetAddress(f.address, getPairKey(token1, token0), addr)
	index := f.AllPairsLength()
	db.SetAddress(f.address, allPairsKey(index), addr)
	length := uint256.NewInt(index + 1)
	db.SetUint(f.address, allPairsLengthKey, length)

	emit(db, f.address, "PairCreated", []common.Address{token0, token1}, addr, length.ToBig())
	return addr, nil
}

// SetFeeTo sets the protocol fee recipient. The zero address turns the fee off.
func (f *Factory) SetFeeTo(caller, feeTo common.Address) error {
	if caller != f.FeeToSetter() {
		return fmt.Errorf("%w: %s is not the fee setter", ErrForbidden, caller.Hex())
	}
	return chain.Call(f.env, func() error {
		f.env.State().SetAddress(f.address, feeToKey, feeTo)
		return nil
	})
}

// SetFeeToSetter hands fee administration to feeToSetter.
func (f *Factory) SetFeeToSetter(caller, feeToSetter common.Address) error {
	if caller != f.FeeToSetter() {
		return fmt.Errorf("%w: %s is not the fee setter", ErrForbidden, caller.Hex())
	}
	return chain.Call(f.env, func() error {
		f.env.State().SetAddress(f.address, feeToSetterKey, feeToSetter)
		return nil
	})
}

// SortTokens orders two addresses ascending.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address) {
	if tokenA.Cmp(tokenB) < 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// DeriveAddress computes the CREATE2 address of the pair for token0 and token1.
// The tokens must already be sorted.
func DeriveAddress(factory, token0, token1 common.Address, codeHash common.Hash) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, codeHash.Bytes())
}

// PairAddress computes the pair address for two tokens in any order without deploying.
func PairAddress(factory, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	return DeriveAddress(factory, token0, token1, PairCodeHash)
}
