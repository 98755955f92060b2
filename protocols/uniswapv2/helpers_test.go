package uniswapv2

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	wallet = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	other  = common.HexToAddress("0x0000000000000000000000000000000000000123")
)

const genesisTime = 1_700_000_000

func expandTo18Decimals(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func newIntFromString(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

type fixture struct {
	chain   *chain.Chain
	factory *Factory
	token0  *erc20.Token
	token1  *erc20.Token
	pair    *Pair
}

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	c, err := chain.New(&chain.Config{
		ChainID:     big.NewInt(1),
		GenesisTime: genesisTime,
		Registry:    prometheus.NewRegistry(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return c
}

func deployTestToken(env chain.Env, name string, supply *uint256.Int) (*erc20.Token, error) {
	return chain.Deploy(env, wallet, func(addr common.Address) (*erc20.Token, error) {
		return erc20.NewWithSupply(env, addr, name, name, wallet, supply)
	})
}

// newFixture deploys a factory administered by wallet, two tokens with supply
// minted to wallet, and their pair.
func newFixture(t *testing.T, supply *uint256.Int) *fixture {
	t.Helper()
	f := &fixture{chain: newTestChain(t)}
	f.tx(t, func(env chain.Env) error {
		var err error
		f.factory, err = chain.Deploy(env, wallet, func(addr common.Address) (*Factory, error) {
			return NewFactory(env, addr, wallet), nil
		})
		if err != nil {
			return err
		}
		tokenA, err := deployTestToken(env, "A", supply)
		if err != nil {
			return err
		}
		tokenB, err := deployTestToken(env, "B", supply)
		if err != nil {
			return err
		}
		pairAddr, err := f.factory.CreatePair(wallet, tokenA.Address(), tokenB.Address())
		if err != nil {
			return err
		}
		f.pair, _ = f.factory.Pair(pairAddr)
		if f.pair.Token0() == tokenA.Address() {
			f.token0, f.token1 = tokenA, tokenB
		} else {
			f.token0, f.token1 = tokenB, tokenA
		}
		return nil
	})
	return f
}

func (f *fixture) tx(t *testing.T, fn func(env chain.Env) error) {
	t.Helper()
	require.NoError(t, f.chain.Transact(t.Name(), fn))
}

func (f *fixture) view(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.chain.View(func(chain.Env) error {
		fn()
		return nil
	}))
}

// addLiquidity transfers both amounts from wallet to the pair and mints to wallet.
func (f *fixture) addLiquidity(t *testing.T, amount0, amount1 *uint256.Int) *uint256.Int {
	t.Helper()
	var liquidity *uint256.Int
	f.tx(t, func(env chain.Env) error {
		if err := f.token0.Transfer(wallet, f.pair.Address(), amount0); err != nil {
			return err
		}
		if err := f.token1.Transfer(wallet, f.pair.Address(), amount1); err != nil {
			return err
		}
		var err error
		liquidity, err = f.pair.Mint(wallet, wallet)
		return err
	})
	return liquidity
}

// callee is a contract that runs onCall when a pair calls it back during a swap.
type callee struct {
	address common.Address
	onCall  func(caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error
}

func (c *callee) UniswapV2Call(caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error {
	return c.onCall(caller, sender, amount0, amount1, data)
}

func (f *fixture) deployCallee(t *testing.T, onCall func(self common.Address, caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error) *callee {
	t.Helper()
	var c *callee
	f.tx(t, func(env chain.Env) error {
		var err error
		c, err = chain.Deploy(env, wallet, func(addr common.Address) (*callee, error) {
			cl := &callee{address: addr}
			cl.onCall = func(caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error {
				return onCall(addr, caller, sender, amount0, amount1, data)
			}
			return cl, nil
		})
		return err
	})
	return c
}
