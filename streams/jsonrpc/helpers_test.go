package jsonrpc

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/protocols/erc20"
	"github.com/defistate/defistate-amm-go/protocols/pairindex"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var wallet = common.HexToAddress("0x000000000000000000000000000000000000a11e")

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type backend struct {
	chain   *chain.Chain
	factory *uniswapv2.Factory
	tokens  [3]*erc20.Token
	pairAB  *uniswapv2.Pair
	pairBC  *uniswapv2.Pair
	index   *pairindex.Index
	api     *API
	client  *rpc.Client
}

// newBackend deploys tokens A, B and C, pairs A/B (5:10) and B/C (10:10) and
// serves them in-process.
func newBackend(t *testing.T) *backend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := chain.New(&chain.Config{
		ChainID:     big.NewInt(31337),
		GenesisTime: 1_700_000_000,
		Registry:    prometheus.NewRegistry(),
		Logger:      logger,
	})
	require.NoError(t, err)
	b := &backend{chain: c}

	require.NoError(t, c.Transact("setup", func(env chain.Env) error {
		for i, name := range []string{"A", "B", "C"} {
			tok, err := chain.Deploy(env, wallet, func(addr common.Address) (*erc20.Token, error) {
				return erc20.NewWithSupply(env, addr, name, name, wallet, ether(10_000))
			})
			if err != nil {
				return err
			}
			b.tokens[i] = tok
		}
		b.factory, err = chain.Deploy(env, wallet, func(addr common.Address) (*uniswapv2.Factory, error) {
			return uniswapv2.NewFactory(env, addr, wallet), nil
		})
		if err != nil {
			return err
		}
		if b.pairAB, err = b.addPool(b.tokens[0], b.tokens[1], ether(5), ether(10)); err != nil {
			return err
		}
		b.pairBC, err = b.addPool(b.tokens[1], b.tokens[2], ether(10), ether(10))
		return err
	}))

	b.index = pairindex.New(b.factory.Address(), logger)
	b.index.Apply(c.Logs())

	b.api, err = NewAPI(Config{Chain: c, Factory: b.factory, Index: b.index, Logger: logger, BufferSize: 16})
	require.NoError(t, err)
	srv, err := NewServer(b.api)
	require.NoError(t, err)
	b.client = rpc.DialInProc(srv)
	t.Cleanup(func() {
		b.client.Close()
		srv.Stop()
	})
	return b
}

func (b *backend) addPool(x, y *erc20.Token, amountX, amountY *uint256.Int) (*uniswapv2.Pair, error) {
	addr, err := b.factory.CreatePair(wallet, x.Address(), y.Address())
	if err != nil {
		return nil, err
	}
	pair, _ := b.factory.Pair(addr)
	if err := x.Transfer(wallet, addr, amountX); err != nil {
		return nil, err
	}
	if err := y.Transfer(wallet, addr, amountY); err != nil {
		return nil, err
	}
	if _, err := pair.Mint(wallet, wallet); err != nil {
		return nil, err
	}
	return pair, nil
}

// donate sends amount of tok to pair and syncs, moving its reserves.
func (b *backend) donate(t *testing.T, tok *erc20.Token, pair *uniswapv2.Pair, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, b.chain.Transact("donate", func(chain.Env) error {
		if err := tok.Transfer(wallet, pair.Address(), amount); err != nil {
			return err
		}
		return pair.Sync(wallet)
	}))
}
