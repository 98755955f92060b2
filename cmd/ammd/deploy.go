package main

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/protocols/erc20"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// deployment is what bootstrap put on chain.
type deployment struct {
	factory *uniswapv2.Factory
	tokens  map[string]*erc20.Token
	pairs   []common.Address
}

// bootstrap deploys the configured tokens and the factory, then creates and
// seeds the configured pairs. Each step is its own transaction.
func bootstrap(c *chain.Chain, cfg *config.Config, logger Logger) (*deployment, error) {
	d := &deployment{tokens: make(map[string]*erc20.Token, len(cfg.Tokens))}

	for _, tc := range cfg.Tokens {
		supply, overflow := uint256.FromBig(tc.Supply)
		if overflow {
			return nil, fmt.Errorf("token %s: supply overflows 256 bits", tc.Symbol)
		}
		err := c.Transact("deployToken", func(env chain.Env) error {
			tok, err := chain.Deploy(env, cfg.Deployer, func(addr common.Address) (*erc20.Token, error) {
				return erc20.NewWithSupply(env, addr, tc.Name, tc.Symbol, tc.Holder, supply)
			})
			if err != nil {
				return err
			}
			d.tokens[tc.Symbol] = tok
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("deploy token %s: %w", tc.Symbol, err)
		}
		logger.Info("token deployed", "symbol", tc.Symbol, "address", d.tokens[tc.Symbol].Address(), "supply", tc.Supply)
	}

	err := c.Transact("deployFactory", func(env chain.Env) error {
		f, err := chain.Deploy(env, cfg.Deployer, func(addr common.Address) (*uniswapv2.Factory, error) {
			return uniswapv2.NewFactory(env, addr, cfg.FeeToSetter), nil
		})
		if err != nil {
			return err
		}
		d.factory = f
		if cfg.FeeTo != (common.Address{}) {
			return f.SetFeeTo(cfg.FeeToSetter, cfg.FeeTo)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy factory: %w", err)
	}
	logger.Info("factory deployed", "address", d.factory.Address(), "fee_to", cfg.FeeTo)

	for _, pc := range cfg.Pairs {
		pair, err := d.createPair(c, pc)
		if err != nil {
			return nil, fmt.Errorf("pair %s/%s: %w", pc.Tokens[0], pc.Tokens[1], err)
		}
		d.pairs = append(d.pairs, pair)
		logger.Info("pair created", "tokens", pc.Tokens, "address", pair, "seeded", len(pc.Amounts) == 2)
	}
	return d, nil
}

func (d *deployment) createPair(c *chain.Chain, pc config.PairConfig) (common.Address, error) {
	tokenA, tokenB := d.tokens[pc.Tokens[0]], d.tokens[pc.Tokens[1]]
	if tokenA == nil || tokenB == nil {
		return common.Address{}, fmt.Errorf("unknown token in %v", pc.Tokens)
	}

	var pairAddr common.Address
	err := c.Transact("createPair", func(chain.Env) error {
		var err error
		pairAddr, err = d.factory.CreatePair(d.factory.FeeToSetter(), tokenA.Address(), tokenB.Address())
		return err
	})
	if err != nil || len(pc.Amounts) != 2 {
		return pairAddr, err
	}

	amountA, overflowA := uint256.FromBig(pc.Amounts[0])
	amountB, overflowB := uint256.FromBig(pc.Amounts[1])
	if overflowA || overflowB {
		return common.Address{}, fmt.Errorf("amounts overflow 256 bits")
	}
	err = c.Transact("addLiquidity", func(chain.Env) error {
		pair, ok := d.factory.Pair(pairAddr)
		if !ok {
			return fmt.Errorf("%w: %s", uniswapv2.ErrUnknownContract, pairAddr.Hex())
		}
		if err := tokenA.Transfer(pc.Provider, pairAddr, amountA); err != nil {
			return err
		}
		if err := tokenB.Transfer(pc.Provider, pairAddr, amountB); err != nil {
			return err
		}
		_, err := pair.Mint(pc.Provider, pc.Provider)
		return err
	})
	return pairAddr, err
}
