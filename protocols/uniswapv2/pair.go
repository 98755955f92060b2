package uniswapv2

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/math/safemath"
	"github.com/defistate/defistate-amm-go/math/uq112x112"
	"github.com/defistate/defistate-amm-go/protocols/erc20"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	token0Key               = state.Key("uniswapv2/pair/token0")
	token1Key               = state.Key("uniswapv2/pair/token1")
	reserve0Key             = state.Key("uniswapv2/pair/reserve0")
	reserve1Key             = state.Key("uniswapv2/pair/reserve1")
	blockTimestampLastKey   = state.Key("uniswapv2/pair/blockTimestampLast")
	price0CumulativeLastKey = state.Key("uniswapv2/pair/price0CumulativeLast")
	price1CumulativeLastKey = state.Key("uniswapv2/pair/price1CumulativeLast")
	kLastKey                = state.Key("uniswapv2/pair/kLast")
	unlockedKey             = state.Key("uniswapv2/pair/unlocked")
)

// Ledger is the part of a token the pair needs to account for its balances.
type Ledger interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(caller, to common.Address, value *uint256.Int) error
}

// Callee receives the optimistic output of a swap before the invariant is checked.
// caller is the pair, sender the account that called Swap.
type Callee interface {
	UniswapV2Call(caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error
}

type feeSource interface {
	FeeTo() common.Address
}

// Pair is a constant-product pool over two tokens. Its liquidity shares are
// themselves a token.
type Pair struct {
	*erc20.Token
	supply  *erc20.Supply
	env     chain.Env
	address common.Address
	factory common.Address
}

// NewPair creates an unlocked, uninitialised pair at addr owned by factory.
func NewPair(env chain.Env, addr, factory common.Address) *Pair {
	token, supply := erc20.New(env, addr, PairName, PairSymbol)
	env.State().SetUint(addr, unlockedKey, uint256.NewInt(1))
	return &Pair{
		Token:   token,
		supply:  supply,
		env:     env,
		address: addr,
		factory: factory,
	}
}

// lock enters the pair's critical section. The returned func leaves it.
func (p *Pair) lock() (func(), error) {
	db := p.env.State()
	if db.GetUint(p.address, unlockedKey).IsZero() {
		return nil, ErrLocked
	}
	db.SetUint(p.address, unlockedKey, new(uint256.Int))
	return func() {
		db.SetUint(p.address, unlockedKey, uint256.NewInt(1))
	}, nil
}

// Initialize sets the pooled tokens. Only the factory may call it, once.
func (p *Pair) Initialize(caller, token0, token1 common.Address) error {
	return chain.Call(p.env, func() error {
		return p.initialize(caller, token0, token1)
	})
}

func (p *Pair) initialize(caller, token0, token1 common.Address) error {
	if caller != p.factory {
		return fmt.Errorf("%w: %s is not the factory", ErrForbidden, caller.Hex())
	}
	db := p.env.State()
	if db.GetAddress(p.address, token0Key) != (common.Address{}) {
		return ErrAlreadyInitialized
	}
	db.SetAddress(p.address, token0Key, token0)
	db.SetAddress(p.address, token1Key, token1)
	return nil
}

func (p *Pair) Factory() common.Address { return p.factory }

func (p *Pair) Token0() common.Address {
	return p.env.State().GetAddress(p.address, token0Key)
}

func (p *Pair) Token1() common.Address {
	return p.env.State().GetAddress(p.address, token1Key)
}

// GetReserves returns the reserves and the 32-bit timestamp of their last update.
func (p *Pair) GetReserves() (reserve0, reserve1 *uint256.Int, blockTimestampLast uint32) {
	db := p.env.State()
	return db.GetUint(p.address, reserve0Key),
		db.GetUint(p.address, reserve1Key),
		uint32(db.GetUint(p.address, blockTimestampLastKey).Uint64())
}

func (p *Pair) Price0CumulativeLast() *uint256.Int {
	return p.env.State().GetUint(p.address, price0CumulativeLastKey)
}

func (p *Pair) Price1CumulativeLast() *uint256.Int {
	return p.env.State().GetUint(p.address, price1CumulativeLastKey)
}

// KLast is reserve0*reserve1 as of the most recent liquidity event, or zero while the protocol fee is off.
func (p *Pair) KLast() *uint256.Int {
	return p.env.State().GetUint(p.address, kLastKey)
}

// Snapshot returns a view of the pair's current state.
func (p *Pair) Snapshot() Pool {
	r0, r1, ts := p.GetReserves()
	return Pool{
		Address:              p.address,
		Token0:               p.Token0(),
		Token1:               p.Token1(),
		Reserve0:             r0.ToBig(),
		Reserve1:             r1.ToBig(),
		BlockTimestampLast:   ts,
		Price0CumulativeLast: p.Price0CumulativeLast().ToBig(),
		Price1CumulativeLast: p.Price1CumulativeLast().ToBig(),
		KLast:                p.KLast().ToBig(),
		TotalSupply:          p.TotalSupply().ToBig(),
		FeeBps:               FeeBps,
	}
}

func (p *Pair) ledgers() (Ledger, Ledger, error) {
	t0, t1 := p.Token0(), p.Token1()
	l0, ok := chain.At[Ledger](p.env, t0)
	if !ok {
		return nil, nil, fmt.Errorf("%w: token0 %s", ErrUnknownContract, t0.Hex())
	}
	l1, ok := chain.At[Ledger](p.env, t1)
	if !ok {
		return nil, nil, fmt.Errorf("%w: token1 %s", ErrUnknownContract, t1.Hex())
	}
	return l0, l1, nil
}

// update stores new reserves and, on the first call in a block, accumulates prices.
func (p *Pair) update(balance0, balance1, reserve0, reserve1 *uint256.Int) error {
	balance0, err := safemath.ToUint112(balance0)
	if err != nil {
		return fmt.Errorf("%w: balance0: %w", ErrReserveOverflow, err)
	}
	balance1, err = safemath.ToUint112(balance1)
	if err != nil {
		return fmt.Errorf("%w: balance1: %w", ErrReserveOverflow, err)
	}
	db := p.env.State()
	_, _, last := p.GetReserves()
	now := uint32(p.env.BlockTimestamp())
	elapsed := uq112x112.Elapsed(now, last)
	if elapsed > 0 && !reserve0.IsZero() && !reserve1.IsZero() {
		price0 := uq112x112.Price(reserve1, reserve0)
		price1 := uq112x112.Price(reserve0, reserve1)
		db.SetUint(p.address, price0CumulativeLastKey, uq112x112.Accumulate(p.Price0CumulativeLast(), price0, elapsed))
		db.SetUint(p.address, price1CumulativeLastKey, uq112x112.Accumulate(p.Price1CumulativeLast(), price1, elapsed))
	}
	db.SetUint(p.address, reserve0Key, balance0)
	db.SetUint(p.address, reserve1Key, balance1)
	db.SetUint(p.address, blockTimestampLastKey, uint256.NewInt(uint64(now)))
	emit(db, p.address, "Sync", nil, balance0.ToBig(), balance1.ToBig())
	return nil
}

// mintFee mints the protocol's share of fee growth since kLast, equivalent to
// 1/6th of the growth in sqrt(k). It reports whether the fee is on.
func (p *Pair) mintFee(reserve0, reserve1 *uint256.Int) (bool, error) {
	factory, ok := chain.At[feeSource](p.env, p.factory)
	if !ok {
		return false, fmt.Errorf("%w: factory %s", ErrUnknownContract, p.factory.Hex())
	}
	feeTo := factory.FeeTo()
	feeOn := feeTo != (common.Address{})
	kLast := p.KLast()

	if !feeOn {
		if !kLast.IsZero() {
			p.env.State().SetUint(p.address, kLastKey, new(uint256.Int))
		}
		return false, nil
	}
	if kLast.IsZero() {
		return true, nil
	}

	k, err := safemath.Mul(reserve0, reserve1)
	if err != nil {
		return false, err
	}
	rootK := safemath.Sqrt(k)
	rootKLast := safemath.Sqrt(kLast)
	if !rootK.Gt(rootKLast) {
		return true, nil
	}

	growth, err := safemath.Sub(rootK, rootKLast)
	if err != nil {
		return false, err
	}
	numerator, err := safemath.Mul(p.TotalSupply(), growth)
	if err != nil {
		return false, err
	}
	scaled, err := safemath.Mul(rootK, five)
	if err != nil {
		return false, err
	}
	denominator, err := safemath.Add(scaled, rootKLast)
	if err != nil {
		return false, err
	}
	liquidity, err := safemath.Div(numerator, denominator)
	if err != nil {
		return false, err
	}
	if !liquidity.IsZero() {
		if err := p.supply.Mint(feeTo, liquidity); err != nil {
			return false, err
		}
	}
	return true, nil
}

// setKLast records k from the stored reserves after a liquidity event with the fee on.
func (p *Pair) setKLast() error {
	r0, r1, _ := p.GetReserves()
	k, err := safemath.Mul(r0, r1)
	if err != nil {
		return err
	}
	p.env.State().SetUint(p.address, kLastKey, k)
	return nil
}

// Mint issues shares to to for the tokens transferred to the pair since the last update.
func (p *Pair) Mint(caller, to common.Address) (*uint256.Int, error) {
	var liquidity *uint256.Int
	err := chain.Call(p.env, func() (err error) {
		liquidity, err = p.mint(caller, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

func (p *Pair) mint(caller, to common.Address) (*uint256.Int, error) {
	unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	l0, l1, err := p.ledgers()
	if err != nil {
		return nil, err
	}
	reserve0, reserve1, _ := p.GetReserves()
	balance0 := l0.BalanceOf(p.address)
	balance1 := l1.BalanceOf(p.address)
	amount0, err := safemath.Sub(balance0, reserve0)
	if err != nil {
		return nil, err
	}
	amount1, err := safemath.Sub(balance1, reserve1)
	if err != nil {
		return nil, err
	}

	feeOn, err := p.mintFee(reserve0, reserve1)
	if err != nil {
		return nil, err
	}

	var liquidity *uint256.Int
	// read after mintFee, which can grow the supply
	totalSupply := p.TotalSupply()
	if totalSupply.IsZero() {
		product, err := safemath.Mul(amount0, amount1)
		if err != nil {
			return nil, err
		}
		liquidity, err = safemath.Sub(safemath.Sqrt(product), minimumLiquidity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientLiquidityMinted, err)
		}
		if err := p.supply.Mint(common.Address{}, minimumLiquidity); err != nil {
			return nil, err
		}
	} else {
		share0, err := shareOf(amount0, totalSupply, reserve0)
		if err != nil {
			return nil, err
		}
		share1, err := shareOf(amount1, totalSupply, reserve1)
		if err != nil {
			return nil, err
		}
		liquidity = safemath.Min(share0, share1)
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	if err := p.supply.Mint(to, liquidity); err != nil {
		return nil, err
	}

	if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
		return nil, err
	}
	if feeOn {
		if err := p.setKLast(); err != nil {
			return nil, err
		}
	}
	emit(p.env.State(), p.address, "Mint", []common.Address{caller}, amount0.ToBig(), amount1.ToBig())
	return liquidity, nil
}

// Burn redeems the shares held by the pair itself and sends the underlying tokens to to.
func (p *Pair) Burn(caller, to common.Address) (amount0, amount1 *uint256.Int, err error) {
	err = chain.Call(p.env, func() (err error) {
		amount0, amount1, err = p.burn(caller, to)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func (p *Pair) burn(caller, to common.Address) (amount0, amount1 *uint256.Int, err error) {
	unlock, err := p.lock()
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	l0, l1, err := p.ledgers()
	if err != nil {
		return nil, nil, err
	}
	reserve0, reserve1, _ := p.GetReserves()
	balance0 := l0.BalanceOf(p.address)
	balance1 := l1.BalanceOf(p.address)
	liquidity := p.BalanceOf(p.address)

	feeOn, err := p.mintFee(reserve0, reserve1)
	if err != nil {
		return nil, nil, err
	}
	totalSupply := p.TotalSupply()
	if amount0, err = shareOf(liquidity, balance0, totalSupply); err != nil {
		return nil, nil, err
	}
	if amount1, err = shareOf(liquidity, balance1, totalSupply); err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, ErrInsufficientLiquidityBurned
	}

	if err := p.supply.Burn(p.address, liquidity); err != nil {
		return nil, nil, err
	}
	if err := l0.Transfer(p.address, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := l1.Transfer(p.address, to, amount1); err != nil {
		return nil, nil, err
	}

	balance0 = l0.BalanceOf(p.address)
	balance1 = l1.BalanceOf(p.address)
	if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
		return nil, nil, err
	}
	if feeOn {
		if err := p.setKLast(); err != nil {
			return nil, nil, err
		}
	}
	emit(p.env.State(), p.address, "Burn", []common.Address{caller, to}, amount0.ToBig(), amount1.ToBig())
	return amount0, amount1, nil
}

// Swap sends the requested outputs to to, optionally calls back into to, then
// requires the inputs received to keep the fee-adjusted product from falling.
func (p *Pair) Swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	return chain.Call(p.env, func() error {
		return p.swap(caller, amount0Out, amount1Out, to, data)
	})
}

func (p *Pair) swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	unlock, err := p.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutputAmount
	}
	reserve0, reserve1, _ := p.GetReserves()
	if !amount0Out.Lt(reserve0) || !amount1Out.Lt(reserve1) {
		return fmt.Errorf("%w: out (%s, %s), reserves (%s, %s)", ErrInsufficientLiquidity,
			amount0Out.Dec(), amount1Out.Dec(), reserve0.Dec(), reserve1.Dec())
	}

	token0, token1 := p.Token0(), p.Token1()
	if to == token0 || to == token1 {
		return fmt.Errorf("%w: %s", ErrInvalidTo, to.Hex())
	}
	l0, l1, err := p.ledgers()
	if err != nil {
		return err
	}

	if !amount0Out.IsZero() {
		if err := l0.Transfer(p.address, to, amount0Out); err != nil {
			return err
		}
	}
	if !amount1Out.IsZero() {
		if err := l1.Transfer(p.address, to, amount1Out); err != nil {
			return err
		}
	}
	if len(data) > 0 {
		callee, ok := chain.At[Callee](p.env, to)
		if !ok {
			return fmt.Errorf("%w: %s", ErrCalleeNotImplemented, to.Hex())
		}
		if err := callee.UniswapV2Call(p.address, caller, amount0Out, amount1Out, data); err != nil {
			return err
		}
	}

	balance0 := l0.BalanceOf(p.address)
	balance1 := l1.BalanceOf(p.address)
	amount0In := amountIn(balance0, reserve0, amount0Out)
	amount1In := amountIn(balance1, reserve1, amount1Out)
	if amount0In.IsZero() && amount1In.IsZero() {
		return ErrInsufficientInputAmount
	}

	adjusted0, err := feeAdjusted(balance0, amount0In)
	if err != nil {
		return err
	}
	adjusted1, err := feeAdjusted(balance1, amount1In)
	if err != nil {
		return err
	}
	after, err := safemath.Mul(adjusted0, adjusted1)
	if err != nil {
		return err
	}
	k, err := safemath.Mul(reserve0, reserve1)
	if err != nil {
		return err
	}
	before, err := safemath.Mul(k, feeScaleSquared)
	if err != nil {
		return err
	}
	if after.Lt(before) {
		return fmt.Errorf("%w: %s < %s", ErrInvariantViolation, after.Dec(), before.Dec())
	}

	if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
		return err
	}
	emit(p.env.State(), p.address, "Swap", []common.Address{caller, to},
		amount0In.ToBig(), amount1In.ToBig(), amount0Out.ToBig(), amount1Out.ToBig())
	return nil
}

// Skim sends any balance above the reserves to to.
func (p *Pair) Skim(caller, to common.Address) error {
	return chain.Call(p.env, func() error {
		return p.skim(to)
	})
}

func (p *Pair) skim(to common.Address) error {
	unlock, err := p.lock()
	if err != nil {
		return err
	}
	defer unlock()

	l0, l1, err := p.ledgers()
	if err != nil {
		return err
	}
	reserve0, reserve1, _ := p.GetReserves()
	excess0, err := safemath.Sub(l0.BalanceOf(p.address), reserve0)
	if err != nil {
		return err
	}
	excess1, err := safemath.Sub(l1.BalanceOf(p.address), reserve1)
	if err != nil {
		return err
	}
	if err := l0.Transfer(p.address, to, excess0); err != nil {
		return err
	}
	return l1.Transfer(p.address, to, excess1)
}

// Sync forces the reserves to match the balances.
func (p *Pair) Sync(caller common.Address) error {
	return chain.Call(p.env, p.sync)
}

func (p *Pair) sync() error {
	unlock, err := p.lock()
	if err != nil {
		return err
	}
	defer unlock()

	l0, l1, err := p.ledgers()
	if err != nil {
		return err
	}
	reserve0, reserve1, _ := p.GetReserves()
	return p.update(l0.BalanceOf(p.address), l1.BalanceOf(p.address), reserve0, reserve1)
}

// shareOf returns floor(amount * numerator / denominator).
func shareOf(amount, numerator, denominator *uint256.Int) (*uint256.Int, error) {
	product, err := safemath.Mul(amount, numerator)
	if err != nil {
		return nil, err
	}
	return safemath.Div(product, denominator)
}

// amountIn infers the input of a swap: whatever the balance holds above reserve - out.
func amountIn(balance, reserve, out *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, out)
	if balance.Gt(floor) {
		return new(uint256.Int).Sub(balance, floor)
	}
	return new(uint256.Int)
}

// feeAdjusted returns balance*1000 - amountIn*3.
func feeAdjusted(balance, amountIn *uint256.Int) (*uint256.Int, error) {
	scaled, err := safemath.Mul(balance, feeScale)
	if err != nil {
		return nil, err
	}
	fee, err := safemath.Mul(amountIn, feeNumerator)
	if err != nil {
		return nil, err
	}
	return safemath.Sub(scaled, fee)
}
