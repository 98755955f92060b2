// Package erc20 implements a fungible balance ledger with allowances and an
// EIP-712 signed approval (permit). Minting and burning are reachable only
// through the Supply capability handed out at construction.
package erc20

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/math/safemath"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	Decimals = 18
	// Version is the EIP-712 domain version.
	Version = "1"
)

var (
	ErrInsufficientBalance   = errors.New("erc20: insufficient balance")
	ErrInsufficientAllowance = errors.New("erc20: insufficient allowance")
	ErrExpired               = errors.New("erc20: permit expired")
	ErrInvalidSignature      = errors.New("erc20: invalid signature")
	ErrUnexpectedLog         = errors.New("erc20: unexpected log")
)

var (
	// DomainTypeHash is keccak256 of the EIP-712 domain type.
	DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	// PermitTypeHash is keccak256 of the Permit struct type.
	PermitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

var (
	totalSupplyKey = state.Key("erc20/totalSupply")
)

func balanceKey(owner common.Address) common.Hash {
	return state.Key("erc20/balance", owner.Bytes())
}

func allowanceKey(owner, spender common.Address) common.Hash {
	return state.Key("erc20/allowance", owner.Bytes(), spender.Bytes())
}

func nonceKey(owner common.Address) common.Hash {
	return state.Key("erc20/nonce", owner.Bytes())
}

// Token is a ledger whose balances live in the storage of its address.
type Token struct {
	env             chain.Env
	address         common.Address
	name            string
	symbol          string
	domainSeparator common.Hash
}

// Supply mints and burns on behalf of the contract that owns it.
type Supply struct {
	t *Token
}

// New creates a token at addr with zero supply.
func New(env chain.Env, addr common.Address, name, symbol string) (*Token, *Supply) {
	t := &Token{
		env:     env,
		address: addr,
		name:    name,
		symbol:  symbol,
	}
	t.domainSeparator = DomainSeparator(name, env.ChainID(), addr)
	return t, &Supply{t: t}
}

// NewWithSupply creates a token and mints totalSupply to holder.
func NewWithSupply(env chain.Env, addr common.Address, name, symbol string, holder common.Address, totalSupply *uint256.Int) (*Token, error) {
	t, supply := New(env, addr, name, symbol)
	if err := supply.Mint(holder, totalSupply); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Token) Address() common.Address      { return t.address }
func (t *Token) Name() string                 { return t.name }
func (t *Token) Symbol() string               { return t.symbol }
func (t *Token) Decimals() uint8              { return Decimals }
func (t *Token) DomainSeparator() common.Hash { return t.domainSeparator }

func (t *Token) TotalSupply() *uint256.Int {
	return t.env.State().GetUint(t.address, totalSupplyKey)
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	return t.env.State().GetUint(t.address, balanceKey(owner))
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	return t.env.State().GetUint(t.address, allowanceKey(owner, spender))
}

func (t *Token) Nonces(owner common.Address) *uint256.Int {
	return t.env.State().GetUint(t.address, nonceKey(owner))
}

// Approve sets spender's allowance over caller's balance.
func (t *Token) Approve(caller, spender common.Address, value *uint256.Int) error {
	return chain.Call(t.env, func() error {
		t.approve(caller, spender, value)
		return nil
	})
}

// Transfer moves value from caller to to.
func (t *Token) Transfer(caller, to common.Address, value *uint256.Int) error {
	return chain.Call(t.env, func() error {
		return t.transfer(caller, to, value)
	})
}

// TransferFrom moves value from from to to, spending caller's allowance.
// An allowance of MaxUint256 is never decremented.
func (t *Token) TransferFrom(caller, from, to common.Address, value *uint256.Int) error {
	return chain.Call(t.env, func() error {
		return t.transferFrom(caller, from, to, value)
	})
}

func (t *Token) transferFrom(caller, from, to common.Address, value *uint256.Int) error {
	allowance := t.Allowance(from, caller)
	if !allowance.Eq(safemath.MaxUint256) {
		remaining, err := safemath.Sub(allowance, value)
		if err != nil {
			return fmt.Errorf("%w: spender %s has %s, needs %s", ErrInsufficientAllowance, caller.Hex(), allowance.Dec(), value.Dec())
		}
		t.env.State().SetUint(t.address, allowanceKey(from, caller), remaining)
	}
	return t.transfer(from, to, value)
}

// Permit applies an approval signed off-chain by owner. sig is the 65-byte
// [R || S || V] signature over PermitDigest with the owner's current nonce;
// V may be 0/1 or 27/28.
func (t *Token) Permit(owner, spender common.Address, value, deadline *uint256.Int, sig []byte) error {
	return chain.Call(t.env, func() error {
		return t.permit(owner, spender, value, deadline, sig)
	})
}

func (t *Token) permit(owner, spender common.Address, value, deadline *uint256.Int, sig []byte) error {
	now := uint256.NewInt(t.env.BlockTimestamp())
	if now.Gt(deadline) {
		return fmt.Errorf("%w: deadline %s, now %s", ErrExpired, deadline.Dec(), now.Dec())
	}

	db := t.env.State()
	nonce := t.Nonces(owner)
	next, err := safemath.Add(nonce, uint256.NewInt(1))
	if err != nil {
		return err
	}
	db.SetUint(t.address, nonceKey(owner), next)

	digest := t.PermitDigest(owner, spender, value, nonce, deadline)
	recovered, err := recoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if recovered == (common.Address{}) || recovered != owner {
		return fmt.Errorf("%w: recovered %s", ErrInvalidSignature, recovered.Hex())
	}
	t.approve(owner, spender, value)
	return nil
}

// PermitDigest returns the EIP-712 digest a permit signer signs.
func (t *Token) PermitDigest(owner, spender common.Address, value, nonce, deadline *uint256.Int) common.Hash {
	structHash := crypto.Keccak256Hash(
		PermitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		word(value),
		word(nonce),
		word(deadline),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, t.domainSeparator.Bytes(), structHash.Bytes())
}

// Mint creates value new tokens owned by to.
func (s *Supply) Mint(to common.Address, value *uint256.Int) error {
	t := s.t
	db := t.env.State()
	supply, err := safemath.Add(t.TotalSupply(), value)
	if err != nil {
		return err
	}
	balance, err := safemath.Add(t.BalanceOf(to), value)
	if err != nil {
		return err
	}
	db.SetUint(t.address, totalSupplyKey, supply)
	db.SetUint(t.address, balanceKey(to), balance)
	t.emitTransfer(common.Address{}, to, value)
	return nil
}

// Burn destroys value tokens held by from.
func (s *Supply) Burn(from common.Address, value *uint256.Int) error {
	t := s.t
	db := t.env.State()
	balance, err := safemath.Sub(t.BalanceOf(from), value)
	if err != nil {
		return fmt.Errorf("%w: burn %s from %s", ErrInsufficientBalance, value.Dec(), from.Hex())
	}
	supply, err := safemath.Sub(t.TotalSupply(), value)
	if err != nil {
		return err
	}
	db.SetUint(t.address, balanceKey(from), balance)
	db.SetUint(t.address, totalSupplyKey, supply)
	t.emitTransfer(from, common.Address{}, value)
	return nil
}

func (t *Token) approve(owner, spender common.Address, value *uint256.Int) {
	t.env.State().SetUint(t.address, allowanceKey(owner, spender), value)
	t.emitApproval(owner, spender, value)
}

func (t *Token) transfer(from, to common.Address, value *uint256.Int) error {
	db := t.env.State()
	fromBalance, err := safemath.Sub(t.BalanceOf(from), value)
	if err != nil {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), t.BalanceOf(from).Dec(), value.Dec())
	}
	db.SetUint(t.address, balanceKey(from), fromBalance)
	// read after the debit so a self-transfer nets to zero
	toBalance, err := safemath.Add(t.BalanceOf(to), value)
	if err != nil {
		return err
	}
	db.SetUint(t.address, balanceKey(to), toBalance)
	t.emitTransfer(from, to, value)
	return nil
}
