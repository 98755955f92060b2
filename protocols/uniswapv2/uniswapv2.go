// Package uniswapv2 implements the constant-product pair and the factory that
// deploys pairs at deterministic addresses.
package uniswapv2

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	// MinimumLiquidity shares are locked at the zero address by the first mint.
	MinimumLiquidity = 1000

	PairName   = "Uniswap V2"
	PairSymbol = "UNI-V2"

	// FeeBps is the swap fee in basis points, 3/1000.
	FeeBps = 30
)

var (
	ErrLocked                      = errors.New("uniswapv2: locked")
	ErrForbidden                   = errors.New("uniswapv2: forbidden")
	ErrAlreadyInitialized          = errors.New("uniswapv2: already initialized")
	ErrIdenticalAddresses          = errors.New("uniswapv2: identical addresses")
	ErrZeroAddress                 = errors.New("uniswapv2: zero address")
	ErrPairExists                  = errors.New("uniswapv2: pair exists")
	ErrReserveOverflow             = errors.New("uniswapv2: reserve overflow")
	ErrInsufficientLiquidityMinted = errors.New("uniswapv2: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("uniswapv2: insufficient liquidity burned")
	ErrInsufficientOutputAmount    = errors.New("uniswapv2: insufficient output amount")
	ErrInsufficientInputAmount     = errors.New("uniswapv2: insufficient input amount")
	ErrInsufficientLiquidity       = errors.New("uniswapv2: insufficient liquidity")
	ErrInvalidTo                   = errors.New("uniswapv2: invalid to")
	ErrCalleeNotImplemented        = errors.New("uniswapv2: callee does not implement UniswapV2Call")
	ErrInvariantViolation          = errors.New("uniswapv2: K")
	ErrUnknownContract             = errors.New("uniswapv2: no contract at address")
	ErrIndexOutOfRange             = errors.New("uniswapv2: index out of range")
	ErrUnexpectedLog               = errors.New("uniswapv2: unexpected log")
)

// PairCodeHash stands in for the init code hash of the pair contract in CREATE2 derivation.
var PairCodeHash = crypto.Keccak256Hash([]byte("defistate-amm-go/protocols/uniswapv2.Pair"))

var (
	minimumLiquidity = uint256.NewInt(MinimumLiquidity)
	feeScale         = uint256.NewInt(1000)
	feeNumerator     = uint256.NewInt(3)
	feeScaleSquared  = uint256.NewInt(1000 * 1000)
	five             = uint256.NewInt(5)
)
