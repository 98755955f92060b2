package chain

import (
	"math/big"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Env is the execution context contracts run against. Its methods do not lock;
// they are only valid inside Chain.Transact or Chain.View.
type Env interface {
	State() *state.StateDB
	// BlockNumber is the number of the block being built inside Transact,
	// or the head block inside View.
	BlockNumber() uint64
	// BlockTimestamp is the current block time in seconds.
	BlockTimestamp() uint64
	ChainID() *big.Int
}

// BlockSummary contains the essential head information for clients.
type BlockSummary struct {
	Number    uint64      `json:"number"`
	Timestamp uint64      `json:"timestamp"`
	TxHash    common.Hash `json:"txHash"` // last committed transaction
	LogCount  int         `json:"logCount"`
}
