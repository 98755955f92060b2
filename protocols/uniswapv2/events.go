package uniswapv2

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

const eventsABI = `[
	{"anonymous":false,"type":"event","name":"PairCreated","inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":false,"name":"pair","type":"address"},
		{"indexed":false,"name":"allPairsLength","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"Sync","inputs":[
		{"indexed":false,"name":"reserve0","type":"uint112"},
		{"indexed":false,"name":"reserve1","type":"uint112"}]},
	{"anonymous":false,"type":"event","name":"Mint","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"Burn","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"},
		{"indexed":true,"name":"to","type":"address"}]},
	{"anonymous":false,"type":"event","name":"Swap","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0In","type":"uint256"},
		{"indexed":false,"name":"amount1In","type":"uint256"},
		{"indexed":false,"name":"amount0Out","type":"uint256"},
		{"indexed":false,"name":"amount1Out","type":"uint256"},
		{"indexed":true,"name":"to","type":"address"}]}
]`

var (
	parsedABI = mustParseABI(eventsABI)

	PairCreatedEventID = parsedABI.Events["PairCreated"].ID
	SyncEventID        = parsedABI.Events["Sync"].ID
	MintEventID        = parsedABI.Events["Mint"].ID
	BurnEventID        = parsedABI.Events["Burn"].ID
	SwapEventID        = parsedABI.Events["Swap"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("uniswapv2: invalid event abi: %v", err))
	}
	return parsed
}

type PairCreatedEvent struct {
	Factory common.Address
	Token0  common.Address
	Token1  common.Address
	Pair    common.Address
	// Index is allPairs.length after the pair was appended.
	Index uint64
}

type SyncEvent struct {
	Pair     common.Address
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

type MintEvent struct {
	Pair    common.Address
	Sender  common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

type BurnEvent struct {
	Pair    common.Address
	Sender  common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
	To      common.Address
}

type SwapEvent struct {
	Pair       common.Address
	Sender     common.Address
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
	To         common.Address
}

func emit(db interface{ AddLog(*types.Log) }, contract common.Address, name string, topics []common.Address, args ...any) {
	ev := parsedABI.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		// arguments are produced by this package and always match the abi
		panic(fmt.Sprintf("uniswapv2: pack %s: %v", name, err))
	}
	hashes := make([]common.Hash, 0, len(topics)+1)
	hashes = append(hashes, ev.ID)
	for _, a := range topics {
		hashes = append(hashes, common.BytesToHash(a.Bytes()))
	}
	db.AddLog(&types.Log{Address: contract, Topics: hashes, Data: data})
}

// unpack checks the event signature and topic count and decodes the data section.
func unpack(name string, log *types.Log, indexed int) ([]any, error) {
	ev := parsedABI.Events[name]
	if len(log.Topics) != indexed+1 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("%w: not a %s log", ErrUnexpectedLog, name)
	}
	vals, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	return vals, nil
}

func topicAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

func bigArgs(vals []any) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(vals))
	for i, v := range vals {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: argument %d has type %T", ErrUnexpectedLog, i, v)
		}
		out[i] = uint256.MustFromBig(b)
	}
	return out, nil
}

// ParsePairCreated decodes a PairCreated log.
func ParsePairCreated(log *types.Log) (*PairCreatedEvent, error) {
	vals, err := unpack("PairCreated", log, 2)
	if err != nil {
		return nil, err
	}
	pair, ok := vals[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: pair has type %T", ErrUnexpectedLog, vals[0])
	}
	index, err := bigArgs(vals[1:])
	if err != nil {
		return nil, err
	}
	return &PairCreatedEvent{
		Factory: log.Address,
		Token0:  topicAddress(log.Topics[1]),
		Token1:  topicAddress(log.Topics[2]),
		Pair:    pair,
		Index:   index[0].Uint64(),
	}, nil
}

// ParseSync decodes a Sync log.
func ParseSync(log *types.Log) (*SyncEvent, error) {
	vals, err := unpack("Sync", log, 0)
	if err != nil {
		return nil, err
	}
	amounts, err := bigArgs(vals)
	if err != nil {
		return nil, err
	}
	return &SyncEvent{Pair: log.Address, Reserve0: amounts[0], Reserve1: amounts[1]}, nil
}

// ParseMint decodes a Mint log.
func ParseMint(log *types.Log) (*MintEvent, error) {
	vals, err := unpack("Mint", log, 1)
	if err != nil {
		return nil, err
	}
	amounts, err := bigArgs(vals)
	if err != nil {
		return nil, err
	}
	return &MintEvent{
		Pair:    log.Address,
		Sender:  topicAddress(log.Topics[1]),
		Amount0: amounts[0],
		Amount1: amounts[1],
	}, nil
}

// ParseBurn decodes a Burn log.
func ParseBurn(log *types.Log) (*BurnEvent, error) {
	vals, err := unpack("Burn", log, 2)
	if err != nil {
		return nil, err
	}
	amounts, err := bigArgs(vals)
	if err != nil {
		return nil, err
	}
	return &BurnEvent{
		Pair:    log.Address,
		Sender:  topicAddress(log.Topics[1]),
		Amount0: amounts[0],
		Amount1: amounts[1],
		To:      topicAddress(log.Topics[2]),
	}, nil
}

// ParseSwap decodes a Swap log.
func ParseSwap(log *types.Log) (*SwapEvent, error) {
	vals, err := unpack("Swap", log, 2)
	if err != nil {
		return nil, err
	}
	amounts, err := bigArgs(vals)
	if err != nil {
		return nil, err
	}
	return &SwapEvent{
		Pair:       log.Address,
		Sender:     topicAddress(log.Topics[1]),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
		To:         topicAddress(log.Topics[2]),
	}, nil
}
