package erc20

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
	{"anonymous":false,"type":"event","name":"Transfer","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"Approval","inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":true,"name":"spender","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]}
]`

var (
	parsedABI = mustParseABI(eventsABI)

	// TransferEventID is topic 0 of a Transfer log.
	TransferEventID = parsedABI.Events["Transfer"].ID
	// ApprovalEventID is topic 0 of an Approval log.
	ApprovalEventID = parsedABI.Events["Approval"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("erc20: invalid event abi: %v", err))
	}
	return parsed
}

// TransferEvent is a decoded Transfer log.
type TransferEvent struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *uint256.Int
}

// ApprovalEvent is a decoded Approval log.
type ApprovalEvent struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Value   *uint256.Int
}

func (t *Token) emit(name string, topics []common.Address, args ...any) {
	ev := parsedABI.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		// arguments are produced by this package and always match the abi
		panic(fmt.Sprintf("erc20: pack %s: %v", name, err))
	}
	hashes := make([]common.Hash, 0, len(topics)+1)
	hashes = append(hashes, ev.ID)
	for _, a := range topics {
		hashes = append(hashes, common.BytesToHash(a.Bytes()))
	}
	t.env.State().AddLog(&types.Log{Address: t.address, Topics: hashes, Data: data})
}

func (t *Token) emitTransfer(from, to common.Address, value *uint256.Int) {
	t.emit("Transfer", []common.Address{from, to}, value.ToBig())
}

func (t *Token) emitApproval(owner, spender common.Address, value *uint256.Int) {
	t.emit("Approval", []common.Address{owner, spender}, value.ToBig())
}

// ParseTransfer decodes a Transfer log.
func ParseTransfer(log *types.Log) (*TransferEvent, error) {
	from, to, value, err := parseAddressPairValue("Transfer", log)
	if err != nil {
		return nil, err
	}
	return &TransferEvent{Token: log.Address, From: from, To: to, Value: value}, nil
}

// ParseApproval decodes an Approval log.
func ParseApproval(log *types.Log) (*ApprovalEvent, error) {
	owner, spender, value, err := parseAddressPairValue("Approval", log)
	if err != nil {
		return nil, err
	}
	return &ApprovalEvent{Token: log.Address, Owner: owner, Spender: spender, Value: value}, nil
}

func parseAddressPairValue(name string, log *types.Log) (common.Address, common.Address, *uint256.Int, error) {
	ev := parsedABI.Events[name]
	if len(log.Topics) != 3 || log.Topics[0] != ev.ID {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: not a %s log", ErrUnexpectedLog, name)
	}
	vals, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	value, ok := vals[0].(*big.Int)
	if !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: %s value has type %T", ErrUnexpectedLog, name, vals[0])
	}
	return common.BytesToAddress(log.Topics[1].Bytes()), common.BytesToAddress(log.Topics[2].Bytes()), uint256.MustFromBig(value), nil
}
