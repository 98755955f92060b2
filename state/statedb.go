// Package state holds contract storage for the in-process execution environment.
//
// A StateDB keeps per-address word storage, the contract objects deployed at each
// address, account nonces and emitted event logs. Every mutation is journaled so a
// transaction can be rolled back to any snapshot taken inside it.
package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
)

var (
	ErrContractCollision = errors.New("contract already deployed at address")
	ErrInvalidSnapshot   = errors.New("invalid snapshot id")
)

type revision struct {
	id           int
	journalIndex int
}

// StateDB is not safe for concurrent use; callers serialise access (see chain.Chain).
type StateDB struct {
	storage   map[common.Address]map[common.Hash]common.Hash
	contracts map[common.Address]any
	nonces    map[common.Address]uint64
	logs      []*types.Log

	journal        *journal
	validRevisions []revision
	nextRevisionID int

	// log context for the transaction being executed
	txHash      common.Hash
	txIndex     uint
	blockNumber uint64
	txLogStart  int
}

// New returns an empty StateDB.
func New() *StateDB {
	return &StateDB{
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		contracts: make(map[common.Address]any),
		nonces:    make(map[common.Address]uint64),
		journal:   &journal{},
	}
}

// Key derives a storage slot from a prefix and any number of key parts.
func Key(prefix string, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write([]byte(prefix))
	for _, p := range parts {
		h.Write(p)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// GetState returns the word stored at key, or the zero hash.
func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.storage[addr][key]
}

// SetState stores value at key. Writing the zero hash clears the slot.
func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	prev, prevSet := slots[key]
	if prev == value {
		return
	}
	s.journal.append(storageChange{account: addr, key: key, prev: prev, prevSet: prevSet})
	if value == (common.Hash{}) {
		delete(slots, key)
		return
	}
	slots[key] = value
}

// GetUint reads a slot as a 256-bit unsigned integer.
func (s *StateDB) GetUint(addr common.Address, key common.Hash) *uint256.Int {
	word := s.GetState(addr, key)
	return new(uint256.Int).SetBytes32(word[:])
}

// SetUint writes a 256-bit unsigned integer to a slot.
func (s *StateDB) SetUint(addr common.Address, key common.Hash, v *uint256.Int) {
	s.SetState(addr, key, common.Hash(v.Bytes32()))
}

// GetAddress reads a slot holding an address.
func (s *StateDB) GetAddress(addr common.Address, key common.Hash) common.Address {
	return common.BytesToAddress(s.GetState(addr, key).Bytes())
}

// SetAddress writes an address to a slot.
func (s *StateDB) SetAddress(addr common.Address, key common.Hash, v common.Address) {
	s.SetState(addr, key, common.BytesToHash(v.Bytes()))
}

// CreateContract registers a contract object at addr.
func (s *StateDB) CreateContract(addr common.Address, contract any) error {
	if _, exists := s.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrContractCollision, addr.Hex())
	}
	s.journal.append(contractCreation{account: addr})
	s.contracts[addr] = contract
	return nil
}

// Contract returns the object deployed at addr, or nil.
func (s *StateDB) Contract(addr common.Address) any {
	return s.contracts[addr]
}

// Exist reports whether a contract is deployed at addr.
func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.contracts[addr]
	return ok
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.nonces[addr]
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	s.journal.append(nonceChange{account: addr, prev: s.nonces[addr]})
	s.nonces[addr] = nonce
}

// SetTxContext sets the block and transaction stamped onto logs added from now on.
func (s *StateDB) SetTxContext(blockNumber uint64, txHash common.Hash, txIndex uint) {
	s.blockNumber = blockNumber
	s.txHash = txHash
	s.txIndex = txIndex
	s.txLogStart = len(s.logs)
}

// AddLog appends an event log, filling in its position fields.
func (s *StateDB) AddLog(log *types.Log) {
	s.journal.append(addLogChange{})
	log.BlockNumber = s.blockNumber
	log.TxHash = s.txHash
	log.TxIndex = s.txIndex
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
}

// Logs returns every log committed or pending, oldest first.
func (s *StateDB) Logs() []*types.Log {
	out := make([]*types.Log, len(s.logs))
	copy(out, s.logs)
	return out
}

// LogCount returns the number of logs held.
func (s *StateDB) LogCount() int {
	return len(s.logs)
}

// Snapshot returns an identifier for the current state revision.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id: id, journalIndex: s.journal.length()})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
func (s *StateDB) RevertToSnapshot(id int) error {
	idx := -1
	for i := len(s.validRevisions) - 1; i >= 0; i-- {
		if s.validRevisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	s.journal.revertTo(s, s.validRevisions[idx].journalIndex)
	s.validRevisions = s.validRevisions[:idx]
	return nil
}

// Finalise commits the current transaction. The journal is discarded and the
// logs emitted by the transaction are returned.
func (s *StateDB) Finalise() []*types.Log {
	s.journal.reset()
	s.validRevisions = s.validRevisions[:0]
	txLogs := make([]*types.Log, len(s.logs)-s.txLogStart)
	copy(txLogs, s.logs[s.txLogStart:])
	s.txLogStart = len(s.logs)
	return txLogs
}
