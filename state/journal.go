package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// journalEntry is a modification that can be undone.
type journalEntry interface {
	revert(s *StateDB)
}

// journal records state modifications in order so a snapshot can be rolled back.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revertTo undoes every entry recorded after snapshot, newest first.
func (j *journal) revertTo(s *StateDB, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:snapshot]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type (
	storageChange struct {
		account common.Address
		key     common.Hash
		prev    common.Hash
		prevSet bool
	}
	contractCreation struct {
		account common.Address
	}
	nonceChange struct {
		account common.Address
		prev    uint64
	}
	addLogChange struct{}
)

func (ch storageChange) revert(s *StateDB) {
	slots := s.storage[ch.account]
	if !ch.prevSet {
		delete(slots, ch.key)
		if len(slots) == 0 {
			delete(s.storage, ch.account)
		}
		return
	}
	slots[ch.key] = ch.prev
}

func (ch contractCreation) revert(s *StateDB) {
	delete(s.contracts, ch.account)
}

func (ch nonceChange) revert(s *StateDB) {
	if ch.prev == 0 {
		delete(s.nonces, ch.account)
		return
	}
	s.nonces[ch.account] = ch.prev
}

func (ch addLogChange) revert(s *StateDB) {
	s.logs = s.logs[:len(s.logs)-1]
}
