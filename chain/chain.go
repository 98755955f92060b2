// Package chain is a single-node deterministic execution environment for the AMM
// contracts. Every committed transaction is sealed into its own block; a
// transaction that returns an error leaves no trace in state.
package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrTimeTravel = errors.New("block time cannot move backwards")
	// ErrSubscriberTooSlow ends a log subscription whose queue overflowed.
	ErrSubscriberTooSlow = errors.New("log subscriber fell behind")
)

// DefaultLogQueueSize is the per-subscription queue used when Config.LogQueueSize is zero.
const DefaultLogQueueSize = 1024

// Config holds the parameters and dependencies of a Chain.
type Config struct {
	ChainID     *big.Int
	GenesisTime uint64
	Registry    prometheus.Registerer
	Logger      Logger
	// LogQueueSize bounds the committed batches buffered per log subscription.
	LogQueueSize int
}

func (c *Config) validate() error {
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("config: ChainID must be positive")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Chain serialises transactions against a journaled StateDB.
type Chain struct {
	mu sync.RWMutex

	state   *state.StateDB
	chainID *big.Int
	number  uint64
	time    uint64
	lastTx  common.Hash

	subMu     sync.Mutex
	subs      map[uint64]*logSubscriber
	nextSub   uint64
	queueSize int

	metrics *Metrics
	logger  Logger
}

// logSubscriber buffers committed batches between Transact and a subscriber's channel.
type logSubscriber struct {
	queue    chan []*types.Log
	overflow chan struct{}
}

// New constructs a chain at block zero.
func New(cfg *Config) (*Chain, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	queueSize := cfg.LogQueueSize
	if queueSize <= 0 {
		queueSize = DefaultLogQueueSize
	}
	return &Chain{
		state:     state.New(),
		chainID:   new(big.Int).Set(cfg.ChainID),
		time:      cfg.GenesisTime,
		subs:      make(map[uint64]*logSubscriber),
		queueSize: queueSize,
		metrics:   NewMetrics(cfg.Registry),
		logger:    cfg.Logger,
	}, nil
}

func (c *Chain) State() *state.StateDB  { return c.state }
func (c *Chain) BlockNumber() uint64    { return c.number }
func (c *Chain) BlockTimestamp() uint64 { return c.time }
func (c *Chain) ChainID() *big.Int      { return new(big.Int).Set(c.chainID) }

// Transact runs fn as one atomic transaction. If fn returns an error every
// change it made is reverted and the error is returned unchanged. Committed
// logs are delivered to subscribers in commit order.
func (c *Chain) Transact(op string, fn func(env Env) error) error {
	timer := prometheus.NewTimer(c.metrics.txDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	c.mu.Lock()
	c.number++
	txHash := transactionHash(c.chainID, c.number, op)
	c.state.SetTxContext(c.number, txHash, 0)
	snap := c.state.Snapshot()

	if err := fn(c); err != nil {
		if rerr := c.state.RevertToSnapshot(snap); rerr != nil {
			c.logger.Error("failed to revert transaction", "op", op, "error", rerr)
		}
		c.state.Finalise()
		c.number--
		c.mu.Unlock()

		c.metrics.txTotal.WithLabelValues(op, "reverted").Inc()
		c.logger.Debug("transaction reverted", "op", op, "error", err)
		return err
	}

	logs := c.state.Finalise()
	c.lastTx = txHash
	c.metrics.blockNumber.Set(float64(c.number))
	c.metrics.logsEmitted.Add(float64(len(logs)))
	c.metrics.txTotal.WithLabelValues(op, "committed").Inc()

	// queue while still holding state so delivery order matches commit order
	if len(logs) > 0 {
		c.deliver(logs)
	}
	c.mu.Unlock()
	return nil
}

// deliver hands logs to every subscriber without blocking. A subscriber whose
// queue is full is dropped.
func (c *Chain) deliver(logs []*types.Log) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, sub := range c.subs {
		select {
		case sub.queue <- logs:
		default:
			close(sub.overflow)
			delete(c.subs, id)
			c.logger.Warn("dropping slow log subscriber", "subscription", id, "queue_size", cap(sub.queue))
		}
	}
}

// View runs fn under a read lock. fn must not modify state.
func (c *Chain) View(fn func(env Env) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c)
}

// AdvanceTime moves block time forward by seconds.
func (c *Chain) AdvanceTime(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time += seconds
}

// SetTime sets block time. Time never moves backwards.
func (c *Chain) SetTime(timestamp uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timestamp < c.time {
		return fmt.Errorf("%w: %d < %d", ErrTimeTravel, timestamp, c.time)
	}
	c.time = timestamp
	return nil
}

// ViewHead is View with the summary of the block fn reads from.
func (c *Chain) ViewHead(fn func(env Env, head BlockSummary) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c, c.head())
}

// Block returns a summary of the head block.
func (c *Chain) Block() BlockSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head()
}

func (c *Chain) head() BlockSummary {
	return BlockSummary{
		Number:    c.number,
		Timestamp: c.time,
		TxHash:    c.lastTx,
		LogCount:  c.state.LogCount(),
	}
}

// Logs returns every committed log, oldest first.
func (c *Chain) Logs() []*types.Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Logs()
}

// SubscribeLogs delivers the logs of each committed transaction to ch, in
// commit order. Transactions never wait for subscribers: a subscription that
// falls more than the queue size behind ends with ErrSubscriberTooSlow.
func (c *Chain) SubscribeLogs(ch chan<- []*types.Log) event.Subscription {
	sub := &logSubscriber{
		queue:    make(chan []*types.Log, c.queueSize),
		overflow: make(chan struct{}),
	}
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.subMu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer c.unsubscribe(id)
		for {
			select {
			case logs := <-sub.queue:
				select {
				case ch <- logs:
				case <-quit:
					return nil
				}
			case <-sub.overflow:
				return ErrSubscriberTooSlow
			case <-quit:
				return nil
			}
		}
	})
}

func (c *Chain) unsubscribe(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, id)
}

// Deploy creates a contract at the CREATE address of deployer and its nonce.
// It must run inside Transact.
func Deploy[T any](env Env, deployer common.Address, build func(addr common.Address) (T, error)) (T, error) {
	db := env.State()
	nonce := db.GetNonce(deployer)
	addr := crypto.CreateAddress(deployer, nonce)
	db.SetNonce(deployer, nonce+1)

	contract, err := build(addr)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := db.CreateContract(addr, contract); err != nil {
		var zero T
		return zero, err
	}
	return contract, nil
}

// Call runs fn as a nested call frame: if fn fails, every state change it made
// is undone before the error is returned, while the enclosing transaction
// carries on. It must run inside Transact.
func Call(env Env, fn func() error) error {
	db := env.State()
	snap := db.Snapshot()
	err := fn()
	if err == nil {
		return nil
	}
	if rerr := db.RevertToSnapshot(snap); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// At returns the contract of type T deployed at addr.
func At[T any](env Env, addr common.Address) (T, bool) {
	contract, ok := env.State().Contract(addr).(T)
	return contract, ok
}

func transactionHash(chainID *big.Int, number uint64, op string) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return crypto.Keccak256Hash(chainID.Bytes(), buf[:], []byte(op))
}
