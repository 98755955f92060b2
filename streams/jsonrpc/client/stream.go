package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

var ErrDiffBeforeFull = errors.New("received diff before full state")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PatcherFunc applies a diff to the previous pools.
type PatcherFunc func(prev []uniswapv2.Pool, diff uniswapv2.PoolsDiff) ([]uniswapv2.Pool, error)

// StreamConfig holds the configuration of a PoolStream.
type StreamConfig struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// Patcher defaults to uniswapv2.Patcher.
	Patcher PatcherFunc
}

func (c *StreamConfig) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// StreamProcessor turns pools stream messages into PoolSets. It keeps the last
// set so diffs can be applied, and does no networking.
type StreamProcessor struct {
	last    *PoolSet
	patcher PatcherFunc
	poolsCh chan *PoolSet
	logger  Logger
}

func NewStreamProcessor(logger Logger, bufferSize uint, patcher PatcherFunc) *StreamProcessor {
	if patcher == nil {
		patcher = uniswapv2.Patcher
	}
	return &StreamProcessor{
		logger:  logger,
		poolsCh: make(chan *PoolSet, bufferSize),
		patcher: patcher,
	}
}

// Pools returns a read-only channel for receiving new pool sets.
func (sp *StreamProcessor) Pools() <-chan *PoolSet {
	return sp.poolsCh
}

// Last returns the most recent pool set, or nil before the first full message.
func (sp *StreamProcessor) Last() *PoolSet {
	return sp.last
}

// ProcessMessage decodes one raw stream message and applies it.
func (sp *StreamProcessor) ProcessMessage(raw json.RawMessage) error {
	var ev jsonrpc.PoolsEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal pools event: %w", err)
	}
	return sp.Process(&ev)
}

// Process applies a decoded stream message.
func (sp *StreamProcessor) Process(ev *jsonrpc.PoolsEvent) error {
	start := time.Now()
	switch ev.Type {
	case jsonrpc.PoolsEventFull:
		pools := append([]uniswapv2.Pool(nil), ev.Pools...)
		sort.Slice(pools, func(i, j int) bool {
			return pools[i].Address.Cmp(pools[j].Address) < 0
		})
		sp.publish(&PoolSet{Block: ev.Block, Pools: pools}, ev, start)
		return nil
	case jsonrpc.PoolsEventDiff:
		return sp.handleDiff(ev, start)
	default:
		return fmt.Errorf("received unknown event type: %s", ev.Type)
	}
}

func (sp *StreamProcessor) handleDiff(ev *jsonrpc.PoolsEvent, start time.Time) error {
	if sp.last == nil {
		return fmt.Errorf("%w: from_block %d, to_block %d", ErrDiffBeforeFull, ev.FromBlock, ev.Block.Number)
	}
	if ev.Diff == nil {
		return errors.New("diff event without a diff")
	}
	if ev.FromBlock != sp.last.Block.Number {
		sp.logger.Warn("received out-of-order diff; discarding",
			"last_known_block", sp.last.Block.Number,
			"diff_from_block", ev.FromBlock,
			"diff_to_block", ev.Block.Number,
		)
		return nil
	}

	pools, err := sp.patcher(sp.last.Pools, *ev.Diff)
	if err != nil {
		return fmt.Errorf("failed to patch pools: %w", err)
	}
	sp.publish(&PoolSet{Block: ev.Block, Pools: pools}, ev, start)
	return nil
}

func (sp *StreamProcessor) publish(set *PoolSet, ev *jsonrpc.PoolsEvent, start time.Time) {
	sp.last = set
	sp.logger.Debug("pools processed",
		"block", set.Block.Number,
		"type", ev.Type,
		"pools", len(set.Pools),
		"latency_transport_ms", start.Sub(time.Unix(0, ev.SentAt)).Milliseconds(),
		"latency_proc_ms", time.Since(start).Milliseconds(),
	)
	sp.poolsCh <- set
}

// PoolStream keeps a local mirror of every pair by following amm_subscribePools,
// reconnecting with backoff when the connection drops.
type PoolStream struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewPoolStream starts following the server at cfg.URL until ctx is cancelled.
func NewPoolStream(ctx context.Context, cfg StreamConfig) (*PoolStream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &PoolStream{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.Patcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go s.run(ctx, cfg.URL)
	return s, nil
}

func (s *PoolStream) Pools() <-chan *PoolSet {
	return s.processor.Pools()
}

// Err is closed when the stream stops.
func (s *PoolStream) Err() <-chan error {
	return s.errCh
}

func (s *PoolStream) run(ctx context.Context, url string) {
	defer close(s.errCh)
	delay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			s.logger.Info("pool stream context canceled, shutting down")
			return
		}

		s.logger.Info("connecting to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			s.logger.Error("failed to connect to RPC server, will retry", "error", err, "delay", delay)
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		delay = initialReconnectDelay

		err = s.subscribeAndProcess(ctx, rpcClient)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.logger.Error("subscription failed, will reconnect", "error", err, "delay", delay)
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (s *PoolStream) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, jsonrpc.Namespace, rawCh, jsonrpc.PoolsSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	// a new subscription starts with a full snapshot, so the old one is stale
	s.processor.last = nil
	for {
		select {
		case raw := <-rawCh:
			if err := s.processor.ProcessMessage(raw); err != nil {
				s.logger.Error("error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
