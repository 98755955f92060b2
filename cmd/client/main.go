package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-amm-go/protocols/erc20"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/indexer"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var eventNames = map[common.Hash]string{
	uniswapv2.PairCreatedEventID: "PairCreated",
	uniswapv2.SyncEventID:        "Sync",
	uniswapv2.MintEventID:        "Mint",
	uniswapv2.BurnEventID:        "Burn",
	uniswapv2.SwapEventID:        "Swap",
	erc20.TransferEventID:        "Transfer",
	erc20.ApprovalEventID:        "Approval",
}

const (
	DefaultClientPoolsBufferSize = 100
	DefaultClientLogsBufferSize  = 256
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}
	rootLogger := slog.New(rootLogHandler)

	url := flag.String("url", "ws://127.0.0.1:8545", "ammd websocket endpoint.")
	watch := flag.String("pair", "", "Only report this pair (optional).")
	flag.Parse()

	var pair common.Address
	if *watch != "" {
		if !common.IsHexAddress(*watch) {
			rootLogger.Error("Invalid pair address", "pair", *watch)
			close()
		}
		pair = common.HexToAddress(*watch)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := client.NewPoolStream(ctx, client.StreamConfig{
		URL:        *url,
		Logger:     rootLogger.With("component", "pool-stream"),
		BufferSize: DefaultClientPoolsBufferSize,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize pool stream", "error", err)
		close()
	}

	rpcClient, err := client.Dial(ctx, *url)
	if err != nil {
		rootLogger.Error("Failed to connect", "url", *url, "error", err)
		close()
	}
	defer rpcClient.Close()

	var filter []common.Address
	if pair != (common.Address{}) {
		filter = append(filter, pair)
	}
	logsCh := make(chan types.Log, DefaultClientLogsBufferSize)
	sub, err := rpcClient.SubscribeLogs(ctx, logsCh, filter...)
	if err != nil {
		rootLogger.Error("Failed to subscribe to logs", "error", err)
		close()
	}
	defer sub.Unsubscribe()

	idx := indexer.New()
	for {
		select {
		case set := <-stream.Pools():
			report(rootLogger, set, idx.Index(set.Pools), pair)
		case l := <-logsCh:
			reportLog(rootLogger, l)
		case err := <-sub.Err():
			rootLogger.Error("Log subscription failed", "error", err)
			return
		case <-stream.Err():
			rootLogger.Error("Pool stream stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func report(logger *slog.Logger, set *client.PoolSet, indexed indexer.IndexedUniswapV2, pair common.Address) {
	if pair == (common.Address{}) {
		logger.Info("pools updated", "block", set.Block.Number, "timestamp", set.Block.Timestamp, "pairs", len(set.Pools))
		return
	}
	p, ok := indexed.GetByAddress(pair)
	if !ok {
		logger.Warn("pair not found", "block", set.Block.Number, "pair", pair)
		return
	}
	logger.Info("pair updated",
		"block", set.Block.Number,
		"pair", p.Address,
		"reserve0", p.Reserve0,
		"reserve1", p.Reserve1,
		"block_timestamp_last", p.BlockTimestampLast,
	)
}

func reportLog(logger *slog.Logger, l types.Log) {
	name := "unknown"
	if len(l.Topics) > 0 {
		if n, ok := eventNames[l.Topics[0]]; ok {
			name = n
		}
	}
	logger.Info("log", "block", l.BlockNumber, "index", l.Index, "address", l.Address, "event", name, "tx", l.TxHash)
}
