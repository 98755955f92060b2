// Command ammd runs a single-node AMM chain and serves it over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/chain"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/protocols/pairindex"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	close := func() {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := run(ctx, cfg, rootLogger, registry); err != nil {
		rootLogger.Error("ammd stopped", "error", err)
		close()
	}
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}

// run builds the chain, deploys the configured contracts and serves until ctx
// is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) error {
	c, err := chain.New(&chain.Config{
		ChainID:     cfg.ChainID,
		GenesisTime: cfg.GenesisTime,
		Registry:    registry,
		Logger:      logger.With("component", "chain"),
	})
	if err != nil {
		return err
	}

	d, err := bootstrap(c, cfg, logger.With("component", "bootstrap"))
	if err != nil {
		return err
	}

	index := pairindex.New(d.factory.Address(), logger.With("component", "pairindex"))
	index.Apply(c.Logs())

	api, err := jsonrpc.NewAPI(jsonrpc.Config{
		Chain:      c,
		Factory:    d.factory,
		Index:      index,
		Logger:     logger.With("component", "jsonrpc"),
		BufferSize: cfg.BufferSize,
	})
	if err != nil {
		return err
	}
	rpcServer, err := jsonrpc.NewServer(api)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	rpcListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}
	metricsListener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		rpcListener.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}

	rpcHTTP := &http.Server{Handler: rpcHandler(rpcServer), ReadHeaderTimeout: 10 * time.Second}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	metricsHTTP := &http.Server{Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 3)
	go func() { errCh <- serve(rpcHTTP, rpcListener) }()
	go func() { errCh <- serve(metricsHTTP, metricsListener) }()
	go func() {
		if err := index.Run(ctx, c); !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("pair index: %w", err)
		}
	}()
	if cfg.FollowWallClock {
		go followWallClock(ctx, c, cfg.ClockInterval, logger.With("component", "clock"))
	}

	logger.Info("ammd started",
		"chain_id", cfg.ChainID,
		"rpc", rpcListener.Addr().String(),
		"metrics", metricsListener.Addr().String(),
		"factory", d.factory.Address(),
		"pairs", len(d.pairs),
	)

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = metricsHTTP.Shutdown(shutdownCtx)
	logger.Info("ammd shut down", "block", c.Block().Number)
	return err
}

func serve(srv *http.Server, l net.Listener) error {
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// rpcHandler serves websocket upgrades and plain HTTP JSON-RPC on one port.
func rpcHandler(srv interface {
	http.Handler
	WebsocketHandler(allowedOrigins []string) http.Handler
}) http.Handler {
	ws := srv.WebsocketHandler([]string{"*"})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}

// followWallClock keeps block time at the host clock so price accumulators advance.
func followWallClock(ctx context.Context, c *chain.Chain, interval time.Duration, logger Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := c.SetTime(uint64(now.Unix())); err != nil {
				logger.Debug("clock behind chain time", "error", err)
			}
		}
	}
}
