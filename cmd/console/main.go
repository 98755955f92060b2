// Command console is an interactive terminal client for ammd. It mirrors every
// pair through the pools stream and queries the node for everything else.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/indexer"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultPoolsBufferSize = 100
	rpcTimeout             = 5 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafePools is a thread-safe container for the latest mirrored pools.
type SafePools struct {
	mu      sync.RWMutex
	set     *client.PoolSet
	indexed indexer.IndexedUniswapV2
	indexer *indexer.Indexer
}

func (s *SafePools) Update(set *client.PoolSet) {
	indexed := s.indexer.Index(set.Pools)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	s.indexed = indexed
}

func (s *SafePools) Get() (*client.PoolSet, indexer.IndexedUniswapV2) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set, s.indexed
}

// tokenCache remembers token metadata fetched from the node.
type tokenCache struct {
	mu     sync.Mutex
	rpc    *client.Client
	tokens map[common.Address]jsonrpc.TokenInfo
}

func (c *tokenCache) get(ctx context.Context, addr common.Address) (jsonrpc.TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tokens[addr]; ok {
		return t, nil
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	t, err := c.rpc.Token(ctx, addr)
	if err != nil {
		return jsonrpc.TokenInfo{}, err
	}
	c.tokens[addr] = t
	return t, nil
}

func (c *tokenCache) symbol(ctx context.Context, addr common.Address) string {
	t, err := c.get(ctx, addr)
	if err != nil {
		return shortAddr(addr)
	}
	return t.Symbol
}

type console struct {
	ctx    context.Context
	pools  *SafePools
	tokens *tokenCache
	rpc    *client.Client
	reader *bufio.Reader
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()
	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	url := flag.String("url", "ws://127.0.0.1:8545", "ammd websocket endpoint.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. CONNECT ---
	rpcClient, err := client.Dial(ctx, *url)
	if err != nil {
		rootLogger.Error("Failed to connect", "url", *url, "error", err)
		closeApp()
	}
	defer rpcClient.Close()

	stream, err := client.NewPoolStream(ctx, client.StreamConfig{
		URL:        *url,
		Logger:     rootLogger.With("component", "pool-stream"),
		BufferSize: DefaultPoolsBufferSize,
	})
	if err != nil {
		rootLogger.Error("Failed to start pool stream", "error", err)
		closeApp()
	}

	// --- 3. START CONSOLE & STATE LOOP ---
	c := &console{
		ctx:    ctx,
		pools:  &SafePools{indexer: indexer.New()},
		tokens: &tokenCache{rpc: rpcClient, tokens: make(map[common.Address]jsonrpc.TokenInfo)},
		rpc:    rpcClient,
		reader: bufio.NewReader(os.Stdin),
	}

	fmt.Println(Green + "Connecting to " + *url + "..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go c.run()

	for {
		select {
		case set := <-stream.Pools():
			c.pools.Update(set)
		case <-stream.Err():
			rootLogger.Error("Pool stream stopped")
			if ctx.Err() == nil {
				closeApp()
			}
			return
		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// run handles user input and display.
func (c *console) run() {
	time.Sleep(500 * time.Millisecond)
	for {
		if c.ctx.Err() != nil {
			return
		}
		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			return
		}
		c.handleCommand(strings.TrimSpace(input))

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "AMM CONSOLE" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Current Block Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s All Pairs\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Pair  %s(by Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Find Pairs %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch Pair %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Quote      %s(Exact Input Along a Path)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(input string) {
	set, indexed := c.pools.Get()
	if set == nil && input != "q" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first pools update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printBlockInfo(set)
	case "2":
		c.printPairs(set.Pools)
	case "3":
		c.findPair(indexed)
	case "4":
		c.findPairsByToken(indexed)
	case "5":
		c.watchPair()
	case "6":
		c.quote()
	case "q":
		fmt.Println(Yellow + "Goodbye." + Reset)
		os.Exit(0)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printBlockInfo(set *client.PoolSet) {
	ts := time.Unix(int64(set.Block.Timestamp), 0).Format("2006-01-02 15:04:05")
	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Time %s%s%s | Pairs %s%d%s\n",
		Green, Reset,
		Bold, set.Block.Number, Reset,
		Bold, ts, Reset,
		Bold, len(set.Pools), Reset,
	)
}

func (c *console) printPairs(pools []uniswapv2.Pool) {
	header("PAIRS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIR\tTOKEN0\tTOKEN1\tRESERVE0\tRESERVE1\tPRICE0\t")
	fmt.Fprintln(w, "----\t------\t------\t--------\t--------\t------\t")
	for _, p := range pools {
		t0, t1 := c.tokens.symbol(c.ctx, p.Token0), c.tokens.symbol(c.ctx, p.Token1)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			shortAddr(p.Address), t0, t1,
			p.Reserve0, p.Reserve1,
			c.price(p),
		)
	}
	w.Flush()
}

// price formats the output for one whole token0, fee and impact included.
func (c *console) price(p uniswapv2.Pool) string {
	t0, err := c.tokens.get(c.ctx, p.Token0)
	if err != nil {
		return "-"
	}
	t1, err := c.tokens.get(c.ctx, p.Token1)
	if err != nil {
		return "-"
	}
	rate, err := calculator.GetExchangeRate(p.Token0, p.Token1, t0.Decimals, p)
	if err != nil {
		return "-"
	}
	return formatUnits(rate, t1.Decimals)
}

func (c *console) findPair(indexed indexer.IndexedUniswapV2) {
	addr, ok := c.readAddress("[Find Pair] Enter Pair Address: ")
	if !ok {
		return
	}
	pool, found := indexed.GetByAddress(addr)
	if !found {
		fmt.Println(Red + "[NOT FOUND] Pair not in the mirrored state." + Reset)
		return
	}
	c.printPool(pool)
}

func (c *console) printPool(p uniswapv2.Pool) {
	header("PAIR " + p.Address.Hex())
	fmt.Printf(" %s%-22s%s %s (%s)\n", Gray, "Token0:", Reset, c.tokens.symbol(c.ctx, p.Token0), p.Token0.Hex())
	fmt.Printf(" %s%-22s%s %s (%s)\n", Gray, "Token1:", Reset, c.tokens.symbol(c.ctx, p.Token1), p.Token1.Hex())
	fmt.Printf(" %s%-22s%s %s\n", Gray, "Reserve0:", Reset, p.Reserve0)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "Reserve1:", Reset, p.Reserve1)
	fmt.Printf(" %s%-22s%s %d\n", Gray, "Last Update:", Reset, p.BlockTimestampLast)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "Price0 Cumulative:", Reset, p.Price0CumulativeLast)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "Price1 Cumulative:", Reset, p.Price1CumulativeLast)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "kLast:", Reset, p.KLast)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "LP Supply:", Reset, p.TotalSupply)
	fmt.Printf(" %s%-22s%s %s\n", Gray, "Price (token0):", Reset, c.price(p))
}

func (c *console) findPairsByToken(indexed indexer.IndexedUniswapV2) {
	addr, ok := c.readAddress("[Find Pairs] Enter Token Address: ")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
	defer cancel()
	pairs, err := c.rpc.PairsForToken(ctx, addr)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	if len(pairs) == 0 {
		fmt.Println(Yellow + "[INFO] Token has no pairs." + Reset)
		return
	}

	var pools []uniswapv2.Pool
	for _, pair := range pairs {
		if p, ok := indexed.GetByAddress(pair); ok {
			pools = append(pools, p)
		}
	}
	c.printPairs(pools)
}

func (c *console) watchPair() {
	addr, ok := c.readAddress("[Watch Pair] Enter Pair Address: ")
	if !ok {
		return
	}
	fmt.Println(Gray + "Watching, press Enter to stop." + Reset)

	done := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(done)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var (
		lastBlock uint64
		start     *calculator.Observation
	)
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			set, indexed := c.pools.Get()
			if set.Block.Number == lastBlock {
				continue
			}
			lastBlock = set.Block.Number
			p, ok := indexed.GetByAddress(addr)
			if !ok {
				fmt.Println(Red + "[NOT FOUND] Pair not in the mirrored state." + Reset)
				return
			}
			obs, err := calculator.Observe(p, uint32(set.Block.Timestamp))
			if err != nil {
				fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
				return
			}
			if start == nil {
				start = &obs
			}
			fmt.Printf("%s#%d%s reserve0=%s reserve1=%s price=%s twap=%s\n",
				Bold, set.Block.Number, Reset, p.Reserve0, p.Reserve1, c.price(p), c.twap(p, *start, obs))
		}
	}
}

// twap formats the average price of one whole token0 since the watch started.
func (c *console) twap(p uniswapv2.Pool, start, now calculator.Observation) string {
	price0, _, err := calculator.AveragePrices(start, now)
	if err != nil {
		return "-"
	}
	t0, err := c.tokens.get(c.ctx, p.Token0)
	if err != nil {
		return "-"
	}
	t1, err := c.tokens.get(c.ctx, p.Token1)
	if err != nil {
		return "-"
	}
	out, err := calculator.Consult(price0, calculator.GetScaledDecimal(t0.Decimals))
	if err != nil {
		return "-"
	}
	return formatUnits(out, t1.Decimals)
}

func (c *console) quote() {
	fmt.Print("\n" + Bold + "[Quote] Enter path token addresses, space separated: " + Reset)
	input, _ := c.reader.ReadString('\n')
	var path []common.Address
	for _, f := range strings.Fields(input) {
		if !common.IsHexAddress(f) {
			fmt.Printf(Red+"[ERROR] Invalid address %q%s\n", f, Reset)
			return
		}
		path = append(path, common.HexToAddress(f))
	}
	if len(path) < 2 {
		fmt.Println(Red + "[ERROR] A path needs at least two tokens." + Reset)
		return
	}

	fmt.Print(Bold + "[Quote] Enter amount in (base units): " + Reset)
	input, _ = c.reader.ReadString('\n')
	amountIn, ok := new(big.Int).SetString(strings.TrimSpace(input), 10)
	if !ok || amountIn.Sign() <= 0 {
		fmt.Println(Red + "[ERROR] Invalid amount." + Reset)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
	defer cancel()
	amounts, err := c.rpc.Quote(ctx, amountIn, path)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("QUOTE")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "HOP\tTOKEN\tAMOUNT\t")
	fmt.Fprintln(w, "---\t-----\t------\t")
	for i, amount := range amounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t\n", i, c.tokens.symbol(c.ctx, path[i]), amount)
	}
	w.Flush()
}

func (c *console) readAddress(prompt string) (common.Address, bool) {
	fmt.Print("\n" + Bold + prompt + Reset)
	input, _ := c.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		fmt.Printf(Red+"[ERROR] Invalid address %q%s\n", input, Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

// formatUnits renders v scaled down by 10^decimals.
func formatUnits(v *big.Int, decimals uint8) string {
	scale := calculator.GetScaledDecimal(decimals)
	whole, frac := new(big.Int).QuoRem(v, scale, new(big.Int))
	if decimals == 0 {
		return whole.String()
	}
	fs := frac.String()
	fs = strings.Repeat("0", int(decimals)-len(fs)) + fs
	fs = strings.TrimRight(fs, "0")
	if fs == "" {
		return whole.String()
	}
	return whole.String() + "." + fs
}
