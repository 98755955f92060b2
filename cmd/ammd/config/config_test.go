package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
chain_id: 31337
genesis_time: 1700000000
deployer: "0x000000000000000000000000000000000000a11e"
fee_to: "0x0000000000000000000000000000000000000fee"
listen_addr: "0.0.0.0:8545"
clock_interval: 2s
tokens:
  - name: Wrapped Ether
    symbol: WETH
    supply: 1000000000000000000000000
    holder: "0x000000000000000000000000000000000000a11e"
  - name: Dai Stablecoin
    symbol: DAI
    supply: 5000000000000000000000000000
    holder: "0x000000000000000000000000000000000000a11e"
pairs:
  - tokens: [WETH, DAI]
    amounts: [1000000000000000000000, 3000000000000000000000000]
    provider: "0x000000000000000000000000000000000000a11e"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	deployer := common.HexToAddress("0x000000000000000000000000000000000000a11e")
	assert.Equal(t, int64(31337), cfg.ChainID.Int64())
	assert.Equal(t, uint64(1_700_000_000), cfg.GenesisTime)
	assert.Equal(t, deployer, cfg.Deployer)
	assert.Equal(t, deployer, cfg.FeeToSetter, "fee_to_setter defaults to the deployer")
	assert.Equal(t, common.HexToAddress("0xfee"), cfg.FeeTo)
	assert.Equal(t, "0.0.0.0:8545", cfg.ListenAddr)
	assert.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, uint(DefaultBufferSize), cfg.BufferSize)
	assert.Equal(t, 2*time.Second, cfg.ClockInterval)

	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, "5000000000000000000000000000", cfg.Tokens[1].Supply.String())
	weth, ok := cfg.Token("WETH")
	require.True(t, ok)
	assert.Equal(t, "Wrapped Ether", weth.Name)
	_, ok = cfg.Token("USDC")
	assert.False(t, ok)

	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, [2]string{"WETH", "DAI"}, cfg.Pairs[0].Tokens)
	require.Len(t, cfg.Pairs[0].Amounts, 2)
	assert.Equal(t, "3000000000000000000000000", cfg.Pairs[0].Amounts[1].String())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		yaml        string
		expectedErr string
	}{
		{
			name:        "missing chain id",
			yaml:        `deployer: "0x000000000000000000000000000000000000a11e"`,
			expectedErr: "chain_id must be positive",
		},
		{
			name:        "missing deployer",
			yaml:        `chain_id: 1`,
			expectedErr: "deployer is required",
		},
		{
			name: "duplicate symbol",
			yaml: `
chain_id: 1
deployer: "0x000000000000000000000000000000000000a11e"
tokens:
  - {symbol: A, supply: 1, holder: "0x000000000000000000000000000000000000a11e"}
  - {symbol: A, supply: 1, holder: "0x000000000000000000000000000000000000a11e"}
`,
			expectedErr: `duplicate symbol "A"`,
		},
		{
			name: "unknown pair token",
			yaml: `
chain_id: 1
deployer: "0x000000000000000000000000000000000000a11e"
tokens:
  - {symbol: A, supply: 1, holder: "0x000000000000000000000000000000000000a11e"}
pairs:
  - tokens: [A, B]
`,
			expectedErr: `unknown token "B"`,
		},
		{
			name: "amounts without provider",
			yaml: `
chain_id: 1
deployer: "0x000000000000000000000000000000000000a11e"
tokens:
  - {symbol: A, supply: 10, holder: "0x000000000000000000000000000000000000a11e"}
  - {symbol: B, supply: 10, holder: "0x000000000000000000000000000000000000a11e"}
pairs:
  - tokens: [A, B]
    amounts: [1, 1]
`,
			expectedErr: "provider is required",
		},
		{
			name: "same token twice",
			yaml: `
chain_id: 1
deployer: "0x000000000000000000000000000000000000a11e"
tokens:
  - {symbol: A, supply: 10, holder: "0x000000000000000000000000000000000000a11e"}
pairs:
  - tokens: [A, A]
`,
			expectedErr: "tokens must differ",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Tokens, 2)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
