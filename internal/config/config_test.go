package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/config"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := config.Defaults()
	cfg.Chain.RPC = "https://sepolia.infura.io/v3/key"
	cfg.Chain.OrderContract = "0x00000000000000000000000000000000000000aa"
	cfg.Checkout.EventTimeout = 45 * time.Second
	cfg.Notify.KafkaBrokers = []string{"localhost:9092"}
	cfg.Output.Verbose = true

	require.NoError(t, config.Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkout:\n  fee_rate: 0.05\n  event_timeout: 10s\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, cfg.Checkout.FeeRate, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Checkout.EventTimeout)
	assert.Equal(t, config.DefaultChainID, cfg.Chain.ChainID)
	assert.Equal(t, config.DefaultHistoryView, cfg.Checkout.HistoryView)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chain: [unclosed"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.paycart", cfg.Home)
	assert.Equal(t, int64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, "USDC", cfg.Chain.PaymentToken.Symbol)
	assert.Equal(t, int32(6), cfg.Chain.PaymentToken.Decimals)
	assert.Equal(t, config.DefaultUSDCAddress, cfg.Chain.PaymentToken.Address)
	assert.Equal(t, int64(2), cfg.Chain.Lending.InterestRateMode)
	assert.InDelta(t, 0.03, cfg.Checkout.FeeRate, 1e-9)
	assert.Equal(t, "order-history", cfg.Checkout.HistoryView)
	assert.Equal(t, "env", cfg.Wallet.Source)
	assert.True(t, cfg.Wallet.Confirm)
	assert.Equal(t, "error", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"zero chain", func(c *config.Config) { c.Chain.ChainID = 0 }, "chain.chain_id"},
		{"bad rpc", func(c *config.Config) { c.Chain.RPC = "not a url" }, "chain.rpc"},
		{"ftp backend", func(c *config.Config) { c.Backend.BaseURL = "ftp://shop" }, "backend.base_url"},
		{"fee too high", func(c *config.Config) { c.Checkout.FeeRate = 1 }, "checkout.fee_rate"},
		{"negative fee", func(c *config.Config) { c.Checkout.FeeRate = -0.1 }, "checkout.fee_rate"},
		{"short address", func(c *config.Config) { c.Chain.OrderContract = "0x1234" }, "chain.order_contract"},
		{"bad wallet source", func(c *config.Config) { c.Wallet.Source = "ledger" }, "wallet.source"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, paycarterr.ErrConfigInvalid)
			assert.Contains(t, paycarterr.DetailsOf(err), tc.key)
		})
	}
}

func TestRequireCheckout(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	err := cfg.RequireCheckout()
	require.ErrorIs(t, err, paycarterr.ErrConfigInvalid)

	cfg.Chain.OrderContract = "0x00000000000000000000000000000000000000aa"
	require.NoError(t, cfg.RequireCheckout())
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	assert.False(t, cfg.IsAdmin("0xabc", "did:privy:1"), "no admin configured")

	cfg.Admin.WalletAddress = "0x00000000000000000000000000000000000000AA"
	cfg.Admin.PrivyID = "did:privy:admin"
	assert.True(t, cfg.IsAdmin("0x00000000000000000000000000000000000000aa", ""))
	assert.True(t, cfg.IsAdmin("", "did:privy:admin"))
	assert.False(t, cfg.IsAdmin("0x01", "did:privy:other"))
}

func TestPathAndExpandHome(t *testing.T) {
	t.Parallel()
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".paycart", "config.yaml"), config.Path("~/.paycart"))
	assert.Equal(t, "/abs/path", config.ExpandHome("/abs/path"))
	assert.Equal(t, filepath.Join(home, "x"), config.ExpandHome("~/x"))
}

func TestGetSet(t *testing.T) {
	t.Parallel()

	t.Run("string keys stay strings", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		require.NoError(t, config.Set(cfg, "chain.order_contract", "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"))
		assert.Equal(t, "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", cfg.Chain.OrderContract)

		v, err := config.Get(cfg, "chain.order_contract")
		require.NoError(t, err)
		assert.Equal(t, "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", v)
	})

	t.Run("typed values", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		require.NoError(t, config.Set(cfg, "checkout.fee_rate", "0.05"))
		require.NoError(t, config.Set(cfg, "checkout.event_timeout", "45s"))
		require.NoError(t, config.Set(cfg, "wallet.confirm", "false"))
		require.NoError(t, config.Set(cfg, "chain.chain_id", "8453"))
		require.NoError(t, config.Set(cfg, "notify.kafka_brokers", "a:9092,b:9092"))

		assert.InDelta(t, 0.05, cfg.Checkout.FeeRate, 1e-9)
		assert.Equal(t, 45*time.Second, cfg.Checkout.EventTimeout)
		assert.False(t, cfg.Wallet.Confirm)
		assert.Equal(t, int64(8453), cfg.Chain.ChainID)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notify.KafkaBrokers)

		v, err := config.Get(cfg, "notify.kafka_brokers")
		require.NoError(t, err)
		assert.Equal(t, "a:9092,b:9092", v)
	})

	t.Run("type mismatch", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		err := config.Set(cfg, "chain.chain_id", "sepolia")
		require.ErrorIs(t, err, paycarterr.ErrInvalidInput)
		assert.Equal(t, config.DefaultChainID, cfg.Chain.ChainID)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		_, err := config.Get(cfg, "chain.rcp")
		require.ErrorIs(t, err, paycarterr.ErrUnknownConfigKey)
		var pe *paycarterr.PaycartError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, `did you mean "chain.rpc"?`, pe.Suggestion)
		require.ErrorIs(t, config.Set(cfg, "nope", "1"), paycarterr.ErrUnknownConfigKey)
	})

	t.Run("secrets redacted", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		cfg.Backend.AdminToken = "s3cret"
		v, err := config.Get(cfg, "backend.admin_token")
		require.NoError(t, err)
		assert.Equal(t, "<redacted>", v)
	})
}

func TestKeyPaths(t *testing.T) {
	t.Parallel()
	keys := config.KeyPaths()
	assert.Contains(t, keys, "chain.rpc")
	assert.Contains(t, keys, "chain.lending.pool")
	assert.Contains(t, keys, "checkout.fee_rate")
	assert.Contains(t, keys, "notify.kafka_brokers")
	assert.IsNonDecreasing(t, keys)
}

func TestSuggestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "checkout.fee_rate", config.SuggestKey("checkout.feerate"))
	assert.Equal(t, "logging.level", config.SuggestKey("loging.level"))
	assert.Empty(t, config.SuggestKey("completely.different.thing"))
}
