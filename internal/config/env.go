package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvHome             = "PAYCART_HOME"
	EnvBackendURL       = "PAYCART_BACKEND_URL"
	EnvAdminToken       = "PAYCART_ADMIN_TOKEN" // #nosec G101 -- variable name, not a credential
	EnvFeedbackHook     = "PAYCART_FEEDBACK_HOOK"
	EnvChainID          = "PAYCART_CHAIN_ID"
	EnvRPCURL           = "PAYCART_RPC_URL"
	EnvWalletRPCURL     = "PAYCART_WALLET_RPC_URL"
	EnvPaymentToken     = "PAYCART_PAYMENT_TOKEN"
	EnvOrderContract    = "PAYCART_ORDER_CONTRACT"
	EnvAaveProvider     = "PAYCART_AAVE_ADDRESSES_PROVIDER"
	EnvAavePool         = "PAYCART_AAVE_POOL"
	EnvUserID           = "PAYCART_USER_ID"
	EnvAdminWallet      = "PAYCART_ADMIN_WALLET"
	EnvAdminPrivyID     = "PAYCART_ADMIN_PRIVY_ID"
	EnvWalletSource     = "PAYCART_WALLET_SOURCE"
	EnvWalletPath       = "PAYCART_WALLET_PATH"
	EnvRedisURL         = "PAYCART_REDIS_URL"
	EnvKafkaBrokers     = "PAYCART_KAFKA_BROKERS"
	EnvOTLPEndpoint     = "PAYCART_OTLP_ENDPOINT"
	EnvOutputFormat     = "PAYCART_OUTPUT_FORMAT"
	EnvVerbose          = "PAYCART_VERBOSE"
	EnvLogLevel         = "PAYCART_LOG_LEVEL"
	EnvNoColor          = "NO_COLOR"
	EnvPrivateKey       = "PAYCART_PRIVATE_KEY"       // #nosec G101 -- variable name, not a credential
	EnvMnemonic         = "PAYCART_MNEMONIC"          // #nosec G101 -- variable name, not a credential
	EnvWalletPassphrase = "PAYCART_WALLET_PASSPHRASE" // #nosec G101 -- variable name, not a credential
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables already set are not overridden
// and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	setString(&cfg.Home, EnvHome)
	setURL(&cfg.Backend.BaseURL, EnvBackendURL)
	setString(&cfg.Backend.AdminToken, EnvAdminToken)
	setURL(&cfg.Backend.FeedbackHook, EnvFeedbackHook)

	if v := os.Getenv(EnvChainID); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			cfg.Chain.ChainID = id
		}
	}
	setURL(&cfg.Chain.RPC, EnvRPCURL)
	setURL(&cfg.Chain.WalletRPC, EnvWalletRPCURL)
	setString(&cfg.Chain.PaymentToken.Address, EnvPaymentToken)
	setString(&cfg.Chain.OrderContract, EnvOrderContract)
	setString(&cfg.Chain.Lending.AddressesProvider, EnvAaveProvider)
	setString(&cfg.Chain.Lending.Pool, EnvAavePool)

	setString(&cfg.User.ID, EnvUserID)
	setString(&cfg.Admin.WalletAddress, EnvAdminWallet)
	setString(&cfg.Admin.PrivyID, EnvAdminPrivyID)
	setString(&cfg.Wallet.Source, EnvWalletSource)
	setString(&cfg.Wallet.Path, EnvWalletPath)

	setURL(&cfg.Cache.RedisURL, EnvRedisURL)
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		cfg.Notify.KafkaBrokers = CSV(v)
	}
	setString(&cfg.Telemetry.OTLPEndpoint, EnvOTLPEndpoint)

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setURL(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = SanitizeURL(v)
	}
}

// CSV splits a comma separated list, dropping empty entries.
func CSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace and copy-paste artifacts (quotes, trailing
// slashes) from a URL.
func SanitizeURL(url string) string {
	url = strings.Trim(strings.TrimSpace(url), `"'`)
	return strings.TrimRight(url, "/")
}
