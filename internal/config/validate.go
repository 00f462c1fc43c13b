package config

import (
	"fmt"
	"net/url"
	"regexp"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate rejects configuration that can never work: malformed addresses
// and URLs, a zero chain id, or an out-of-range fee rate.
func (c *Config) Validate() error {
	problems := map[string]string{}

	if c.Chain.ChainID <= 0 {
		problems["chain.chain_id"] = "must be positive"
	}
	if !validURL(c.Chain.RPC) {
		problems["chain.rpc"] = "must be an http(s) or ws(s) URL"
	}
	if c.Chain.WalletRPC != "" && !validURL(c.Chain.WalletRPC) {
		problems["chain.wallet_rpc"] = "must be an http(s) or ws(s) URL"
	}
	if !validURL(c.Backend.BaseURL) {
		problems["backend.base_url"] = "must be an http(s) URL"
	}
	if c.Chain.PaymentToken.Decimals < 0 || c.Chain.PaymentToken.Decimals > 36 {
		problems["chain.payment_token.decimals"] = "must be between 0 and 36"
	}
	if c.Checkout.FeeRate < 0 || c.Checkout.FeeRate >= 1 {
		problems["checkout.fee_rate"] = "must be in [0, 1)"
	}

	for key, addr := range map[string]string{
		"chain.payment_token.address":      c.Chain.PaymentToken.Address,
		"chain.order_contract":             c.Chain.OrderContract,
		"chain.lending.addresses_provider": c.Chain.Lending.AddressesProvider,
		"chain.lending.pool":               c.Chain.Lending.Pool,
		"chain.lending.oracle":             c.Chain.Lending.Oracle,
		"admin.wallet_address":             c.Admin.WalletAddress,
	} {
		if addr != "" && !addressPattern.MatchString(addr) {
			problems[key] = fmt.Sprintf("%q is not a 0x-prefixed 20-byte address", addr)
		}
	}

	switch c.Wallet.Source {
	case "env", "keystore", "age", "mnemonic":
	default:
		problems["wallet.source"] = "must be one of env, keystore, age, mnemonic"
	}

	if len(problems) > 0 {
		return paycarterr.WithDetails(paycarterr.ErrConfigInvalid, problems)
	}
	return nil
}

// RequireCheckout checks the settings only the checkout flow needs.
func (c *Config) RequireCheckout() error {
	if c.Chain.OrderContract == "" {
		return paycarterr.WithSuggestion(
			paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"chain.order_contract": "not set"}),
			"Set it with 'paycart config set chain.order_contract 0x...' or PAYCART_ORDER_CONTRACT",
		)
	}
	if c.Chain.PaymentToken.Address == "" {
		return paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"chain.payment_token.address": "not set"})
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}
