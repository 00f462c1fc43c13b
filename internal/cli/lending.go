package cli

import (
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	readWallet string
	capUser    string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	borrowCapacityCmd = &cobra.Command{
		Use:   "borrow-capacity",
		Short: "Show how much USDC the wallet can borrow from Aave",
		Long: `Show the wallet's Aave position for the payment token: maximum borrow,
liquidation threshold, health factor and net worth. When a cart is
available the output also says whether borrow-then-pay can cover it.`,
		Args: cobra.NoArgs,
		RunE: runBorrowCapacity,
	}

	allowanceCmd = &cobra.Command{
		Use:   "allowance",
		Short: "Show the order contract's USDC allowance",
		Args:  cobra.NoArgs,
		RunE:  runAllowance,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{borrowCapacityCmd, allowanceCmd} {
		c.Flags().StringVar(&readWallet, "wallet", "", "wallet address (default: the configured signer)")
	}
	borrowCapacityCmd.Flags().StringVar(&capUser, "user", "", "user whose cart total to compare (default: user.id from config)")
	rootCmd.AddCommand(borrowCapacityCmd, allowanceCmd)
}

type capacityResult struct {
	Wallet             string `json:"wallet"`
	Asset              string `json:"asset"`
	MaxBorrow          string `json:"max_borrow"`
	LiquidationPercent string `json:"liquidation_threshold_percent"`
	HealthFactor       string `json:"health_factor"`
	TotalBorrowUSD     string `json:"total_borrow_usd"`
	TotalCollateralUSD string `json:"total_collateral_usd"`
	NetWorthUSD        string `json:"net_worth_usd"`
	CartTotal          string `json:"cart_total,omitempty"`
	CanPayCart         *bool  `json:"can_pay_cart,omitempty"`
}

func runBorrowCapacity(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	wallet, err := cmdCtx.Wallet(readWallet)
	if err != nil {
		return err
	}
	adapter, err := cmdCtx.Chain(false, true)
	if err != nil {
		return err
	}
	gateway, err := cmdCtx.Lending(adapter)
	if err != nil {
		return err
	}
	token, err := cmdCtx.PaymentToken()
	if err != nil {
		return err
	}
	c, err := gateway.Capacity(ctx, wallet, token.Address)
	if err != nil {
		return err
	}

	res := capacityResult{
		Wallet:             wallet.Hex(),
		Asset:              token.Address.Hex(),
		MaxBorrow:          output.Money(c.MaxBorrow),
		LiquidationPercent: c.LiquidationThreshold.Shift(2).StringFixed(2),
		HealthFactor:       c.HealthFactor.StringFixed(2),
		TotalBorrowUSD:     output.Money(c.TotalBorrowUSD),
		TotalCollateralUSD: output.Money(c.TotalCollateralUSD),
		NetWorthUSD:        output.Money(c.NetWorthUSD),
	}
	if userID, userErr := resolveUser(capUser); userErr == nil {
		if svc, svcErr := cmdCtx.Cart(ctx); svcErr == nil {
			if crt, cartErr := svc.Get(ctx, userID); cartErr == nil && !crt.IsEmpty() {
				rate, _ := cmdCtx.Rate(ctx)
				total := computeTotals(crt, rate).TotalQuote
				ok := checkout.BorrowAvailable(c, total)
				res.CartTotal = output.Money(total)
				res.CanPayCart = &ok
			}
		}
	}

	symbol := cfg.Chain.PaymentToken.Symbol
	return formatter.Result(res, func(w io.Writer) error {
		hf := res.HealthFactor
		if c.HealthFactor.IsNegative() {
			hf = "no debt"
		}
		t := output.NewTable("", "").AlignRight(1)
		t.AddRow("Max borrow", res.MaxBorrow+" "+symbol)
		t.AddRow("Liquidation threshold", res.LiquidationPercent+"%")
		t.AddRow("Health factor", hf)
		t.AddRow("Borrowed (USD)", res.TotalBorrowUSD)
		t.AddRow("Collateral (USD)", res.TotalCollateralUSD)
		t.AddRow("Net worth (USD)", res.NetWorthUSD)
		if err := t.Render(w); err != nil {
			return err
		}
		if res.CanPayCart != nil {
			outln(w)
			if *res.CanPayCart {
				output.Success(w, "Borrowing can cover the cart total of %s %s", res.CartTotal, symbol)
			} else {
				output.Warn(w, "Borrow capacity does not cover the cart total of %s %s", res.CartTotal, symbol)
			}
		}
		return nil
	})
}

type allowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Token     string `json:"token"`
	Units     string `json:"units"`
	Allowance string `json:"allowance"`
}

func runAllowance(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	wallet, err := cmdCtx.Wallet(readWallet)
	if err != nil {
		return err
	}
	adapter, err := cmdCtx.Chain(false, true)
	if err != nil {
		return err
	}
	token, err := cmdCtx.PaymentToken()
	if err != nil {
		return err
	}
	orderContract, err := cmdCtx.OrderContract()
	if err != nil {
		return err
	}
	units, err := approval.NewController(adapter, logger.Named("approval")).Allowance(ctx, token, wallet, orderContract.Address)
	if err != nil {
		return err
	}
	res := newAllowanceResult(wallet, orderContract.Address, token.Address, units.String(),
		chain.FormatTokenUnits(units, cfg.Chain.PaymentToken.Decimals))
	return formatter.Result(res, func(w io.Writer) error {
		out(w, "%s %s approved for %s\n", res.Allowance, cfg.Chain.PaymentToken.Symbol, res.Spender)
		return nil
	})
}

func newAllowanceResult(owner, spender, token common.Address, units, amount string) allowanceResult {
	return allowanceResult{
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Token:     token.Hex(),
		Units:     units,
		Allowance: amount,
	}
}
