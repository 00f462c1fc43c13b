package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/output"
	"github.com/mrz1836/paycart/internal/pricing"
	"github.com/mrz1836/paycart/internal/service/cart"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// baseCurrency is the currency cart prices and exchange rates are quoted in.
const baseCurrency = "MXN"

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	checkoutUser         string
	checkoutName         string
	checkoutStreet       string
	checkoutPostalCode   string
	checkoutPhone        string
	checkoutInstructions string
	checkoutPayWithAave  bool
	checkoutYes          bool
	totalsUser           string

	// isInteractive reports whether prompts can be shown. Replaced in tests.
	isInteractive = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Pay for the cart in USDC and record the order",
	Long: `Pay for the current cart with the configured stablecoin.

The cart total plus the service fee is converted at the latest exchange rate.
paycart then approves the order contract for exactly that amount, creates the
order on-chain, waits for the OrderCreated event and records the order on the
shop backend. With --pay-with-aave the amount is first borrowed from Aave.

Missing shipping fields are prompted for on a terminal. Every transaction is
shown for confirmation before it is signed unless --yes is given.

If the payment is sent but the order cannot be recorded, paycart exits with
code 6 and prints the transaction details. Use 'paycart reconcile' to finish
the order.`,
	Example: `  paycart checkout --name "Ana Perez" --street "Av. Reforma 1" --postal-code 06600 --phone 5555555555
  paycart checkout --pay-with-aave --yes -o json`,
	RunE: runCheckout,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Show the cart totals in pesos and USDC",
	RunE:  runTotals,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	f := checkoutCmd.Flags()
	f.StringVar(&checkoutUser, "user", "", "user id (default: user.id from config)")
	f.StringVar(&checkoutName, "name", "", "recipient full name")
	f.StringVar(&checkoutStreet, "street", "", "street address")
	f.StringVar(&checkoutPostalCode, "postal-code", "", "postal code")
	f.StringVar(&checkoutPhone, "phone", "", "contact phone")
	f.StringVar(&checkoutInstructions, "instructions", "", "delivery instructions (optional)")
	f.BoolVar(&checkoutPayWithAave, "pay-with-aave", false, "borrow the total from Aave before paying")
	f.BoolVarP(&checkoutYes, "yes", "y", false, "skip confirmation prompts")

	totalsCmd.Flags().StringVar(&totalsUser, "user", "", "user id (default: user.id from config)")

	rootCmd.AddCommand(checkoutCmd, totalsCmd)
}

// resolveUser picks the --user flag or the configured user id.
func resolveUser(flag string) (string, error) {
	if u := strings.TrimSpace(flag); u != "" {
		return u, nil
	}
	if cfg.User.ID != "" {
		return cfg.User.ID, nil
	}
	return "", paycarterr.WithSuggestion(paycarterr.ErrInvalidInput,
		"pass --user or run 'paycart config set user.id <id>'")
}

// loadQuote reads the cart and the exchange rate. A missing rate is
// reported and the totals stay unconverted.
func loadQuote(ctx context.Context, w io.Writer, userID string) (*backend.Cart, *backend.ExchangeRate, error) {
	svc, err := cmdCtx.Cart(ctx)
	if err != nil {
		return nil, nil, err
	}
	c, err := svc.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	rate, err := cmdCtx.Rate(ctx)
	if err != nil {
		logger.Error("rate unavailable: %v", err)
		if !formatter.IsJSON() {
			output.Warn(w, "exchange rate unavailable: %s", output.Describe(err).Message)
		}
		rate = nil
	}
	return c, rate, nil
}

func computeTotals(c *backend.Cart, rate *backend.ExchangeRate) pricing.Totals {
	return pricing.NewConverter(cfg.Checkout.FeeRate).Compute(cart.PricingItems(c), cart.PricingRate(rate))
}

func totalsView(t pricing.Totals) output.TotalsView {
	return output.NewTotalsView(t, baseCurrency, cfg.Chain.PaymentToken.Symbol)
}

type totalsResult struct {
	UserID string                `json:"user_id"`
	Items  []backend.CartItem    `json:"items"`
	Rate   *backend.ExchangeRate `json:"rate,omitempty"`
	Totals output.TotalsView     `json:"totals"`
	Units  string                `json:"amount_units"`
}

func runTotals(cmd *cobra.Command, _ []string) error {
	userID, err := resolveUser(totalsUser)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, rate, err := loadQuote(ctx, cmd.ErrOrStderr(), userID)
	if err != nil {
		return err
	}
	totals := computeTotals(c, rate)
	res := totalsResult{UserID: userID, Items: c.Items, Rate: rate, Totals: totalsView(totals)}
	if units, unitsErr := totals.QuoteUnits(cfg.Chain.PaymentToken.Decimals); unitsErr == nil {
		res.Units = units.String()
	}

	return formatter.Result(res, func(w io.Writer) error {
		if c.IsEmpty() {
			outln(w, "Cart is empty.")
			return nil
		}
		if err := renderCart(w, c); err != nil {
			return err
		}
		outln(w)
		if rate != nil {
			out(w, "Rate: %.4f %s per USD (%s)\n\n", rate.Value, baseCurrency, rate.Date)
		}
		return output.RenderTotals(w, res.Totals)
	})
}

// collectShipping fills missing shipping fields from prompts when a
// terminal is attached.
func collectShipping(assumeYes bool) (checkout.Shipping, error) {
	s := checkout.Shipping{
		FullName:             strings.TrimSpace(checkoutName),
		Street:               strings.TrimSpace(checkoutStreet),
		PostalCode:           strings.TrimSpace(checkoutPostalCode),
		Phone:                strings.TrimSpace(checkoutPhone),
		DeliveryInstructions: strings.TrimSpace(checkoutInstructions),
	}
	if assumeYes || !isInteractive() {
		return s, nil
	}
	for _, f := range []struct {
		label string
		value *string
	}{
		{"Full name", &s.FullName},
		{"Street", &s.Street},
		{"Postal code", &s.PostalCode},
		{"Phone", &s.Phone},
	} {
		if *f.value != "" {
			continue
		}
		v, err := promptLineFn(f.label, "")
		if err != nil {
			return s, err
		}
		*f.value = strings.TrimSpace(v)
	}
	return s, nil
}

// checkoutResult is the JSON shape of a finished checkout.
type checkoutResult struct {
	AttemptID         string            `json:"attempt_id"`
	State             checkout.State    `json:"state"`
	Strategy          string            `json:"strategy"`
	Totals            output.TotalsView `json:"totals"`
	AmountUnits       string            `json:"amount_units"`
	Amount            string            `json:"amount"`
	BorrowTx          string            `json:"borrow_tx,omitempty"`
	ApproveTx         string            `json:"approve_tx,omitempty"`
	OrderTx           string            `json:"order_tx"`
	BlockchainOrderID string            `json:"blockchain_order_id"`
	BackendOrderID    string            `json:"backend_order_id"`
	View              string            `json:"view"`
	Orders            []backend.Order   `json:"orders,omitempty"`
}

func newCheckoutResult(a *checkout.Attempt, nav *viewPrinter) checkoutResult {
	res := checkoutResult{
		AttemptID:         a.ID,
		State:             a.State,
		Strategy:          a.Strategy,
		Totals:            totalsView(a.Totals),
		BlockchainOrderID: a.BlockchainOrderID,
		BackendOrderID:    a.BackendOrderID,
		View:              nav.view.Name,
		Orders:            nav.orders,
	}
	if a.AmountUnits != nil {
		res.AmountUnits = a.AmountUnits.String()
		res.Amount = chain.FormatTokenUnits(a.AmountUnits, cfg.Chain.PaymentToken.Decimals)
	}
	if a.BorrowTx != nil {
		res.BorrowTx = a.BorrowTx.Hex()
	}
	if a.ApproveTx != nil {
		res.ApproveTx = a.ApproveTx.Hex()
	}
	if a.OrderTx != nil {
		res.OrderTx = a.OrderTx.Hex()
	}
	return res
}

func runCheckout(cmd *cobra.Command, _ []string) error {
	userID, err := resolveUser(checkoutUser)
	if err != nil {
		return err
	}
	if err = cfg.RequireCheckout(); err != nil {
		return err
	}
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	shipping, err := collectShipping(checkoutYes)
	if err != nil {
		return err
	}
	c, rate, err := loadQuote(ctx, stderr, userID)
	if err != nil {
		return err
	}
	draft := checkout.Draft{UserID: userID, Cart: c, Rate: rate, Shipping: shipping}
	if err = draft.Validate(); err != nil {
		return err
	}
	totals := computeTotals(c, rate)

	adapter, err := cmdCtx.Chain(true, checkoutYes)
	if err != nil {
		return err
	}

	var (
		strategy checkout.Strategy = checkout.DirectPayment{}
		borrower checkout.Borrower
	)
	if checkoutPayWithAave {
		gateway, gwErr := cmdCtx.Lending(adapter)
		if gwErr != nil {
			return gwErr
		}
		token, tokErr := cmdCtx.PaymentToken()
		if tokErr != nil {
			return tokErr
		}
		capacity, capErr := gateway.Capacity(ctx, adapter.Address(), token.Address)
		if capErr != nil {
			return capErr
		}
		strategy = checkout.BorrowThenPay{Capacity: capacity}
		borrower = gateway
	}

	if !formatter.IsJSON() {
		if err = output.RenderTotals(stderr, totalsView(totals)); err != nil {
			return err
		}
		outln(stderr)
	}
	if !checkoutYes && isInteractive() {
		question := "Pay " + output.Money(totals.TotalQuote) + " " + cfg.Chain.PaymentToken.Symbol + "?"
		if checkoutPayWithAave {
			question = "Borrow and pay " + output.Money(totals.TotalQuote) + " " + cfg.Chain.PaymentToken.Symbol + "?"
		}
		if !promptYesNoFn(question) {
			return paycarterr.ErrUserRejected
		}
	}

	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	nav := &viewPrinter{lister: client}
	var obs checkout.Observer
	if cfg.Output.Verbose && !formatter.IsJSON() {
		obs = progressObserver(stderr)
	}
	orch, err := cmdCtx.Orchestrator(ctx, adapter, borrower, nav, obs)
	if err != nil {
		return err
	}

	attempt, err := orch.Submit(ctx, draft, strategy)
	if err != nil {
		return err
	}

	res := newCheckoutResult(attempt, nav)
	return formatter.Result(res, func(w io.Writer) error {
		output.Success(w, "Order %s placed (on-chain #%s)", res.BackendOrderID, res.BlockchainOrderID)
		out(w, "  paid:    %s %s\n", res.Amount, cfg.Chain.PaymentToken.Symbol)
		if res.BorrowTx != "" {
			out(w, "  borrow:  %s\n", res.BorrowTx)
		}
		if res.ApproveTx != "" {
			out(w, "  approve: %s\n", res.ApproveTx)
		}
		out(w, "  order:   %s\n\n", res.OrderTx)
		return renderOrders(w, res.Orders)
	})
}

// orderLister is the part of the backend client the history view reads.
type orderLister interface {
	GetOrders(ctx context.Context, userID string) ([]backend.Order, error)
}

// viewPrinter is the CLI's navigator: it loads the order history the
// checkout ends on so it can be rendered with the result.
type viewPrinter struct {
	lister orderLister
	view   checkout.View
	orders []backend.Order
}

// Navigate implements checkout.Navigator.
func (v *viewPrinter) Navigate(ctx context.Context, view checkout.View) error {
	v.view = view
	orders, err := v.lister.GetOrders(ctx, view.UserID)
	if err != nil {
		return err
	}
	v.orders = orders
	return nil
}

// progressObserver prints each state change.
func progressObserver(w io.Writer) checkout.Observer {
	return checkout.ObserverFunc(func(_, to checkout.State, a checkout.Attempt) {
		switch to {
		case checkout.StateApproving:
			output.Info(w, "approving %s", cfg.Chain.PaymentToken.Symbol)
		case checkout.StateBorrowing:
			output.Info(w, "borrowing from Aave")
		case checkout.StateCreatingOnChainOrder:
			output.Info(w, "creating order on-chain")
		case checkout.StateWaitingForEvent:
			if a.OrderTx != nil {
				output.Info(w, "waiting for OrderCreated (tx %s)", a.OrderTx.Hex())
			}
		case checkout.StatePersistingOrder:
			output.Info(w, "recording order #%s", a.BlockchainOrderID)
		default:
		}
	})
}
