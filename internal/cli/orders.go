package cli

import (
	"io"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	ordersUser   string
	ordersStatus string
	ordersAll    bool
	ordersWallet string
	shipGuide    string
	shipYes      bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	ordersCmd = &cobra.Command{
		Use:   "orders",
		Short: "List and manage orders",
		Long:  `List your order history. Admins can inspect and ship any order.`,
	}

	ordersListCmd = &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Example: `  paycart orders list
  paycart orders list --status shipped
  paycart orders list --all`,
		Args: cobra.NoArgs,
		RunE: runOrdersList,
	}

	ordersShowCmd = &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order (admin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrdersShow,
	}

	ordersShipCmd = &cobra.Command{
		Use:   "ship <order-id>",
		Short: "Mark an order shipped on-chain and on the backend (admin)",
		Long: `Ship an order: sends shipOrder for its on-chain id from the admin wallet,
then sets the backend status to shipped with the tracking guide.`,
		Example: `  paycart orders ship 65f0c2 --guide 1Z999AA10123456784`,
		Args:    cobra.ExactArgs(1),
		RunE:    runOrdersShip,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	ordersListCmd.Flags().StringVar(&ordersUser, "user", "", "user id (default: user.id from config)")
	ordersListCmd.Flags().StringVar(&ordersStatus, "status", "", "filter by status: received, shipped, delivered")
	ordersListCmd.Flags().BoolVar(&ordersAll, "all", false, "list every user's orders (admin)")
	ordersCmd.PersistentFlags().StringVar(&ordersWallet, "wallet", "", "admin wallet address for read-only admin commands")
	ordersShipCmd.Flags().StringVar(&shipGuide, "guide", "", "shipping tracking guide")
	ordersShipCmd.Flags().BoolVarP(&shipYes, "yes", "y", false, "skip the signature confirmation")
	_ = ordersShipCmd.MarkFlagRequired("guide")

	ordersCmd.AddCommand(ordersListCmd, ordersShowCmd, ordersShipCmd)
	rootCmd.AddCommand(ordersCmd)
}

// requireAdmin checks the configured admin identity and token before any
// admin endpoint is called.
func requireAdmin(wallet string) error {
	if cfg.Backend.AdminToken == "" {
		return paycarterr.WithSuggestion(paycarterr.ErrPermission,
			"set backend.admin_token or PAYCART_ADMIN_TOKEN")
	}
	if !cfg.IsAdmin(wallet, cfg.User.ID) {
		return paycarterr.WithSuggestion(paycarterr.ErrPermission,
			"admin commands need admin.wallet_address or admin.privy_id to match this user")
	}
	return nil
}

// renderOrders writes an order table.
func renderOrders(w io.Writer, orders []backend.Order) error {
	if len(orders) == 0 {
		outln(w, "No orders.")
		return nil
	}
	t := output.NewTable("ID", "DATE", "STATUS", "ITEMS", "TOTAL MXN", "TOTAL USD", "ON-CHAIN").AlignRight(3, 4, 5)
	for _, o := range orders {
		date := ""
		if !o.CreatedAt.IsZero() {
			date = o.CreatedAt.Format("2006-01-02 15:04")
		}
		t.AddRow(o.ID, date, o.Status, strconv.Itoa(len(o.Items)),
			strconv.FormatFloat(o.TotalAmount, 'f', 2, 64),
			strconv.FormatFloat(o.TotalAmountUSD, 'f', 2, 64),
			o.BlockchainOrderID)
	}
	return t.Render(w)
}

func renderOrder(w io.Writer, o *backend.Order) error {
	out(w, "Order %s (%s)\n", o.ID, o.Status)
	out(w, "  user:      %s\n", o.UserID)
	out(w, "  on-chain:  #%s\n", o.BlockchainOrderID)
	out(w, "  ship to:   %s, %s %s, %s\n", o.FullName, o.Street, o.PostalCode, o.Phone)
	if o.DeliveryInstructions != "" {
		out(w, "  notes:     %s\n", o.DeliveryInstructions)
	}
	if o.ShippingGuide != "" {
		out(w, "  guide:     %s\n", o.ShippingGuide)
	}
	out(w, "  total:     %.2f MXN / %.2f USD\n\n", o.TotalAmount, o.TotalAmountUSD)
	t := output.NewTable("ASIN", "TITLE", "QTY", "PRICE").AlignRight(2, 3)
	for _, it := range o.Items {
		t.AddRow(it.ASIN, truncate(it.Title, 48), strconv.Itoa(it.Quantity), strconv.FormatFloat(it.Price, 'f', 2, 64))
	}
	return t.Render(w)
}

func runOrdersList(cmd *cobra.Command, _ []string) error {
	var status backend.OrderStatus
	if ordersStatus != "" {
		var ok bool
		if status, ok = backend.ParseOrderStatus(ordersStatus); !ok {
			return paycarterr.WithSuggestion(
				paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"status": ordersStatus}),
				"use received, shipped or delivered",
			)
		}
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}

	var orders []backend.Order
	if ordersAll {
		if err = requireAdmin(ordersWallet); err != nil {
			return err
		}
		orders, err = client.GetAllOrders(cmd.Context())
	} else {
		userID, userErr := resolveUser(ordersUser)
		if userErr != nil {
			return userErr
		}
		orders, err = client.GetOrders(cmd.Context(), userID)
	}
	if err != nil {
		return err
	}
	orders = backend.FilterByStatus(orders, status)
	if orders == nil {
		orders = []backend.Order{}
	}
	return formatter.Result(orders, func(w io.Writer) error { return renderOrders(w, orders) })
}

func runOrdersShow(cmd *cobra.Command, args []string) error {
	if err := requireAdmin(ordersWallet); err != nil {
		return err
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	o, err := client.GetOrderDetails(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return formatter.Result(o, func(w io.Writer) error { return renderOrder(w, o) })
}

type shipResult struct {
	OrderID           string `json:"order_id"`
	BlockchainOrderID string `json:"blockchain_order_id"`
	TxHash            string `json:"tx_hash"`
	Status            string `json:"status"`
	ShippingGuide     string `json:"shipping_guide"`
}

func runOrdersShip(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	adapter, err := cmdCtx.Chain(true, shipYes)
	if err != nil {
		return err
	}
	if err = requireAdmin(adapter.Address().Hex()); err != nil {
		return err
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	o, err := client.GetOrderDetails(ctx, args[0])
	if err != nil {
		return err
	}
	onChainID, ok := new(big.Int).SetString(o.BlockchainOrderID, 10)
	if !ok {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
			"order_id":            o.ID,
			"blockchain_order_id": o.BlockchainOrderID,
		})
	}
	contract, err := cmdCtx.OrderContract()
	if err != nil {
		return err
	}
	if err = adapter.EnsureNetwork(ctx); err != nil {
		return err
	}
	hash, err := adapter.SimulateAndWrite(ctx, eth.Call{Contract: contract, Method: eth.MethodShipOrder, Args: []any{onChainID}}, adapter.Address())
	if err != nil {
		return err
	}
	receipt, err := adapter.WaitForReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status != 1 {
		return paycarterr.WithDetails(paycarterr.ErrOnChainRejected, map[string]string{"tx_hash": hash.Hex()})
	}
	if err = client.UpdateOrderStatus(ctx, o.ID, backend.StatusShipped, shipGuide); err != nil {
		return paycarterr.WithDetails(err, map[string]string{"tx_hash": hash.Hex()})
	}

	res := shipResult{
		OrderID:           o.ID,
		BlockchainOrderID: o.BlockchainOrderID,
		TxHash:            hash.Hex(),
		Status:            string(backend.StatusShipped),
		ShippingGuide:     shipGuide,
	}
	return formatter.Result(res, func(w io.Writer) error {
		output.Success(w, "Order %s shipped (on-chain #%s, tx %s)", res.OrderID, res.BlockchainOrderID, res.TxHash)
		return nil
	})
}
