package cli

import (
	"io"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	reconcileAll     bool
	reconcileLimit   int
	reconcileOrderID string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Record paid orders the backend never saved",
		Long: `Checkout attempts that paid on-chain but could not be recorded on the
shop backend are kept in the local journal. List them and submit each one
again once the cause is fixed. Each persist sends the order exactly once.`,
	}

	reconcileListCmd = &cobra.Command{
		Use:   "list",
		Short: "List attempts waiting for reconciliation",
		Args:  cobra.NoArgs,
		RunE:  runReconcileList,
	}

	reconcilePersistCmd = &cobra.Command{
		Use:   "persist <attempt-id>",
		Short: "Submit the recorded order for an attempt",
		Long: `Submit the order payload recorded for the attempt to the backend.

When the OrderCreated event was never found the on-chain order id is unknown.
Read it from the order transaction on a block explorer and pass it with
--blockchain-order-id.`,
		Example: `  paycart reconcile persist 6f1c5a0e-... --blockchain-order-id 42`,
		Args:    cobra.ExactArgs(1),
		RunE:    runReconcilePersist,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	reconcileListCmd.Flags().BoolVar(&reconcileAll, "all", false, "list recent attempts of every outcome")
	reconcileListCmd.Flags().IntVarP(&reconcileLimit, "limit", "n", 20, "attempts to show with --all")
	reconcilePersistCmd.Flags().StringVar(&reconcileOrderID, "blockchain-order-id", "", "on-chain order id")

	reconcileCmd.AddCommand(reconcileListCmd, reconcilePersistCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func renderEntries(w io.Writer, entries []*journal.Entry) error {
	if len(entries) == 0 {
		outln(w, "Nothing to reconcile.")
		return nil
	}
	t := output.NewTable("ATTEMPT", "DATE", "STATE", "ERROR", "TOTAL", "ON-CHAIN", "ORDER TX").AlignRight(4)
	for _, e := range entries {
		t.AddRow(e.AttemptID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.State, e.ErrorCode,
			e.TotalQuote, e.BlockchainOrderID, e.OrderTx)
	}
	return t.Render(w)
}

func runReconcileList(cmd *cobra.Command, _ []string) error {
	j, err := cmdCtx.Journal(cmd.Context())
	if err != nil {
		return err
	}
	var entries []*journal.Entry
	if reconcileAll {
		entries, err = j.List(cmd.Context(), reconcileLimit)
	} else {
		entries, err = (&checkout.Reconciler{Journal: j}).Pending(cmd.Context())
	}
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	return formatter.Result(entries, func(w io.Writer) error { return renderEntries(w, entries) })
}

func runReconcilePersist(cmd *cobra.Command, args []string) error {
	if reconcileOrderID != "" {
		if id, ok := new(big.Int).SetString(reconcileOrderID, 10); !ok || id.Sign() < 0 {
			return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"blockchain_order_id": reconcileOrderID})
		}
	}
	ctx := cmd.Context()
	j, err := cmdCtx.Journal(ctx)
	if err != nil {
		return err
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	svc, err := cmdCtx.Cart(ctx)
	if err != nil {
		return err
	}
	r := &checkout.Reconciler{
		Journal:   j,
		Orders:    client,
		Cart:      svc,
		Publisher: cmdCtx.Publisher(),
		Logger:    logger.Named("reconcile"),
	}
	resp, err := r.Persist(ctx, args[0], reconcileOrderID)
	if err != nil {
		return err
	}
	res := map[string]string{"attempt_id": args[0], "order_id": resp.OrderID, "status": resp.Status}
	return formatter.Result(res, func(w io.Writer) error {
		output.Success(w, "Attempt %s recorded as order %s", args[0], resp.OrderID)
		return nil
	})
}
