package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	cartUser        string
	cartAddQuantity int
	cartAddTitle    string
	cartAddPrice    float64
	cartAddImage    string
	cartAddVariant  string
	cartAddDims     []string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	cartCmd = &cobra.Command{
		Use:   "cart",
		Short: "Show and edit the shop cart",
		Long:  `Show and edit the cart stored on the shop backend.`,
	}

	cartShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE:  runCartShow,
	}

	cartAddCmd = &cobra.Command{
		Use:   "add <asin>",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart. Without --price the title, price and image
are read from the product page.`,
		Example: `  paycart cart add B0CX23V2ZK --quantity 2
  paycart cart add B0CX23V2ZK --variant B0CX2ABCDE --dimension Color=Red`,
		Args: cobra.ExactArgs(1),
		RunE: runCartAdd,
	}

	cartRemoveCmd = &cobra.Command{
		Use:   "remove <asin>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE:  runCartRemove,
	}

	cartUpdateCmd = &cobra.Command{
		Use:   "update <asin> <quantity>",
		Short: "Change the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE:  runCartUpdate,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	cartCmd.PersistentFlags().StringVar(&cartUser, "user", "", "user id (default: user.id from config)")

	f := cartAddCmd.Flags()
	f.IntVarP(&cartAddQuantity, "quantity", "q", 1, "quantity to add")
	f.StringVar(&cartAddTitle, "title", "", "product title")
	f.Float64Var(&cartAddPrice, "price", 0, "unit price in pesos")
	f.StringVar(&cartAddImage, "image-url", "", "product image URL")
	f.StringVar(&cartAddVariant, "variant", "", "variant ASIN")
	f.StringArrayVar(&cartAddDims, "dimension", nil, "variant dimension as name=value (repeatable)")

	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartRemoveCmd, cartUpdateCmd)
	rootCmd.AddCommand(cartCmd)
}

// renderCart writes the cart lines as a table.
func renderCart(w io.Writer, c *backend.Cart) error {
	if c.IsEmpty() {
		outln(w, "Cart is empty.")
		return nil
	}
	t := output.NewTable("ASIN", "TITLE", "QTY", "PRICE", "LINE").AlignRight(2, 3, 4)
	for _, it := range c.Items {
		asin := it.ASIN
		if it.VariantASIN != "" {
			asin = it.VariantASIN
		}
		t.AddRow(asin, truncate(it.Title, 48), strconv.Itoa(it.Quantity),
			fmt.Sprintf("%.2f", it.Price), fmt.Sprintf("%.2f", it.Price*float64(it.Quantity)))
	}
	return t.Render(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func cartResult(c *backend.Cart) error {
	return formatter.Result(c, func(w io.Writer) error { return renderCart(w, c) })
}

func runCartShow(cmd *cobra.Command, _ []string) error {
	userID, err := resolveUser(cartUser)
	if err != nil {
		return err
	}
	svc, err := cmdCtx.Cart(cmd.Context())
	if err != nil {
		return err
	}
	c, err := svc.Get(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return cartResult(c)
}

func parseDimensions(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dims := make(map[string]string, len(raw))
	for _, d := range raw {
		name, value, ok := strings.Cut(d, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"dimension": d})
		}
		dims[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return dims, nil
}

func runCartAdd(cmd *cobra.Command, args []string) error {
	userID, err := resolveUser(cartUser)
	if err != nil {
		return err
	}
	if cartAddQuantity <= 0 {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"quantity": strconv.Itoa(cartAddQuantity)})
	}
	dims, err := parseDimensions(cartAddDims)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	item := backend.CartItem{
		ASIN:              args[0],
		Title:             cartAddTitle,
		Price:             cartAddPrice,
		Quantity:          cartAddQuantity,
		ImageURL:          cartAddImage,
		VariantASIN:       cartAddVariant,
		VariantDimensions: dims,
	}
	if item.Price <= 0 {
		client, clientErr := cmdCtx.Backend()
		if clientErr != nil {
			return clientErr
		}
		detail, detailErr := client.ProductDetails(ctx, item.ASIN)
		if detailErr != nil {
			return detailErr
		}
		fillFromProduct(&item, detail)
		if item.Price <= 0 {
			return paycarterr.WithSuggestion(
				paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"asin": item.ASIN}),
				"the product has no listed price; pass --price",
			)
		}
	}

	svc, err := cmdCtx.Cart(ctx)
	if err != nil {
		return err
	}
	c, err := svc.Add(ctx, userID, item)
	if err != nil {
		return err
	}
	return cartResult(c)
}

// fillFromProduct completes item from the product page, preferring the
// selected variant's price.
func fillFromProduct(item *backend.CartItem, p *backend.ProductDetail) {
	if item.Title == "" {
		item.Title = p.Title
	}
	if item.ImageURL == "" && len(p.Images) > 0 {
		item.ImageURL = p.Images[0]
	}
	if p.Price != nil {
		item.Price = p.Price.Value
	}
	if item.VariantASIN == "" {
		return
	}
	for _, v := range p.Variants {
		if v.ASIN != item.VariantASIN {
			continue
		}
		if v.Price != nil {
			item.Price = v.Price.Value
		}
		if v.MainImage != "" && item.ImageURL == "" {
			item.ImageURL = v.MainImage
		}
		if item.VariantDimensions == nil && len(v.Dimensions) > 0 {
			item.VariantDimensions = make(map[string]string, len(v.Dimensions))
			for _, d := range v.Dimensions {
				item.VariantDimensions[d.Name] = d.Value
			}
		}
	}
}

func runCartRemove(cmd *cobra.Command, args []string) error {
	userID, err := resolveUser(cartUser)
	if err != nil {
		return err
	}
	svc, err := cmdCtx.Cart(cmd.Context())
	if err != nil {
		return err
	}
	c, err := svc.Remove(cmd.Context(), userID, args[0])
	if err != nil {
		return err
	}
	return cartResult(c)
}

func runCartUpdate(cmd *cobra.Command, args []string) error {
	userID, err := resolveUser(cartUser)
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil || qty < 1 {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"quantity": args[1]})
	}
	svc, err := cmdCtx.Cart(cmd.Context())
	if err != nil {
		return err
	}
	c, err := svc.UpdateQuantity(cmd.Context(), userID, args[0], qty)
	if err != nil {
		return err
	}
	return cartResult(c)
}
