package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var searchLimit int

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	rateCmd = &cobra.Command{
		Use:   "rate",
		Short: "Show the latest exchange rate",
		Long: `Show the latest MXN per USD rate. The rate is cached in the paycart home
directory and refetched once it is older than cache.rate_staleness.`,
		Args: cobra.NoArgs,
		RunE: runRate,
	}

	searchCmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Search the shop catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	productCmd = &cobra.Command{
		Use:   "product <asin>",
		Short: "Show a product page",
		Args:  cobra.ExactArgs(1),
		RunE:  runProduct,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show shop user and purchase counts",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results to show (0 for all)")
	rootCmd.AddCommand(rateCmd, searchCmd, productCmd, statsCmd)
}

func runRate(cmd *cobra.Command, _ []string) error {
	rate, err := cmdCtx.Rate(cmd.Context())
	if err != nil {
		return err
	}
	return formatter.Result(rate, func(w io.Writer) error {
		out(w, "%.4f %s per USD\n", rate.Value, baseCurrency)
		if rate.Date != "" {
			out(w, "  date:   %s\n", rate.Date)
		}
		if rate.SeriesID != "" {
			out(w, "  series: %s\n", rate.SeriesID)
		}
		return nil
	})
}

func priceText(p *backend.ProductPrice) string {
	if p == nil {
		return "-"
	}
	if p.Raw != "" {
		return p.Raw
	}
	return strconv.FormatFloat(p.Value, 'f', 2, 64) + " " + p.Currency
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"query": "empty"})
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	products, err := client.SearchProducts(cmd.Context(), query)
	if err != nil {
		return err
	}
	if searchLimit > 0 && len(products) > searchLimit {
		products = products[:searchLimit]
	}
	if products == nil {
		products = []backend.Product{}
	}
	return formatter.Result(products, func(w io.Writer) error {
		if len(products) == 0 {
			outln(w, "No products found.")
			return nil
		}
		t := output.NewTable("ASIN", "TITLE", "PRICE", "RATING").AlignRight(2, 3)
		for _, p := range products {
			rating := ""
			if p.Rating > 0 {
				rating = strconv.FormatFloat(p.Rating, 'f', 1, 64)
			}
			t.AddRow(p.ASIN, truncate(p.Title, 60), priceText(p.Price), rating)
		}
		return t.Render(w)
	})
}

func runProduct(cmd *cobra.Command, args []string) error {
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	p, err := client.ProductDetails(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return formatter.Result(p, func(w io.Writer) error {
		out(w, "%s\n", p.Title)
		out(w, "  asin:   %s\n", p.ASIN)
		if p.Brand != "" {
			out(w, "  brand:  %s\n", p.Brand)
		}
		out(w, "  price:  %s\n", priceText(p.Price))
		if p.Availability != nil && p.Availability.Status != "" {
			out(w, "  stock:  %s\n", p.Availability.Status)
		}
		for _, b := range p.FeatureBullets {
			out(w, "  - %s\n", b)
		}
		if len(p.Variants) == 0 {
			return nil
		}
		outln(w, "\nVariants:")
		t := output.NewTable("ASIN", "OPTIONS", "PRICE").AlignRight(2)
		for _, v := range p.Variants {
			dims := make([]string, 0, len(v.Dimensions))
			for _, d := range v.Dimensions {
				dims = append(dims, d.Name+"="+d.Value)
			}
			t.AddRow(v.ASIN, strings.Join(dims, ", "), priceText(v.Price))
		}
		return t.Render(w)
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	s, err := client.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return formatter.Result(s, func(w io.Writer) error {
		out(w, "Users:     %d\n", s.Users)
		out(w, "Purchases: %d\n", s.TotalPurchases)
		return nil
	})
}
