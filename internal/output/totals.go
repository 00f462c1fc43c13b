package output

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/mrz1836/paycart/internal/pricing"
)

// TotalsView is the JSON shape of checkout totals.
type TotalsView struct {
	BaseSymbol    string `json:"base_symbol"`
	QuoteSymbol   string `json:"quote_symbol"`
	SubtotalBase  string `json:"subtotal_base"`
	FeeBase       string `json:"fee_base"`
	TotalBase     string `json:"total_base"`
	SubtotalQuote string `json:"subtotal_quote"`
	FeeQuote      string `json:"fee_quote"`
	TotalQuote    string `json:"total_quote"`
	Converted     bool   `json:"converted"`
}

// NewTotalsView rounds amounts to cents for display.
func NewTotalsView(t pricing.Totals, baseSymbol, quoteSymbol string) TotalsView {
	return TotalsView{
		BaseSymbol:    baseSymbol,
		QuoteSymbol:   quoteSymbol,
		SubtotalBase:  Money(t.SubtotalBase),
		FeeBase:       Money(t.FeeBase),
		TotalBase:     Money(t.TotalBase),
		SubtotalQuote: Money(t.SubtotalQuote),
		FeeQuote:      Money(t.FeeQuote),
		TotalQuote:    Money(t.TotalQuote),
		Converted:     t.Converted,
	}
}

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// RenderTotals writes the subtotal, fee and total lines.
func RenderTotals(w io.Writer, v TotalsView) error {
	t := NewTable("", v.BaseSymbol, v.QuoteSymbol).AlignRight(1, 2)
	t.AddRow("Subtotal", v.SubtotalBase, v.SubtotalQuote)
	t.AddRow("Service fee", v.FeeBase, v.FeeQuote)
	t.AddRow("Total", v.TotalBase, v.TotalQuote)
	if err := t.Render(w); err != nil {
		return err
	}
	if !v.Converted {
		_, err := fmt.Fprintln(w, "\nExchange rate unavailable; amounts shown unconverted.")
		return err
	}
	return nil
}
