package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// ErrorOutput is the JSON error envelope.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the body of ErrorOutput.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
	// Reconcile is set when funds moved on-chain without a backend order.
	Reconcile bool `json:"reconcile,omitempty"`
}

// reconcileBanner heads the text rendering of errors that need manual
// follow-up.
const reconcileBanner = "PAYMENT SENT BUT ORDER NOT RECORDED. Keep the transaction hashes below and run `paycart reconcile list`."

// Describe converts err into its JSON shape.
func Describe(err error) ErrorDetail {
	var pe *paycarterr.PaycartError
	if !errors.As(err, &pe) {
		return ErrorDetail{Code: "GENERAL_ERROR", Message: err.Error(), ExitCode: paycarterr.ExitGeneral}
	}
	msg := pe.Message
	if pe.Cause != nil {
		msg += ": " + pe.Cause.Error()
	}
	return ErrorDetail{
		Code:       pe.Code,
		Message:    msg,
		Details:    pe.Details,
		Suggestion: pe.Suggestion,
		ExitCode:   pe.ExitCode,
		Reconcile:  paycarterr.RequiresReconciliation(err),
	}
}

// FormatError writes err to w. Nil writes nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	d := Describe(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	if d.Reconcile {
		sb.WriteString(reconcileBanner + "\n\n")
	}
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// FormatSuccess writes a one-line confirmation.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
