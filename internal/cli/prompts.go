package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/term"

	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/wallet"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Prompt seams, replaced in tests.
//
//nolint:gochecknoglobals // test seams
var (
	promptIn  io.Reader = os.Stdin
	promptOut io.Writer = os.Stderr

	promptSecretFn = promptSecret
	promptYesNoFn  = promptYesNo
	promptLineFn   = promptLine
)

// promptSecret reads a passphrase with hidden input.
func promptSecret(prompt string) (string, error) {
	out(promptOut, "%s", prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // windows uses a handle type
	outln(promptOut)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(secret), nil
}

// promptYesNo asks a y/N question. Anything but y or yes is a no.
func promptYesNo(question string) bool {
	out(promptOut, "%s [y/N]: ", question)
	answer, err := readLine(promptIn)
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// promptLine asks for a single line of text. An empty answer keeps def.
func promptLine(label, def string) (string, error) {
	if def != "" {
		out(promptOut, "%s [%s]: ", label, def)
	} else {
		out(promptOut, "%s: ", label)
	}
	answer, err := readLine(promptIn)
	if err != nil {
		return "", paycarterr.WithCause(paycarterr.ErrInvalidInput, err)
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirmSignature shows what is about to be signed and asks the user to
// approve it. A refusal surfaces as ErrUserRejected from the signer.
func confirmSignature(_ context.Context, req wallet.Request) (bool, error) {
	outln(promptOut)
	outln(promptOut, "Signature request")
	out(promptOut, "  from:     %s\n", req.From.Hex())
	out(promptOut, "  to:       %s\n", req.To.Hex())
	out(promptOut, "  chain:    %s\n", req.ChainID)
	out(promptOut, "  method:   %s\n", methodName(req.Selector))
	out(promptOut, "  nonce:    %d\n", req.Nonce)
	out(promptOut, "  gas:      %d\n", req.Gas)
	return promptYesNoFn("Sign this transaction?"), nil
}

// methodName resolves a selector against the bundled ABIs.
func methodName(selector string) string {
	if selector == "" {
		return "transfer"
	}
	id, err := hexutil.Decode(selector)
	if err != nil || len(id) != 4 {
		return selector
	}
	for _, name := range []string{eth.ABIERC20, eth.ABIOrderSystem, eth.ABIAavePool} {
		parsed, loadErr := eth.LoadABI(name)
		if loadErr != nil {
			continue
		}
		if m, lookupErr := parsed.MethodById(id); lookupErr == nil {
			return m.Name
		}
	}
	return selector
}
