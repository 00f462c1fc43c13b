// Package cli implements the paycart command-line interface.
//
// Global flags and the per-invocation CommandContext live in package
// variables, initialized in PersistentPreRunE and released in
// PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/config"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext
)

var rootCmd = &cobra.Command{
	Use:   "paycart",
	Short: "Pay for a shop cart in USDC on-chain",
	Long: `paycart settles a shop cart with an ERC-20 stablecoin.

It converts the cart total to USDC, approves the order contract, creates the
order on-chain, correlates the OrderCreated event and records the order on
the shop backend. Payments can optionally be funded by borrowing from Aave.

Example:
  paycart totals
  paycart checkout --name "Ana Perez" --street "Av. Reforma 1" --postal-code 06600 --phone 5555555555
  paycart reconcile list`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command under ctx and prints any error.
func Execute(ctx context.Context) error {
	prepareHelp()
	setContext(ctx, rootCmd)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
		cleanup()
	}
	return err
}

// setContext replaces the context on cmd and every subcommand. Cobra only
// fills in a missing one, so a command run earlier would keep a stale context.
func setContext(ctx context.Context, cmd *cobra.Command) {
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		setContext(ctx, sub)
	}
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	return paycarterr.ExitCode(err)
}

func initGlobals(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return paycarterr.WithCause(paycarterr.ErrConfigInvalid, err)
	}

	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Defaults()
	case err != nil:
		return paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrConfigInvalid, err), map[string]string{"path": config.Path(home)})
	}
	cfg.Home = home
	config.ApplyEnvironment(cfg)
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	format, err := output.ParseFormat(cfg.Output.DefaultFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, cmd.OutOrStdout())

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), homePath(cfg.Logging.File))
	if err != nil {
		logger = config.NullLogger()
	}

	cmdCtx = NewCommandContext(cfg, logger, formatter)
	return nil
}

func cleanup() {
	if cmdCtx != nil {
		cmdCtx.Close()
		cmdCtx = nil
	}
	if logger != nil {
		_ = logger.Close()
		logger = nil
	}
}

// homePath expands a configured path. Default paths under ~/.paycart follow
// --home so one invocation never mixes two data directories.
func homePath(p string) string {
	if p == "" {
		return ""
	}
	const defaultPrefix = "~/.paycart/"
	if strings.HasPrefix(p, defaultPrefix) && cfg != nil {
		return filepath.Join(config.ExpandHome(cfg.Home), strings.TrimPrefix(p, defaultPrefix))
	}
	return config.ExpandHome(p)
}

func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "paycart data directory (default: ~/.paycart)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
