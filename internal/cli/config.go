package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/config"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify paycart configuration settings.`,
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration",
		Long: `Create a default configuration file at ~/.paycart/config.yaml.

An existing file is kept unless --force is given.`,
		Example: `  paycart config init
  paycart config init --force`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display every configuration key with its effective value, after
environment overrides. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}

	configGetCmd = &cobra.Command{
		Use:   "get <path>",
		Short: "Get a configuration value",
		Example: `  paycart config get chain.rpc
  paycart config get checkout.fee_rate`,
		Args: cobra.ExactArgs(1),
		RunE: runConfigGet,
	}

	configSetCmd = &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file. Environment overrides are
not written back.`,
		Example: `  paycart config set chain.order_contract 0x5FbDB2315678afecb367f032d93F642f64180aa3
  paycart config set checkout.event_timeout 45s
  paycart config set notify.kafka_brokers broker1:9092,broker2:9092`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outln(cmd.OutOrStdout(), config.Path(cfg.Home))
			return nil
		},
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := config.Path(cfg.Home)
	if _, err := os.Stat(path); err == nil && !configForce {
		return paycarterr.WithSuggestion(
			paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"path": path}),
			"configuration already exists; use --force to overwrite",
		)
	}

	fresh := config.Defaults()
	fresh.Home = cfg.Home
	if err := config.Save(fresh, path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n\n", path)
	outln(w, "Before the first checkout set:")
	outln(w, "  - chain.rpc:             your Sepolia RPC endpoint")
	outln(w, "  - chain.order_contract:  the OrderSystem contract address")
	outln(w, "  - user.id:               your shop user id")
	outln(w, "  - wallet.source:         env, keystore, age or mnemonic")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	keys := config.KeyPaths()
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := config.Get(cfg, k)
		if err != nil {
			return err
		}
		values[k] = v
	}
	return formatter.Result(values, func(w io.Writer) error {
		t := output.NewTable("KEY", "VALUE")
		for _, k := range keys {
			t.AddRow(k, values[k])
		}
		return t.Render(w)
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := config.Get(cfg, args[0])
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return formatter.Print(map[string]string{args[0]: value})
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := config.Path(cfg.Home)
	current, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		current = config.Defaults()
		current.Home = cfg.Home
	case err != nil:
		return paycarterr.WithCause(paycarterr.ErrConfigInvalid, err)
	}

	if err = config.Set(current, args[0], args[1]); err != nil {
		return err
	}
	if err = current.Validate(); err != nil {
		return err
	}
	if err = config.Save(current, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	shown, _ := config.Get(current, args[0])
	out(cmd.OutOrStdout(), "Set %s = %s\n", args[0], shown)
	return nil
}
