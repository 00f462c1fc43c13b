package cli

import (
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/output"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	userPrivyID     string
	userWallet      string
	feedbackCountry string
	feedbackNetwork string

	// nowFn is replaced in tests.
	nowFn = time.Now
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Check or register the shop user",
		Long:  `Link an auth identity to a wallet on the shop backend.`,
	}

	userCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Report whether the identity and wallet are registered",
		Args:  cobra.NoArgs,
		RunE:  runUserCheck,
	}

	userRegisterCmd = &cobra.Command{
		Use:   "register",
		Short: "Register the identity with the wallet",
		Args:  cobra.NoArgs,
		RunE:  runUserRegister,
	}

	feedbackCmd = &cobra.Command{
		Use:   "feedback",
		Short: "Send a country and network survey answer",
		Example: `  paycart feedback --country MX
  paycart feedback --country AR --network Base`,
		Args: cobra.NoArgs,
		RunE: runFeedback,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	userCmd.PersistentFlags().StringVar(&userPrivyID, "privy-id", "", "auth identity (default: user.id from config)")
	userCmd.PersistentFlags().StringVar(&userWallet, "wallet", "", "wallet address (default: the configured signer)")
	feedbackCmd.Flags().StringVar(&feedbackCountry, "country", "", "ISO country code")
	feedbackCmd.Flags().StringVar(&feedbackNetwork, "network", "", "preferred network (default: the configured chain)")
	_ = feedbackCmd.MarkFlagRequired("country")

	userCmd.AddCommand(userCheckCmd, userRegisterCmd)
	rootCmd.AddCommand(userCmd, feedbackCmd)
}

type userStatus struct {
	PrivyID       string `json:"privy_id"`
	WalletAddress string `json:"wallet_address"`
	Registered    bool   `json:"registered"`
}

func identity() (string, string, error) {
	privyID, err := resolveUser(userPrivyID)
	if err != nil {
		return "", "", err
	}
	wallet, err := cmdCtx.Wallet(userWallet)
	if err != nil {
		return "", "", err
	}
	return privyID, wallet.Hex(), nil
}

func runUserCheck(cmd *cobra.Command, _ []string) error {
	privyID, wallet, err := identity()
	if err != nil {
		return err
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	registered, err := client.CheckUser(cmd.Context(), privyID, wallet)
	if err != nil {
		return err
	}
	res := userStatus{PrivyID: privyID, WalletAddress: wallet, Registered: registered}
	return formatter.Result(res, func(w io.Writer) error {
		if registered {
			output.Success(w, "%s is registered with %s", privyID, wallet)
		} else {
			output.Warn(w, "%s is not registered; run 'paycart user register'", privyID)
		}
		return nil
	})
}

func runUserRegister(cmd *cobra.Command, _ []string) error {
	privyID, wallet, err := identity()
	if err != nil {
		return err
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	u, err := client.RegisterUser(cmd.Context(), backend.UserData{PrivyID: privyID, WalletAddress: &wallet})
	if err != nil {
		return err
	}
	res := userStatus{PrivyID: u.PrivyID, Registered: true}
	if u.WalletAddress != nil {
		res.WalletAddress = *u.WalletAddress
	}
	return formatter.Result(res, func(w io.Writer) error {
		output.Success(w, "Registered %s with %s", res.PrivyID, res.WalletAddress)
		return nil
	})
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	country := strings.ToUpper(strings.TrimSpace(feedbackCountry))
	if country == "" {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"country": "empty"})
	}
	network := strings.TrimSpace(feedbackNetwork)
	if network == "" {
		network = chain.NetworkName(big.NewInt(cfg.Chain.ChainID))
	}
	client, err := cmdCtx.Backend()
	if err != nil {
		return err
	}
	if err = client.SendFeedback(cmd.Context(), country, network, nowFn()); err != nil {
		return err
	}
	return formatter.Result(map[string]string{"country": country, "network": network}, func(w io.Writer) error {
		output.Success(w, "Thanks! Feedback sent (%s, %s)", country, network)
		return nil
	})
}
