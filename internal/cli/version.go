package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/paycart/internal/output"
	"github.com/mrz1836/paycart/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	versionCheck bool

	// newVersionChecker is replaced in tests.
	newVersionChecker = version.NewChecker
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the paycart version, commit and build platform.
With --check the latest GitHub release is looked up as well.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
	rootCmd.AddCommand(versionCmd)
}

type versionResult struct {
	version.Build

	Latest          string `json:"latest,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	res := versionResult{Build: version.Current()}
	if versionCheck {
		rel, err := newVersionChecker().Latest(cmd.Context())
		if err != nil {
			return err
		}
		res.Latest = version.Normalize(rel.TagName)
		res.UpdateAvailable = version.IsNewer(res.Version, rel.TagName)
		res.ReleaseURL = rel.HTMLURL
	}
	return formatter.Result(res, func(w io.Writer) error {
		outln(w, res.Build.String())
		if res.BuildDate != "" {
			out(w, "built %s\n", res.BuildDate)
		}
		if !versionCheck {
			return nil
		}
		if res.UpdateAvailable {
			output.Info(w, "paycart %s is available: %s", res.Latest, res.ReleaseURL)
		} else {
			output.Success(w, "paycart is up to date")
		}
		return nil
	})
}
