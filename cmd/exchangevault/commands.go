package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/exchangevault/internal/application"
	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// withVault opens the configured store for the duration of fn.
func withVault(cmd *cobra.Command, opts *rootOptions, fn func(*application.VaultService) error) error {
	vault, closeStore, err := openVault(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			opts.logger.Error("error closing database", "error", closeErr)
		}
	}()

	return fn(vault)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which exchanges have stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, opts, func(vault *application.VaultService) error {
				status, err := vault.ListStatus(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "EXCHANGE\tNAME\tCONFIGURED")
				for _, def := range vault.Exchanges() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", def.ID, def.DisplayName, yesNo(status[def.ID]))
				}
				return tw.Flush()
			})
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show <exchange>",
		Short: "Decrypt and print stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, opts, func(vault *application.VaultService) error {
				if _, err := vault.Requirements(args[0]); err != nil {
					return err
				}

				password, err := newPasswordReader(cmd).Read("Encryption password: ", false)
				if err != nil {
					return err
				}

				creds, err := vault.LoadCredentials(cmd.Context(), password, args[0])
				if errors.Is(err, application.ErrAuthentication) {
					return errors.New("wrong password or corrupted record")
				}
				if err != nil {
					return err
				}

				show := maskSecret
				if reveal {
					show = func(s string) string { return s }
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "api_key:    %s\n", show(creds.APIKey))
				fmt.Fprintf(out, "secret_key: %s\n", show(creds.SecretKey))
				if creds.Passphrase != "" {
					fmt.Fprintf(out, "passphrase: %s\n", show(creds.Passphrase))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets in full instead of masked")
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <exchange>",
		Short: "Delete stored credentials for an exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, opts, func(vault *application.VaultService) error {
				if err := vault.RemoveCredentials(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed credentials for %s\n", model.NormalizeExchangeID(args[0]))
				return nil
			})
		},
	}
}

func newImportEnvCmd(opts *rootOptions) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "import-env",
		Short: "Encrypt credentials found in <EXCHANGE>_API_KEY style variables",
		Long: `import-env reads <EXCHANGE>_API_KEY, <EXCHANGE>_SECRET_KEY and, for
exchanges that need one, <EXCHANGE>_PASSPHRASE for every supported exchange
and stores them encrypted. Values from --env-file take precedence over the
process environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lookup := os.LookupEnv
			if envFile != "" {
				fileEnv, err := godotenv.Read(envFile)
				if err != nil {
					return fmt.Errorf("read env file %s: %w", envFile, err)
				}
				lookup = func(key string) (string, bool) {
					if v, ok := fileEnv[key]; ok {
						return v, true
					}
					return os.LookupEnv(key)
				}
			}

			return withVault(cmd, opts, func(vault *application.VaultService) error {
				password, err := newPasswordReader(cmd).Read("Encryption password: ", true)
				if err != nil {
					return err
				}

				result := application.ImportFromEnv(cmd.Context(), vault, password, lookup)
				return reportImport(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to read credentials from")
	return cmd
}

func reportImport(cmd *cobra.Command, result application.ImportResult) error {
	out := cmd.OutOrStdout()
	for _, id := range result.Imported {
		fmt.Fprintf(out, "imported %s\n", id)
	}

	failed := make([]string, 0, len(result.Failed))
	for id := range result.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", id, result.Failed[id])
	}

	if len(result.Imported) == 0 && len(failed) == 0 {
		fmt.Fprintln(out, "no exchange credentials found in environment")
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d exchange(s) failed to import", len(failed))
	}
	return nil
}

func newExchangesCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exchanges",
		Short: "List supported exchanges and their required fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := model.DefaultRegistry()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "# catalog version %d\n", registry.Version())
			fmt.Fprintln(tw, "EXCHANGE\tNAME\tREQUIRED")
			for _, def := range registry.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", def.ID, def.DisplayName, strings.Join(def.RequiredFields(), ", "))
			}
			return tw.Flush()
		},
	}
}

// maskSecret keeps the first and last four characters of long values and
// hides everything else.
func maskSecret(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
