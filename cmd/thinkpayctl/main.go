package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"thinkpay/internal/backend"
	"thinkpay/internal/cli"
	"thinkpay/internal/config"
	tplog "thinkpay/internal/log"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "thinkpayctl",
		Short:         "Operate a ThinkPay ledger store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statementCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore loads the environment and opens the configured backend, which
// applies pending migrations. Server-only settings such as JWT_SECRET are
// not required here.
func openStore(ctx context.Context) (*config.Config, *tplog.Logger, *backend.BackendResult, error) {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(tplog.ComponentBackend)
	cfg := config.Load()
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, res, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, res, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()
			if res.Type == backend.MemoryBackend {
				fmt.Println("memory backend has no schema")
				return nil
			}
			if err := res.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping %s store: %w", res.Type, err)
			}
			fmt.Printf("%s store is up to date\n", res.Type)
			return nil
		},
	}
}

func statementCmd() *cobra.Command {
	var (
		userID string
		year   int
		month  int
	)
	now := time.Now()

	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Export the monthly statement of one identity to the configured sink",
		Example: `  thinkpayctl statement --user 3f0c... --year 2025 --month 3
  STATEMENT_SINK=s3 S3_BUCKET=statements thinkpayctl statement --user 3f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, logger, res, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			svc, err := cli.OpenStatements(cmd.Context(), logger, cfg, res.Store)
			if err != nil {
				return err
			}
			if svc == nil {
				return errors.New("statement export is disabled: set STATEMENT_SINK to s3 or sheets")
			}
			out, err := svc.Export(cmd.Context(), userID, year, month)
			if err != nil {
				return err
			}
			fmt.Printf("exported %s: %d transactions, total %s, at %s\n",
				out.Period, out.Transactions, out.Total, out.Location)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "identity whose statement to export")
	cmd.Flags().IntVar(&year, "year", now.Year(), "statement year")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "statement month (1-12)")
	return cmd
}

func purgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge [user-id]",
		Short: "Remove every record owned by an identity, credentials included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge %s without --yes", args[0])
			}
			_, logger, res, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			if err := res.Store.PurgeUser(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("purge %s: %w", args[0], err)
			}
			logger.Info("Identity purged", tplog.FieldUserID, args[0])
			fmt.Printf("purged %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
