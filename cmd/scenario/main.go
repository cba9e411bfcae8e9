// Package main runs the registry scenario against a live server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/accessreg/internal/scenario"
	"github.com/okian/accessreg/pkg/logger"
)

const defaultRunTimeout = 2 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg       scenario.Config
		logFormat string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Drive the accessibility registry end to end and verify its answers",
		Long: `Registers a facility, records an assessment with findings, issues a
certification and lets it expire, completes an improvement plan and submits
feedback, checking every value the server reports.

The server must run with clock_mode=manual and the given deployer.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithOutput(cmd.OutOrStdout())); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			if verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()

			report, err := scenario.NewRunner(cfg, logger.Named("scenario")).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scenario passed: %d steps in %s (facility %d, certification %d, average %d)\n",
				report.Steps, report.Duration, report.FacilityID, report.CertificationID, report.Average)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.BaseURL, "url", "u", scenario.DefaultBaseURL, "Base URL of the service")
	flags.StringVarP(&cfg.Deployer, "deployer", "d", scenario.DefaultDeployer, "Principal administering every component")
	flags.DurationVarP(&cfg.Timeout, "timeout", "t", scenario.DefaultTimeout, "HTTP request timeout")
	flags.StringVar(&cfg.Rounding, "rounding", scenario.DefaultRounding, "Average rounding configured on the server: truncate or half_up")
	flags.BoolVar(&cfg.Fresh, "fresh", false, "Expect an empty registry where every id starts at 1")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every step")

	return cmd
}
