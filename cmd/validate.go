package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/app"
	"github.com/storefrontlabs/pricewatch/internal/jobs"
)

var (
	validateProvinces  []string
	validateCategories []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run one validation pass and exit",
	Long: `Runs a full crawl-and-reconcile pass synchronously. The exit code is
non-zero when any price discrepancy or missing product is found, so the
command slots directly into cron or CI.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		application, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := application.Close(closeCtx); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
			}
		}()

		snap, err := application.RunOnce(cmd.Context(), jobs.Request{
			Provinces:  validateProvinces,
			Categories: validateCategories,
		})
		if err != nil {
			return err
		}

		if snap.Summary != nil {
			fmt.Printf("validated %d products: %d passed, %d failed, %d missing from storefront, %d unexpected (pass rate %s)\n",
				snap.Summary.Total, snap.Summary.Passed, snap.Summary.Failed,
				snap.Summary.MissingActual, snap.Summary.MissingExpected, snap.Summary.PassRate)
		}
		if snap.ReportURI != "" {
			fmt.Println("report:", snap.ReportURI)
		}
		if snap.Status != jobs.StatusCompleted {
			return fmt.Errorf("validation run ended in %s: %s", snap.Status, snap.Note)
		}
		if s := snap.Summary; s != nil && s.Failed+s.MissingActual+s.MissingExpected > 0 {
			return fmt.Errorf("found %d discrepancies", s.Failed+s.MissingActual+s.MissingExpected)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringSliceVar(&validateProvinces, "provinces", nil, "limit the run to these provinces")
	validateCmd.Flags().StringSliceVar(&validateCategories, "categories", nil, "limit the run to these menu categories")
	rootCmd.AddCommand(validateCmd)
}
