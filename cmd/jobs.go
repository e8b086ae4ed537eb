package cmd

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-file-quarantine/library/log"
)

var jobsCMD = &cobra.Command{
	Use:   "jobs",
	Short: "run one lifecycle job and exit",
	Long:  `Run a single retry or cleanup pass, e.g. from an external scheduler`,
	Args:  gcmd.NoExtraArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
}

var jobsRetryCMD = &cobra.Command{
	Use:   "retry",
	Short: "rescan files held in ERROR",
	Long: `Rescan ERROR records whose bytes are still in quarantine.

Example:
  go run entrypoints/main.go jobs retry -c settings.yml --org=acme --limit=100`,
	Args: gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		orgID, _ := cmd.Flags().GetString("org")
		limit, _ := cmd.Flags().GetInt("limit")
		if err := runRetryJob(cmd.Context(), orgID, limit); err != nil {
			log.Logger.Panic("retry job", zap.Error(err))
		}
	},
}

var jobsCleanupCMD = &cobra.Command{
	Use:   "cleanup",
	Short: "abandon files stuck in SCANNING",
	Long: `Delete the quarantined bytes of records stuck in SCANNING and mark them ERROR.

Example:
  go run entrypoints/main.go jobs cleanup -c settings.yml --max-age-hours=72`,
	Args: gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		hours, _ := cmd.Flags().GetInt("max-age-hours")
		if err := runCleanupJob(cmd.Context(), time.Duration(hours)*time.Hour); err != nil {
			log.Logger.Panic("cleanup job", zap.Error(err))
		}
	},
}

func runRetryJob(ctx context.Context, orgID string, limit int) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer app.Close()

	res, err := app.manager.RetryFailedScans(ctx, orgID, limit)
	if err != nil {
		return errors.Wrap(err, "retry failed scans")
	}
	log.Logger.Info("retry job done", zap.Int("retried", res.Retried), zap.Int("failed", res.Failed))
	return nil
}

func runCleanupJob(ctx context.Context, maxAge time.Duration) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer app.Close()

	res, err := app.manager.CleanupOldQuarantinedFiles(ctx, maxAge)
	if err != nil {
		return errors.Wrap(err, "cleanup quarantined files")
	}
	log.Logger.Info("cleanup job done", zap.Int("deleted", res.Deleted))
	return nil
}

func init() {
	rootCMD.AddCommand(jobsCMD)
	jobsCMD.AddCommand(jobsRetryCMD, jobsCleanupCMD)

	jobsRetryCMD.Flags().String("org", "", "only retry records of this organization")
	jobsRetryCMD.Flags().Int("limit", 0, "max records to retry, 0 uses settings.quarantine.retry.batch_limit")
	jobsCleanupCMD.Flags().Int("max-age-hours", 0, "age threshold, 0 uses settings.quarantine.cleanup.max_age_hours")
}
