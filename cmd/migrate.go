package cmd

import (
	"context"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
	"github.com/Laisky/laisky-file-quarantine/library/log"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "migrate",
	Long:  `migrate the quarantine metadata schema`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openMetadataDB(ctx)
		if err != nil {
			log.Logger.Panic("open metadata db", zap.Error(err))
		}

		if err := quarantine.RunMigrations(ctx, db, log.Logger.Named("migrate")); err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
		log.Logger.Info("migration finished")
	},
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
