package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-file-quarantine/internal/web"
	"github.com/Laisky/laisky-file-quarantine/library/auth"
	"github.com/Laisky/laisky-file-quarantine/library/config"
	"github.com/Laisky/laisky-file-quarantine/library/log"
	"github.com/Laisky/laisky-file-quarantine/library/throttle"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `HTTP API for uploads, status and downloads, with background retry and cleanup`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := runAPI(ctx); err != nil {
			log.Logger.Panic("run api", zap.Error(err))
		}
	},
}

func runAPI(ctx context.Context) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer app.Close()

	jwt, err := auth.New([]byte(gconfig.S.GetString("settings.secret")))
	if err != nil {
		return errors.Wrap(err, "new jwt")
	}

	app.manager.StartLifecycleJobs(ctx)

	opts := web.ServerOptions{
		Debug:        gconfig.Shared.GetBool("debug"),
		CORSDomains:  config.Strings("settings.web.cors_domains"),
		ReadTimeout:  time.Duration(config.Int("settings.web.read_timeout_seconds", 300)) * time.Second,
		WriteTimeout: time.Duration(config.Int("settings.web.write_timeout_seconds", 300)) * time.Second,
	}
	var ctrlOpts []web.ControllerOption
	if perSec := config.Int("settings.web.upload_throttle.per_org_per_sec", 0); perSec > 0 {
		limiter, err := throttle.NewUploadThrottle(throttle.UploadThrottleCfg{
			TotalNPerSec:   config.Int("settings.web.upload_throttle.total_per_sec", 100),
			TotalBurst:     config.Int("settings.web.upload_throttle.total_burst", 200),
			EachOrgNPerSec: perSec,
			EachOrgBurst:   config.Int("settings.web.upload_throttle.per_org_burst", perSec*2),
		})
		if err != nil {
			return errors.Wrap(err, "new upload throttle")
		}
		ctrlOpts = append(ctrlOpts, web.WithUploadLimiter(limiter))
	}

	router := web.NewRouter(web.NewController(app.manager, app.orchestrator, jwt, ctrlOpts...), opts)
	return web.RunServer(ctx, gconfig.Shared.GetString("listen"), router, opts)
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
