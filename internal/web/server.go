// Package web serves the quarantine HTTP API.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/laisky-file-quarantine/library/log"
)

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Debug        bool
	CORSDomains  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRouter builds the gin engine with middlewares and every route.
func NewRouter(ctrl *Controller, opts ServerOptions) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(log.Logger.Level().String()),
			gmw.WithLogger(log.Logger.Named("gin")),
		),
		metricsMiddleware,
		allowCORS(opts.CORSDomains),
	)

	router.GET("/health", ctrl.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1/quarantine", ctrl.RequireAuth)
	api.POST("/files", ctrl.ThrottleUploads, ctrl.Upload)
	api.GET("/files", ctrl.List)
	api.GET("/files/:id", ctrl.Status)
	api.GET("/files/:id/download", ctrl.Download)
	api.GET("/stats", ctrl.Stats)

	ops := api.Group("", ctrl.RequireOperator)
	ops.POST("/files/:id/reprocess", ctrl.Reprocess)
	ops.POST("/jobs/retry", ctrl.RetryJob)
	ops.POST("/jobs/cleanup", ctrl.CleanupJob)

	return router
}

// RunServer serves router on addr until ctx is done.
func RunServer(ctx context.Context, addr string, router http.Handler, opts ServerOptions) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	log.Logger.Info("http server stopped")
	return nil
}

// allowCORS permits credentialed requests from the configured domains and their subdomains.
func allowCORS(domains []string) gin.HandlerFunc {
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.Trim(strings.TrimSpace(d), ".")); d != "" {
			allowed = append(allowed, d)
		}
	}

	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		allowedOrigin := ""

		if origin != "" {
			parsedOriginURL, err := url.Parse(origin)
			if err == nil {
				host := strings.ToLower(parsedOriginURL.Hostname())
				for _, d := range allowed {
					if host == d || strings.HasSuffix(host, "."+d) {
						allowedOrigin = origin
						break
					}
				}
			}
		}

		if allowedOrigin != "" {
			ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
			ctx.Header("Access-Control-Max-Age", "86400")
			ctx.Header("Vary", "Origin")

			if ctx.Request.Method == http.MethodOptions {
				ctx.AbortWithStatus(http.StatusNoContent)
				return
			}
		} else if origin != "" && ctx.Request.Method == http.MethodOptions {
			// preflight from a foreign origin
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
	}
}
