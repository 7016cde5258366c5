package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/slawatch/internal/api"
	appsync "github.com/nhle/slawatch/internal/sync"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation loop and the HTTP API",
	Long: `Run the periodic evaluation loop together with the HTTP API.

Newly emitted notifications are published to Redis when redis.addr is set,
so other console instances see them without waiting for their own tick.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		if serveAddr != "" {
			cfg.API.Addr = serveAddr
		}

		poller := appsync.New(e.svc, cfg.Loop,
			appsync.WithLogger(logger),
			appsync.WithMetrics(e.metrics),
		)
		server := api.New(e.svc, cfg.API,
			api.WithLogger(logger),
			api.WithGatherer(e.registry),
			api.WithLoop(poller),
			api.WithSyncTimeout(cfg.Loop.SyncTimeout),
		)

		logger.Info("starting",
			zap.String("store", cfg.Store.Driver),
			zap.Duration("interval", cfg.Loop.Interval),
			zap.String("timezone", cfg.Timezone),
		)

		g, ctx := errgroup.WithContext(rootCtx)
		g.Go(func() error {
			poller.Run(ctx)
			return nil
		})
		g.Go(func() error {
			return server.ListenAndServe(ctx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides api.addr)")
	rootCmd.AddCommand(serveCmd)
}
