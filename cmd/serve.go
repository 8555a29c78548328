// File: cmd/serve.go
package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/host"
	"github.com/xkilldash9x/guestwin/internal/ipc"
	"github.com/xkilldash9x/guestwin/internal/observability"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference window host",
		Long: `Starts a host that owns an in-memory window table. Renderers connect to
/ipc over a websocket; /healthz and /metrics are served alongside.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.SetHostListenAddr(listen)
			}
			logger := observability.GetLogger()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			manager, err := host.NewManager(cfg.Host(), host.NewMetrics(reg), logger)
			if err != nil {
				return err
			}
			server := host.NewServer(manager, connOptions(cfg.Transport(), logger, ipc.NewMetrics(reg)), reg, logger)

			logger.Info("Starting host",
				zap.String("listen_addr", cfg.Host().ListenAddr),
				zap.Int("max_windows", cfg.Host().MaxWindows),
			)
			return server.ListenAndServe(cmd.Context(), cfg.Host().ListenAddr)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (overrides host.listen_addr)")
	return cmd
}

// connOptions maps transport settings onto websocket endpoint options.
func connOptions(t config.TransportConfig, logger *zap.Logger, metrics *ipc.Metrics) ipc.ConnOptions {
	return ipc.ConnOptions{
		Options:          ipc.Options{Logger: logger, Metrics: metrics},
		HandshakeTimeout: t.HandshakeTimeout,
		WriteTimeout:     t.WriteTimeout,
		ReadLimit:        t.ReadLimit,
		SendRate:         t.SendRate,
		SendBurst:        t.SendBurst,
	}
}
