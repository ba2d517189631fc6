package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/discovery"
	"github.com/keiu-jiyu/VideoChat/internal/logging"
	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/server"
	"github.com/keiu-jiyu/VideoChat/internal/signaling"
	"github.com/keiu-jiyu/VideoChat/internal/ui"
	"github.com/keiu-jiyu/VideoChat/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var (
	flagPort int
	flagMDNS bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that participants connect to.

Examples:
  meshroom relay
  meshroom relay --port 8080 --mdns`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRelay(config.RelayOptions{Port: flagPort, MDNS: flagMDNS})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRelay(ctx, cfg, slog.Default())
	},
}

func runRelay(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rooms := room.NewRegistry()
	relay := signaling.NewRelay(rooms, signaling.NewMetrics(reg, rooms), logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewMux(relay, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logger.Info("relay listening", "addr", srv.Addr, "version", version.Version)
	ui.PrintSuccessf("Relay listening on %s", srv.Addr)

	if cfg.MDNS {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Version:       version.Version,
			LoggerFactory: logging.NewPionFactory(logger),
		})
		if err := adv.Start(cfg.Port); err != nil {
			logger.Warn("mdns advertisement failed", "err", err)
			ui.PrintWarning(fmt.Sprintf("mDNS advertisement failed: %v", err))
		} else {
			defer adv.Shutdown()
			ui.PrintInfof("Advertising %s on the local network", discovery.Service)
		}
	}

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay: %w", err)
	case <-ctx.Done():
	}

	logger.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().IntVarP(&flagPort, "port", "p", 0, fmt.Sprintf("Listen port (default %d, or $PORT)", config.DefaultPort))
	relayCmd.Flags().BoolVar(&flagMDNS, "mdns", false, "Advertise the relay via mDNS")
}
