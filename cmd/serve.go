package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"talkbridge/pkg/bus"
	"talkbridge/pkg/channel"
	"talkbridge/pkg/channel/talk"
	"talkbridge/pkg/config"
	"talkbridge/pkg/gateway"
	"talkbridge/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge",
	Long:  "Runs the webhook listener and outbound dispatcher for every enabled channel, with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		mb := bus.NewMessageBus()
		defer mb.Close()

		adapters, err := enabledAdapters(cfg, mb, log)
		if err != nil {
			log.Error("Bridge configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, mb, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Bridge started", "channels", channelNames(adapters))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bridge runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func enabledAdapters(cfg *config.Config, mb *bus.MessageBus, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.NextcloudTalk.Enabled {
		adapter, err := talk.NewAdapter(cfg.Channels.NextcloudTalk, mb, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", talk.ChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func channelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
