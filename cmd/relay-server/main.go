package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvas-relay/internal/api"
	"canvas-relay/internal/api/router"
	"canvas-relay/internal/env"
	internaljwt "canvas-relay/internal/jwt"
	"canvas-relay/internal/logger"
	"canvas-relay/internal/notify"
	"canvas-relay/internal/queue"
	"canvas-relay/internal/snapshot"
	"canvas-relay/internal/websocket"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	queueSize    = 256
	queueWorkers = 16
	storeTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var envFile string

	root := &cobra.Command{
		Use:           "relay-server",
		Short:         "Websocket relay for collaborative drawing rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				env.LoadDotenv(envFile)
			} else {
				env.LoadDotenv()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v)
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")
	root.Flags().String("port", "", "listen port (overrides "+env.Port+")")
	root.Flags().String("log-level", "", "log level (overrides "+env.LogLevel+")")
	root.Flags().String("snapshot-backend", "", "redis, dynamodb or memory (overrides "+env.SnapshotBackend+")")
	_ = v.BindPFlag(env.Port, root.Flags().Lookup("port"))
	_ = v.BindPFlag(env.LogLevel, root.Flags().Lookup("log-level"))
	_ = v.BindPFlag(env.SnapshotBackend, root.Flags().Lookup("snapshot-backend"))

	root.AddCommand(newTokenCmd(v), newHashSecretCmd())
	return root
}

func serve(v *viper.Viper) error {
	cfg, err := env.Load(v)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	restore := logger.Install(log)
	defer restore()
	defer log.Sync()

	internaljwt.SetRoleSecret(internaljwt.RoleAdmin, cfg.AdminSecret)
	if cfg.AdminSecret == "" {
		zap.L().Info("admin api disabled, " + env.AdminSecret + " not set")
	}

	store, closeStore, err := newSnapshotStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	queueManager := queue.NewRequestQueueManager(queueSize, queueWorkers)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, queueManager)
	}

	relay := websocket.NewRelay(websocket.Config{
		Secret: cfg.Secret,
		Hub: websocket.HubConfig{
			MaxRooms:              cfg.MaxRooms,
			EmptyRoomTimeout:      cfg.EmptyRoomTimeout,
			SnapshotCheckInterval: cfg.SnapshotCheckInterval,
		},
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWarn:   cfg.RateLimitWarn,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		RoomTimeout:     cfg.RoomTimeout,
		SweepInterval:   cfg.RoomSweepInterval,
		ShutdownGrace:   cfg.ShutdownGrace,
		StoreTimeout:    storeTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, snapshot.NewCoordinator(store, cfg.SnapshotTTL), notifier)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go relay.Run(sweepCtx)

	server := api.NewAPIServer(
		":"+cfg.Port,
		queueManager,
		relay,
		router.UtilsRoutes(""),
		router.RelayRoutes("/ws", "/api/v1"),
	)

	errc := make(chan error, 1)
	go func() { errc <- server.Run() }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var runErr error
	select {
	case sig := <-sigc:
		zap.L().Info("signal received", zap.String("signal", sig.String()))
		relay.Shutdown(context.Background(), sig.String())
	case runErr = <-errc:
		zap.L().Error("server stopped", zap.Error(runErr))
		relay.Shutdown(context.Background(), "server_error")
	}

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	queueManager.Shutdown()

	zap.L().Info("relay stopped")
	return runErr
}
