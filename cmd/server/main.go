package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keychat/internal/config"
	"keychat/internal/repository/peer"
	redisSvc "keychat/internal/service/redis"
	"keychat/internal/service/server"
	"keychat/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		logLevel   string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:          "keychat-server",
		Short:        "Relay envelopes between peers that prove their public keys",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(configPath)
			cfg, cfgErr := config.Load(path)
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			log.Init(dev)
			defer log.Sync()
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			if cfgErr != nil {
				log.Warn("config file ignored, using defaults", zap.String("path", path), zap.Error(cfgErr))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON config file (or $"+config.EnvFile+")")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&dev, "dev", false, "human readable console logs")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	mongoClient, err := initMongo(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	peers := peer.NewPeerRepo(mongoClient.Database(cfg.MongoDatabase))
	inbox := redisSvc.NewInbox(rdb, cfg.InboxTTL.Std())

	s := server.NewHttpServer(peers, inbox, server.Options{
		ListenAddr:       cfg.ListenAddr,
		HandshakeTimeout: cfg.HandshakeTimeout.Std(),
		WriteTimeout:     cfg.WriteTimeout.Std(),
		MaxMessageBytes:  cfg.MaxMessageBytes,
	})

	if err := s.Run(ctx); err != nil {
		log.Error("relay stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
