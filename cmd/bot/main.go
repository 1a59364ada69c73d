package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-relay-bot/internal/bot"
	"support-relay-bot/internal/common/logger"
	"support-relay-bot/internal/common/syncx"
	"support-relay-bot/internal/config"
	"support-relay-bot/internal/features/mapping"
	"support-relay-bot/internal/features/notification"
	"support-relay-bot/internal/features/relay"
	"support-relay-bot/internal/features/ticket"
	userredis "support-relay-bot/internal/features/user/repository/redis"
	"support-relay-bot/internal/jobs"
	"support-relay-bot/internal/ops"
	"support-relay-bot/internal/platform/redis"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("support-relay-bot", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	store, err := redis.Open(ctx, redisAddr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to redis")
	}
	defer store.Close()

	client := telegram.NewClient(cfg.Telegram.BotToken)
	bundle := texts.NewBundle()
	locks := syncx.NewKeyedMutex()

	users := userredis.NewUserRepository(store.Client, log)
	mappings := mapping.NewStore(store.Client)
	tickets := ticket.NewManager(cfg.Telegram.GroupID, cfg.Telegram.TopicIconEmojiID, client, users, bundle, log)
	notifs := notification.NewManager(notification.RedisBlobs{Client: store.Client}, users, client, bundle, log)
	rel := relay.New(cfg.Telegram.GroupID, client, users, mappings, tickets, notifs, bundle, locks, log)

	runner := jobs.NewRunner(jobs.Config{
		GroupID:             cfg.Telegram.GroupID,
		CloseInactiveEvery:  cfg.Jobs.CloseInactiveEvery,
		InactivityThreshold: cfg.Jobs.InactivityThreshold,
		DigestEvery:         cfg.Jobs.DigestEvery,
		BumpEvery:           cfg.Jobs.BumpEvery,
		BumpAfter:           cfg.Jobs.BumpAfter,
		DisableBump:         cfg.Jobs.DisableBump,
		ThrottleDelay:       cfg.Jobs.ThrottleDelay,
	}, client, users, tickets, bundle, locks, log)
	runner.Start()
	defer runner.Stop()

	opsServer := ops.NewServer(ops.Config{
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowedOrigin: cfg.Ops.AllowedOrigin,
		GroupID:       cfg.Telegram.GroupID,
	}, notifs, users, tickets, client, bundle, locks, log)
	opsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsServer.Shutdown(shutdownCtx)
	}()

	dispatcher := bot.NewDispatcher(cfg.Telegram.GroupID, cfg.Telegram.AdminID, client, client, rel, users, tickets, locks, log)
	log.Info().Int64("group_id", cfg.Telegram.GroupID).Msg("bot started")
	dispatcher.Run(ctx)

	log.Info().Msg("shutting down")
}
