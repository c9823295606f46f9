package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/TGRenameBot/internal/admin"
	"github.com/digkill/TGRenameBot/internal/config"
	"github.com/digkill/TGRenameBot/internal/database"
	"github.com/digkill/TGRenameBot/internal/renamer"
	"github.com/digkill/TGRenameBot/internal/repository"
	"github.com/digkill/TGRenameBot/internal/service"
	"github.com/digkill/TGRenameBot/internal/storage"
	"github.com/digkill/TGRenameBot/internal/telegram"
	"github.com/digkill/TGRenameBot/internal/userlock"
	"github.com/digkill/TGRenameBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	botAPI, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.TelegramAPIEndpoint)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}
	if cfg.LogChannelID != 0 {
		var closeLog func()
		logr, closeLog = logger.NewWithChannel(os.Stdout, cfg.LogLevel, botAPI, cfg.LogChannelID)
		defer closeLog()
		logr.Info("forwarding warnings to log channel", "chat_id", cfg.LogChannelID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		accountRepo  service.AccountStore
		planRepo     service.PlanStore
		transferRepo service.TransferStore
	)
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		db, err := database.Connect(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		accountRepo, planRepo, transferRepo = mysqlRepositories(db)
	default:
		logr.Warn("using in-memory store, state is lost on restart")
		accountRepo = repository.NewMemoryAccountRepository()
		planRepo = repository.NewMemoryPlanRepository()
		transferRepo = repository.NewMemoryTransferRepository()
	}

	planService := service.NewPlanService(planRepo, service.DefaultPlans(cfg))
	accountService := service.NewAccountService(accountRepo, planService, nil)
	transferService := service.NewTransferService(transferRepo)

	if err := planService.EnsureDefaultPlans(ctx); err != nil {
		log.Fatalf("ensure default plans: %v", err)
	}

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		log.Fatalf("scratch dir: %v", err)
	}

	locks := newLocker(ctx, cfg, logr)

	opts := renamer.Options{
		ScratchDir:       cfg.ScratchDir,
		ProgressInterval: cfg.ProgressInterval,
		Frames:           renamer.NewFFmpeg(cfg.FFmpegPath),
		Journal:          transferService,
	}
	if cfg.S3Enabled() {
		thumbs, err := storage.NewThumbnailStore(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("thumbnail storage: %v", err)
		}
		opts.Backup = thumbs
	}

	transport := telegram.NewTransport(botAPI, cfg.TelegramFileEndpoint, cfg.HTTPTimeout)
	machine := renamer.NewMachine(accountService, transport, locks, logr, opts)
	bot := telegram.NewBot(cfg, botAPI, logr, machine, accountService, planService, transferService)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	if cfg.AdminListenAddr != "" {
		adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, accountService, planService, transferService, machine)
		g.Go(func() error {
			return adminServer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}

	logr.Info("waiting for running transfers to clean up", "running", machine.Running())
	machine.Wait()
}

func mysqlRepositories(db *sql.DB) (service.AccountStore, service.PlanStore, service.TransferStore) {
	return repository.NewAccountRepository(db), repository.NewPlanRepository(db), repository.NewTransferRepository(db)
}

// newLocker shares per-user locks through Redis when configured so several
// replicas can poll the same bot.
func newLocker(ctx context.Context, cfg config.Config, logr *slog.Logger) userlock.Locker {
	if cfg.RedisAddr == "" {
		return userlock.NewLocal()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	logr.Info("using redis user locks", "addr", cfg.RedisAddr)
	return userlock.NewRedis(client, cfg.UserLockTTL, logr)
}
