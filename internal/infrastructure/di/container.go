// Package di assembles the service graph: repositories, gateway client,
// services, the Discord bot, and workers.
package di

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	"github.com/cloudvend/topup-bot/internal/bot"
	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
	"github.com/cloudvend/topup-bot/internal/domain/services/redeem"
	"github.com/cloudvend/topup-bot/internal/domain/services/topup"
	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/database"
	"github.com/cloudvend/topup-bot/internal/infrastructure/repositories"
	"github.com/cloudvend/topup-bot/internal/workers/retention"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Logger *logger.Logger
	ZapLog *zap.Logger

	// Repositories
	UserRepo   *repositories.UserRepository
	TopupRepo  *repositories.TopupRepository
	RedeemRepo *repositories.RedeemRepository

	// External services
	MidtransClient *midtrans.Client

	// Domain services
	TopupService     *topup.Service
	RedeemService    *redeem.Service
	ReconcileService *reconcile.Service

	// Frontend and workers
	Bot             *bot.Bot
	RetentionWorker *retention.Worker
}

// NewContainer wires the full dependency graph
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()

	userRepo := repositories.NewUserRepository(db, zapLog)
	topupRepo := repositories.NewTopupRepository(db, zapLog)
	redeemRepo := repositories.NewRedeemRepository(db, zapLog)

	midtransClient := midtrans.NewClient(midtrans.Config{
		ServerKey:    cfg.Midtrans.ServerKey,
		Environment:  cfg.Midtrans.Environment,
		BaseURL:      cfg.Midtrans.BaseURL,
		Timeout:      time.Duration(cfg.Midtrans.Timeout) * time.Second,
		QRISAcquirer: cfg.Midtrans.QRISAcquirer,
	}, zapLog)

	topupService := topup.NewService(midtransClient, userRepo, topupRepo, cfg.Topup, log)
	redeemService := redeem.NewService(db, userRepo, redeemRepo, cfg.Redeem, log)

	discordBot, err := bot.New(cfg, db, topupService, redeemService, userRepo, topupRepo, redeemRepo, log)
	if err != nil {
		return nil, err
	}

	// The reconciler hands settlements to the bot's DM dispatcher.
	reconcileService := reconcile.NewService(
		database.NewRunner(db), userRepo, topupRepo, cfg.Midtrans.ServerKey, discordBot.Dispatcher(), log,
	)

	retentionWorker := retention.NewWorker(topupRepo, redeemRepo, &retention.Config{
		Schedule:            cfg.Retention.Schedule,
		FailedTopupDays:     cfg.Retention.FailedTopupDays,
		CompletedRedeemDays: cfg.Retention.CompletedRedeemDays,
	}, log)

	return &Container{
		Config:           cfg,
		DB:               db,
		Logger:           log,
		ZapLog:           zapLog,
		UserRepo:         userRepo,
		TopupRepo:        topupRepo,
		RedeemRepo:       redeemRepo,
		MidtransClient:   midtransClient,
		TopupService:     topupService,
		RedeemService:    redeemService,
		ReconcileService: reconcileService,
		Bot:              discordBot,
		RetentionWorker:  retentionWorker,
	}, nil
}

// GetReconcileService returns the webhook reconciliation service
func (c *Container) GetReconcileService() *reconcile.Service {
	return c.ReconcileService
}

// GetTopupService returns the topup service
func (c *Container) GetTopupService() *topup.Service {
	return c.TopupService
}

// GetRedeemService returns the redeem service
func (c *Container) GetRedeemService() *redeem.Service {
	return c.RedeemService
}
