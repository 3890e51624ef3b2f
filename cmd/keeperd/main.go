package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/config"
	cronrunner "tradekeeper/internal/cron"
	"tradekeeper/internal/db"
	"tradekeeper/internal/events"
	"tradekeeper/internal/exchange"
	"tradekeeper/internal/executor"
	"tradekeeper/internal/fees"
	"tradekeeper/internal/handler"
	"tradekeeper/internal/logger"
	"tradekeeper/internal/oracle"
	"tradekeeper/internal/report"
	gormrepository "tradekeeper/internal/repository/gorm"
	"tradekeeper/internal/risk"
	"tradekeeper/internal/scheduler"
)

func main() {
	cfgPath := os.Getenv("TK_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TK_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var roundSource oracle.RoundSource
	if cfg.Oracle.StreamEnabled {
		stream := &oracle.StreamSource{URL: cfg.Oracle.StreamURL, Logger: logger}
		go func() {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("oracle stream stopped", zap.Error(err))
			}
		}()
		roundSource = stream
	} else {
		feedHTTP := &http.Client{Timeout: cfg.Oracle.Timeout}
		roundSource = oracle.NewFeedClient(feedHTTP, cfg.Oracle.FeedURL)
	}
	gateway := &oracle.Gateway{Source: roundSource, Config: cfg.Oracle}

	riskGate := &risk.Gate{Repo: store, Logger: logger}

	exchangeHTTP := &http.Client{Timeout: cfg.Exchange.Timeout}
	exchangeClient := exchange.NewClient(exchangeHTTP, cfg.Exchange)

	hub := events.NewHub(logger)

	exec := &executor.Executor{
		Repo:     store,
		Risk:     riskGate,
		Exchange: exchangeClient,
		Wrapper:  exchangeClient,
		Hub:      hub,
		Logger:   logger,
		Config:   cfg.Executor,
		Address:  cfg.Executor.Address,
		Base:     cfg.Exchange.BaseAsset,
		Quote:    cfg.Exchange.QuoteAsset,
	}

	feeLedger := &fees.Ledger{
		Repo:    store,
		Wrapper: exchangeClient,
		Logger:  logger,
		Config:  cfg.Fees,
	}

	reporter := report.NewWebhookReporter(cfg.Report)

	keeper := &scheduler.Scheduler{
		Repo:     store,
		Oracle:   gateway,
		Risk:     riskGate,
		Executor: exec,
		Reporter: reporter,
		Fees:     feeLedger,
		Logger:   logger,
		Config:   cfg.Keeper,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(auth.Middleware(cfg.Auth, store))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)

	accountHandler := &handler.AccountHandler{Repo: store, Fees: feeLedger, Logger: logger}
	accountHandler.Register(engine)
	configHandler := &handler.ConfigHandler{
		Repo:   store,
		Risk:   riskGate,
		Fees:   feeLedger,
		Config: cfg.Keeper,
		Logger: logger,
	}
	configHandler.Register(engine)
	keeperHandler := &handler.KeeperHandler{
		Repo:      store,
		Scheduler: keeper,
		Hub:       hub,
		Logger:    logger,
	}
	keeperHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.Upkeep, func(ctx context.Context) {
			if err := keeper.RunSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("upkeep sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register upkeep sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
