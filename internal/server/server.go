package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/consts"
	"github.com/dwarvesf/settlement-backend/internal/controller"
	"github.com/dwarvesf/settlement-backend/internal/handler"
	"github.com/dwarvesf/settlement-backend/internal/handler/health"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc/custody"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc/solanarpc"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/oracle/binance"
	"github.com/dwarvesf/settlement-backend/internal/quote"
	"github.com/dwarvesf/settlement-backend/internal/settlementledger"
	"github.com/dwarvesf/settlement-backend/internal/store"
	"github.com/dwarvesf/settlement-backend/internal/sweeper"
	httptransport "github.com/dwarvesf/settlement-backend/internal/transport/http"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/utils/vault"
	"github.com/dwarvesf/settlement-backend/internal/utils/webhook"
	"github.com/dwarvesf/settlement-backend/internal/verifier"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepTimeout    = 2 * time.Minute
)

type metricsSet struct {
	registry    *prometheus.Registry
	http        *monitoring.HTTPMetrics
	externalAPI *monitoring.ExternalAPIMetrics
	jobs        *monitoring.BackgroundJobMetrics
	recorder    *monitoring.BusinessMetricsRecorder
}

func newMetrics() *metricsSet {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metricsSet{
		registry:    registry,
		http:        monitoring.NewHTTPMetrics(),
		externalAPI: monitoring.NewExternalAPIMetrics(),
		jobs:        monitoring.NewBackgroundJobMetrics(),
	}
	m.http.MustRegister(registry)
	m.externalAPI.MustRegister(registry)
	m.jobs.MustRegister(registry)
	m.recorder = monitoring.NewBusinessMetricsRecorder(m.http)

	return m
}

func newBreaker(name string, requestTimeout time.Duration, metrics *monitoring.ExternalAPIMetrics, logger *logger.Logger) (*monitoring.Breaker, error) {
	timeouts := monitoring.DefaultTimeoutConfig
	if requestTimeout > 0 {
		timeouts.RequestTimeout = requestTimeout
	}
	return monitoring.NewBreaker(name, monitoring.CircuitBreakerConfigs[name], timeouts, metrics, logger)
}

type app struct {
	db         *gorm.DB
	handler    *handler.Handler
	sweeper    *sweeper.Sweeper
	jobManager *monitoring.JobStatusManager
	metrics    *metricsSet
}

func build(appConfig *config.AppConfig, logger *logger.Logger, db *gorm.DB) (*app, error) {
	metrics := newMetrics()

	// price oracle and quote engine
	priceBreaker, err := newBreaker(monitoring.APIPriceSource, appConfig.Oracle.RequestTimeout, metrics.externalAPI, logger)
	if err != nil {
		return nil, err
	}
	priceSource := monitoring.NewCircuitBreakerPriceSource(
		binance.New(appConfig.Oracle.BinanceBaseURL, appConfig.Oracle.RequestTimeout, logger),
		priceBreaker,
	)
	pairs := make([]string, 0, len(appConfig.Currencies))
	for _, c := range appConfig.Currencies {
		if c.PricePair != "" {
			pairs = append(pairs, c.PricePair)
		}
	}
	priceOracle := oracle.New(priceSource, oracle.Config{
		CacheTTL:       appConfig.Oracle.CacheTTL,
		RequestTimeout: appConfig.Oracle.RequestTimeout,
		AllowedPairs:   pairs,
	}, logger)
	quotes, err := quote.New(priceOracle, appConfig.Currencies)
	if err != nil {
		return nil, err
	}

	// chain reader and custodial payouts
	chainBreaker, err := newBreaker(monitoring.APISolanaRPC, appConfig.Solana.RequestTimeout, metrics.externalAPI, logger)
	if err != nil {
		return nil, err
	}
	chain := monitoring.NewCircuitBreakerChainReader(solanarpc.New(solanarpc.Config{
		RPCURL:          appConfig.Solana.RPCURL,
		ReceivingWallet: appConfig.Solana.ReceivingWallet,
		Timeout:         appConfig.Solana.RequestTimeout,
	}, logger), chainBreaker)

	custodyBreaker, err := newBreaker(monitoring.APICustody, appConfig.Custody.RequestTimeout, metrics.externalAPI, logger)
	if err != nil {
		return nil, err
	}
	signer := monitoring.NewCircuitBreakerPayoutSigner(custody.New(custody.Config{
		BaseURL:      appConfig.Custody.BaseURL,
		APIKey:       appConfig.Custody.APIKey,
		SourceWallet: appConfig.Custody.PayoutWallet,
		Timeout:      appConfig.Custody.RequestTimeout,
	}, logger), custodyBreaker)

	ledgerClient := ledgerrpc.New(chain, signer, logger)

	policy := verifier.DefaultRetryPolicy()
	policy.Attempts = uint(appConfig.Verifier.Attempts)
	policy.Delay = appConfig.Verifier.Delay
	policy.MinConfirmations = appConfig.Solana.MinConfirmations
	depositVerifier := verifier.New(ledgerClient, policy, logger)

	ledger := settlementledger.New(db, store.New(), logger)
	notifier := webhook.New(appConfig.Webhook.OperatorURL, logger)

	ctrl := controller.New(ledger, depositVerifier, quotes, ledgerClient, notifier, metrics.recorder, logger, appConfig)

	jobManager := monitoring.NewJobStatusManager(logger, metrics.jobs)
	sw := sweeper.New(ledger, notifier, metrics.jobs, metrics.recorder, logger, sweeper.Config{
		StaleAfter: appConfig.Sweeper.StaleAfter,
		BatchSize:  appConfig.Sweeper.BatchSize,
		UptimeURL:  appConfig.Webhook.UptimeURL,
	})

	dependencies := []health.Dependency{
		{Name: monitoring.APISolanaRPC, Endpoint: appConfig.Solana.RPCURL, Pinger: chain},
		{Name: monitoring.APICustody, Endpoint: appConfig.Custody.BaseURL, Pinger: signer},
	}
	if len(pairs) > 0 {
		dependencies = append(dependencies, health.Dependency{
			Name:     monitoring.APIPriceSource,
			Endpoint: appConfig.Oracle.BinanceBaseURL,
			Pinger: health.PingFunc(func(ctx context.Context) error {
				_, err := priceOracle.Quote(ctx, pairs[0])
				return err
			}),
		})
	}

	h := handler.New(appConfig, logger, ctrl, priceOracle, db, dependencies,
		metrics.registry, metrics.recorder, jobManager)

	return &app{
		db:         db,
		handler:    h,
		sweeper:    sw,
		jobManager: jobManager,
		metrics:    metrics,
	}, nil
}

// loadSecrets fills secrets the environment left empty from Vault.
func loadSecrets(ctx context.Context, appConfig *config.AppConfig, secrets vault.ISecretSource) error {
	if appConfig.Custody.APIKey != "" {
		return nil
	}
	key, err := secrets.GetKV(ctx, appConfig.Vault.CustodyAPIKeyField)
	if err != nil {
		return err
	}
	appConfig.Custody.APIKey = key
	return nil
}

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)
	defer logger.Sync()

	if appConfig.Vault.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		vc, err := vault.New(ctx, vault.Config{
			Addr:   appConfig.Vault.Addr,
			Role:   appConfig.Vault.Role,
			KVPath: appConfig.Vault.KVPath,
		})
		if err == nil {
			err = loadSecrets(ctx, appConfig, vc)
		}
		cancel()
		if err != nil {
			logger.Fatal("[Init][loadSecrets] failed to read secrets from vault", map[string]string{
				"error": err.Error(),
			})
		}
	}

	db, err := store.Open(appConfig, logger)
	if err != nil {
		logger.Fatal("[Init][store.Open] failed to connect database", map[string]string{
			"error": err.Error(),
		})
	}

	a, err := build(appConfig, logger, db)
	if err != nil {
		logger.Fatal("[Init][build] failed to wire services", map[string]string{
			"error": err.Error(),
		})
	}

	sweepJob := monitoring.NewInstrumentedJob(consts.SweeperJobName, a.sweeper.Run, a.jobManager, logger, sweepTimeout)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(appConfig.Sweeper.Schedule, sweepJob); err != nil {
		logger.Fatal("[Init][cron.AddJob] invalid sweeper schedule", map[string]string{
			"schedule": appConfig.Sweeper.Schedule,
			"error":    err.Error(),
		})
	}
	a.jobManager.Start()
	c.Start()

	srv := &http.Server{
		Addr:              ":" + appConfig.ApiServer.Port,
		Handler:           httptransport.NewHttpServer(appConfig, logger, a.handler, a.metrics.http),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("[Init] http server listening", map[string]string{
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("[Init][ListenAndServe]", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("[Init] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("[Init][Shutdown] server forced to shutdown", map[string]string{
			"error": err.Error(),
		})
	}

	<-c.Stop().Done()
	a.jobManager.Stop()

	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("[Init] server exited")
}
