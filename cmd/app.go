package cmd

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

func mustCreateBillingService() (*config.Config, *service.BillingService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	closers := []func(){func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}}

	repos := service.Repositories{
		Merchants:        repository.NewMerchantRepository(db),
		Plans:            repository.NewPlanRepository(db),
		Customers:        repository.NewCustomerRepository(db),
		Subscriptions:    repository.NewSubscriptionRepository(db),
		Invoices:         repository.NewInvoiceRepository(db),
		PlatformInvoices: repository.NewPlatformInvoiceRepository(db),
		Callbacks:        repository.NewWebhookCallbackRepository(db),
		Tx:               repository.NewTxStore(db),
	}

	registry := gateway.NewRegistry(
		gateway.NewPayUAdapter(gateway.PayUConfig{
			SandboxURL:    cfg.Gateways.PayUSandboxURL,
			ProductionURL: cfg.Gateways.PayUProductionURL,
			HTTPTimeout:   cfg.Gateways.HTTPTimeout,
		}),
		gateway.NewWompiAdapter(gateway.WompiConfig{
			SandboxURL:    cfg.Gateways.WompiSandboxURL,
			ProductionURL: cfg.Gateways.WompiProductionURL,
			HTTPTimeout:   cfg.Gateways.HTTPTimeout,
		}),
		gateway.NewMercadoPagoAdapter(gateway.MercadoPagoConfig{
			BaseURL:     cfg.Gateways.MercadoPagoBaseURL,
			HTTPTimeout: cfg.Gateways.HTTPTimeout,
		}),
	)
	dispatcher := gateway.NewDispatcher(registry, cfg.Billing.ChargeTimeout)

	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Redis.Addr != "" {
		redisClient := lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		locker = lock.NewRedisLocker(redisClient, cfg.Redis.LockPrefix)
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		})
	} else {
		logrus.Warn("REDIS_ADDR not set, billing pass locks are disabled")
	}

	var notifier notification.Notifier = notification.NewLogNotifier(factory.NewModuleLogger("notifications"))
	if cfg.RabbitMQ.URL != "" {
		publisher, err := notification.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logrus.WithError(err).Warn("Failed to connect to RabbitMQ, notifications fall back to logs")
		} else {
			notifier = publisher
			closers = append(closers, publisher.Close)
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(nil)
	}

	billingService := service.NewBillingService(
		repos,
		dispatcher,
		locker,
		notifier,
		collector,
		cfg.Billing,
		cfg.Platform,
	)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	return cfg, billingService, cleanup
}
