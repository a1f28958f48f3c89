package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const (
	defaultBatchSize     = int32(200)
	defaultMaxAttempts   = int32(3)
	defaultRetryInterval = 24 * time.Hour
	defaultLockTTL       = 2 * time.Minute
	defaultCurrency      = "COP"
	defaultPayerEmail    = "no-email@example.com"
	defaultPayerName     = "Cliente"
	recentInvoicesLimit  = int32(10)
)

type merchantRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Merchant, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Merchant, error)
	ListDueForPlatformBilling(ctx context.Context, now time.Time, limit int32) ([]*entity.Merchant, error)
	UpdateGatewayConfig(ctx context.Context, merchant *entity.Merchant) error
	UpdatePlatformBilling(ctx context.Context, merchant *entity.Merchant) error
}

type planRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Plan, error)
	ListPublicByMerchant(ctx context.Context, merchantID uint64) ([]*entity.Plan, error)
	Create(ctx context.Context, plan *entity.Plan) error
	Update(ctx context.Context, plan *entity.Plan) error
	Deactivate(ctx context.Context, merchantID, id uint64, now time.Time) error
}

type customerRepository interface {
	FindByEmail(ctx context.Context, merchantID uint64, email string) (*entity.Customer, error)
}

type subscriptionRepository interface {
	Update(ctx context.Context, sub *entity.Subscription) error
	FindByID(ctx context.Context, id uint64) (*entity.Subscription, error)
	FindDueByID(ctx context.Context, id uint64) (*entity.DueSubscription, error)
	ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.DueSubscription, error)
	ListRenewalWindow(ctx context.Context, from, to time.Time, limit int32) ([]*entity.DueSubscription, error)
	ListByCustomerEmail(ctx context.Context, merchantID uint64, email string) ([]*entity.DueSubscription, error)
	ListActivePlans(ctx context.Context, merchantID uint64) ([]*entity.Plan, error)
}

type invoiceRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Invoice, error)
	FindByPeriod(ctx context.Context, subscriptionID uint64, dueDate time.Time) (*entity.Invoice, error)
	FindByReference(ctx context.Context, reference string) (*entity.Invoice, error)
	ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.Invoice, error)
	ListRecentBySubscription(ctx context.Context, subscriptionID uint64, limit int32) ([]*entity.Invoice, error)
	SumPaidByMerchant(ctx context.Context, merchantID uint64) (int64, int64, error)
}

type platformInvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.PlatformInvoice) error
	FindByPeriod(ctx context.Context, merchantID uint64, periodStart time.Time) (*entity.PlatformInvoice, error)
}

type webhookCallbackRepository interface {
	Create(ctx context.Context, callback *entity.WebhookCallback) error
}

// txStore writes state transitions that must commit together.
type txStore interface {
	CreateInvoice(ctx context.Context, invoice *entity.Invoice, event *entity.InvoiceEvent, assign func(*entity.Invoice)) error
	SaveInvoiceTransition(ctx context.Context, invoice *entity.Invoice, from entity.InvoiceStatus, subscription *entity.Subscription, event *entity.InvoiceEvent) error
	SavePlatformTransition(ctx context.Context, invoice *entity.PlatformInvoice, from entity.InvoiceStatus, merchant *entity.Merchant) error
	SaveSubscription(ctx context.Context, customer *entity.Customer, method *entity.PaymentMethod, subscription *entity.Subscription) error
}

type Repositories struct {
	Merchants        merchantRepository
	Plans            planRepository
	Customers        customerRepository
	Subscriptions    subscriptionRepository
	Invoices         invoiceRepository
	PlatformInvoices platformInvoiceRepository
	Callbacks        webhookCallbackRepository
	Tx               txStore
}

type BillingService struct {
	repos       Repositories
	dispatcher  *gateway.Dispatcher
	locker      lock.Locker
	notifier    notification.Notifier
	metrics     *metrics.Collector
	billingCfg  config.BillingConfig
	platformCfg config.PlatformConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewBillingService wires the billing flows. A nil locker disables pass locking, a nil
// notifier drops notifications and a nil collector disables metrics.
func NewBillingService(
	repos Repositories,
	dispatcher *gateway.Dispatcher,
	locker lock.Locker,
	notifier notification.Notifier,
	collector *metrics.Collector,
	billingCfg config.BillingConfig,
	platformCfg config.PlatformConfig,
) *BillingService {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if billingCfg.MaxAttempts <= 0 {
		billingCfg.MaxAttempts = defaultMaxAttempts
	}
	if billingCfg.RetryInterval <= 0 {
		billingCfg.RetryInterval = defaultRetryInterval
	}
	if billingCfg.Concurrency <= 0 {
		billingCfg.Concurrency = 1
	}
	if billingCfg.BatchSize <= 0 {
		billingCfg.BatchSize = defaultBatchSize
	}
	if billingCfg.LockTTL <= 0 {
		billingCfg.LockTTL = defaultLockTTL
	}
	if strings.TrimSpace(billingCfg.DefaultCurrency) == "" {
		billingCfg.DefaultCurrency = defaultCurrency
	}
	if strings.TrimSpace(billingCfg.DefaultPayerEmail) == "" {
		billingCfg.DefaultPayerEmail = defaultPayerEmail
	}
	if strings.TrimSpace(billingCfg.DefaultPayerName) == "" {
		billingCfg.DefaultPayerName = defaultPayerName
	}
	if strings.TrimSpace(platformCfg.Currency) == "" {
		platformCfg.Currency = defaultCurrency
	}

	return &BillingService{
		repos:       repos,
		dispatcher:  dispatcher,
		locker:      locker,
		notifier:    notifier,
		metrics:     collector,
		billingCfg:  billingCfg,
		platformCfg: platformCfg,
		logger:      factory.NewModuleLogger("billing_service"),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

func (s *BillingService) batchSize() int32 {
	return s.billingCfg.BatchSize
}

// notify hands n to the notifier after a committed transition. Delivery failures are
// logged and never affect billing state.
func (s *BillingService) notify(ctx context.Context, n *notification.Notification) {
	if s.notifier == nil || n == nil || strings.TrimSpace(n.Recipient) == "" {
		return
	}
	result := "sent"
	if err := s.notifier.Notify(ctx, n); err != nil {
		result = "error"
		s.logger.WithError(err).WithFields(logrus.Fields{
			"type":      n.Type,
			"recipient": n.Recipient,
		}).Warn("notification delivery failed")
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(string(n.Type), result).Inc()
	}
}

func (s *BillingService) recordAnomaly(reason string, fields logrus.Fields) {
	s.logger.WithFields(fields).WithField("reason", reason).Warn("billing anomaly")
	if s.metrics != nil {
		s.metrics.Anomalies.WithLabelValues(reason).Inc()
	}
}

func (s *BillingService) observeCharge(result *gateway.ChargeResult, kind string, started time.Time) {
	if s.metrics == nil || result == nil {
		return
	}
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	s.metrics.ChargesTotal.WithLabelValues(string(result.Gateway), kind, outcome).Inc()
	s.metrics.ChargeDuration.WithLabelValues(string(result.Gateway)).Observe(time.Since(started).Seconds())
}

func keepFirstErr(current error, next error) error {
	if current != nil {
		return current
	}
	return next
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func statusPtr(status entity.InvoiceStatus) *entity.InvoiceStatus {
	return &status
}

func timePtr(t time.Time) *time.Time {
	return &t
}
