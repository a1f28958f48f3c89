package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	s.id, s.merchant_id, s.customer_id, s.plan_id, s.payment_method_id, s.status,
	s.current_period_start, s.current_period_end, s.next_billing_date, s.trial_end,
	s.cancel_at_period_end, s.cancellation_reason, s.cancelled_at, s.billing_cycle_count,
	s.created_at, s.updated_at`

// dueJoin selects a subscription with every row needed to charge it. Joined rows may be
// missing; their columns then scan as NULL.
const dueJoin = `
	SELECT ` + subscriptionColumns + `,
		m.id, m.slug, m.name, m.email, m.gateway, m.gateway_config, m.platform_fee_percent,
		p.id, p.name, p.price, p.currency, p.interval_unit, p.interval_count, p.trial_days, p.is_active,
		c.id, c.email, c.name, c.phone,
		pm.id, pm.gateway, pm.token, pm.card_last_four, pm.card_brand
	FROM subscriptions s
	LEFT JOIN merchants m ON m.id = s.merchant_id
	LEFT JOIN plans p ON p.id = s.plan_id
	LEFT JOIN customers c ON c.id = s.customer_id
	LEFT JOIN payment_methods pm ON pm.id = s.payment_method_id`

func (r *SubscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			merchant_id, customer_id, plan_id, payment_method_id, status,
			current_period_start, current_period_end, next_billing_date, trial_end,
			cancel_at_period_end, cancellation_reason, cancelled_at, billing_cycle_count,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.MerchantID,
		sub.CustomerID,
		sub.PlanID,
		nullableUint64Value(sub.PaymentMethodID),
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		nullableTimeValue(sub.TrialEnd),
		sub.CancelAtPeriodEnd,
		nullableStringValue(sub.CancellationReason),
		nullableTimeValue(sub.CancelledAt),
		sub.BillingCycleCount,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	sub.ID = id
	return nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *entity.Subscription) error {
	query := `
		UPDATE subscriptions SET
			plan_id = ?,
			payment_method_id = ?,
			status = ?,
			current_period_start = ?,
			current_period_end = ?,
			next_billing_date = ?,
			trial_end = ?,
			cancel_at_period_end = ?,
			cancellation_reason = ?,
			cancelled_at = ?,
			billing_cycle_count = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.PlanID,
		nullableUint64Value(sub.PaymentMethodID),
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		nullableTimeValue(sub.TrialEnd),
		sub.CancelAtPeriodEnd,
		nullableStringValue(sub.CancellationReason),
		nullableTimeValue(sub.CancelledAt),
		sub.BillingCycleCount,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrSubscriptionNotFound)
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id uint64) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions s WHERE s.id = ?`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// FindDueByID loads one subscription joined like ListDue, regardless of status or date.
func (r *SubscriptionRepository) FindDueByID(ctx context.Context, id uint64) (*entity.DueSubscription, error) {
	due, err := scanDue(r.db.QueryRowContext(ctx, dueJoin+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return due, err
}

// ListDue returns active and trialing subscriptions whose next billing date has passed.
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.DueSubscription, error) {
	query := dueJoin + `
		WHERE s.status IN (?, ?)
		  AND s.next_billing_date <= ?
		ORDER BY s.next_billing_date ASC, s.id ASC
		LIMIT ?
	`
	return r.listDue(ctx, query, entity.SubscriptionActive, entity.SubscriptionTrialing, now, limit)
}

// ListRenewalWindow returns active subscriptions billing inside (from, to].
func (r *SubscriptionRepository) ListRenewalWindow(ctx context.Context, from, to time.Time, limit int32) ([]*entity.DueSubscription, error) {
	query := dueJoin + `
		WHERE s.status = ?
		  AND s.cancel_at_period_end = 0
		  AND s.next_billing_date > ?
		  AND s.next_billing_date <= ?
		ORDER BY s.next_billing_date ASC, s.id ASC
		LIMIT ?
	`
	return r.listDue(ctx, query, entity.SubscriptionActive, from, to, limit)
}

func (r *SubscriptionRepository) ListByCustomerEmail(ctx context.Context, merchantID uint64, email string) ([]*entity.DueSubscription, error) {
	query := dueJoin + `
		WHERE s.merchant_id = ? AND c.email = ?
		ORDER BY s.created_at DESC, s.id DESC
	`
	return r.listDue(ctx, query, merchantID, email)
}

// ListActivePlans returns the plan of every active subscription of a merchant, one entry
// per subscription.
func (r *SubscriptionRepository) ListActivePlans(ctx context.Context, merchantID uint64) ([]*entity.Plan, error) {
	query := `
		SELECT p.id, p.price, p.currency, p.interval_unit, p.interval_count
		FROM subscriptions s
		INNER JOIN plans p ON p.id = s.plan_id
		WHERE s.merchant_id = ? AND s.status = ?
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID, entity.SubscriptionActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*entity.Plan, 0)
	for rows.Next() {
		plan := &entity.Plan{MerchantID: merchantID}
		if err := rows.Scan(&plan.ID, &plan.Price, &plan.Currency, &plan.Interval, &plan.IntervalCount); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *SubscriptionRepository) listDue(ctx context.Context, query string, args ...interface{}) ([]*entity.DueSubscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.DueSubscription, 0)
	for rows.Next() {
		item, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type subscriptionNulls struct {
	paymentMethodID    sql.NullInt64
	trialEnd           sql.NullTime
	cancellationReason sql.NullString
	cancelledAt        sql.NullTime
}

func (n *subscriptionNulls) targets(sub *entity.Subscription) []interface{} {
	return []interface{}{
		&sub.ID,
		&sub.MerchantID,
		&sub.CustomerID,
		&sub.PlanID,
		&n.paymentMethodID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.NextBillingDate,
		&n.trialEnd,
		&sub.CancelAtPeriodEnd,
		&n.cancellationReason,
		&n.cancelledAt,
		&sub.BillingCycleCount,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	}
}

func (n *subscriptionNulls) apply(sub *entity.Subscription) {
	sub.PaymentMethodID = uint64PtrFromNull(n.paymentMethodID)
	sub.TrialEnd = timePtrFromNull(n.trialEnd)
	sub.CancellationReason = stringPtrFromNull(n.cancellationReason)
	sub.CancelledAt = timePtrFromNull(n.cancelledAt)
}

func scanSubscription(scan rowScanner) (*entity.Subscription, error) {
	sub := &entity.Subscription{}
	nulls := &subscriptionNulls{}
	if err := scan.Scan(nulls.targets(sub)...); err != nil {
		return nil, err
	}
	nulls.apply(sub)
	return sub, nil
}

func scanDue(scan rowScanner) (*entity.DueSubscription, error) {
	sub := &entity.Subscription{}
	nulls := &subscriptionNulls{}

	var (
		merchantID      sql.NullInt64
		merchantSlug    sql.NullString
		merchantName    sql.NullString
		merchantEmail   sql.NullString
		merchantGateway sql.NullString
		merchantConfig  sql.NullString
		merchantFee     decimal.NullDecimal
		planID          sql.NullInt64
		planName        sql.NullString
		planPrice       sql.NullInt64
		planCurrency    sql.NullString
		planInterval    sql.NullString
		planCount       sql.NullInt32
		planTrialDays   sql.NullInt32
		planActive      sql.NullBool
		customerID      sql.NullInt64
		customerEmail   sql.NullString
		customerName    sql.NullString
		customerPhone   sql.NullString
		methodID        sql.NullInt64
		methodGateway   sql.NullString
		methodToken     sql.NullString
		methodLastFour  sql.NullString
		methodBrand     sql.NullString
	)

	targets := append(nulls.targets(sub),
		&merchantID, &merchantSlug, &merchantName, &merchantEmail, &merchantGateway, &merchantConfig, &merchantFee,
		&planID, &planName, &planPrice, &planCurrency, &planInterval, &planCount, &planTrialDays, &planActive,
		&customerID, &customerEmail, &customerName, &customerPhone,
		&methodID, &methodGateway, &methodToken, &methodLastFour, &methodBrand,
	)
	if err := scan.Scan(targets...); err != nil {
		return nil, err
	}
	nulls.apply(sub)

	due := &entity.DueSubscription{Subscription: sub}
	if merchantID.Valid {
		merchant := &entity.Merchant{
			ID:      uint64(merchantID.Int64),
			Slug:    merchantSlug.String,
			Name:    merchantName.String,
			Email:   merchantEmail.String,
			Gateway: entity.Gateway(merchantGateway.String),
		}
		if merchantFee.Valid {
			fee := merchantFee.Decimal
			merchant.PlatformFeePercent = &fee
		}
		merchant.Credentials = loadCredentials(merchant.ID, merchant.Gateway, merchantConfig)
		due.Merchant = merchant
	}
	if planID.Valid {
		due.Plan = &entity.Plan{
			ID:            uint64(planID.Int64),
			MerchantID:    sub.MerchantID,
			Name:          planName.String,
			Price:         planPrice.Int64,
			Currency:      planCurrency.String,
			Interval:      entity.Interval(planInterval.String),
			IntervalCount: planCount.Int32,
			TrialDays:     planTrialDays.Int32,
			IsActive:      planActive.Bool,
		}
	}
	if customerID.Valid {
		due.Customer = &entity.Customer{
			ID:         uint64(customerID.Int64),
			MerchantID: sub.MerchantID,
			Email:      customerEmail.String,
			Name:       customerName.String,
			Phone:      stringPtrFromNull(customerPhone),
		}
	}
	if methodID.Valid {
		due.PaymentMethod = &entity.PaymentMethod{
			ID:           uint64(methodID.Int64),
			MerchantID:   sub.MerchantID,
			CustomerID:   sub.CustomerID,
			Gateway:      entity.Gateway(methodGateway.String),
			Token:        methodToken.String,
			CardLastFour: stringPtrFromNull(methodLastFour),
			CardBrand:    stringPtrFromNull(methodBrand),
		}
	}
	return due, nil
}
