package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceAlreadyExists = errors.New("invoice already exists for billing period")
	// ErrInvoiceStateChanged means another writer moved the invoice out of the expected status.
	ErrInvoiceStateChanged = errors.New("invoice status changed concurrently")
)

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `
	id, merchant_id, subscription_id, customer_id, amount, currency, platform_fee, net_amount,
	status, gateway, reference_code, gateway_transaction_id, gateway_response, paid_at, due_date,
	attempt_count, next_retry_at, last_error, billing_period_start, billing_period_end,
	created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			merchant_id, subscription_id, customer_id, amount, currency, platform_fee, net_amount,
			status, gateway, reference_code, gateway_transaction_id, gateway_response, paid_at, due_date,
			attempt_count, next_retry_at, last_error, billing_period_start, billing_period_end,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.MerchantID,
		invoice.SubscriptionID,
		invoice.CustomerID,
		invoice.Amount,
		invoice.Currency,
		invoice.PlatformFee,
		invoice.NetAmount,
		invoice.Status,
		invoice.Gateway,
		nullableStringValue(invoice.ReferenceCode),
		nullableStringValue(invoice.GatewayTransactionID),
		nullableStringValue(invoice.GatewayResponse),
		nullableTimeValue(invoice.PaidAt),
		invoice.DueDate,
		invoice.AttemptCount,
		nullableTimeValue(invoice.NextRetryAt),
		nullableStringValue(invoice.LastError),
		invoice.BillingPeriodStart,
		invoice.BillingPeriodEnd,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrInvoiceAlreadyExists
		}
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	invoice.ID = id
	return nil
}

// UpdateFromStatus writes the invoice only while it is still in status from.
func (r *InvoiceRepository) UpdateFromStatus(ctx context.Context, invoice *entity.Invoice, from entity.InvoiceStatus) error {
	query := `
		UPDATE invoices SET
			status = ?,
			reference_code = ?,
			gateway_transaction_id = ?,
			gateway_response = ?,
			paid_at = ?,
			attempt_count = ?,
			next_retry_at = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.Status,
		nullableStringValue(invoice.ReferenceCode),
		nullableStringValue(invoice.GatewayTransactionID),
		nullableStringValue(invoice.GatewayResponse),
		nullableTimeValue(invoice.PaidAt),
		invoice.AttemptCount,
		nullableTimeValue(invoice.NextRetryAt),
		nullableStringValue(invoice.LastError),
		invoice.UpdatedAt,
		invoice.ID,
		from,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrInvoiceStateChanged)
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id uint64) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *InvoiceRepository) FindByPeriod(ctx context.Context, subscriptionID uint64, dueDate time.Time) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE subscription_id = ? AND due_date = ? LIMIT 1`
	return r.findOne(ctx, query, subscriptionID, dueDate)
}

func (r *InvoiceRepository) FindByReference(ctx context.Context, reference string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE reference_code = ? LIMIT 1`
	return r.findOne(ctx, query, reference)
}

// ListStaleProcessing returns invoices left in processing since before the cutoff.
func (r *InvoiceRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.InvoiceProcessing, before, limit)
}

func (r *InvoiceRepository) ListRecentBySubscription(ctx context.Context, subscriptionID uint64, limit int32) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = ?
		ORDER BY due_date DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, subscriptionID, limit)
}

// SumPaidByMerchant returns the gross amount and platform fees of all paid invoices.
func (r *InvoiceRepository) SumPaidByMerchant(ctx context.Context, merchantID uint64) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(platform_fee), 0)
		FROM invoices
		WHERE merchant_id = ? AND status = ?
	`
	var revenue, fees int64
	if err := r.db.QueryRowContext(ctx, query, merchantID, entity.InvoicePaid).Scan(&revenue, &fees); err != nil {
		return 0, 0, err
	}
	return revenue, fees, nil
}

func (r *InvoiceRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Invoice, error) {
	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return invoice, err
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]*entity.Invoice, 0)
	for rows.Next() {
		item, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func scanInvoice(scan rowScanner) (*entity.Invoice, error) {
	invoice := &entity.Invoice{}
	var referenceCode, transactionID, gatewayResponse, lastError sql.NullString
	var paidAt, nextRetryAt sql.NullTime

	err := scan.Scan(
		&invoice.ID,
		&invoice.MerchantID,
		&invoice.SubscriptionID,
		&invoice.CustomerID,
		&invoice.Amount,
		&invoice.Currency,
		&invoice.PlatformFee,
		&invoice.NetAmount,
		&invoice.Status,
		&invoice.Gateway,
		&referenceCode,
		&transactionID,
		&gatewayResponse,
		&paidAt,
		&invoice.DueDate,
		&invoice.AttemptCount,
		&nextRetryAt,
		&lastError,
		&invoice.BillingPeriodStart,
		&invoice.BillingPeriodEnd,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.ReferenceCode = stringPtrFromNull(referenceCode)
	invoice.GatewayTransactionID = stringPtrFromNull(transactionID)
	invoice.GatewayResponse = stringPtrFromNull(gatewayResponse)
	invoice.PaidAt = timePtrFromNull(paidAt)
	invoice.NextRetryAt = timePtrFromNull(nextRetryAt)
	invoice.LastError = stringPtrFromNull(lastError)
	return invoice, nil
}
