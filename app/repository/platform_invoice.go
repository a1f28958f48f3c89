package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrPlatformInvoiceAlreadyExists = errors.New("platform invoice already exists for billing period")

type PlatformInvoiceRepository struct {
	db DBTX
}

func NewPlatformInvoiceRepository(db DBTX) *PlatformInvoiceRepository {
	return &PlatformInvoiceRepository{db: db}
}

const platformInvoiceColumns = `
	id, merchant_id, subscription_amount, transaction_fees, total_amount, currency, status,
	reference_code, gateway_transaction_id, gateway_response, paid_at,
	billing_period_start, billing_period_end, attempt_count, next_retry_at, last_error,
	created_at, updated_at`

func (r *PlatformInvoiceRepository) Create(ctx context.Context, invoice *entity.PlatformInvoice) error {
	query := `
		INSERT INTO platform_invoices (
			merchant_id, subscription_amount, transaction_fees, total_amount, currency, status,
			reference_code, gateway_transaction_id, gateway_response, paid_at,
			billing_period_start, billing_period_end, attempt_count, next_retry_at, last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.MerchantID,
		invoice.SubscriptionAmount,
		invoice.TransactionFees,
		invoice.TotalAmount,
		invoice.Currency,
		invoice.Status,
		nullableStringValue(invoice.ReferenceCode),
		nullableStringValue(invoice.GatewayTransactionID),
		nullableStringValue(invoice.GatewayResponse),
		nullableTimeValue(invoice.PaidAt),
		invoice.BillingPeriodStart,
		invoice.BillingPeriodEnd,
		invoice.AttemptCount,
		nullableTimeValue(invoice.NextRetryAt),
		nullableStringValue(invoice.LastError),
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPlatformInvoiceAlreadyExists
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

func (r *PlatformInvoiceRepository) UpdateFromStatus(ctx context.Context, invoice *entity.PlatformInvoice, from entity.InvoiceStatus) error {
	query := `
		UPDATE platform_invoices SET
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

func (r *PlatformInvoiceRepository) FindByPeriod(ctx context.Context, merchantID uint64, periodStart time.Time) (*entity.PlatformInvoice, error) {
	query := `SELECT ` + platformInvoiceColumns + `
		FROM platform_invoices
		WHERE merchant_id = ? AND billing_period_start = ?
		LIMIT 1
	`

	invoice := &entity.PlatformInvoice{}
	var referenceCode, transactionID, gatewayResponse, lastError sql.NullString
	var paidAt, nextRetryAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, merchantID, periodStart).Scan(
		&invoice.ID,
		&invoice.MerchantID,
		&invoice.SubscriptionAmount,
		&invoice.TransactionFees,
		&invoice.TotalAmount,
		&invoice.Currency,
		&invoice.Status,
		&referenceCode,
		&transactionID,
		&gatewayResponse,
		&paidAt,
		&invoice.BillingPeriodStart,
		&invoice.BillingPeriodEnd,
		&invoice.AttemptCount,
		&nextRetryAt,
		&lastError,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
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
