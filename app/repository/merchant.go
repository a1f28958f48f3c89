package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrMerchantNotFound = errors.New("merchant not found")

type MerchantRepository struct {
	db DBTX
}

func NewMerchantRepository(db DBTX) *MerchantRepository {
	return &MerchantRepository{db: db}
}

const merchantColumns = `
	id, slug, name, email, gateway, gateway_config, platform_fee_percent,
	subscription_status, subscription_price, next_platform_billing, wompi_token,
	created_at, updated_at`

func (r *MerchantRepository) FindByID(ctx context.Context, id uint64) (*entity.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = ?`

	merchant, err := scanMerchant(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return merchant, err
}

func (r *MerchantRepository) FindBySlug(ctx context.Context, slug string) (*entity.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE slug = ? LIMIT 1`

	merchant, err := scanMerchant(r.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return merchant, err
}

// ListDueForPlatformBilling returns active merchants whose platform charge is due, including
// those with a failed charge whose retry time has come.
func (r *MerchantRepository) ListDueForPlatformBilling(ctx context.Context, now time.Time, limit int32) ([]*entity.Merchant, error) {
	query := `SELECT ` + merchantColumns + `
		FROM merchants
		WHERE subscription_status = ?
		  AND next_platform_billing IS NOT NULL
		  AND next_platform_billing <= ?
		ORDER BY next_platform_billing ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.MerchantSubscriptionActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	merchants := make([]*entity.Merchant, 0)
	for rows.Next() {
		item, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return merchants, nil
}

func (r *MerchantRepository) UpdateGatewayConfig(ctx context.Context, merchant *entity.Merchant) error {
	raw, err := entity.EncodeGatewayCredentials(merchant.Credentials)
	if err != nil {
		return err
	}

	query := `UPDATE merchants SET gateway = ?, gateway_config = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, merchant.Gateway, string(raw), merchant.UpdatedAt, merchant.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrMerchantNotFound)
}

func (r *MerchantRepository) UpdatePlatformBilling(ctx context.Context, merchant *entity.Merchant) error {
	query := `
		UPDATE merchants SET
			subscription_status = ?,
			next_platform_billing = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		merchant.SubscriptionStatus,
		nullableTimeValue(merchant.NextPlatformBilling),
		merchant.UpdatedAt,
		merchant.ID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrMerchantNotFound)
}

func scanMerchant(scan rowScanner) (*entity.Merchant, error) {
	merchant := &entity.Merchant{}
	var gatewayConfig sql.NullString
	var feePercent decimal.NullDecimal
	var nextBilling sql.NullTime
	var wompiToken sql.NullString

	err := scan.Scan(
		&merchant.ID,
		&merchant.Slug,
		&merchant.Name,
		&merchant.Email,
		&merchant.Gateway,
		&gatewayConfig,
		&feePercent,
		&merchant.SubscriptionStatus,
		&merchant.SubscriptionPrice,
		&nextBilling,
		&wompiToken,
		&merchant.CreatedAt,
		&merchant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if feePercent.Valid {
		fee := feePercent.Decimal
		merchant.PlatformFeePercent = &fee
	}
	merchant.NextPlatformBilling = timePtrFromNull(nextBilling)
	merchant.WompiToken = stringPtrFromNull(wompiToken)
	merchant.Credentials = loadCredentials(merchant.ID, merchant.Gateway, gatewayConfig)

	return merchant, nil
}

// loadCredentials leaves Credentials nil for unreadable or mismatched configs; callers treat
// that as a merchant without gateway configuration.
func loadCredentials(merchantID uint64, gateway entity.Gateway, raw sql.NullString) entity.GatewayCredentials {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	creds, err := entity.LoadGatewayCredentials(gateway, []byte(raw.String))
	if err != nil {
		logrus.WithError(err).WithField("merchant_id", merchantID).Warn("Stored gateway config is unreadable")
		return nil
	}
	return creds
}
