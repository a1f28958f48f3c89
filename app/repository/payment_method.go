package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type PaymentMethodRepository struct {
	db DBTX
}

func NewPaymentMethodRepository(db DBTX) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

// Create stores the method; a default method replaces the customer's previous default.
func (r *PaymentMethodRepository) Create(ctx context.Context, method *entity.PaymentMethod) error {
	if method.IsDefault {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE payment_methods SET is_default = 0, updated_at = ? WHERE customer_id = ? AND is_default = 1`,
			method.UpdatedAt, method.CustomerID,
		); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO payment_methods (
			merchant_id, customer_id, gateway, token, card_last_four, card_brand,
			card_exp_month, card_exp_year, cardholder_name, is_default, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		method.MerchantID,
		method.CustomerID,
		method.Gateway,
		method.Token,
		nullableStringValue(method.CardLastFour),
		nullableStringValue(method.CardBrand),
		nullableStringValue(method.CardExpMonth),
		nullableStringValue(method.CardExpYear),
		nullableStringValue(method.CardholderName),
		method.IsDefault,
		method.CreatedAt,
		method.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	method.ID = id
	return nil
}
