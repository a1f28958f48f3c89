package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// TxStore groups the writes that must land together in one database transaction.
type TxStore struct {
	db *sql.DB
}

func NewTxStore(db *sql.DB) *TxStore {
	return &TxStore{db: db}
}

func (s *TxStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveInvoiceTransition moves an invoice out of status from, optionally updates its
// subscription and records the audit event. Nothing is written if the invoice has already left
// status from.
func (s *TxStore) SaveInvoiceTransition(
	ctx context.Context,
	invoice *entity.Invoice,
	from entity.InvoiceStatus,
	subscription *entity.Subscription,
	event *entity.InvoiceEvent,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := NewInvoiceRepository(tx).UpdateFromStatus(ctx, invoice, from); err != nil {
			return err
		}
		if subscription != nil {
			if err := NewSubscriptionRepository(tx).Update(ctx, subscription); err != nil {
				return err
			}
		}
		if event != nil {
			event.InvoiceID = invoice.ID
			if err := NewInvoiceEventRepository(tx).Create(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateInvoice inserts a new invoice together with its creation event. When assign is set
// it runs once the invoice has its id, and the fields it fills are written in the same
// transaction.
func (s *TxStore) CreateInvoice(
	ctx context.Context,
	invoice *entity.Invoice,
	event *entity.InvoiceEvent,
	assign func(*entity.Invoice),
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		invoices := NewInvoiceRepository(tx)
		if err := invoices.Create(ctx, invoice); err != nil {
			return err
		}
		if assign != nil {
			assign(invoice)
			if err := invoices.UpdateFromStatus(ctx, invoice, invoice.Status); err != nil {
				return err
			}
		}
		if event != nil {
			event.InvoiceID = invoice.ID
			return NewInvoiceEventRepository(tx).Create(ctx, event)
		}
		return nil
	})
}

func (s *TxStore) SavePlatformTransition(
	ctx context.Context,
	invoice *entity.PlatformInvoice,
	from entity.InvoiceStatus,
	merchant *entity.Merchant,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := NewPlatformInvoiceRepository(tx).UpdateFromStatus(ctx, invoice, from); err != nil {
			return err
		}
		if merchant != nil {
			return NewMerchantRepository(tx).UpdatePlatformBilling(ctx, merchant)
		}
		return nil
	})
}

// SaveSubscription persists the customer (created when ID is zero), the payment method and
// the new subscription.
func (s *TxStore) SaveSubscription(
	ctx context.Context,
	customer *entity.Customer,
	method *entity.PaymentMethod,
	subscription *entity.Subscription,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		customers := NewCustomerRepository(tx)
		if customer.ID == 0 {
			if err := customers.Create(ctx, customer); err != nil {
				return err
			}
		} else if err := customers.Update(ctx, customer); err != nil {
			return err
		}

		method.CustomerID = customer.ID
		if err := NewPaymentMethodRepository(tx).Create(ctx, method); err != nil {
			return err
		}

		subscription.CustomerID = customer.ID
		subscription.PaymentMethodID = &method.ID
		return NewSubscriptionRepository(tx).Create(ctx, subscription)
	})
}
