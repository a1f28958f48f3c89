package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type InvoiceEventRepository struct {
	db DBTX
}

func NewInvoiceEventRepository(db DBTX) *InvoiceEventRepository {
	return &InvoiceEventRepository{db: db}
}

func (r *InvoiceEventRepository) Create(ctx context.Context, event *entity.InvoiceEvent) error {
	query := `
		INSERT INTO invoice_events (
			invoice_id, event_type, old_status, new_status, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var oldStatus interface{}
	if event.OldStatus != nil {
		oldStatus = string(*event.OldStatus)
	}

	result, err := r.db.ExecContext(ctx, query,
		event.InvoiceID,
		event.EventType,
		oldStatus,
		event.NewStatus,
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}
