package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrPlanNotFound = errors.New("plan not found")

type PlanRepository struct {
	db DBTX
}

func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, merchant_id, name, description, price, currency, interval_unit, interval_count,
	trial_days, is_active, is_public, created_at, updated_at`

func (r *PlanRepository) FindByID(ctx context.Context, id uint64) (*entity.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = ?`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return plan, err
}

func (r *PlanRepository) Create(ctx context.Context, plan *entity.Plan) error {
	query := `
		INSERT INTO plans (
			merchant_id, name, description, price, currency, interval_unit, interval_count,
			trial_days, is_active, is_public, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		plan.MerchantID,
		plan.Name,
		nullableStringValue(plan.Description),
		plan.Price,
		plan.Currency,
		plan.Interval,
		plan.IntervalCount,
		plan.TrialDays,
		plan.IsActive,
		plan.IsPublic,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	plan.ID = id
	return nil
}

// Update rewrites the editable plan fields. Existing subscriptions keep referencing the plan
// and pick up a new price on their next charge.
func (r *PlanRepository) Update(ctx context.Context, plan *entity.Plan) error {
	query := `
		UPDATE plans SET
			name = ?,
			description = ?,
			price = ?,
			currency = ?,
			interval_unit = ?,
			interval_count = ?,
			trial_days = ?,
			is_active = ?,
			is_public = ?,
			updated_at = ?
		WHERE id = ? AND merchant_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		plan.Name,
		nullableStringValue(plan.Description),
		plan.Price,
		plan.Currency,
		plan.Interval,
		plan.IntervalCount,
		plan.TrialDays,
		plan.IsActive,
		plan.IsPublic,
		plan.UpdatedAt,
		plan.ID,
		plan.MerchantID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrPlanNotFound)
}

// Deactivate hides a plan from new subscriptions. Rows are never deleted because invoices
// and subscriptions reference them.
func (r *PlanRepository) Deactivate(ctx context.Context, merchantID, id uint64, now time.Time) error {
	query := `UPDATE plans SET is_active = 0, updated_at = ? WHERE id = ? AND merchant_id = ?`

	result, err := r.db.ExecContext(ctx, query, now, id, merchantID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrPlanNotFound)
}

func (r *PlanRepository) ListPublicByMerchant(ctx context.Context, merchantID uint64) ([]*entity.Plan, error) {
	query := `SELECT ` + planColumns + `
		FROM plans
		WHERE merchant_id = ? AND is_active = 1 AND is_public = 1
		ORDER BY price ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*entity.Plan, 0)
	for rows.Next() {
		item, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func scanPlan(scan rowScanner) (*entity.Plan, error) {
	plan := &entity.Plan{}
	var description sql.NullString

	err := scan.Scan(
		&plan.ID,
		&plan.MerchantID,
		&plan.Name,
		&description,
		&plan.Price,
		&plan.Currency,
		&plan.Interval,
		&plan.IntervalCount,
		&plan.TrialDays,
		&plan.IsActive,
		&plan.IsPublic,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.Description = stringPtrFromNull(description)
	return plan, nil
}
