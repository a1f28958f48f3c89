package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCustomerAlreadyExists = errors.New("customer already exists")
)

type CustomerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `
	id, merchant_id, email, name, phone, document_type, document_number, created_at, updated_at`

func (r *CustomerRepository) Create(ctx context.Context, customer *entity.Customer) error {
	query := `
		INSERT INTO customers (
			merchant_id, email, name, phone, document_type, document_number, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		customer.MerchantID,
		customer.Email,
		customer.Name,
		nullableStringValue(customer.Phone),
		nullableStringValue(customer.DocumentType),
		nullableStringValue(customer.DocumentNumber),
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrCustomerAlreadyExists
		}
		return err
	}

	id, err := lastInsertID(result)
	if err != nil {
		return err
	}
	customer.ID = id
	return nil
}

func (r *CustomerRepository) Update(ctx context.Context, customer *entity.Customer) error {
	query := `
		UPDATE customers SET
			name = ?,
			phone = ?,
			document_type = ?,
			document_number = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		customer.Name,
		nullableStringValue(customer.Phone),
		nullableStringValue(customer.DocumentType),
		nullableStringValue(customer.DocumentNumber),
		customer.UpdatedAt,
		customer.ID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result, ErrCustomerNotFound)
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, merchantID uint64, email string) (*entity.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE merchant_id = ? AND email = ? LIMIT 1`

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, merchantID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return customer, err
}

func scanCustomer(scan rowScanner) (*entity.Customer, error) {
	customer := &entity.Customer{}
	var phone, documentType, documentNumber sql.NullString

	err := scan.Scan(
		&customer.ID,
		&customer.MerchantID,
		&customer.Email,
		&customer.Name,
		&phone,
		&documentType,
		&documentNumber,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	customer.Phone = stringPtrFromNull(phone)
	customer.DocumentType = stringPtrFromNull(documentType)
	customer.DocumentNumber = stringPtrFromNull(documentNumber)
	return customer, nil
}
