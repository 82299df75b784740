package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/segment"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Customer, error)
	ListAll(ctx context.Context) ([]model.Customer, error)
	Count(ctx context.Context) (int, error)
	FindBySegment(ctx context.Context, rules model.RuleGroup) ([]*model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
	// Selector turns rule trees into WHERE clauses. The zero value uses the wall clock.
	Selector segment.Selector
}

const customerColumns = `id, first_name, last_name, email, phone, city, state, country,
        total_spend, visits, purchases, last_active_at,
        marketing_consent, email_opt_in, sms_opt_in, push_opt_in, is_active, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner, c *model.Customer) error {
	return row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Location.City, &c.Location.State, &c.Location.Country,
		&c.TotalSpend, &c.Visits, &c.Purchases, &c.LastActiveAt,
		&c.Preferences.MarketingConsent, &c.Preferences.Channels.Email,
		&c.Preferences.Channels.SMS, &c.Preferences.Channels.Push,
		&c.IsActive, &c.CreatedAt,
	)
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id int) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	var c model.Customer
	if err := scanCustomer(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListAll fetches all customers
func (r *CustomerRepository) ListAll(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomerRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	return total, err
}

// FindBySegment returns exactly the customers matching the rule tree, ordered by id.
// Nested groups are rendered as nested SQL so no branch of the tree is lost.
func (r *CustomerRepository) FindBySegment(ctx context.Context, rules model.RuleGroup) ([]*model.Customer, error) {
	where, args := segment.BuildWhere(r.Selector.Translate(rules))
	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + where + ` ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find customers by segment: %w", err)
	}
	defer rows.Close()

	customers := []*model.Customer{}
	for rows.Next() {
		c := &model.Customer{}
		if err := scanCustomer(rows, c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// Create inserts a customer. Used by the seeder.
func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	query := `
        INSERT INTO customers (first_name, last_name, email, phone, city, state, country,
            total_spend, visits, purchases, last_active_at,
            marketing_consent, email_opt_in, sms_opt_in, push_opt_in, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone,
		c.Location.City, c.Location.State, c.Location.Country,
		c.TotalSpend, c.Visits, c.Purchases, c.LastActiveAt,
		c.Preferences.MarketingConsent, c.Preferences.Channels.Email,
		c.Preferences.Channels.SMS, c.Preferences.Channels.Push, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
