package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/service/subscription"
)

// CustomerRepo resolves storefront customer accounts mirrored into
// PostgreSQL by the customer-save hook.
type CustomerRepo struct{ db *sql.DB }

// NewCustomerRepo creates a Postgres-backed customer directory.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

func (r *CustomerRepo) FindByEmail(ctx context.Context, websiteID int64, email string) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, store_id, website_id
		FROM newsletter_customers
		WHERE website_id = $1 AND lower(email) = lower($2)
	`, websiteID, email).Scan(&c.ID, &c.Email, &c.StoreID, &c.WebsiteID)
	if err == sql.ErrNoRows {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by email: %w", err)
	}
	return c, nil
}

// Upsert records the latest known account details of a customer.
func (r *CustomerRepo) Upsert(ctx context.Context, c domain.Customer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_customers (id, email, store_id, website_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET email = $2, store_id = $3, website_id = $4, updated_at = NOW()
	`, c.ID, c.Email, c.StoreID, c.WebsiteID)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}
