package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/service/subscription"
)

// SubscriberRepo implements subscription.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `id, email, status, confirmation_code, customer_id, store_id, created_at, updated_at`

func scanSubscriber(row *sql.Row, op string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := row.Scan(
		&s.ID, &s.Email, &s.Status, &s.ConfirmationCode,
		&s.CustomerID, &s.StoreID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *SubscriberRepo) FindByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, subscription.ErrNotFound
	}
	return scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE id = $1`,
		id,
	), "find subscriber by id")
}

func (r *SubscriberRepo) FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE lower(email) = lower($1)`,
		email,
	), "find subscriber by email")
}

// FindByCustomer prefers the record linked to the customer over an unlinked
// record with the same address.
func (r *SubscriberRepo) FindByCustomer(ctx context.Context, customerID int64, email string) (*domain.Subscriber, error) {
	return scanSubscriber(r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM newsletter_subscribers
		WHERE customer_id = $1 OR (customer_id = 0 AND lower(email) = lower($2))
		ORDER BY (customer_id = $1) DESC
		LIMIT 1
	`, customerID, email), "find subscriber by customer")
}

// Save upserts s. A new subscriber only receives its ID once the row is
// written, so a failed insert leaves it unpersisted.
func (r *SubscriberRepo) Save(ctx context.Context, s *domain.Subscriber) error {
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	var created, updated time.Time
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_subscribers
			(id, email, status, confirmation_code, customer_id, store_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = $2, status = $3, confirmation_code = $4,
			customer_id = $5, store_id = $6, updated_at = NOW()
		RETURNING created_at, updated_at
	`, id, s.Email, s.Status, s.ConfirmationCode, s.CustomerID, s.StoreID,
	).Scan(&created, &updated)
	if err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	s.ID, s.CreatedAt, s.UpdatedAt = id, created, updated
	return nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM newsletter_subscribers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}
