package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/service/subscription"
)

const testSubscriberID = "6f1c2a9e-4b1d-4c2e-9a55-0d2f3f4b5c6d"

var subscriberCols = []string{"id", "email", "status", "confirmation_code", "customer_id", "store_id", "created_at", "updated_at"}

func TestSubscriberRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM newsletter_subscribers WHERE id = \$1`).
		WithArgs(testSubscriberID).
		WillReturnRows(sqlmock.NewRows(subscriberCols).
			AddRow(testSubscriberID, "a@x.com", 4, "C1", 0, 2, now, now))

	s, err := NewSubscriberRepo(db).FindByID(context.Background(), testSubscriberID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnconfirmed, s.Status)
	assert.Equal(t, "C1", s.ConfirmationCode)
	assert.Equal(t, int64(2), s.StoreID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepo_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM newsletter_subscribers WHERE id`).
		WithArgs(testSubscriberID).
		WillReturnRows(sqlmock.NewRows(subscriberCols))

	repo := NewSubscriberRepo(db)
	_, err = repo.FindByID(context.Background(), testSubscriberID)
	assert.True(t, errors.Is(err, subscription.ErrNotFound))

	// Malformed ids never reach the database.
	_, err = repo.FindByID(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, subscription.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepo_FindByEmail_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`lower\(email\) = lower\(\$1\)`).
		WithArgs("A@x.com").
		WillReturnError(errors.New("connection reset"))

	_, err = NewSubscriberRepo(db).FindByEmail(context.Background(), "A@x.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, subscription.ErrNotFound))
}

func TestSubscriberRepo_FindByCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE customer_id = \$1 OR \(customer_id = 0 AND lower\(email\) = lower\(\$2\)\)`).
		WithArgs(int64(42), "a@x.com").
		WillReturnRows(sqlmock.NewRows(subscriberCols).
			AddRow(testSubscriberID, "a@x.com", 1, "", 0, 1, now, now))

	s, err := NewSubscriberRepo(db).FindByCustomer(context.Background(), 42, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.CustomerID)
	assert.Equal(t, domain.StatusSubscribed, s.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepo_SaveAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO newsletter_subscribers .+ ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "a@x.com", domain.StatusSubscribed, "C1", int64(0), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	s := &domain.Subscriber{Email: "a@x.com", Status: domain.StatusSubscribed, ConfirmationCode: "C1", StoreID: 1}
	require.NoError(t, NewSubscriberRepo(db).Save(context.Background(), s))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, now, s.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepo_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO newsletter_subscribers`).WillReturnError(errors.New("unique violation"))

	err = NewSubscriberRepo(db).Save(context.Background(), &domain.Subscriber{ID: testSubscriberID, Email: "a@x.com"})
	assert.ErrorContains(t, err, "save subscriber")
}

func TestSubscriberRepo_FailedInsertLeavesSubscriberUnpersisted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO newsletter_subscribers`).WillReturnError(errors.New("unique violation"))

	s := &domain.Subscriber{Email: "a@x.com", Status: domain.StatusUnconfirmed}
	require.Error(t, NewSubscriberRepo(db).Save(context.Background(), s))
	assert.Empty(t, s.ID)
	assert.False(t, s.Persisted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM newsletter_subscribers WHERE id = \$1`).
		WithArgs(testSubscriberID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSubscriberRepo(db)
	require.NoError(t, repo.Delete(context.Background(), testSubscriberID))
	require.NoError(t, repo.Delete(context.Background(), "not-a-uuid"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepo_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM newsletter_customers`).
		WithArgs(int64(1), "owner@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "store_id", "website_id"}).
			AddRow(42, "owner@x.com", 7, 1))
	mock.ExpectQuery(`FROM newsletter_customers`).
		WithArgs(int64(1), "nobody@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "store_id", "website_id"}))

	repo := NewCustomerRepo(db)
	c, err := repo.FindByEmail(context.Background(), 1, "owner@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, int64(7), c.StoreID)

	_, err = repo.FindByEmail(context.Background(), 1, "nobody@x.com")
	assert.True(t, errors.Is(err, subscription.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO newsletter_customers`).
		WithArgs(int64(42), "owner@x.com", int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewCustomerRepo(db).Upsert(context.Background(), domain.Customer{ID: 42, Email: "owner@x.com", StoreID: 7, WebsiteID: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
