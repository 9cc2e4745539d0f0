package subscription

import (
	"context"

	"github.com/ignite/newsletter-service/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Save must be atomic per record.
type Repository interface {
	// FindByID returns ErrNotFound if the subscriber doesn't exist.
	FindByID(ctx context.Context, id string) (*domain.Subscriber, error)

	// FindByEmail returns ErrNotFound if no subscriber uses the address.
	FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// FindByCustomer returns the subscriber linked to customerID, falling
	// back to an unlinked subscriber with the customer's e-mail. Returns
	// ErrNotFound if neither exists.
	FindByCustomer(ctx context.Context, customerID int64, email string) (*domain.Subscriber, error)

	// Save inserts or updates the subscriber. A subscriber without an ID is
	// inserted and receives one.
	Save(ctx context.Context, s *domain.Subscriber) error

	// Delete removes the subscriber. Missing records are not an error.
	Delete(ctx context.Context, id string) error
}

// CustomerDirectory resolves storefront customer accounts.
type CustomerDirectory interface {
	// FindByEmail returns ErrNotFound if no customer of the website uses the address.
	FindByEmail(ctx context.Context, websiteID int64, email string) (*domain.Customer, error)
}

// Notifier delivers (or enqueues) the newsletter e-mails. Failures are
// reported but never retried by the service.
type Notifier interface {
	SendConfirmationRequest(ctx context.Context, s *domain.Subscriber) error
	SendConfirmationSuccess(ctx context.Context, s *domain.Subscriber) error
	SendUnsubscription(ctx context.Context, s *domain.Subscriber) error
}

// ConfigProvider exposes the store-scoped newsletter settings.
type ConfigProvider interface {
	ConfirmationRequired(storeID int64) bool
}

// StoreResolver maps a website to its default store.
type StoreResolver interface {
	DefaultStoreID(websiteID int64) int64
}

// Locker serializes operations on the same key across processes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the lock.
	Lock(ctx context.Context, key string) (release func(), err error)
}
