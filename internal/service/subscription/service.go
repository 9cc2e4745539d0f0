package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

// Deps holds the collaborators of a Service.
type Deps struct {
	Repo      Repository
	Customers CustomerDirectory
	Notifier  Notifier
	Config    ConfigProvider
	Stores    StoreResolver
	// Locker is optional; without one operations are not serialized.
	Locker Locker
	Policy Policy
}

// Service applies the subscription policy and performs its side effects.
// It is safe for concurrent use if the collaborators are.
type Service struct {
	repo      Repository
	customers CustomerDirectory
	notifier  Notifier
	config    ConfigProvider
	stores    StoreResolver
	locker    Locker
	policy    Policy
}

// NewService creates a subscription service from its collaborators.
func NewService(d Deps) *Service {
	return &Service{
		repo:      d.Repo,
		customers: d.Customers,
		notifier:  d.Notifier,
		config:    d.Config,
		stores:    d.Stores,
		locker:    d.Locker,
		policy:    d.Policy,
	}
}

// Get returns a single subscriber.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	return s.repo.FindByID(ctx, id)
}

// Subscribe subscribes an e-mail address on behalf of the caller, who may be
// a guest. It returns the resulting status.
func (s *Service) Subscribe(ctx context.Context, email string, id domain.Identity) (domain.SubscriberStatus, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}

	release, err := s.lock(ctx, email)
	if err != nil {
		return 0, err
	}
	defer release()

	current, err := s.findByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	ownerLoggedIn := false
	if id.Authenticated() {
		owner, err := s.customers.FindByEmail(ctx, id.WebsiteID, email)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return 0, fmt.Errorf("load customer by email: %w", err)
		default:
			ownerLoggedIn = owner.ID == id.CustomerID
		}
	}

	d, err := s.policy.GuestSubscribe(GuestSubscribeInput{
		Current:              current,
		Email:                email,
		ConfirmationRequired: s.config.ConfirmationRequired(id.StoreID),
		OwnerLoggedIn:        ownerLoggedIn,
		Identity:             id,
	})
	if err != nil {
		return 0, err
	}

	if err := s.apply(ctx, "subscribe", current, d); err != nil {
		return 0, err
	}
	return d.Subscriber.Status, nil
}

// LoadByCustomer returns the subscriber of a customer, linking an unowned
// subscriber with the customer's e-mail to the customer. It returns nil when
// the customer has no subscriber.
func (s *Service) LoadByCustomer(ctx context.Context, c domain.Customer) (*domain.Subscriber, error) {
	current, err := s.repo.FindByCustomer(ctx, c.ID, c.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscriber by customer: %w", err)
	}

	d := s.policy.AttachCustomer(current, c)
	if !d.Save {
		return current, nil
	}
	if err := s.repo.Save(ctx, d.Subscriber); err != nil {
		return nil, fmt.Errorf("save subscriber: %w", err)
	}
	logger.Info("newsletter subscriber linked to customer",
		"subscriber_id", d.Subscriber.ID,
		"customer_id", c.ID,
	)
	return d.Subscriber, nil
}

// SubscribeCustomer reconciles the subscription of a customer whose profile
// was just saved. It returns nil when the customer has no subscriber and the
// save did not ask for one.
//
// When the profile changed the e-mail, both the old and the new address are
// locked. An unlinked subscriber already holding the new address is merged
// into the customer's record; one linked to another customer is ErrConflict.
func (s *Service) SubscribeCustomer(ctx context.Context, c domain.Customer, intent domain.CustomerIntent) (*domain.Subscriber, error) {
	if c.ID == 0 {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Email) == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrInvalidArgument)
	}

	emails := []string{c.Email}
	linked, err := s.repo.FindByCustomer(ctx, c.ID, c.Email)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load subscriber by customer: %w", err)
	default:
		emails = append(emails, linked.Email)
	}

	release, err := s.lock(ctx, emails...)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.LoadByCustomer(ctx, c)
	if err != nil {
		return nil, err
	}
	if current.Persisted() && !containsEmail(emails, current.Email) {
		return nil, fmt.Errorf("%w: subscriber %s moved to another address", ErrLocked, current.ID)
	}

	defaultStore := s.stores.DefaultStoreID(c.WebsiteID)
	scope := c.StoreID
	if current.Persisted() {
		scope = current.StoreID
	} else if scope == 0 {
		scope = defaultStore
	}

	d := s.policy.CustomerSave(CustomerSaveInput{
		Current:              current,
		Customer:             c,
		Intent:               intent,
		ConfirmationRequired: s.config.ConfirmationRequired(scope),
		DefaultStoreID:       defaultStore,
	})
	if !d.Save {
		return d.Subscriber, nil
	}
	d.Subscriber.ImportMode = c.ImportMode

	if current.Persisted() && !sameEmail(current.Email, d.Subscriber.Email) {
		if err := s.releaseEmail(ctx, d.Subscriber); err != nil {
			return nil, err
		}
	}

	if err := s.apply(ctx, "customer_save", current, d); err != nil {
		return nil, err
	}
	return d.Subscriber, nil
}

// releaseEmail frees sub's new address for it. A guest record holding the
// address is deleted; the customer's own record carries on with its status.
func (s *Service) releaseEmail(ctx context.Context, sub *domain.Subscriber) error {
	holder, err := s.findByEmail(ctx, sub.Email)
	if err != nil || holder == nil || holder.ID == sub.ID {
		return err
	}
	if !holder.Anonymous() && holder.CustomerID != sub.CustomerID {
		return fmt.Errorf("%w: %s is linked to customer %d", ErrConflict, holder.ID, holder.CustomerID)
	}
	if err := s.repo.Delete(ctx, holder.ID); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	logger.Info("newsletter guest subscriber merged into customer",
		"subscriber_id", sub.ID,
		"merged_id", holder.ID,
		"merged_status", holder.Status,
		"customer_id", sub.CustomerID,
	)
	return nil
}

// Confirm confirms a subscription when code matches the stored confirmation
// code. A mismatch returns false without an error.
func (s *Service) Confirm(ctx context.Context, subscriberID, code string) (bool, error) {
	return s.withCode(ctx, "confirm", subscriberID, code, s.policy.Confirm)
}

// Unsubscribe cancels a subscription when code matches the stored
// confirmation code and sends the unsubscription e-mail.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, code string) (bool, error) {
	return s.withCode(ctx, "unsubscribe", subscriberID, code, s.policy.Unsubscribe)
}

func (s *Service) withCode(ctx context.Context, op, subscriberID, code string, eval func(*domain.Subscriber, string) (Decision, bool)) (bool, error) {
	if subscriberID == "" {
		return false, fmt.Errorf("%w: subscriber id is required", ErrInvalidArgument)
	}

	current, err := s.repo.FindByID(ctx, subscriberID)
	if err != nil {
		return false, err
	}

	release, err := s.lock(ctx, current.Email)
	if err != nil {
		return false, err
	}
	defer release()

	// Re-read under the lock; a concurrent writer may have moved it.
	current, err = s.repo.FindByID(ctx, subscriberID)
	if err != nil {
		return false, err
	}

	d, ok := eval(current, code)
	if !ok {
		logger.Info("newsletter code rejected", "op", op, "subscriber_id", subscriberID)
		return false, nil
	}
	if err := s.apply(ctx, op, current, d); err != nil {
		return false, err
	}
	return true, nil
}

// apply persists a decision and then dispatches its notification.
func (s *Service) apply(ctx context.Context, op string, before *domain.Subscriber, d Decision) error {
	if err := s.repo.Save(ctx, d.Subscriber); err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}

	var from domain.SubscriberStatus
	if before != nil {
		from = before.Status
	}
	logger.Info("newsletter subscriber transition",
		"op", op,
		"subscriber_id", d.Subscriber.ID,
		"from", from,
		"to", d.Subscriber.Status,
		"notification", d.Notification,
	)

	s.notify(ctx, d.Subscriber, d.Notification)
	return nil
}

func (s *Service) notify(ctx context.Context, sub *domain.Subscriber, kind domain.NotificationKind) {
	if kind == domain.NotificationNone || s.notifier == nil {
		return
	}
	if sub.ImportMode {
		logger.Debug("newsletter notification skipped in import mode", "subscriber_id", sub.ID, "kind", kind)
		return
	}

	var err error
	switch kind {
	case domain.NotificationConfirmationRequest:
		err = s.notifier.SendConfirmationRequest(ctx, sub)
	case domain.NotificationConfirmationSuccess:
		err = s.notifier.SendConfirmationSuccess(ctx, sub)
	case domain.NotificationUnsubscription:
		err = s.notifier.SendUnsubscription(ctx, sub)
	}
	if err != nil {
		logger.Warn("newsletter notification failed",
			"subscriber_id", sub.ID,
			"kind", kind,
			"error", err,
		)
	}
}

func (s *Service) findByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	current, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscriber by email: %w", err)
	}
	return current, nil
}

// lock takes the per-address locks for emails in sorted order so that two
// operations needing the same pair cannot deadlock.
func (s *Service) lock(ctx context.Context, emails ...string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		keys = append(keys, "newsletter:"+strings.ToLower(strings.TrimSpace(e)))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := s.locker.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsEmail(emails []string, email string) bool {
	return slices.ContainsFunc(emails, func(e string) bool { return sameEmail(e, email) })
}
