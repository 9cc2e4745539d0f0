package subscription

import (
	"fmt"
	"strings"

	"github.com/ignite/newsletter-service/internal/domain"
)

// Decision is the outcome of evaluating one intent against a subscriber.
type Decision struct {
	// Subscriber is the resulting record. It is nil only when the intent
	// was a no-op on an absent subscriber.
	Subscriber *domain.Subscriber
	// Save is false when nothing changed and nothing must be persisted.
	Save bool
	// Notification is the single e-mail to send after the save, if any.
	Notification domain.NotificationKind
}

// Policy is the subscription state transition table. The zero value uses
// NewConfirmationCode.
type Policy struct {
	NewCode func() string
}

func (p Policy) newCode() string {
	if p.NewCode != nil {
		return p.NewCode()
	}
	return NewConfirmationCode()
}

// GuestSubscribeInput carries everything GuestSubscribe looks at.
type GuestSubscribeInput struct {
	// Current is the stored subscriber for Email, nil when absent.
	Current              *domain.Subscriber
	Email                string
	ConfirmationRequired bool
	// OwnerLoggedIn is true when the logged-in customer owns Email.
	OwnerLoggedIn bool
	Identity      domain.Identity
}

// GuestSubscribe evaluates a subscribe-by-email request.
func (p Policy) GuestSubscribe(in GuestSubscribeInput) (Decision, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return Decision{}, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}

	s := in.Current.Clone()
	if s == nil {
		s = &domain.Subscriber{}
	}

	if !s.Persisted() || s.ConfirmationCode == "" {
		s.ConfirmationCode = p.newCode()
	}

	if !s.Persisted() || s.Status == domain.StatusUnsubscribed || s.Status == domain.StatusNotActive {
		if in.ConfirmationRequired {
			s.Status = domain.StatusUnconfirmed
		} else {
			s.Status = domain.StatusSubscribed
		}
		s.Email = email
	}

	if in.OwnerLoggedIn {
		s.StoreID = in.Identity.CustomerStoreID
		s.CustomerID = in.Identity.CustomerID
	} else {
		s.StoreID = in.Identity.StoreID
		s.CustomerID = 0
	}

	// Guest subscribe always notifies.
	s.StatusChanged = true

	var kind domain.NotificationKind
	switch {
	case in.ConfirmationRequired && s.Status == domain.StatusUnconfirmed:
		kind = domain.NotificationConfirmationRequest
	case s.Status == domain.StatusUnsubscribed:
		kind = domain.NotificationUnsubscription
	default:
		// Also reached by an already subscribed address subscribing again.
		kind = domain.NotificationConfirmationSuccess
	}

	return Decision{Subscriber: s, Save: true, Notification: kind}, nil
}

// CustomerSaveInput carries everything CustomerSave looks at.
type CustomerSaveInput struct {
	// Current is the subscriber loaded for the customer, nil when absent.
	Current              *domain.Subscriber
	Customer             domain.Customer
	Intent               domain.CustomerIntent
	ConfirmationRequired bool
	// DefaultStoreID replaces a global (zero) customer store on new records.
	DefaultStoreID int64
}

// CustomerSave reconciles the subscription after the owning customer
// profile was saved.
func (p Policy) CustomerSave(in CustomerSaveInput) Decision {
	cur := in.Current
	wantsSubscription := in.Intent.IsSubscribed != nil && *in.Intent.IsSubscribed

	if !wantsSubscription && !cur.Persisted() {
		return Decision{Subscriber: cur}
	}
	// An outstanding confirmation link must stay valid.
	if cur != nil && cur.Status == domain.StatusUnconfirmed && cur.ConfirmationCode != "" {
		return Decision{Subscriber: cur}
	}

	s := cur.Clone()
	if s == nil {
		s = &domain.Subscriber{}
	}
	if !s.Persisted() || s.ConfirmationCode == "" {
		s.ConfirmationCode = p.newCode()
	}

	prev := s.Status
	target := prev
	sendInformational := false

	switch {
	case in.Intent.IsSubscribed != nil:
		switch {
		case !*in.Intent.IsSubscribed:
			target = domain.StatusUnsubscribed
		case in.ConfirmationRequired:
			target = domain.StatusUnconfirmed
		default:
			target = domain.StatusSubscribed
		}
		if target != domain.StatusUnconfirmed && target != prev {
			sendInformational = true
		}
	case prev == domain.StatusUnconfirmed && in.Intent.AccountConfirmation == "":
		target = domain.StatusSubscribed
		sendInformational = true
	case prev == domain.StatusNotActive:
		target = domain.StatusUnsubscribed
	}

	if target != prev {
		s.StatusChanged = true
	}
	s.Status = target

	if !s.Persisted() {
		storeID := in.Customer.StoreID
		if storeID == 0 {
			storeID = in.DefaultStoreID
		}
		s.StoreID = storeID
		s.CustomerID = in.Customer.ID
		s.Email = in.Customer.Email
	} else {
		s.StoreID = in.Customer.StoreID
		s.Email = in.Customer.Email
	}

	d := Decision{Subscriber: s, Save: true}
	if target == domain.StatusUnconfirmed && in.ConfirmationRequired {
		d.Notification = domain.NotificationConfirmationRequest
		return d
	}

	// Presence of the override alone enables sending; only its absence
	// defers to the informational flag.
	override := in.Intent.SendNotification
	if (override == nil && sendInformational) || override != nil {
		switch {
		case s.StatusChanged && target == domain.StatusUnsubscribed:
			d.Notification = domain.NotificationUnsubscription
		case s.StatusChanged && target == domain.StatusSubscribed:
			d.Notification = domain.NotificationConfirmationSuccess
		}
	}
	return d
}

// AttachCustomer links a subscriber found for a customer to that customer.
// The status is left untouched and an existing code is never replaced.
func (p Policy) AttachCustomer(current *domain.Subscriber, customer domain.Customer) Decision {
	if current == nil || customer.ID == 0 || !current.Anonymous() {
		return Decision{Subscriber: current}
	}
	s := current.Clone()
	s.CustomerID = customer.ID
	if s.ConfirmationCode == "" {
		s.ConfirmationCode = p.newCode()
	}
	return Decision{Subscriber: s, Save: true}
}

// Confirm accepts code when it equals the stored confirmation code exactly.
// A mismatch leaves the subscriber untouched.
func (p Policy) Confirm(current *domain.Subscriber, code string) (Decision, bool) {
	if current == nil || current.ConfirmationCode != code {
		return Decision{Subscriber: current}, false
	}
	s := current.Clone()
	s.Status = domain.StatusSubscribed
	s.ConfirmationCode = ""
	s.StatusChanged = true
	return Decision{Subscriber: s, Save: true}, true
}

// Unsubscribe accepts code when it equals the stored confirmation code
// exactly and selects the unsubscription e-mail. A cleared code never
// matches.
func (p Policy) Unsubscribe(current *domain.Subscriber, code string) (Decision, bool) {
	if current == nil || current.ConfirmationCode == "" || current.ConfirmationCode != code {
		return Decision{Subscriber: current}, false
	}
	s := current.Clone()
	s.Status = domain.StatusUnsubscribed
	s.StatusChanged = true
	return Decision{Subscriber: s, Save: true, Notification: domain.NotificationUnsubscription}, true
}
