package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberStatus enumerates the states a subscriber can be in. The numeric
// values match the codes persisted by the storefront platform.
type SubscriberStatus int

const (
	StatusSubscribed   SubscriberStatus = 1
	StatusNotActive    SubscriberStatus = 2
	StatusUnsubscribed SubscriberStatus = 3
	StatusUnconfirmed  SubscriberStatus = 4
)

var statusNames = map[SubscriberStatus]string{
	StatusSubscribed:   "subscribed",
	StatusNotActive:    "not_active",
	StatusUnsubscribed: "unsubscribed",
	StatusUnconfirmed:  "unconfirmed",
}

// String returns the lower-case status name.
func (s SubscriberStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the known statuses.
func (s SubscriberStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// MarshalText encodes the status as its name.
func (s SubscriberStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown subscriber status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *SubscriberStatus) UnmarshalText(b []byte) error {
	v, err := ParseSubscriberStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSubscriberStatus resolves a status name (case-insensitive).
func ParseSubscriberStatus(name string) (SubscriberStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown subscriber status %q", name)
}

// Subscriber is the persisted newsletter subscription state of one e-mail
// address within a store scope.
type Subscriber struct {
	ID               string           `json:"id" db:"id"`
	Email            string           `json:"email" db:"email"`
	Status           SubscriberStatus `json:"status" db:"status"`
	ConfirmationCode string           `json:"-" db:"confirmation_code"`
	CustomerID       int64            `json:"customer_id" db:"customer_id"`
	StoreID          int64            `json:"store_id" db:"store_id"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`

	// StatusChanged is set while a transition is evaluated and read once to
	// decide on a notification. It is never persisted.
	StatusChanged bool `json:"-" db:"-"`
	// ImportMode suppresses notifications for bulk customer imports.
	ImportMode bool `json:"-" db:"-"`
}

// Persisted reports whether the subscriber has been saved before.
func (s *Subscriber) Persisted() bool {
	return s != nil && s.ID != ""
}

// Anonymous reports whether the subscription has no owning customer.
func (s *Subscriber) Anonymous() bool {
	return s.CustomerID == 0
}

// Clone returns a shallow copy so callers can evaluate a transition without
// touching the loaded record.
func (s *Subscriber) Clone() *Subscriber {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
