package domain

// Customer is the storefront account that may own a subscription.
type Customer struct {
	ID        int64  `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	StoreID   int64  `json:"store_id" db:"store_id"`
	WebsiteID int64  `json:"website_id" db:"website_id"`

	// ImportMode is set by bulk importers; notifications are not sent.
	ImportMode bool `json:"import_mode,omitempty" db:"-"`
}

// CustomerIntent carries what a customer profile save says about the
// newsletter subscription.
type CustomerIntent struct {
	// IsSubscribed is nil when the profile save never touched the flag.
	IsSubscribed *bool `json:"is_subscribed,omitempty"`

	// AccountConfirmation holds the outstanding account confirmation token
	// when the account still awaits confirmation. Empty means confirmed.
	AccountConfirmation string `json:"account_confirmation,omitempty"`

	// SendNotification is the explicit "send subscription email" override.
	// Nil means the caller did not set it.
	SendNotification *bool `json:"send_notification,omitempty"`
}

// Identity describes who is calling and from which storefront scope. The
// zero value is an anonymous guest in the default scope.
type Identity struct {
	// CustomerID is the logged-in customer, 0 for guests.
	CustomerID int64 `json:"customer_id"`
	// CustomerStoreID is the store the logged-in customer belongs to.
	CustomerStoreID int64 `json:"customer_store_id"`
	// StoreID and WebsiteID are the scope the request was made in.
	StoreID   int64 `json:"store_id"`
	WebsiteID int64 `json:"website_id"`
}

// Authenticated reports whether a customer is logged in.
func (i Identity) Authenticated() bool {
	return i.CustomerID != 0
}
