package config

import "time"

// NewsletterConfig holds the store-scoped newsletter settings. It
// implements the subscription service's ConfigProvider and StoreResolver.
type NewsletterConfig struct {
	// RequireConfirmation is the global "need to confirm" flag.
	RequireConfirmation bool                    `yaml:"confirmation_required"`
	Stores              map[int64]StoreConfig   `yaml:"stores"`
	Websites            map[int64]WebsiteConfig `yaml:"websites"`
	// DefaultStore is used for websites without a configured default store.
	DefaultStore   int64 `yaml:"default_store_id"`
	LockTTLSeconds int   `yaml:"lock_ttl_seconds"`
	LockWaitMillis int   `yaml:"lock_wait_millis"`
}

// StoreConfig overrides newsletter settings for one store view.
type StoreConfig struct {
	ConfirmationRequired *bool `yaml:"confirmation_required"`
}

// WebsiteConfig describes one website.
type WebsiteConfig struct {
	DefaultStoreID int64 `yaml:"default_store_id"`
}

// ConfirmationRequired returns the store override when set, the global flag
// otherwise.
func (c NewsletterConfig) ConfirmationRequired(storeID int64) bool {
	if s, ok := c.Stores[storeID]; ok && s.ConfirmationRequired != nil {
		return *s.ConfirmationRequired
	}
	return c.RequireConfirmation
}

// DefaultStoreID returns the default store of a website.
func (c NewsletterConfig) DefaultStoreID(websiteID int64) int64 {
	if w, ok := c.Websites[websiteID]; ok && w.DefaultStoreID != 0 {
		return w.DefaultStoreID
	}
	return c.DefaultStore
}

// LockTTL returns how long a per-address lock may be held.
func (c NewsletterConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LockWait returns how long an operation waits for a per-address lock.
func (c NewsletterConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}
