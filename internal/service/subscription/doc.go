// Package subscription implements newsletter subscription state transitions.
//
// Policy holds the pure decision table: given the stored subscriber, an
// intent (guest subscribe, customer profile save, confirm, unsubscribe) and
// the store's "confirmation required" flag, it derives the next subscriber
// state and at most one notification to send. It performs no I/O.
//
// Service wraps the policy with the side effects: it serializes work per
// e-mail address through a Locker, loads and saves through Repository, and
// hands the selected notification to a Notifier after the save committed.
// Notification failures are logged and never undo a saved transition.
package subscription
