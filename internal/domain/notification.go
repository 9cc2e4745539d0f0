package domain

import "time"

// NotificationKind identifies which newsletter e-mail a transition selected.
type NotificationKind string

const (
	NotificationNone                NotificationKind = ""
	NotificationConfirmationRequest NotificationKind = "confirmation_request"
	NotificationConfirmationSuccess NotificationKind = "confirmation_success"
	NotificationUnsubscription      NotificationKind = "unsubscription"
)

// Valid reports whether k names a deliverable notification.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationConfirmationRequest, NotificationConfirmationSuccess, NotificationUnsubscription:
		return true
	}
	return false
}

// EmailMessage is a fully rendered notification ready for delivery.
type EmailMessage struct {
	SubscriberID string           `json:"subscriber_id"`
	Kind         NotificationKind `json:"kind"`
	Email        string           `json:"email"`
	FromName     string           `json:"from_name"`
	FromEmail    string           `json:"from_email"`
	ReplyTo      string           `json:"reply_to,omitempty"`
	Subject      string           `json:"subject"`
	HTMLContent  string           `json:"html_content"`
	TextContent  string           `json:"text_content,omitempty"`
}

// SendResult is returned by a gateway after attempting delivery.
type SendResult struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}
