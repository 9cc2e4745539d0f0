package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used by SESGateway.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender identifies the From and Reply-To of outgoing notifications.
type Sender struct {
	FromName  string
	FromEmail string
	ReplyTo   string
}

// SESGateway renders notifications and sends them through Amazon SES.
// It implements subscription.Notifier.
type SESGateway struct {
	client   SESAPI
	renderer *Renderer
	sender   Sender
	ledger   Ledger
	timeout  time.Duration
}

// NewSESGateway creates an SES gateway. ledger may be nil.
func NewSESGateway(client SESAPI, renderer *Renderer, sender Sender, ledger Ledger) *SESGateway {
	return &SESGateway{client: client, renderer: renderer, sender: sender, ledger: ledger}
}

// WithTimeout bounds each SendEmail call. Zero leaves it to the caller's
// context.
func (g *SESGateway) WithTimeout(d time.Duration) *SESGateway {
	g.timeout = d
	return g
}

func (g *SESGateway) SendConfirmationRequest(ctx context.Context, s *domain.Subscriber) error {
	_, err := g.Deliver(ctx, domain.NotificationConfirmationRequest, s)
	return err
}

func (g *SESGateway) SendConfirmationSuccess(ctx context.Context, s *domain.Subscriber) error {
	_, err := g.Deliver(ctx, domain.NotificationConfirmationSuccess, s)
	return err
}

func (g *SESGateway) SendUnsubscription(ctx context.Context, s *domain.Subscriber) error {
	_, err := g.Deliver(ctx, domain.NotificationUnsubscription, s)
	return err
}

// Deliver renders and sends one notification and records it in the ledger.
func (g *SESGateway) Deliver(ctx context.Context, kind domain.NotificationKind, s *domain.Subscriber) (*domain.SendResult, error) {
	subject, html, err := g.renderer.Render(ctx, kind, s)
	if err != nil {
		return nil, err
	}
	msg := &domain.EmailMessage{
		SubscriberID: s.ID,
		Kind:         kind,
		Email:        s.Email,
		FromName:     g.sender.FromName,
		FromEmail:    g.sender.FromEmail,
		ReplyTo:      g.sender.ReplyTo,
		Subject:      subject,
		HTMLContent:  html,
	}

	result, err := g.send(ctx, msg, s.StoreID)
	if err != nil {
		return nil, err
	}
	if g.ledger != nil {
		if err := g.ledger.Record(ctx, Delivery{Message: *msg, StoreID: s.StoreID, Result: *result}); err != nil {
			logger.Warn("newsletter delivery ledger write failed", "subscriber_id", s.ID, "kind", kind, "error", err)
		}
	}
	return result, nil
}

func (g *SESGateway) send(ctx context.Context, msg *domain.EmailMessage, storeID int64) (*domain.SendResult, error) {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("notification"), Value: aws.String(string(msg.Kind))},
			{Name: aws.String("subscriber_id"), Value: aws.String(msg.SubscriberID)},
			{Name: aws.String("store_id"), Value: aws.String(storeTag(storeID))},
		},
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send %s: %w", msg.Kind, err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	logger.Info("newsletter notification sent",
		"kind", msg.Kind,
		"subscriber_id", msg.SubscriberID,
		"email", msg.Email,
		"message_id", messageID,
	)
	return &domain.SendResult{MessageID: messageID, SentAt: time.Now().UTC()}, nil
}
