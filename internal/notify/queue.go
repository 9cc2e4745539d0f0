package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/newsletter-service/internal/domain"
)

// Job is a queued notification. The confirmation code travels separately
// because Subscriber never serializes it.
type Job struct {
	Kind             domain.NotificationKind `json:"kind"`
	Subscriber       domain.Subscriber       `json:"subscriber"`
	ConfirmationCode string                  `json:"confirmation_code,omitempty"`
	EnqueuedAt       time.Time               `json:"enqueued_at"`
}

// NewJob captures a subscriber for deferred delivery.
func NewJob(kind domain.NotificationKind, s *domain.Subscriber) Job {
	return Job{
		Kind:             kind,
		Subscriber:       *s,
		ConfirmationCode: s.ConfirmationCode,
		EnqueuedAt:       time.Now().UTC(),
	}
}

// Target returns the subscriber the job is addressed to.
func (j Job) Target() *domain.Subscriber {
	s := j.Subscriber
	s.ConfirmationCode = j.ConfirmationCode
	return &s
}

// DecodeJob parses and validates a queued job.
func DecodeJob(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if !j.Kind.Valid() {
		return Job{}, fmt.Errorf("decode job: unknown notification kind %q", j.Kind)
	}
	if j.Subscriber.Email == "" {
		return Job{}, fmt.Errorf("decode job: subscriber has no email")
	}
	return j, nil
}

// JobHandler processes one dequeued job. A returned error leaves the job on
// the queue for redelivery.
type JobHandler func(ctx context.Context, j Job) error

// HandleJob delivers a dequeued job through SES.
func (g *SESGateway) HandleJob(ctx context.Context, j Job) error {
	_, err := g.Deliver(ctx, j.Kind, j.Target())
	return err
}

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, j Job) error
}

// QueueNotifier implements subscription.Notifier by enqueueing jobs for
// cmd/worker instead of sending inline.
type QueueNotifier struct {
	pub Publisher
}

// NewQueueNotifier creates a notifier that defers delivery to pub.
func NewQueueNotifier(pub Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (n *QueueNotifier) SendConfirmationRequest(ctx context.Context, s *domain.Subscriber) error {
	return n.pub.Publish(ctx, NewJob(domain.NotificationConfirmationRequest, s))
}

func (n *QueueNotifier) SendConfirmationSuccess(ctx context.Context, s *domain.Subscriber) error {
	return n.pub.Publish(ctx, NewJob(domain.NotificationConfirmationSuccess, s))
}

func (n *QueueNotifier) SendUnsubscription(ctx context.Context, s *domain.Subscriber) error {
	return n.pub.Publish(ctx, NewJob(domain.NotificationUnsubscription, s))
}
