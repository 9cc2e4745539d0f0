package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client used by the publisher and consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSPublisher enqueues jobs on an SQS queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, j Job) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(j.Kind))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish job to SQS: %w", err)
	}
	return nil
}

// SQSConsumer long-polls an SQS queue and hands jobs to a handler.
type SQSConsumer struct {
	client     SQSAPI
	queueURL   string
	handler    JobHandler
	retryDelay time.Duration
}

// NewSQSConsumer creates a consumer for queueURL.
func NewSQSConsumer(client SQSAPI, queueURL string, handler JobHandler) *SQSConsumer {
	return &SQSConsumer{client: client, queueURL: queueURL, handler: handler, retryDelay: 5 * time.Second}
}

// Run polls until ctx is done.
func (c *SQSConsumer) Run(ctx context.Context) error {
	logger.Info("newsletter SQS consumer started", "queue", c.queueURL)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("SQS receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// poll receives one batch and processes it.
func (c *SQSConsumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		j, err := DecodeJob([]byte(aws.ToString(msg.Body)))
		if err != nil {
			logger.Warn("SQS bad message dropped", "message_id", aws.ToString(msg.MessageId), "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		if err := c.handler(ctx, j); err != nil {
			logger.Warn("newsletter job failed", "kind", j.Kind, "subscriber_id", j.Subscriber.ID, "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		logger.Warn("SQS delete failed", "error", err)
	}
}
