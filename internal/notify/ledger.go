package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ignite/newsletter-service/internal/domain"
)

// Delivery is one sent notification.
type Delivery struct {
	Message domain.EmailMessage
	StoreID int64
	Result  domain.SendResult
}

// Ledger records delivered notifications.
type Ledger interface {
	Record(ctx context.Context, d Delivery) error
}

// DynamoAPI is the subset of the DynamoDB client used by DynamoLedger.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ledgerItem is the DynamoDB shape of a delivery. Items expire after
// ledgerRetention.
type ledgerItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Kind      string `dynamodbav:"Kind"`
	Email     string `dynamodbav:"Email"`
	StoreID   int64  `dynamodbav:"StoreID"`
	MessageID string `dynamodbav:"MessageID"`
	Subject   string `dynamodbav:"Subject"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

const ledgerRetention = 90 * 24 * time.Hour

// DynamoLedger stores deliveries in a DynamoDB table keyed by subscriber.
type DynamoLedger struct {
	client DynamoAPI
	table  string
}

// NewDynamoLedger creates a ledger writing to table.
func NewDynamoLedger(client DynamoAPI, table string) *DynamoLedger {
	return &DynamoLedger{client: client, table: table}
}

func (l *DynamoLedger) Record(ctx context.Context, d Delivery) error {
	sentAt := d.Result.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	item := ledgerItem{
		PK:        "SUBSCRIBER#" + d.Message.SubscriberID,
		SK:        fmt.Sprintf("%s#%s", sentAt.Format(time.RFC3339Nano), d.Message.Kind),
		Kind:      string(d.Message.Kind),
		Email:     d.Message.Email,
		StoreID:   d.StoreID,
		MessageID: d.Result.MessageID,
		Subject:   d.Message.Subject,
		Timestamp: sentAt.Format(time.RFC3339),
		TTL:       sentAt.Add(ledgerRetention).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling ledger item: %w", err)
	}
	if _, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting ledger item to DynamoDB: %w", err)
	}
	return nil
}
