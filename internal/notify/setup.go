package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/newsletter-service/internal/config"
)

// LoadAWSConfig builds an AWS config for region. Static keys from the SES
// section are used when present, the default credential chain otherwise.
func LoadAWSConfig(ctx context.Context, ses config.SESConfig, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if ses.AccessKey != "" && ses.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ses.AccessKey, ses.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// NewTemplateSource returns the configured template source, nil for the
// built-in templates.
func NewTemplateSource(ctx context.Context, cfg *config.Config) (TemplateSource, error) {
	t := cfg.Notifications.Templates
	switch t.Source {
	case config.TemplateSourceLocal:
		return LocalSource{Dir: t.Dir}, nil
	case config.TemplateSourceS3:
		awsCfg, err := LoadAWSConfig(ctx, cfg.SES, t.Region)
		if err != nil {
			return nil, err
		}
		return NewS3Source(s3.NewFromConfig(awsCfg), t.Bucket, t.Prefix), nil
	}
	return nil, nil
}

// NewGatewayFromConfig wires the SES gateway, its renderer and, when a
// ledger table is configured, the DynamoDB ledger.
func NewGatewayFromConfig(ctx context.Context, cfg *config.Config) (*SESGateway, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.SES, cfg.SES.Region)
	if err != nil {
		return nil, err
	}
	source, err := NewTemplateSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	n := cfg.Notifications
	var ledger Ledger
	if n.LedgerTable != "" {
		ledger = NewDynamoLedger(dynamodb.NewFromConfig(awsCfg), n.LedgerTable)
	}

	renderer := NewRenderer(source, Links{ConfirmURL: n.ConfirmURL, UnsubscribeURL: n.UnsubscribeURL})
	sender := Sender{FromName: n.FromName, FromEmail: n.FromEmail, ReplyTo: n.ReplyTo}
	gw := NewSESGateway(sesv2.NewFromConfig(awsCfg), renderer, sender, ledger)
	return gw.WithTimeout(cfg.SES.Timeout()), nil
}

// NewSQSClient creates an SQS client for the SES region.
func NewSQSClient(ctx context.Context, cfg *config.Config) (*sqs.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.SES, cfg.SES.Region)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// Topology returns the AMQP names from the notifications config.
func Topology(n config.NotificationsConfig) AMQPTopology {
	return AMQPTopology{Exchange: n.AMQPExchange, Queue: n.AMQPQueue, RoutingKey: n.AMQPRoutingKey}
}
