// Package notify renders and delivers the newsletter e-mails selected by the
// subscription service.
//
// Messages are rendered from Liquid templates and sent through Amazon SES,
// either inline (SESGateway) or through a queue (SQS or RabbitMQ) drained by
// cmd/worker. Deliveries can be recorded in a DynamoDB ledger.
package notify
