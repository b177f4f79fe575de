package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/trialsignup/signup/internal/domain"
)

// WebhookEventRepo is the dedupe ledger for billing webhook deliveries.
// PK: event_id
type WebhookEventRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewWebhookEventRepo(client *dynamodb.Client, tableName string) *WebhookEventRepo {
	return &WebhookEventRepo{client: client, tableName: tableName}
}

// Record stores rec unless its event id was already seen, in which case it
// returns domain.ErrDuplicate.
func (r *WebhookEventRepo) Record(ctx context.Context, rec *domain.WebhookEventRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("event %s: %w", rec.EventID, domain.ErrDuplicate)
	}
	return err
}

// AttachJob records the sync job id created for an event.
func (r *WebhookEventRepo) AttachJob(ctx context.Context, eventID, jobID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{"job_id": jobID})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("event_id", eventID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
