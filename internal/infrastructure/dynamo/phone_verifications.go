package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/trialsignup/signup/internal/domain"
)

// PhoneVerificationRepo stores one-time codes for secondary phone verification.
// PK: phone (E.164)
type PhoneVerificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPhoneVerificationRepo(client *dynamodb.Client, tableName string) *PhoneVerificationRepo {
	return &PhoneVerificationRepo{client: client, tableName: tableName}
}

// Put replaces any pending code for the phone.
func (r *PhoneVerificationRepo) Put(ctx context.Context, v *domain.PhoneVerification) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal phone verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *PhoneVerificationRepo) Get(ctx context.Context, phone string) (*domain.PhoneVerification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("phone", phone),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("phone verification not found: %w", domain.ErrNotFound)
	}
	var v domain.PhoneVerification
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClaimAttempt atomically counts one guess against the code. It reports false
// when the record is gone or already has limit attempts, so concurrent guesses
// can never exceed limit.
func (r *PhoneVerificationRepo) ClaimAttempt(ctx context.Context, phone string, limit int) (bool, error) {
	_, err := r.client.UpdateItem(ctx, claimAttemptInput(r.tableName, phone, limit))
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func claimAttemptInput(tableName, phone string, limit int) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:           aws.String(tableName),
		Key:                 strKey("phone", phone),
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("attribute_exists(phone) AND (attribute_not_exists(#a) OR #a < :max)"),
		ExpressionAttributeNames: map[string]string{
			"#a": "attempts",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(limit)},
		},
	}
}

func (r *PhoneVerificationRepo) Delete(ctx context.Context, phone string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("phone", phone),
	})
	return err
}
