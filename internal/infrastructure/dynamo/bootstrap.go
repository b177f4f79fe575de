package dynamo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/trialsignup/signup/internal/config"
)

// tableWaitTimeout bounds how long Bootstrap waits for a new table to go ACTIVE.
const tableWaitTimeout = 2 * time.Minute

// ttlAttribute is the epoch-seconds attribute every signup table expires on.
const ttlAttribute = "expires_at"

// tableDef describes one table with a string hash key and optional hash-only indexes.
type tableDef struct {
	name    string
	hashKey string
	indexes map[string]string // index name -> hash key
}

func tableDefs(tables config.DynamoTables) []tableDef {
	return []tableDef{
		{
			name:    tables.WebhookEvents,
			hashKey: "event_id",
			indexes: map[string]string{"customer_id-index": "customer_id"},
		},
		{
			name:    tables.PhoneVerifications,
			hashKey: "phone",
		},
	}
}

// Bootstrap creates the webhook ledger and phone verification tables if they
// don't exist, then turns on expiry through the expires_at attribute.
// Failures are logged; the API still starts against a partially provisioned store.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	for _, def := range tableDefs(tables) {
		created, err := createTable(ctx, client, def.input())
		if err != nil {
			slog.Warn("could not create table", "table", def.name, "err", err)
			continue
		}
		if created {
			waiter := dynamodb.NewTableExistsWaiter(client)
			if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(def.name)}, tableWaitTimeout); err != nil {
				slog.Warn("table not active", "table", def.name, "err", err)
				continue
			}
			slog.Info("created table", "table", def.name)
		}
		enableTTL(ctx, client, def.name)
	}
}

func (s tableDef) input() *dynamodb.CreateTableInput {
	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(s.hashKey), AttributeType: types.ScalarAttributeTypeS},
	}
	var gsis []types.GlobalSecondaryIndex
	for index, key := range s.indexes {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS,
		})
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(index),
			KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String(key), KeyType: types.KeyTypeHash}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	return &dynamodb.CreateTableInput{
		TableName:            aws.String(s.name),
		BillingMode:          types.BillingModePayPerRequest,
		AttributeDefinitions: attrs,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(s.hashKey), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: gsis,
	}
}

// createTable reports whether the table was newly created. An existing table is not an error.
func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) (bool, error) {
	_, err := client.CreateTable(ctx, input)
	var riue *types.ResourceInUseException
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &riue):
		return false, nil
	default:
		return false, err
	}
}

func enableTTL(ctx context.Context, client *dynamodb.Client, tableName string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttribute),
		},
	})
	if err != nil {
		slog.Debug("ttl not updated", "table", tableName, "err", err)
	}
}
