package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimAttemptInput_ConditionalIncrement(t *testing.T) {
	in := claimAttemptInput("phones", "+15551234567", 5)

	assert.Equal(t, "phones", aws.ToString(in.TableName))
	assert.Equal(t, "ADD #a :one", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(phone) AND (attribute_not_exists(#a) OR #a < :max)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, map[string]string{"#a": "attempts"}, in.ExpressionAttributeNames)

	key, ok := in.Key["phone"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "+15551234567", key.Value)

	maxV, ok := in.ExpressionAttributeValues[":max"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "5", maxV.Value)
	one, ok := in.ExpressionAttributeValues[":one"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "1", one.Value)
}
