package s3infra

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutter struct{ mock.Mock }

func (m *mockPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func fixedArchive(p putter) *Archive {
	a := NewArchive(p, "dead-letters")
	a.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestArchive_Put(t *testing.T) {
	p := new(mockPutter)
	var body []byte
	p.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ = io.ReadAll(in.Body)
		return *in.Bucket == "dead-letters" && *in.Key == "crm-dead-letter/2024/03/09/job1.json"
	})).Return(&s3.PutObjectOutput{}, nil)

	url, err := fixedArchive(p).Put(context.Background(), "job1", map[string]string{"customer_id": "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "s3://dead-letters/crm-dead-letter/2024/03/09/job1.json", url)
	assert.JSONEq(t, `{"customer_id":"cus_1"}`, string(body))
	p.AssertExpectations(t)
}

func TestArchive_PutError(t *testing.T) {
	p := new(mockPutter)
	p.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))

	_, err := fixedArchive(p).Put(context.Background(), "job1", struct{}{})
	assert.ErrorContains(t, err, "denied")
}
