package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/trialsignup/signup/internal/config"
	"github.com/trialsignup/signup/internal/infrastructure/awsconf"
)

// putter is the slice of the S3 client the archive needs.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes failed CRM sync jobs to S3 for later inspection and replay.
type Archive struct {
	client putter
	bucket string
	prefix string
	now    func() time.Time
}

// NewClient creates an S3 client. Path-style addressing is used against LocalStack.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	endpoint := awsconf.Endpoint(cfg)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = endpoint != nil
	}), nil
}

// NewArchive creates an Archive writing under crm-dead-letter/ in bucket.
func NewArchive(client putter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: "crm-dead-letter", now: time.Now}
}

// Put stores payload as JSON under a date-partitioned key derived from name
// and returns the object URL.
func (a *Archive) Put(ctx context.Context, name string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal archive payload: %w", err)
	}
	key := path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), name+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
