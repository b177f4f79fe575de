package sns

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/trialsignup/signup/internal/config"
	"github.com/trialsignup/signup/internal/infrastructure/awsconf"
)

// SMSSender sends SMS messages via AWS SNS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type sender struct {
	client *sns.Client
}

// NewSender returns an SNS-backed sender, or a log-only sender when SMS is disabled.
func NewSender(ctx context.Context, cfg *config.Config) (SMSSender, error) {
	if !cfg.SMSEnabled {
		return logSender{}, nil
	}
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	return &sender{client: sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.BaseEndpoint = awsconf.Endpoint(cfg)
	})}, nil
}

func (s *sender) SendSMS(ctx context.Context, to, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &to,
		Message:     &message,
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: strPtr("String"), StringValue: strPtr("Transactional")},
		},
	})
	return err
}

// logSender is used in development where no SMS should leave the box.
type logSender struct{}

func (logSender) SendSMS(_ context.Context, to, _ string) error {
	slog.Info("sms disabled, message not sent", "to", to)
	return nil
}

func strPtr(s string) *string { return &s }
