package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/trialsignup/signup/internal/application/phoneverify"
	"github.com/trialsignup/signup/internal/application/reconcile"
	"github.com/trialsignup/signup/internal/config"
	"github.com/trialsignup/signup/internal/infrastructure/crm"
	"github.com/trialsignup/signup/internal/infrastructure/dynamo"
	"github.com/trialsignup/signup/internal/infrastructure/emailcheck"
	jwtinfra "github.com/trialsignup/signup/internal/infrastructure/jwt"
	"github.com/trialsignup/signup/internal/infrastructure/phonecheck"
	"github.com/trialsignup/signup/internal/infrastructure/rabbitmq"
	redisinfra "github.com/trialsignup/signup/internal/infrastructure/redis"
	s3infra "github.com/trialsignup/signup/internal/infrastructure/s3"
	"github.com/trialsignup/signup/internal/infrastructure/sns"
	stripeinfra "github.com/trialsignup/signup/internal/infrastructure/stripe"
	"github.com/trialsignup/signup/internal/infrastructure/twilio"
	"github.com/trialsignup/signup/internal/metrics"
	transporthttp "github.com/trialsignup/signup/internal/transport/http"
	"github.com/trialsignup/signup/internal/transport/http/handler"
)

// syncQueue is both ends of the CRM sync queue.
type syncQueue interface {
	reconcile.Queue
	reconcile.Source
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("dynamodb client", "err", err)
		os.Exit(1)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	billingProvider := stripeinfra.NewProvider(cfg.StripeSecretKey, nil)

	deps := &transporthttp.Deps{
		Billing:       billingProvider,
		EventParser:   stripeinfra.ParseEvent,
		Email:         emailcheck.NewClient(cfg.EmailVerifyURL, cfg.EmailVerifyAPIKey, cfg.VerifyTimeout),
		Phone:         phonecheck.NewClient(cfg.PhoneVerifyURL, cfg.PhoneVerifyAPIKey, cfg.VerifyTimeout),
		PhoneVerifier: phoneVerifier(ctx, cfg, dynamoClient),
		WebhookLedger: dynamo.NewWebhookEventRepo(dynamoClient, cfg.DynamoTables.WebhookEvents),
		Metrics:       m,
		Gatherer:      reg,
		Readiness: map[string]handler.ReadinessCheck{
			"dynamodb": func(ctx context.Context) error {
				_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
					TableName: aws.String(cfg.DynamoTables.WebhookEvents),
				})
				return err
			},
		},
	}

	// Redis verdict cache (optional).
	if client, err := redisinfra.New(ctx, cfg.RedisURL); err != nil {
		slog.Warn("redis not available, verdicts will not be shared", "err", err)
	} else if client != nil {
		defer client.Close()
		deps.Readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		deps.VerdictCache = redisinfra.NewVerdictCache(client, cfg.VerdictCacheTTL)
	}

	// JWT handoff signer (optional; graceful fallback if the key is missing).
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.HandoffSigner = p
	} else {
		slog.Warn("handoff token signing disabled", "err", err)
	}

	queue := newSyncQueue(cfg)
	deps.SyncQueue = queue

	workerDeps := reconcile.WorkerDeps{
		Source:    queue,
		Customers: billingProvider,
		CRM:       crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey),
		Workers:   cfg.WorkerCount,
		Metrics:   m,
	}
	// S3 dead-letter archive (optional).
	if cfg.ArchiveBucket == "" {
		slog.Warn("S3_ARCHIVE_BUCKET not set, failed crm syncs will only be logged")
	} else if s3Client, err := s3infra.NewClient(ctx, cfg); err != nil {
		slog.Warn("S3 not available, failed crm syncs will only be logged", "err", err)
	} else {
		workerDeps.Archive = s3infra.NewArchive(s3Client, cfg.ArchiveBucket)
	}
	worker := reconcile.NewWorker(workerDeps)
	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("crm worker stopped", "err", err)
		}
	}()

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	stop()
	if q, ok := queue.(*rabbitmq.Queue); ok {
		q.Close()
	}
	slog.Info("server stopped")
}

// phoneVerifier prefers Twilio Verify when configured, else DynamoDB codes sent over SNS.
func phoneVerifier(ctx context.Context, cfg *config.Config, dynamoClient *dynamodb.Client) phoneverify.Verifier {
	if cfg.TwilioVerifyServiceSID != "" {
		return twilio.NewVerifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifyServiceSID)
	}
	sender, err := sns.NewSender(ctx, cfg)
	if err != nil {
		slog.Warn("SNS sender not available, verification codes will not be delivered", "err", err)
		cfg.SMSEnabled = false
		sender, _ = sns.NewSender(ctx, cfg)
	}
	return phoneverify.NewOTPVerifier(dynamo.NewPhoneVerificationRepo(dynamoClient, cfg.DynamoTables.PhoneVerifications), sender)
}

func newSyncQueue(cfg *config.Config) syncQueue {
	if cfg.AMQPURL != "" {
		q, err := rabbitmq.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err == nil {
			return q
		}
		slog.Warn("rabbitmq not available, using in-process queue", "err", err)
	}
	return reconcile.NewMemoryQueue(256)
}
