package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trialsignup/signup/internal/domain"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	ArchiveBucket  string // CRM dead-letter archive; empty disables archiving
	SNSRegion      string
	SMSEnabled     bool

	StripeSecretKey     string
	StripeWebhookSecret string

	EmailVerifyURL    string
	EmailVerifyAPIKey string
	PhoneVerifyURL    string
	PhoneVerifyAPIKey string
	VerifyTimeout     time.Duration
	VerdictCacheTTL   time.Duration

	CRMBaseURL string
	CRMAPIKey  string

	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioVerifyServiceSID string

	RedisURL  string
	AMQPURL   string
	AMQPQueue string

	JWTPrivateKeyPath string
	JWTExpiry         time.Duration

	OnboardingURL string
	Offer         domain.PricingOffer

	WebhookEventTTL time.Duration
	WorkerCount     int

	AllowedOrigins []string // CORS allowed origins

	// TrustedProxies may set X-Forwarded-For / X-Real-Ip for rate limiting.
	TrustedProxies      []netip.Prefix
	invalidProxyEntries []string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	WebhookEvents      string
	PhoneVerifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			WebhookEvents:      getEnv("DYNAMO_TABLE_WEBHOOK_EVENTS", "webhook_events"),
			PhoneVerifications: getEnv("DYNAMO_TABLE_PHONE_VERIFICATIONS", "phone_verifications"),
		},
		ArchiveBucket: getEnv("S3_ARCHIVE_BUCKET", ""),
		SNSRegion:     getEnv("SNS_REGION", "us-east-1"),
		SMSEnabled:    getEnvBool("SMS_ENABLED", true),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		EmailVerifyURL:    getEnv("EMAIL_VERIFY_URL", "https://emailvalidation.abstractapi.com/v1"),
		EmailVerifyAPIKey: getEnv("EMAIL_VERIFY_API_KEY", ""),
		PhoneVerifyURL:    getEnv("PHONE_VERIFY_URL", "https://api.trestleiq.com/3.0"),
		PhoneVerifyAPIKey: getEnv("PHONE_VERIFY_API_KEY", ""),
		VerifyTimeout:     getEnvDuration("VERIFY_TIMEOUT", 5*time.Second),
		VerdictCacheTTL:   getEnvDuration("VERDICT_CACHE_TTL", 5*time.Minute),

		CRMBaseURL: getEnv("CRM_BASE_URL", "https://api.hubapi.com"),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		TwilioAccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioVerifyServiceSID: getEnv("TWILIO_VERIFY_SERVICE_SID", ""),

		RedisURL:  getEnv("REDIS_URL", ""),
		AMQPURL:   getEnv("AMQP_URL", ""),
		AMQPQueue: getEnv("AMQP_QUEUE", "crm_sync"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 15*time.Minute),

		OnboardingURL: getEnv("ONBOARDING_URL", "https://app.example.com/onboarding"),
		Offer: domain.PricingOffer{
			PriceID:     getEnv("PRICE_ID", ""),
			AmountCents: int64(getEnvInt("PRICE_AMOUNT_CENTS", 2900)),
			Currency:    getEnv("PRICE_CURRENCY", "usd"),
			Interval:    getEnv("PRICE_INTERVAL", "month"),
			TrialDays:   getEnvInt("TRIAL_DAYS", 30),
		},

		WebhookEventTTL: getEnvDuration("WEBHOOK_EVENT_TTL", 7*24*time.Hour),
		WorkerCount:     getEnvInt("CRM_WORKERS", 2),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
	cfg.TrustedProxies, cfg.invalidProxyEntries = parsePrefixes(getEnv("TRUSTED_PROXIES", ""))
	return cfg
}

// Validate reports every missing credential the server cannot start without.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"STRIPE_SECRET_KEY", c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
		{"EMAIL_VERIFY_API_KEY", c.EmailVerifyAPIKey},
		{"PHONE_VERIFY_API_KEY", c.PhoneVerifyAPIKey},
		{"PRICE_ID", c.Offer.PriceID},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{Missing: missing}
	}
	if len(c.invalidProxyEntries) > 0 {
		return fmt.Errorf("TRUSTED_PROXIES: invalid entries %s", strings.Join(c.invalidProxyEntries, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parsePrefixes reads a comma-separated list of IPs and CIDRs. A bare IP
// becomes a single-address prefix.
func parsePrefixes(raw string) (prefixes []netip.Prefix, invalid []string) {
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				invalid = append(invalid, entry)
				continue
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			invalid = append(invalid, entry)
			continue
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, invalid
}
