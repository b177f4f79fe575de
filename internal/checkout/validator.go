package checkout

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/pkg/contact"
)

const (
	// DefaultDebounce is the quiet period before a keystroke-driven validation fires.
	DefaultDebounce = 500 * time.Millisecond
	// CacheTTL bounds how long a verdict is reused for the same normalized value.
	CacheTTL = 5 * time.Minute
)

// Options tune a single validation call.
type Options struct {
	// Immediate skips the debounce, e.g. for the check run by the step gate.
	Immediate bool
	// Name is the subscriber name matched against a phone number.
	Name string
}

// RemoteFunc asks the verification service about a structurally valid,
// normalized value.
type RemoteFunc func(ctx context.Context, normalized string, opts Options) (domain.ValidationResult, error)

// ValidatorConfig configures a ValidationClient. Now and After default to the
// wall clock.
type ValidatorConfig struct {
	Field     string
	Normalize func(string) string
	Check     func(string) domain.ValidationResult
	Remote    RemoteFunc
	Debounce  time.Duration
	TTL       time.Duration
	Now       func() time.Time
	After     func(time.Duration) <-chan time.Time
}

type cacheEntry struct {
	res domain.ValidationResult
	at  time.Time
}

// ValidationClient validates one field: structural check, cache, request
// coalescing, debounce, remote verdict and degradation when the remote fails.
// Each instance owns its cache, in-flight set and debounce state.
type ValidationClient struct {
	field     string
	normalize func(string) string
	check     func(string) domain.ValidationResult
	remote    RemoteFunc
	debounce  time.Duration
	ttl       time.Duration
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time

	flights singleflight.Group

	mu        sync.Mutex
	cache     map[string]cacheEntry
	pending   map[string]int
	seq       uint64
	latestKey string
	cancel    chan struct{}
}

func NewValidationClient(cfg ValidatorConfig) *ValidationClient {
	c := &ValidationClient{
		field:     cfg.Field,
		normalize: cfg.Normalize,
		check:     cfg.Check,
		remote:    cfg.Remote,
		debounce:  cfg.Debounce,
		ttl:       cfg.TTL,
		now:       cfg.Now,
		after:     cfg.After,
		cache:     map[string]cacheEntry{},
		pending:   map[string]int{},
	}
	if c.ttl == 0 {
		c.ttl = CacheTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.after == nil {
		c.after = time.After
	}
	return c
}

// NewEmailValidator validates lowercased email addresses.
func NewEmailValidator(remote RemoteFunc, debounce time.Duration) *ValidationClient {
	return NewValidationClient(ValidatorConfig{
		Field:     FieldEmail,
		Normalize: contact.NormalizeEmail,
		Check:     contact.CheckEmail,
		Remote:    remote,
		Debounce:  debounce,
	})
}

// NewPhoneValidator validates phone numbers reduced to their digits.
func NewPhoneValidator(remote RemoteFunc, debounce time.Duration) *ValidationClient {
	return NewValidationClient(ValidatorConfig{
		Field:     FieldPhone,
		Normalize: contact.NormalizePhone,
		Check:     contact.CheckPhone,
		Remote:    remote,
		Debounce:  debounce,
	})
}

// Validate returns the verdict for raw. Structurally broken input never
// reaches the remote service. A call still waiting out its debounce is
// cancelled by any newer call, and a finished call is discarded once a newer
// call for a different value has started; both return ErrSuperseded.
func (c *ValidationClient) Validate(ctx context.Context, raw string, opts Options) (domain.ValidationResult, error) {
	normalized := c.normalize(raw)
	structural := c.check(normalized)
	key := cacheKey(normalized, opts.Name)
	seq, cancelled := c.begin(key)

	if !structural.IsValid {
		return structural, nil
	}
	if res, ok := c.cached(key); ok {
		return res, nil
	}

	if !opts.Immediate && c.debounce > 0 && !c.inFlight(key) {
		select {
		case <-c.after(c.debounce):
		case <-cancelled:
			return domain.ValidationResult{}, ErrSuperseded
		case <-ctx.Done():
			return domain.ValidationResult{}, ctx.Err()
		}
	}

	res := c.fetch(ctx, key, normalized, structural, opts)
	if c.stale(seq, key) {
		return domain.ValidationResult{}, ErrSuperseded
	}
	return res, nil
}

// begin registers a new call and cancels the debounce of the previous one.
func (c *ValidationClient) begin(key string) (uint64, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
	}
	c.cancel = make(chan struct{})
	c.seq++
	c.latestKey = key
	return c.seq, c.cancel
}

// stale reports whether a newer call for a different value has started since seq.
func (c *ValidationClient) stale(seq uint64, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq != seq && c.latestKey != key
}

func (c *ValidationClient) cached(key string) (domain.ValidationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return domain.ValidationResult{}, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.cache, key)
		return domain.ValidationResult{}, false
	}
	return e.res, true
}

func (c *ValidationClient) store(key string, res domain.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{res: res, at: c.now()}
}

func (c *ValidationClient) inFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key] > 0
}

// fetch joins or starts the remote call for key. Remote failures degrade to
// the structural verdict and are not cached.
func (c *ValidationClient) fetch(ctx context.Context, key, normalized string, structural domain.ValidationResult, opts Options) domain.ValidationResult {
	c.mu.Lock()
	c.pending[key]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending[key]--; c.pending[key] <= 0 {
			delete(c.pending, key)
		}
		c.mu.Unlock()
	}()

	v, err, shared := c.flights.Do(key, func() (interface{}, error) {
		if res, ok := c.cached(key); ok {
			return res, nil
		}
		remote, err := c.remote(ctx, normalized, opts)
		if err != nil {
			return nil, err
		}
		res := domain.Merge(structural, remote)
		c.store(key, res)
		return res, nil
	})
	if err != nil {
		slog.Warn("validation service degraded", "field", c.field, "err", err)
		return domain.Degrade(structural)
	}
	if shared {
		slog.Debug("validation joined in-flight request", "field", c.field)
	}
	return v.(domain.ValidationResult)
}

func cacheKey(normalized, name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return normalized
	}
	return normalized + "|" + name
}
