package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/trialsignup/signup/internal/domain"
)

// DefaultRedirectDelay leaves the success message on screen before navigating.
const DefaultRedirectDelay = 2 * time.Second

// MsgTrialStarted is shown while the redirect is pending.
const MsgTrialStarted = "Your free trial has started! Redirecting you to get set up..."

// Navigator shows messages and leaves the checkout.
type Navigator interface {
	Notify(message string)
	Navigate(ctx context.Context, target string) error
}

// DispatcherDeps holds all dependencies for the Dispatcher. Sleep defaults to a
// context-aware timer.
type DispatcherDeps struct {
	OnboardingURL string
	Delay         time.Duration
	Navigator     Navigator
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Dispatcher turns a provisioning outcome into a redirect or a user message.
type Dispatcher struct {
	onboardingURL string
	delay         time.Duration
	nav           Navigator
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{onboardingURL: deps.OnboardingURL, delay: deps.Delay, nav: deps.Navigator, sleep: deps.Sleep}
	if d.sleep == nil {
		d.sleep = sleepCtx
	}
	return d
}

// RedirectURL builds the onboarding URL carrying the provisioned ids and contact fields.
func (d *Dispatcher) RedirectURL(data domain.Step1Data, out *Outcome) (string, error) {
	u, err := url.Parse(d.onboardingURL)
	if err != nil {
		return "", fmt.Errorf("parse onboarding url: %w", err)
	}
	q := u.Query()
	q.Set("subscription_id", out.State.SubscriptionID)
	q.Set("customer_id", out.State.CustomerID)
	q.Set("email", data.Email)
	q.Set("first_name", data.FirstName)
	q.Set("last_name", data.LastName)
	if data.Phone != "" {
		q.Set("phone", data.Phone)
	}
	q.Set("trial_end", strconv.FormatInt(out.State.TrialEnd.Unix(), 10))
	if out.HandoffToken != "" {
		q.Set("token", out.HandoffToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Succeed shows the confirmation, waits the configured delay and navigates.
func (d *Dispatcher) Succeed(ctx context.Context, data domain.Step1Data, out *Outcome) (string, error) {
	target, err := d.RedirectURL(data, out)
	if err != nil {
		return "", err
	}
	d.nav.Notify(MsgTrialStarted)
	if d.delay > 0 {
		if err := d.sleep(ctx, d.delay); err != nil {
			return target, err
		}
	}
	if err := d.nav.Navigate(ctx, target); err != nil {
		return target, fmt.Errorf("navigate: %w", err)
	}
	slog.Info("redirected to onboarding", "customer_id", out.State.CustomerID, "subscription_id", out.State.SubscriptionID)
	return target, nil
}

// Fail shows the single message for err and returns it.
func (d *Dispatcher) Fail(err error) string {
	msg := UserMessage(err)
	d.nav.Notify(msg)
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
