package checkout

import (
	"context"
	"fmt"
	"log/slog"
)

// Checkout wires the step machine to provisioning and the outcome dispatcher.
type Checkout struct {
	Machine      *Machine
	Attribution  *AttributionStore
	Orchestrator *Orchestrator
	Dispatcher   *Dispatcher
}

// Submit provisions the trial for the frozen personal info. On success it
// redirects and discards the form; on failure the form stays on the payment
// step with its data and the returned message is the one shown to the user.
func (c *Checkout) Submit(ctx context.Context) (string, error) {
	data, err := c.Machine.BeginSubmit()
	if err != nil {
		return "", err
	}
	out, err := c.Orchestrator.Run(ctx, data, c.Attribution.Read())
	if err != nil {
		_ = c.Machine.Fail(err)
		return c.Dispatcher.Fail(err), err
	}
	if err := c.Machine.Complete(); err != nil {
		return "", err
	}
	target, err := c.Dispatcher.Succeed(ctx, data, out)
	if err != nil {
		slog.Error("redirect after provisioning failed", "subscription_id", out.State.SubscriptionID, "err", err)
		return target, fmt.Errorf("redirect: %w", err)
	}
	c.Machine.Reset()
	return target, nil
}
