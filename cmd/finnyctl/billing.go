package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finny/internal/amqp"
	"finny/internal/billing"
	"finny/internal/config"
)

type billingEventCmd struct {
	Type      string    `arg:"" help:"Event type: checkout.completed, subscription.updated, subscription.deleted or payment.failed."`
	User      string    `required:"" help:"User id the event applies to."`
	Status    string    `help:"Provider subscription status, e.g. active or trialing."`
	TrialEnd  time.Time `name:"trial-end" help:"End of the trial (RFC 3339)."`
	PeriodEnd time.Time `name:"period-end" help:"End of the current billing period (RFC 3339)."`
	DryRun    bool      `name:"dry-run" help:"Print the message instead of publishing it."`
}

func (c *billingEventCmd) message() (*amqp.BillingEventMessage, error) {
	e := billing.Event{
		Type:             billing.EventType(c.Type),
		UserID:           c.User,
		Status:           c.Status,
		TrialEnd:         optionalTime(c.TrialEnd),
		CurrentPeriodEnd: optionalTime(c.PeriodEnd),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &amqp.BillingEventMessage{
		Type:             string(e.Type),
		UserID:           e.UserID,
		Status:           e.Status,
		TrialEnd:         e.TrialEnd,
		CurrentPeriodEnd: e.CurrentPeriodEnd,
	}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Run publishes one billing event to the billing queue, as a provider
// webhook relay would.
func (c *billingEventCmd) Run(g *Globals) error {
	msg, err := c.message()
	if err != nil {
		return err
	}
	msg.Timestamp = g.now()

	if c.DryRun {
		body, err := msg.ToJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(g.writer(), string(body))
		return nil
	}

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := amqp.NewClient(ctx, amqp.Config{
		URL:          cfg.AMQPURL,
		Exchange:     cfg.AMQPExchange,
		BillingQueue: cfg.AMQPBillingQueue,
		SyncQueue:    cfg.AMQPSyncQueue,
		DialTimeout:  30 * time.Second,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PublishBillingEvent(ctx, msg); err != nil {
		return err
	}
	green.Fprintf(g.writer(), "published %s for %s\n", msg.Type, msg.UserID)
	return nil
}
