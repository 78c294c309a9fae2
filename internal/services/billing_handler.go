package services

import (
	"context"
	"errors"

	"finny/internal/amqp"
	"finny/internal/billing"
	"finny/internal/log"
)

// HandleBillingMessage applies a queued billing event. Events that can
// never succeed (no profile, unknown type, missing user) are logged and
// acknowledged; other failures are returned so the message is requeued.
func (s *BudgetService) HandleBillingMessage(ctx context.Context, msg *amqp.BillingEventMessage) error {
	e := billing.Event{
		Type:             billing.EventType(msg.Type),
		UserID:           msg.UserID,
		Status:           msg.Status,
		TrialEnd:         msg.TrialEnd,
		CurrentPeriodEnd: msg.CurrentPeriodEnd,
	}
	_, err := s.ApplyBillingEvent(ctx, e)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoProfile), errors.Is(err, billing.ErrUnknownEvent), errors.Is(err, ErrInvalidInput):
		log.FromContext(ctx).WarnContext(ctx, "Dropping billing event",
			log.FieldUserID, msg.UserID,
			log.FieldEventType, msg.Type,
			log.FieldError, err.Error())
		return nil
	}
	return err
}
