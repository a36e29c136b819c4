package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/observability"
	"github.com/example/van-transfers/internal/payments"
	"github.com/example/van-transfers/internal/storage"
)

func isErr(err, target error) bool { return errors.Is(err, target) }

// HandleWebhook verifies and applies one processor event. A nil return means
// the event can be acknowledged, including duplicates and ignored types. Any
// other error should be answered with a 5xx so the processor redelivers.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.processor.VerifyWebhook(payload, signature)
	if err != nil {
		observability.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return err
	}
	log := s.log.With("event_id", evt.ID, "event_type", evt.Type)

	key := "webhook:" + evt.ID
	claimed, err := s.guard.Claim(ctx, key, s.opts.EventTTL)
	if err != nil {
		observability.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return fmt.Errorf("claim event %s: %w", evt.ID, err)
	}
	if !claimed {
		log.Infow("duplicate webhook delivery ignored")
		observability.WebhookEventsTotal.WithLabelValues(evt.Type, "duplicate").Inc()
		return nil
	}

	outcome, err := s.applyEvent(ctx, evt)
	if errors.Is(err, storage.ErrDuplicateEvent) {
		log.Infow("event already settled")
		observability.WebhookEventsTotal.WithLabelValues(evt.Type, "duplicate").Inc()
		return nil
	}
	if err != nil {
		if rerr := s.guard.Release(ctx, key); rerr != nil {
			log.Warnw("release event claim failed", "error", rerr)
		}
		log.Errorw("webhook processing failed", "error", err)
		observability.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return err
	}
	observability.WebhookEventsTotal.WithLabelValues(evt.Type, outcome).Inc()
	return nil
}

func (s *Service) applyEvent(ctx context.Context, evt *payments.Event) (string, error) {
	switch evt.Type {
	case payments.EventPaymentSucceeded:
		return s.settlePayment(ctx, evt)
	case payments.EventPaymentFailed, payments.EventPaymentCanceled:
		return s.dropReservation(ctx, evt)
	case payments.EventAccountUpdated:
		if err := s.store.SetPayoutsEnabled(ctx, evt.AccountID, evt.PayoutsEnabled); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return "ignored", nil
			}
			return "", err
		}
		return "processed", nil
	}
	return "ignored", nil
}

func (s *Service) settlePayment(ctx context.Context, evt *payments.Event) (string, error) {
	r, err := s.store.GetReservation(ctx, evt.PaymentIntentID)
	if errors.Is(err, apperr.ErrNotFound) {
		// Settled under another event id, or expired and swept. Either way
		// there is nothing left to apply automatically.
		s.log.Errorw("payment succeeded without a reservation", "event_id", evt.ID, "payment_intent_id", evt.PaymentIntentID)
		return "orphaned", nil
	}
	if err != nil {
		return "", err
	}
	t, err := s.store.GetTransfer(ctx, r.TransferID)
	if err != nil {
		return "", err
	}
	if t.Status == models.TransferCanceled || t.Status == models.TransferCompleted {
		return s.refund(ctx, r, fmt.Sprintf("the transfer is %s", t.Status))
	}

	part, err := s.store.HandleSuccessfulPayment(ctx, models.PaymentSettlement{
		EventID:     evt.ID,
		EventType:   evt.Type,
		Reservation: *r,
		CreatorID:   t.CreatorID,
		Net:         r.Amount.Sub(r.Fee),
	})
	if errors.Is(err, storage.ErrInsufficientSeats) {
		// another payment took the last seats between reservation and payment
		return s.refund(ctx, r, "the seats were taken by another booking")
	}
	if errors.Is(err, storage.ErrTransferClosed) {
		return s.refund(ctx, r, "the transfer is no longer running")
	}
	if err != nil {
		return "", err
	}
	observability.SeatsSold.Add(float64(part.SeatsRequested))
	s.log.Infow("payment settled", "participation_id", part.ID, "transfer_id", t.ID, "seats", part.SeatsRequested)

	data := map[string]string{"type": "participation", "transfer_id": t.ID, "participation_id": part.ID}
	s.notify(ctx, t.CreatorID, "New booking",
		fmt.Sprintf("%d seat(s) booked on %s -> %s", part.SeatsRequested, t.Origin, t.Destination), data)
	s.notify(ctx, part.ProfileID, "Booking confirmed",
		fmt.Sprintf("Your payment for %s -> %s was received", t.Origin, t.Destination), data)
	return "processed", nil
}

func (s *Service) refund(ctx context.Context, r *models.Reservation, reason string) (string, error) {
	if err := s.processor.Refund(ctx, r.PaymentIntentID); err != nil {
		return "", fmt.Errorf("refund %s: %w", r.PaymentIntentID, err)
	}
	if err := s.store.DeleteReservation(ctx, r.PaymentIntentID); err != nil {
		s.log.Warnw("delete refunded reservation failed", "payment_intent_id", r.PaymentIntentID, "error", err)
	}
	s.log.Warnw("payment refunded", "payment_intent_id", r.PaymentIntentID, "reason", reason)
	s.notify(ctx, r.ProfileID, "Payment refunded",
		"Your booking could not be completed because "+reason+". The payment was refunded.",
		map[string]string{"type": "refund", "transfer_id": r.TransferID})
	return "refunded", nil
}

func (s *Service) dropReservation(ctx context.Context, evt *payments.Event) (string, error) {
	r, err := s.store.GetReservation(ctx, evt.PaymentIntentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "ignored", nil
	}
	if err != nil {
		return "", err
	}
	if err := s.store.DeleteReservation(ctx, r.PaymentIntentID); err != nil {
		return "", err
	}
	body := "Your Pix payment was not completed and the reservation was released."
	if evt.FailureMessage != "" {
		body = "Your Pix payment failed: " + evt.FailureMessage
	}
	s.notify(ctx, r.ProfileID, "Payment not completed", body,
		map[string]string{"type": "reservation", "transfer_id": r.TransferID})
	return "processed", nil
}
