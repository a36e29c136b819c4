package booking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/observability"
	"github.com/example/van-transfers/internal/payments"
)

type ReserveRequest struct {
	TransferID string             `json:"-"`
	ProfileID  string             `json:"-"`
	Seats      int                `json:"seats"`
	Passengers []models.Passenger `json:"passengers"`
}

// ReserveResult is returned to the client so it can show the Pix code.
type ReserveResult struct {
	Reservation models.Reservation `json:"reservation"`
	Payment     payments.PixIntent `json:"payment"`
}

// Reserve holds seats on a transfer pending Pix payment. Every check runs
// before the payment intent is created, so a rejected request never leaves a
// charge behind. Seats are only counted once the payment webhook arrives.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	res, err := s.reserve(ctx, req)
	observability.ReservationsTotal.WithLabelValues(outcomeOf(err)).Inc()
	return res, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if !s.allow(req.ProfileID) {
		return nil, fmt.Errorf("%w: reservation attempts exceeded, try again shortly", apperr.ErrRateLimited)
	}
	if err := lifecycle.ValidatePassengers(req.Seats, req.Passengers); err != nil {
		return nil, err
	}
	t, err := s.store.GetTransfer(ctx, req.TransferID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := lifecycle.CheckAvailability(t, req.Seats, now); err != nil {
		return nil, err
	}
	if t.CreatorID == req.ProfileID {
		return nil, apperr.Validation("cannot reserve seats on your own transfer")
	}
	payer, err := s.store.GetProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, err
	}
	creator, err := s.store.GetProfile(ctx, t.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator.StripeAccountID == "" {
		return nil, apperr.Conflict("transfer creator cannot receive payments yet")
	}

	price := lifecycle.ComputePrice(t.PricePerSeat, req.Seats, s.opts.FeePercent)
	intent, err := s.processor.CreatePixIntent(ctx, payments.PixIntentParams{
		AmountCents:        lifecycle.ToCents(price.Gross),
		FeeCents:           lifecycle.ToCents(price.Fee),
		DestinationAccount: creator.StripeAccountID,
		CustomerEmail:      payer.Email,
		Description:        fmt.Sprintf("%s -> %s", t.Origin, t.Destination),
		ExpiresAfter:       s.opts.ReservationTTL,
		Metadata: map[string]string{
			"transfer_id": t.ID,
			"profile_id":  req.ProfileID,
			"seats":       strconv.Itoa(req.Seats),
		},
	})
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		PaymentIntentID: intent.ID,
		TransferID:      t.ID,
		ProfileID:       req.ProfileID,
		Seats:           req.Seats,
		Passengers:      models.PassengerList(req.Passengers),
		Amount:          price.Gross,
		Fee:             price.Fee,
		ExpiresAt:       now.Add(s.opts.ReservationTTL),
	}
	if err := s.store.CreateReservation(ctx, r); err != nil {
		// the intent expires on its own; nobody can pay it without the code
		s.log.Errorw("store reservation failed", "payment_intent_id", intent.ID, "transfer_id", t.ID, "error", err)
		return nil, fmt.Errorf("store reservation: %w", err)
	}
	s.log.Infow("reservation created", "payment_intent_id", intent.ID, "transfer_id", t.ID, "profile_id", req.ProfileID, "seats", req.Seats)
	return &ReserveResult{Reservation: *r, Payment: *intent}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "created"
	case isErr(err, apperr.ErrRateLimited):
		return "rate_limited"
	case isErr(err, apperr.ErrValidation):
		return "invalid"
	case isErr(err, apperr.ErrConflict):
		return "unavailable"
	case isErr(err, apperr.ErrNotFound):
		return "not_found"
	case isErr(err, apperr.ErrProcessor):
		return "processor_error"
	}
	return "error"
}
