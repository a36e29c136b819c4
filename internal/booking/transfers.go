package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
)

type CreateTransferInput struct {
	CreatorID     string            `json:"-"`
	VehicleID     string            `json:"vehicle_id"`
	Origin        string            `json:"origin"`
	Destination   string            `json:"destination"`
	DepartureTime time.Time         `json:"departure_time"`
	TotalSeats    int               `json:"total_seats"`
	PricePerSeat  decimal.Decimal   `json:"price_per_seat"`
	Visibility    models.Visibility `json:"visibility"`
	Description   string            `json:"description"`
}

func (in CreateTransferInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.Origin) == "" || strings.TrimSpace(in.Destination) == "":
		return apperr.Validation("origin and destination are required")
	case !in.DepartureTime.After(now):
		return apperr.Validation("departure_time must be in the future")
	case in.TotalSeats <= 0:
		return apperr.Validation("total_seats must be greater than zero")
	case !in.PricePerSeat.IsPositive():
		return apperr.Validation("price_per_seat must be greater than zero")
	}
	switch in.Visibility {
	case "", models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return apperr.Validation("visibility must be public or private")
	}
	return nil
}

// CreateTransfer publishes a transfer. Only approved transportistas may
// publish, using one of their own vehicles.
func (s *Service) CreateTransfer(ctx context.Context, in CreateTransferInput) (*models.Transfer, error) {
	if err := in.validate(s.now()); err != nil {
		return nil, err
	}
	creator, err := s.store.GetProfile(ctx, in.CreatorID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Features(creator)["create_transfer"] {
		return nil, apperr.Forbidden("only approved transportistas can publish transfers")
	}
	v, err := s.store.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, err
	}
	if v.OwnerID != creator.ID {
		return nil, apperr.Forbidden("vehicle belongs to another profile")
	}
	if in.TotalSeats > v.Capacity {
		return nil, apperr.Validation("total_seats %d exceeds vehicle capacity %d", in.TotalSeats, v.Capacity)
	}
	vis := in.Visibility
	if vis == "" {
		vis = models.VisibilityPublic
	}
	t := &models.Transfer{
		CreatorID:     creator.ID,
		VehicleID:     v.ID,
		Origin:        strings.TrimSpace(in.Origin),
		Destination:   strings.TrimSpace(in.Destination),
		DepartureTime: in.DepartureTime.UTC(),
		TotalSeats:    in.TotalSeats,
		PricePerSeat:  in.PricePerSeat.Round(2),
		Visibility:    vis,
		Status:        models.TransferAvailable,
		Description:   in.Description,
	}
	if err := s.store.CreateTransfer(ctx, t); err != nil {
		return nil, err
	}
	s.log.Infow("transfer created", "transfer_id", t.ID, "creator_id", creator.ID, "seats", t.TotalSeats)
	return t, nil
}

// TransferParticipations lists the bookings of a transfer for its creator.
func (s *Service) TransferParticipations(ctx context.Context, actorID, transferID string) ([]models.TransferParticipation, error) {
	if _, err := s.ownedTransfer(ctx, actorID, transferID); err != nil {
		return nil, err
	}
	return s.store.ListParticipationsByTransfer(ctx, transferID)
}

// UpdateParticipationStatus lets the creator approve or reject a booking.
// Rejecting a paid booking refunds the passenger and gives the seats back.
func (s *Service) UpdateParticipationStatus(ctx context.Context, actorID, participationID string, to models.ParticipationStatus) (*models.TransferParticipation, error) {
	if to != models.ParticipationApproved && to != models.ParticipationRejected {
		return nil, apperr.Validation("status must be approved or rejected")
	}
	part, err := s.store.GetParticipation(ctx, participationID)
	if err != nil {
		return nil, err
	}
	t, err := s.ownedTransfer(ctx, actorID, part.TransferID)
	if err != nil {
		return nil, err
	}
	var updated *models.TransferParticipation
	if to == models.ParticipationRejected {
		updated, err = s.store.RejectParticipation(ctx, participationID, func(p *models.TransferParticipation) error {
			if p.PaymentIntentID == "" {
				return nil
			}
			return s.processor.Refund(ctx, p.PaymentIntentID)
		})
	} else {
		updated, err = s.store.UpdateParticipationStatus(ctx, participationID, to)
	}
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("Your booking on %s -> %s was %s", t.Origin, t.Destination, to)
	if to == models.ParticipationRejected && updated.PaymentIntentID != "" {
		body += " and your payment was refunded"
		s.log.Infow("booking rejected and refunded", "participation_id", updated.ID, "payment_intent_id", updated.PaymentIntentID)
	}
	s.notify(ctx, updated.ProfileID, "Booking "+string(to), body,
		map[string]string{"type": "participation", "transfer_id": t.ID, "participation_id": updated.ID})
	return updated, nil
}

// FinalizeTransfer completes a transfer after departure and asks each paid
// participant for a review.
func (s *Service) FinalizeTransfer(ctx context.Context, actorID, transferID string) (*models.Transfer, error) {
	t, err := s.ownedTransfer(ctx, actorID, transferID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !lifecycle.CanFinalize(t, now) {
		if !now.After(t.DepartureTime) {
			return nil, apperr.Conflict("transfer can only be finalized after departure")
		}
		return nil, apperr.Conflict("transfer is %s", t.Status)
	}
	done, err := s.store.FinalizeTransfer(ctx, transferID, now)
	if err != nil {
		return nil, err
	}
	parts, err := s.store.ListParticipationsByTransfer(ctx, transferID)
	if err != nil {
		s.log.Warnw("list participants for review request failed", "transfer_id", transferID, "error", err)
		return done, nil
	}
	for _, p := range parts {
		if !lifecycle.Booked(p.Status) {
			continue
		}
		s.notify(ctx, p.ProfileID, "Trip completed",
			fmt.Sprintf("How was %s -> %s? Leave a review.", t.Origin, t.Destination),
			map[string]string{"type": "review", "transfer_id": t.ID, "reviewee_id": t.CreatorID})
	}
	return done, nil
}

// CancelTransfer is allowed only while nobody holds seats. The store makes
// that check under the same lock a settling payment takes.
func (s *Service) CancelTransfer(ctx context.Context, actorID, transferID string) (*models.Transfer, error) {
	t, err := s.ownedTransfer(ctx, actorID, transferID)
	if err != nil {
		return nil, err
	}
	canceled, err := s.store.CancelTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	parts, err := s.store.ListParticipationsByTransfer(ctx, transferID)
	if err != nil {
		s.log.Warnw("list participants for cancel notice failed", "transfer_id", transferID, "error", err)
		return canceled, nil
	}
	for _, p := range parts {
		if p.Status == models.ParticipationRejected {
			continue
		}
		s.notify(ctx, p.ProfileID, "Transfer canceled",
			fmt.Sprintf("%s -> %s was canceled by the driver", t.Origin, t.Destination),
			map[string]string{"type": "transfer", "transfer_id": t.ID})
	}
	return canceled, nil
}
