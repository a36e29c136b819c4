// Package lifecycle holds the status rules for transfers, participations and
// profile verification, plus seat and price arithmetic. Nothing here does I/O.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/models"
)

var transferEdges = map[models.TransferStatus][]models.TransferStatus{
	models.TransferAvailable: {models.TransferFull, models.TransferCompleted, models.TransferCanceled},
	models.TransferFull:      {models.TransferAvailable, models.TransferCompleted, models.TransferCanceled},
}

var participationEdges = map[models.ParticipationStatus][]models.ParticipationStatus{
	models.ParticipationPending:  {models.ParticipationApproved, models.ParticipationPaid, models.ParticipationRejected},
	models.ParticipationApproved: {models.ParticipationPaid, models.ParticipationRejected},
	models.ParticipationPaid:     {models.ParticipationApproved, models.ParticipationRejected},
}

var verificationEdges = map[models.VerificationStatus][]models.VerificationStatus{
	models.VerificationOnboarding: {models.VerificationPending},
	models.VerificationPending:    {models.VerificationApproved, models.VerificationRejected},
	models.VerificationRejected:   {models.VerificationPending},
}

func CanTransitionTransfer(from, to models.TransferStatus) bool {
	return contains(transferEdges[from], to)
}

func CanTransitionParticipation(from, to models.ParticipationStatus) bool {
	return contains(participationEdges[from], to)
}

// Booked reports whether a participation holds seats on its transfer.
func Booked(s models.ParticipationStatus) bool {
	return s == models.ParticipationPaid || s == models.ParticipationApproved
}

func CanTransitionVerification(from, to models.VerificationStatus) bool {
	return contains(verificationEdges[from], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// AvailableSeats never goes below zero even if counters were corrupted upstream.
func AvailableSeats(t *models.Transfer) int {
	n := t.TotalSeats - t.OccupiedSeats
	if n < 0 {
		return 0
	}
	return n
}

// CheckAvailability is the read-then-compare gate run before any payment
// intent is created. A request the transfer can never satisfy is a validation
// error; running out of seats is a conflict.
func CheckAvailability(t *models.Transfer, seats int, now time.Time) error {
	if seats <= 0 {
		return apperr.Validation("seats must be greater than zero")
	}
	if t.Status != models.TransferAvailable {
		return apperr.Validation("transfer is %s", t.Status)
	}
	if !now.Before(t.DepartureTime) {
		return apperr.Validation("transfer already departed")
	}
	if avail := AvailableSeats(t); seats > avail {
		return apperr.Conflict("only %d seats available", avail)
	}
	return nil
}

func DeriveStatus(t *models.Transfer) models.TransferStatus {
	switch t.Status {
	case models.TransferCanceled, models.TransferCompleted:
		return t.Status
	}
	if t.OccupiedSeats >= t.TotalSeats {
		return models.TransferFull
	}
	return models.TransferAvailable
}

func CanFinalize(t *models.Transfer, now time.Time) bool {
	if t.Status != models.TransferAvailable && t.Status != models.TransferFull {
		return false
	}
	return now.After(t.DepartureTime)
}

func CanCancel(t *models.Transfer, paidParticipations int) error {
	if !CanTransitionTransfer(t.Status, models.TransferCanceled) {
		return apperr.Conflict("transfer is %s", t.Status)
	}
	if paidParticipations > 0 {
		return apperr.Conflict("transfer has %d paid participations", paidParticipations)
	}
	return nil
}

// Price is the split of a reservation amount between the platform and the
// transfer creator.
type Price struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputePrice takes the fee as a percentage of gross, rounded to cents.
func ComputePrice(pricePerSeat decimal.Decimal, seats int, feePercent decimal.Decimal) Price {
	gross := pricePerSeat.Mul(decimal.NewFromInt(int64(seats))).Round(2)
	fee := gross.Mul(feePercent).Div(hundred).Round(2)
	return Price{Gross: gross, Fee: fee, Net: gross.Sub(fee)}
}

// ToCents converts a BRL amount to centavos for the processor.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

const FeatureDashboard = "dashboard"

// Features returns the plan-gated features enabled for a profile.
func Features(p *models.Profile) map[string]bool {
	return map[string]bool{
		FeatureDashboard:  p.Plan == models.PlanEnterprise,
		"create_transfer": p.Role == models.RoleTransportista && p.VerificationStatus == models.VerificationApproved,
		"payouts":         p.StripeAccountID != "",
	}
}

// ValidatePassengers checks the passenger list matches the seat count.
func ValidatePassengers(seats int, passengers []models.Passenger) error {
	if len(passengers) != seats {
		return apperr.Validation("expected %d passengers, got %d", seats, len(passengers))
	}
	for i, p := range passengers {
		if p.FullName == "" || p.Document == "" {
			return apperr.Validation("passenger %d requires full_name and document", i+1)
		}
	}
	return nil
}
