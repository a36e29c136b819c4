package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/models"
)

var (
	ErrNotFound            = apperr.ErrNotFound
	ErrInsufficientSeats   = fmt.Errorf("%w: insufficient seats", apperr.ErrConflict)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", apperr.ErrConflict)
	ErrDuplicateEvent      = fmt.Errorf("%w: event already processed", apperr.ErrConflict)
	ErrDuplicateReview     = fmt.Errorf("%w: review already submitted", apperr.ErrConflict)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid status transition", apperr.ErrConflict)
	ErrTransferClosed      = fmt.Errorf("%w: transfer no longer accepts bookings", apperr.ErrConflict)
)

// RefundFunc returns a participation's payment to the passenger. Stores call
// it last, before committing, so a failed refund leaves nothing written.
type RefundFunc func(p *models.TransferParticipation) error

type TransferFilter struct {
	Origin      string
	Destination string
	Date        time.Time // zero means any day
	After       time.Time // only transfers departing after this instant
	Limit       int
}

// Store defines persistence for every marketplace entity. The
// transactional methods (IncrementOccupiedSeats, HandleSuccessfulPayment,
// UpdateParticipationStatus, RejectParticipation, FinalizeTransfer,
// CancelTransfer, DecrementBalance) must apply all of their writes or none.
type Store interface {
	Ping(ctx context.Context) error

	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	UpdatePushToken(ctx context.Context, id, token string) error
	UpdateVerification(ctx context.Context, id string, to models.VerificationStatus, docs models.StringList) (*models.Profile, error)
	SetStripeAccount(ctx context.Context, id, accountID string) error
	SetPayoutsEnabled(ctx context.Context, accountID string, enabled bool) error
	SetPlan(ctx context.Context, id string, plan models.Plan) error

	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	ListVehiclesByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error)

	CreateTransfer(ctx context.Context, t *models.Transfer) error
	GetTransfer(ctx context.Context, id string) (*models.Transfer, error)
	ListTransfers(ctx context.Context, f TransferFilter) ([]models.Transfer, error)
	ListTransfersByCreator(ctx context.Context, creatorID string) ([]models.Transfer, error)
	ListDepartedUnfinalized(ctx context.Context, now time.Time) ([]models.Transfer, error)
	UpdateTransferStatus(ctx context.Context, id string, to models.TransferStatus) (*models.Transfer, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, paymentIntentID string) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, paymentIntentID string) error
	DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error)

	GetParticipation(ctx context.Context, id string) (*models.TransferParticipation, error)
	ListParticipationsByTransfer(ctx context.Context, transferID string) ([]models.TransferParticipation, error)
	ListParticipationsByProfile(ctx context.Context, profileID string) ([]models.TransferParticipation, error)

	IncrementOccupiedSeats(ctx context.Context, transferID string, seats int) (*models.Transfer, error)
	HandleSuccessfulPayment(ctx context.Context, s models.PaymentSettlement) (*models.TransferParticipation, error)
	UpdateParticipationStatus(ctx context.Context, id string, to models.ParticipationStatus) (*models.TransferParticipation, error)
	RejectParticipation(ctx context.Context, id string, refund RefundFunc) (*models.TransferParticipation, error)
	FinalizeTransfer(ctx context.Context, id string, now time.Time) (*models.Transfer, error)
	CancelTransfer(ctx context.Context, id string) (*models.Transfer, error)
	DecrementBalance(ctx context.Context, profileID string, amount decimal.Decimal, ref string) error
	CreditBalance(ctx context.Context, profileID string, amount decimal.Decimal, kind models.TransactionKind, ref, desc string) error

	CreateReview(ctx context.Context, r *models.Review) error
	ListReviewsByReviewee(ctx context.Context, revieweeID string) ([]models.Review, error)

	ListTransactions(ctx context.Context, profileID string) ([]models.Transaction, error)

	CreatePayout(ctx context.Context, p *models.Payout) error
	UpdatePayout(ctx context.Context, p *models.Payout) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, profileID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, profileID, id string) error
	MarkAllNotificationsRead(ctx context.Context, profileID string) (int, error)
	UnreadCount(ctx context.Context, profileID string) (int, error)

	Dashboard(ctx context.Context, profileID string) (*models.Dashboard, error)
}
