package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RolePassenger     Role = "passenger"
	RoleTransportista Role = "transportista"
	RoleAdmin         Role = "admin"
)

type VerificationStatus string

const (
	VerificationOnboarding VerificationStatus = "onboarding"
	VerificationPending    VerificationStatus = "pending"
	VerificationApproved   VerificationStatus = "approved"
	VerificationRejected   VerificationStatus = "rejected"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

type Profile struct {
	ID                 string             `json:"id" db:"id"`
	FullName           string             `json:"full_name" db:"full_name"`
	Email              string             `json:"email" db:"email"`
	Phone              string             `json:"phone" db:"phone"`
	Role               Role               `json:"role" db:"role"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	Documents          StringList         `json:"documents" db:"documents"`
	StripeAccountID    string             `json:"stripe_account_id,omitempty" db:"stripe_account_id"`
	PayoutsEnabled     bool               `json:"payouts_enabled" db:"payouts_enabled"`
	Balance            decimal.Decimal    `json:"balance" db:"balance"`
	PushToken          string             `json:"-" db:"push_token"`
	Plan               Plan               `json:"plan" db:"plan"`
	RatingAvg          float64            `json:"rating_avg" db:"rating_avg"`
	RatingCount        int                `json:"rating_count" db:"rating_count"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

type Vehicle struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Model     string    `json:"model" db:"model"`
	Plate     string    `json:"plate" db:"plate"`
	Color     string    `json:"color" db:"color"`
	Capacity  int       `json:"capacity" db:"capacity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TransferStatus string

const (
	TransferAvailable TransferStatus = "available"
	TransferFull      TransferStatus = "full"
	TransferCompleted TransferStatus = "completed"
	TransferCanceled  TransferStatus = "canceled"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Transfer struct {
	ID            string          `json:"id" db:"id"`
	CreatorID     string          `json:"creator_id" db:"creator_id"`
	VehicleID     string          `json:"vehicle_id" db:"vehicle_id"`
	Origin        string          `json:"origin" db:"origin"`
	Destination   string          `json:"destination" db:"destination"`
	DepartureTime time.Time       `json:"departure_time" db:"departure_time"`
	TotalSeats    int             `json:"total_seats" db:"total_seats"`
	OccupiedSeats int             `json:"occupied_seats" db:"occupied_seats"`
	PricePerSeat  decimal.Decimal `json:"price_per_seat" db:"price_per_seat"`
	Visibility    Visibility      `json:"visibility" db:"visibility"`
	Status        TransferStatus  `json:"status" db:"status"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "pending"
	ParticipationApproved ParticipationStatus = "approved"
	ParticipationPaid     ParticipationStatus = "paid"
	ParticipationRejected ParticipationStatus = "rejected"
)

type TransferParticipation struct {
	ID              string              `json:"id" db:"id"`
	TransferID      string              `json:"transfer_id" db:"transfer_id"`
	ProfileID       string              `json:"profile_id" db:"profile_id"`
	SeatsRequested  int                 `json:"seats_requested" db:"seats_requested"`
	TotalPrice      decimal.Decimal     `json:"total_price" db:"total_price"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	Status          ParticipationStatus `json:"status" db:"status"`
	Passengers      []Passenger         `json:"passengers,omitempty" db:"-"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

type Passenger struct {
	ID              string `json:"id" db:"id"`
	ParticipationID string `json:"participation_id" db:"participation_id"`
	FullName        string `json:"full_name" db:"full_name"`
	Document        string `json:"document" db:"document"`
	Phone           string `json:"phone" db:"phone"`
	BirthDate       string `json:"birth_date,omitempty" db:"birth_date"`
}

type Review struct {
	ID         string    `json:"id" db:"id"`
	TransferID string    `json:"transfer_id" db:"transfer_id"`
	ReviewerID string    `json:"reviewer_id" db:"reviewer_id"`
	RevieweeID string    `json:"reviewee_id" db:"reviewee_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type TransactionKind string

const (
	TransactionCredit TransactionKind = "credit"
	TransactionDebit  TransactionKind = "debit"
	TransactionFee    TransactionKind = "fee"
	TransactionRefund TransactionKind = "refund"
)

type Transaction struct {
	ID          string          `json:"id" db:"id"`
	ProfileID   string          `json:"profile_id" db:"profile_id"`
	Kind        TransactionKind `json:"kind" db:"kind"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Reference   string          `json:"reference" db:"reference"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
)

type Payout struct {
	ID            string          `json:"id" db:"id"`
	ProfileID     string          `json:"profile_id" db:"profile_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        PayoutStatus    `json:"status" db:"status"`
	ProcessorID   string          `json:"processor_id,omitempty" db:"processor_id"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

type Notification struct {
	ID        string    `json:"id" db:"id"`
	ProfileID string    `json:"profile_id" db:"profile_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Data      StringMap `json:"data" db:"data"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Reservation is a seat hold awaiting payment confirmation, keyed by the
// processor's payment intent.
type Reservation struct {
	PaymentIntentID string          `json:"payment_intent_id" db:"payment_intent_id"`
	TransferID      string          `json:"transfer_id" db:"transfer_id"`
	ProfileID       string          `json:"profile_id" db:"profile_id"`
	Seats           int             `json:"seats" db:"seats"`
	Passengers      PassengerList   `json:"passengers" db:"passengers"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Fee             decimal.Decimal `json:"fee" db:"fee"`
	ExpiresAt       time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PaymentSettlement carries everything needed to turn a confirmed
// reservation into a paid participation in one store transaction.
type PaymentSettlement struct {
	EventID     string
	EventType   string
	Reservation Reservation
	CreatorID   string
	Net         decimal.Decimal
}

type Dashboard struct {
	TransfersTotal     int             `json:"transfers_total"`
	TransfersCompleted int             `json:"transfers_completed"`
	SeatsSold          int             `json:"seats_sold"`
	GrossRevenue       decimal.Decimal `json:"gross_revenue"`
	Balance            decimal.Decimal `json:"balance"`
	RatingAvg          float64         `json:"rating_avg"`
}

// PushMessage is the payload handed to the push worker.
type PushMessage struct {
	NotificationID string            `json:"notification_id"`
	ProfileID      string            `json:"profile_id"`
	Token          string            `json:"token"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
}
