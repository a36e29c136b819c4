package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
)

const (
	profileColumns       = `id, full_name, email, phone, role, verification_status, documents, stripe_account_id, payouts_enabled, balance, push_token, plan, rating_avg, rating_count, created_at, updated_at`
	vehicleColumns       = `id, owner_id, model, plate, color, capacity, created_at, updated_at`
	transferColumns      = `id, creator_id, vehicle_id, origin, destination, departure_time, total_seats, occupied_seats, price_per_seat, visibility, status, description, created_at, updated_at`
	reservationColumns   = `payment_intent_id, transfer_id, profile_id, seats, passengers, amount, fee, expires_at, created_at`
	participationColumns = `id, transfer_id, profile_id, seats_requested, total_price, payment_intent_id, status, created_at, updated_at`
	notificationColumns  = `id, profile_id, title, body, data, read, created_at`

	uniqueViolation   = "23505"
	invalidTextSyntax = "22P02"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection, e.g. a sqlmock one.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// notFound maps a missing row, or an id Postgres cannot parse as a UUID, to
// apperr.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return apperr.NotFound(what)
	}
	return err
}

func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextSyntax
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// withTx runs fn inside a transaction and commits only if fn succeeds.
func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CreateProfile(ctx context.Context, pr *models.Profile) error {
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}
	now := time.Now()
	pr.CreatedAt, pr.UpdatedAt = now, now
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO profiles(`+profileColumns+`)
		VALUES(:id, :full_name, :email, :phone, :role, :verification_status, :documents, :stripe_account_id, :payouts_enabled, :balance, :push_token, :plan, :rating_avg, :rating_count, :created_at, :updated_at)`, pr)
	if isUniqueViolation(err) {
		return apperr.Conflict("profile %s already exists", pr.ID)
	}
	return err
}

func (p *PostgresStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var pr models.Profile
	if err := p.db.GetContext(ctx, &pr, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id); err != nil {
		return nil, notFound(err, "profile")
	}
	return &pr, nil
}

func (p *PostgresStore) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return notFound(err, what)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(what)
	}
	return nil
}

func (p *PostgresStore) UpdatePushToken(ctx context.Context, id, token string) error {
	return p.execOne(ctx, "profile", `UPDATE profiles SET push_token=$1, updated_at=NOW() WHERE id=$2`, token, id)
}

func (p *PostgresStore) UpdateVerification(ctx context.Context, id string, to models.VerificationStatus, docs models.StringList) (*models.Profile, error) {
	var out models.Profile
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.VerificationStatus
		if err := tx.GetContext(ctx, &current, `SELECT verification_status FROM profiles WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "profile")
		}
		if !lifecycle.CanTransitionVerification(current, to) {
			return ErrInvalidTransition
		}
		q := `UPDATE profiles SET verification_status=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + profileColumns
		args := []any{to, id}
		if docs != nil {
			q = `UPDATE profiles SET verification_status=$1, documents=$3, updated_at=NOW() WHERE id=$2 RETURNING ` + profileColumns
			args = append(args, docs)
		}
		return tx.GetContext(ctx, &out, q, args...)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) SetStripeAccount(ctx context.Context, id, accountID string) error {
	return p.execOne(ctx, "profile", `UPDATE profiles SET stripe_account_id=$1, updated_at=NOW() WHERE id=$2`, accountID, id)
}

func (p *PostgresStore) SetPayoutsEnabled(ctx context.Context, accountID string, enabled bool) error {
	return p.execOne(ctx, "profile", `UPDATE profiles SET payouts_enabled=$1, updated_at=NOW() WHERE stripe_account_id=$2`, enabled, accountID)
}

func (p *PostgresStore) SetPlan(ctx context.Context, id string, plan models.Plan) error {
	return p.execOne(ctx, "profile", `UPDATE profiles SET plan=$1, updated_at=NOW() WHERE id=$2`, plan, id)
}

func (p *PostgresStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now()
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO vehicles(`+vehicleColumns+`)
		VALUES(:id, :owner_id, :model, :plate, :color, :capacity, :created_at, :updated_at)`, v)
	return err
}

func (p *PostgresStore) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := p.db.GetContext(ctx, &v, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=$1`, id); err != nil {
		return nil, notFound(err, "vehicle")
	}
	return &v, nil
}

func (p *PostgresStore) ListVehiclesByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error) {
	out := []models.Vehicle{}
	err := p.db.SelectContext(ctx, &out, `SELECT `+vehicleColumns+` FROM vehicles WHERE owner_id=$1 ORDER BY created_at`, ownerID)
	return out, err
}

func (p *PostgresStore) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO transfers(`+transferColumns+`)
		VALUES(:id, :creator_id, :vehicle_id, :origin, :destination, :departure_time, :total_seats, :occupied_seats, :price_per_seat, :visibility, :status, :description, :created_at, :updated_at)`, t)
	return err
}

func (p *PostgresStore) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	var t models.Transfer
	if err := p.db.GetContext(ctx, &t, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id); err != nil {
		return nil, notFound(err, "transfer")
	}
	return &t, nil
}

func (p *PostgresStore) ListTransfers(ctx context.Context, f TransferFilter) ([]models.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE visibility='public' AND status='available'`
	args := []any{}
	if f.Origin != "" {
		args = append(args, "%"+f.Origin+"%")
		q += fmt.Sprintf(" AND origin ILIKE $%d", len(args))
	}
	if f.Destination != "" {
		args = append(args, "%"+f.Destination+"%")
		q += fmt.Sprintf(" AND destination ILIKE $%d", len(args))
	}
	if !f.After.IsZero() {
		args = append(args, f.After)
		q += fmt.Sprintf(" AND departure_time > $%d", len(args))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date.Format("2006-01-02"))
		q += fmt.Sprintf(" AND departure_time::date = $%d::date", len(args))
	}
	q += " ORDER BY departure_time"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	out := []models.Transfer{}
	err := p.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (p *PostgresStore) ListTransfersByCreator(ctx context.Context, creatorID string) ([]models.Transfer, error) {
	out := []models.Transfer{}
	err := p.db.SelectContext(ctx, &out, `SELECT `+transferColumns+` FROM transfers WHERE creator_id=$1 ORDER BY departure_time DESC`, creatorID)
	return out, err
}

func (p *PostgresStore) ListDepartedUnfinalized(ctx context.Context, now time.Time) ([]models.Transfer, error) {
	out := []models.Transfer{}
	err := p.db.SelectContext(ctx, &out, `SELECT `+transferColumns+` FROM transfers WHERE status IN ('available','full') AND departure_time < $1`, now)
	return out, err
}

func (p *PostgresStore) UpdateTransferStatus(ctx context.Context, id string, to models.TransferStatus) (*models.Transfer, error) {
	var out models.Transfer
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.TransferStatus
		if err := tx.GetContext(ctx, &current, `SELECT status FROM transfers WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "transfer")
		}
		if !lifecycle.CanTransitionTransfer(current, to) {
			return ErrInvalidTransition
		}
		return tx.GetContext(ctx, &out, `UPDATE transfers SET status=$1, updated_at=NOW() WHERE id=$2 RETURNING `+transferColumns, to, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) CreateReservation(ctx context.Context, r *models.Reservation) error {
	r.CreatedAt = time.Now()
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO reservations(`+reservationColumns+`)
		VALUES(:payment_intent_id, :transfer_id, :profile_id, :seats, :passengers, :amount, :fee, :expires_at, :created_at)`, r)
	return err
}

func (p *PostgresStore) GetReservation(ctx context.Context, paymentIntentID string) (*models.Reservation, error) {
	var r models.Reservation
	if err := p.db.GetContext(ctx, &r, `SELECT `+reservationColumns+` FROM reservations WHERE payment_intent_id=$1`, paymentIntentID); err != nil {
		return nil, notFound(err, "reservation")
	}
	return &r, nil
}

func (p *PostgresStore) DeleteReservation(ctx context.Context, paymentIntentID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM reservations WHERE payment_intent_id=$1`, paymentIntentID)
	return err
}

func (p *PostgresStore) DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM reservations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *PostgresStore) GetParticipation(ctx context.Context, id string) (*models.TransferParticipation, error) {
	var part models.TransferParticipation
	if err := p.db.GetContext(ctx, &part, `SELECT `+participationColumns+` FROM transfer_participations WHERE id=$1`, id); err != nil {
		return nil, notFound(err, "participation")
	}
	if err := p.db.SelectContext(ctx, &part.Passengers, `SELECT id, participation_id, full_name, document, phone, birth_date FROM passengers WHERE participation_id=$1`, id); err != nil {
		return nil, err
	}
	return &part, nil
}

func (p *PostgresStore) ListParticipationsByTransfer(ctx context.Context, transferID string) ([]models.TransferParticipation, error) {
	return p.listParticipations(ctx, `transfer_id=$1`, transferID)
}

func (p *PostgresStore) ListParticipationsByProfile(ctx context.Context, profileID string) ([]models.TransferParticipation, error) {
	return p.listParticipations(ctx, `profile_id=$1`, profileID)
}

func (p *PostgresStore) listParticipations(ctx context.Context, where string, arg string) ([]models.TransferParticipation, error) {
	out := []models.TransferParticipation{}
	if err := p.db.SelectContext(ctx, &out, `SELECT `+participationColumns+` FROM transfer_participations WHERE `+where+` ORDER BY created_at`, arg); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]string, len(out))
	index := make(map[string]int, len(out))
	for i, part := range out {
		ids[i] = part.ID
		index[part.ID] = i
	}
	var ps []models.Passenger
	if err := p.db.SelectContext(ctx, &ps, `SELECT id, participation_id, full_name, document, phone, birth_date FROM passengers WHERE participation_id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, pg := range ps {
		i := index[pg.ParticipationID]
		out[i].Passengers = append(out[i].Passengers, pg)
	}
	return out, nil
}

func incrementSeatsTx(ctx context.Context, tx *sqlx.Tx, transferID string, seats int) (*models.Transfer, error) {
	var t models.Transfer
	if err := tx.GetContext(ctx, &t, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, transferID); err != nil {
		return nil, notFound(err, "transfer")
	}
	if t.Status == models.TransferCanceled || t.Status == models.TransferCompleted {
		return nil, ErrTransferClosed
	}
	if t.OccupiedSeats+seats > t.TotalSeats {
		return nil, ErrInsufficientSeats
	}
	t.OccupiedSeats += seats
	t.Status = lifecycle.DeriveStatus(&t)
	if _, err := tx.ExecContext(ctx, `UPDATE transfers SET occupied_seats=$1, status=$2, updated_at=NOW() WHERE id=$3`, t.OccupiedSeats, t.Status, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresStore) IncrementOccupiedSeats(ctx context.Context, transferID string, seats int) (*models.Transfer, error) {
	var out *models.Transfer
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := incrementSeatsTx(ctx, tx, transferID, seats)
		out = t
		return err
	})
	return out, err
}

func insertTransactionTx(ctx context.Context, tx *sqlx.Tx, profileID string, kind models.TransactionKind, amount decimal.Decimal, ref, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transactions(id, profile_id, kind, amount, reference, description) VALUES($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), profileID, kind, amount, ref, desc)
	return err
}

func (p *PostgresStore) HandleSuccessfulPayment(ctx context.Context, s models.PaymentSettlement) (*models.TransferParticipation, error) {
	r := s.Reservation
	if err := lifecycle.ValidatePassengers(r.Seats, r.Passengers); err != nil {
		return nil, err
	}
	now := time.Now()
	part := &models.TransferParticipation{
		ID:              uuid.NewString(),
		TransferID:      r.TransferID,
		ProfileID:       r.ProfileID,
		SeatsRequested:  r.Seats,
		TotalPrice:      r.Amount,
		PaymentIntentID: r.PaymentIntentID,
		Status:          models.ParticipationPaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO processed_events(event_id, event_type) VALUES($1,$2)`, s.EventID, s.EventType); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEvent
			}
			return err
		}
		if _, err := incrementSeatsTx(ctx, tx, r.TransferID, r.Seats); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO transfer_participations(`+participationColumns+`)
			VALUES(:id, :transfer_id, :profile_id, :seats_requested, :total_price, :payment_intent_id, :status, :created_at, :updated_at)`, part); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEvent
			}
			return err
		}
		for _, ps := range r.Passengers {
			ps.ID = uuid.NewString()
			ps.ParticipationID = part.ID
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO passengers(id, participation_id, full_name, document, phone, birth_date)
				VALUES(:id, :participation_id, :full_name, :document, :phone, :birth_date)`, ps); err != nil {
				return err
			}
			part.Passengers = append(part.Passengers, ps)
		}
		res, err := tx.ExecContext(ctx, `UPDATE profiles SET balance = balance + $1, updated_at=NOW() WHERE id=$2`, s.Net, s.CreatorID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("profile")
		}
		if err := insertTransactionTx(ctx, tx, s.CreatorID, models.TransactionCredit, s.Net, part.ID, "seat sale"); err != nil {
			return err
		}
		if err := insertTransactionTx(ctx, tx, s.CreatorID, models.TransactionFee, r.Fee, part.ID, "platform fee"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM reservations WHERE payment_intent_id=$1`, r.PaymentIntentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

func (p *PostgresStore) UpdateParticipationStatus(ctx context.Context, id string, to models.ParticipationStatus) (*models.TransferParticipation, error) {
	var out models.TransferParticipation
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.ParticipationStatus
		if err := tx.GetContext(ctx, &current, `SELECT status FROM transfer_participations WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "participation")
		}
		if !lifecycle.CanTransitionParticipation(current, to) {
			return ErrInvalidTransition
		}
		return tx.GetContext(ctx, &out, `UPDATE transfer_participations SET status=$1, updated_at=NOW() WHERE id=$2 RETURNING `+participationColumns, to, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectParticipation releases the seats of a booked participation, reverses
// the creator's credit and fee entries and refunds the passenger before commit.
func (p *PostgresStore) RejectParticipation(ctx context.Context, id string, refund RefundFunc) (*models.TransferParticipation, error) {
	var part models.TransferParticipation
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &part, `SELECT `+participationColumns+` FROM transfer_participations WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "participation")
		}
		if !lifecycle.CanTransitionParticipation(part.Status, models.ParticipationRejected) {
			return ErrInvalidTransition
		}
		var t models.Transfer
		if err := tx.GetContext(ctx, &t, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, part.TransferID); err != nil {
			return notFound(err, "transfer")
		}
		if t.Status == models.TransferCanceled || t.Status == models.TransferCompleted {
			return ErrTransferClosed
		}
		if lifecycle.Booked(part.Status) {
			if err := releaseBookingTx(ctx, tx, &t, &part); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE transfer_participations SET status=$1, updated_at=NOW() WHERE id=$2`, models.ParticipationRejected, id); err != nil {
			return err
		}
		if refund != nil {
			return refund(&part)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	part.Status = models.ParticipationRejected
	return &part, nil
}

func releaseBookingTx(ctx context.Context, tx *sqlx.Tx, t *models.Transfer, part *models.TransferParticipation) error {
	var net, fee decimal.Decimal
	if err := tx.QueryRowxContext(ctx, `SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind='credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind='fee'), 0)
		FROM transactions WHERE reference=$1 AND profile_id=$2`, part.ID, t.CreatorID).Scan(&net, &fee); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET balance = balance - $1, updated_at=NOW() WHERE id=$2 AND balance >= $1`, net, t.CreatorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}
	if err := insertTransactionTx(ctx, tx, t.CreatorID, models.TransactionDebit, net, part.ID, "booking rejected"); err != nil {
		return err
	}
	if err := insertTransactionTx(ctx, tx, t.CreatorID, models.TransactionFee, fee.Neg(), part.ID, "platform fee reversed"); err != nil {
		return err
	}
	t.OccupiedSeats -= part.SeatsRequested
	if t.OccupiedSeats < 0 {
		t.OccupiedSeats = 0
	}
	t.Status = lifecycle.DeriveStatus(t)
	_, err = tx.ExecContext(ctx, `UPDATE transfers SET occupied_seats=$1, status=$2, updated_at=NOW() WHERE id=$3`, t.OccupiedSeats, t.Status, t.ID)
	return err
}

// CancelTransfer counts booked participations under the transfer lock, the
// same lock a settling payment takes, so no booking can land after the check.
func (p *PostgresStore) CancelTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	var out models.Transfer
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var t models.Transfer
		if err := tx.GetContext(ctx, &t, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "transfer")
		}
		var booked int
		if err := tx.GetContext(ctx, &booked, `SELECT COUNT(*) FROM transfer_participations WHERE transfer_id=$1 AND status IN ('paid','approved')`, id); err != nil {
			return err
		}
		if err := lifecycle.CanCancel(&t, booked); err != nil {
			return err
		}
		return tx.GetContext(ctx, &out, `UPDATE transfers SET status='canceled', updated_at=NOW() WHERE id=$1 RETURNING `+transferColumns, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) FinalizeTransfer(ctx context.Context, id string, now time.Time) (*models.Transfer, error) {
	var out models.Transfer
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var t models.Transfer
		if err := tx.GetContext(ctx, &t, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id); err != nil {
			return notFound(err, "transfer")
		}
		if !lifecycle.CanFinalize(&t, now) {
			return ErrInvalidTransition
		}
		return tx.GetContext(ctx, &out, `UPDATE transfers SET status='completed', updated_at=$1 WHERE id=$2 RETURNING `+transferColumns, now, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) DecrementBalance(ctx context.Context, profileID string, amount decimal.Decimal, ref string) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		var balance decimal.Decimal
		if err := tx.GetContext(ctx, &balance, `SELECT balance FROM profiles WHERE id=$1 FOR UPDATE`, profileID); err != nil {
			return notFound(err, "profile")
		}
		if balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		if _, err := tx.ExecContext(ctx, `UPDATE profiles SET balance = balance - $1, updated_at=NOW() WHERE id=$2`, amount, profileID); err != nil {
			return err
		}
		return insertTransactionTx(ctx, tx, profileID, models.TransactionDebit, amount, ref, "payout")
	})
}

func (p *PostgresStore) CreditBalance(ctx context.Context, profileID string, amount decimal.Decimal, kind models.TransactionKind, ref, desc string) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE profiles SET balance = balance + $1, updated_at=NOW() WHERE id=$2`, amount, profileID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("profile")
		}
		return insertTransactionTx(ctx, tx, profileID, kind, amount, ref, desc)
	})
}

func (p *PostgresStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO reviews(id, transfer_id, reviewer_id, reviewee_id, rating, comment, created_at)
			VALUES(:id, :transfer_id, :reviewer_id, :reviewee_id, :rating, :comment, :created_at)`, r); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReview
			}
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE profiles SET
			rating_avg = (rating_avg * rating_count + $1) / (rating_count + 1),
			rating_count = rating_count + 1,
			updated_at = NOW()
			WHERE id=$2`, r.Rating, r.RevieweeID)
		return err
	})
}

func (p *PostgresStore) ListReviewsByReviewee(ctx context.Context, revieweeID string) ([]models.Review, error) {
	out := []models.Review{}
	err := p.db.SelectContext(ctx, &out, `SELECT id, transfer_id, reviewer_id, reviewee_id, rating, comment, created_at FROM reviews WHERE reviewee_id=$1 ORDER BY created_at DESC`, revieweeID)
	return out, err
}

func (p *PostgresStore) ListTransactions(ctx context.Context, profileID string) ([]models.Transaction, error) {
	out := []models.Transaction{}
	err := p.db.SelectContext(ctx, &out, `SELECT id, profile_id, kind, amount, reference, description, created_at FROM transactions WHERE profile_id=$1 ORDER BY created_at DESC`, profileID)
	return out, err
}

func (p *PostgresStore) CreatePayout(ctx context.Context, po *models.Payout) error {
	if po.ID == "" {
		po.ID = uuid.NewString()
	}
	now := time.Now()
	po.CreatedAt, po.UpdatedAt = now, now
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO payouts(id, profile_id, amount, status, processor_id, failure_reason, created_at, updated_at)
		VALUES(:id, :profile_id, :amount, :status, :processor_id, :failure_reason, :created_at, :updated_at)`, po)
	return err
}

func (p *PostgresStore) UpdatePayout(ctx context.Context, po *models.Payout) error {
	po.UpdatedAt = time.Now()
	return p.execOne(ctx, "payout", `UPDATE payouts SET status=$1, processor_id=$2, failure_reason=$3, updated_at=$4 WHERE id=$5`,
		po.Status, po.ProcessorID, po.FailureReason, po.UpdatedAt, po.ID)
}

func (p *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`)
		VALUES(:id, :profile_id, :title, :body, :data, :read, :created_at)`, n)
	return err
}

func (p *PostgresStore) ListNotifications(ctx context.Context, profileID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []models.Notification{}
	err := p.db.SelectContext(ctx, &out, `SELECT `+notificationColumns+` FROM notifications WHERE profile_id=$1 ORDER BY created_at DESC LIMIT $2`, profileID, limit)
	return out, err
}

func (p *PostgresStore) MarkNotificationRead(ctx context.Context, profileID, id string) error {
	return p.execOne(ctx, "notification", `UPDATE notifications SET read=TRUE WHERE id=$1 AND profile_id=$2`, id, profileID)
}

func (p *PostgresStore) MarkAllNotificationsRead(ctx context.Context, profileID string) (int, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE profile_id=$1 AND read=FALSE`, profileID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *PostgresStore) UnreadCount(ctx context.Context, profileID string) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE profile_id=$1 AND read=FALSE`, profileID)
	return n, err
}

func (p *PostgresStore) Dashboard(ctx context.Context, profileID string) (*models.Dashboard, error) {
	pr, err := p.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	d := &models.Dashboard{Balance: pr.Balance, RatingAvg: pr.RatingAvg}
	row := p.db.QueryRowxContext(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status='completed')
		FROM transfers WHERE creator_id=$1`, profileID)
	if err := row.Scan(&d.TransfersTotal, &d.TransfersCompleted); err != nil {
		return nil, err
	}
	row = p.db.QueryRowxContext(ctx, `SELECT
			COALESCE(SUM(tp.seats_requested), 0),
			COALESCE(SUM(tp.total_price), 0)
		FROM transfer_participations tp
		JOIN transfers t ON t.id = tp.transfer_id
		WHERE t.creator_id=$1 AND tp.status IN ('paid','approved')`, profileID)
	if err := row.Scan(&d.SeatsSold, &d.GrossRevenue); err != nil {
		return nil, err
	}
	return d, nil
}
