package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func transferRow(total, occupied int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "creator_id", "vehicle_id", "origin", "destination", "departure_time", "total_seats", "occupied_seats",
		"price_per_seat", "visibility", "status", "description", "created_at", "updated_at",
	}).AddRow("t1", "c1", "v1", "Florianópolis", "Garopaba", now.Add(time.Hour), total, occupied,
		"50.00", "public", "available", "", now, now)
}

func TestPostgresGetProfileNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM profiles WHERE id=\$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrementOccupiedSeatsRejectsOverflow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 3))
	mock.ExpectRollback()

	_, err := s.IncrementOccupiedSeats(context.Background(), "t1", 2)
	assert.ErrorIs(t, err, ErrInsufficientSeats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrementOccupiedSeatsMarksFull(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 2))
	mock.ExpectExec(`UPDATE transfers SET occupied_seats`).WithArgs(4, models.TransferFull, "t1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := s.IncrementOccupiedSeats(context.Background(), "t1", 2)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.OccupiedSeats)
	assert.Equal(t, models.TransferFull, tr.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHandleSuccessfulPaymentDuplicateEvent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO processed_events`).WithArgs("evt_1", "payment_intent.succeeded").
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	_, err := s.HandleSuccessfulPayment(context.Background(), models.PaymentSettlement{
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		CreatorID: "c1",
		Net:       decimal.NewFromInt(45),
		Reservation: models.Reservation{
			PaymentIntentID: "pi_1",
			TransferID:      "t1",
			ProfileID:       "r1",
			Seats:           1,
			Passengers:      models.PassengerList{{FullName: "Ana", Document: "123"}},
			Amount:          decimal.NewFromInt(50),
			Fee:             decimal.NewFromInt(5),
		},
	})
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDecrementBalanceInsufficient(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT balance FROM profiles WHERE id=\$1 FOR UPDATE`).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("10.00"))
	mock.ExpectRollback()

	err := s.DecrementBalance(context.Background(), "c1", decimal.NewFromInt(20), "po_1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkNotificationReadNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE notifications SET read=TRUE`).WithArgs("n1", "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkNotificationRead(context.Background(), "u1", "n1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetPayoutsEnabledByAccount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE profiles SET payouts_enabled=\$1, updated_at=NOW\(\) WHERE stripe_account_id=\$2`).
		WithArgs(true, "acct_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE profiles SET payouts_enabled`).
		WithArgs(true, "acct_unknown").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.SetPayoutsEnabled(context.Background(), "acct_1", true))
	assert.ErrorIs(t, s.SetPayoutsEnabled(context.Background(), "acct_unknown", true), apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTransferMalformedIDIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1`).WithArgs("abc").
		WillReturnError(&pq.Error{Code: invalidTextSyntax, Message: "invalid input syntax for type uuid"})

	_, err := s.GetTransfer(context.Background(), "abc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHandleSuccessfulPaymentSettles(t *testing.T) {
	s, mock := newMockStore(t)
	net, fee := decimal.NewFromInt(45), decimal.NewFromInt(5)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO processed_events`).WithArgs("evt_1", "payment_intent.succeeded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 1))
	mock.ExpectExec(`UPDATE transfers SET occupied_seats`).WithArgs(2, models.TransferAvailable, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transfer_participations`).
		WithArgs(sqlmock.AnyArg(), "t1", "r1", 1, sqlmock.AnyArg(), "pi_1", models.ParticipationPaid, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO passengers`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Ana", "123", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE profiles SET balance = balance \+ \$1`).WithArgs(net, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(sqlmock.AnyArg(), "c1", models.TransactionCredit, net, sqlmock.AnyArg(), "seat sale").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(sqlmock.AnyArg(), "c1", models.TransactionFee, fee, sqlmock.AnyArg(), "platform fee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM reservations WHERE payment_intent_id=\$1`).WithArgs("pi_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	part, err := s.HandleSuccessfulPayment(context.Background(), models.PaymentSettlement{
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		CreatorID: "c1",
		Net:       net,
		Reservation: models.Reservation{
			PaymentIntentID: "pi_1",
			TransferID:      "t1",
			ProfileID:       "r1",
			Seats:           1,
			Passengers:      models.PassengerList{{FullName: "Ana", Document: "123"}},
			Amount:          decimal.NewFromInt(50),
			Fee:             fee,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationPaid, part.Status)
	require.Len(t, part.Passengers, 1)
	assert.Equal(t, part.ID, part.Passengers[0].ParticipationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHandleSuccessfulPaymentRefusesCanceledTransfer(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	canceled := sqlmock.NewRows([]string{
		"id", "creator_id", "vehicle_id", "origin", "destination", "departure_time", "total_seats", "occupied_seats",
		"price_per_seat", "visibility", "status", "description", "created_at", "updated_at",
	}).AddRow("t1", "c1", "v1", "Florianópolis", "Garopaba", now.Add(time.Hour), 4, 0, "50.00", "public", "canceled", "", now, now)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO processed_events`).WithArgs("evt_1", "payment_intent.succeeded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(canceled)
	mock.ExpectRollback()

	_, err := s.HandleSuccessfulPayment(context.Background(), models.PaymentSettlement{
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		CreatorID: "c1",
		Net:       decimal.NewFromInt(45),
		Reservation: models.Reservation{
			PaymentIntentID: "pi_1", TransferID: "t1", ProfileID: "r1", Seats: 1,
			Passengers: models.PassengerList{{FullName: "Ana", Document: "123"}},
			Amount:     decimal.NewFromInt(50), Fee: decimal.NewFromInt(5),
		},
	})
	assert.ErrorIs(t, err, ErrTransferClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func participationRow(status models.ParticipationStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "transfer_id", "profile_id", "seats_requested", "total_price", "payment_intent_id", "status", "created_at", "updated_at",
	}).AddRow("p1", "t1", "r1", 2, "100.00", "pi_1", string(status), now, now)
}

func expectRejectUpToBalance(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfer_participations WHERE id=\$1 FOR UPDATE`).WithArgs("p1").
		WillReturnRows(participationRow(models.ParticipationPaid))
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 4))
	mock.ExpectQuery(`SELECT\s+COALESCE`).WithArgs("p1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"net", "fee"}).AddRow("90.00", "10.00"))
}

func TestPostgresRejectParticipation(t *testing.T) {
	s, mock := newMockStore(t)
	expectRejectUpToBalance(mock)
	mock.ExpectExec(`UPDATE profiles SET balance = balance - \$1, updated_at=NOW\(\) WHERE id=\$2 AND balance >= \$1`).
		WithArgs(decimal.RequireFromString("90.00"), "c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(sqlmock.AnyArg(), "c1", models.TransactionDebit, decimal.RequireFromString("90.00"), "p1", "booking rejected").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(sqlmock.AnyArg(), "c1", models.TransactionFee, decimal.RequireFromString("-10.00"), "p1", "platform fee reversed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transfers SET occupied_seats`).WithArgs(2, models.TransferAvailable, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transfer_participations SET status`).WithArgs(models.ParticipationRejected, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var refunded string
	part, err := s.RejectParticipation(context.Background(), "p1", func(p *models.TransferParticipation) error {
		refunded = p.PaymentIntentID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationRejected, part.Status)
	assert.Equal(t, "pi_1", refunded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectParticipationInsufficientBalance(t *testing.T) {
	s, mock := newMockStore(t)
	expectRejectUpToBalance(mock)
	mock.ExpectExec(`UPDATE profiles SET balance = balance - \$1`).
		WithArgs(decimal.RequireFromString("90.00"), "c1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	called := false
	_, err := s.RejectParticipation(context.Background(), "p1", func(*models.TransferParticipation) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectParticipationRollsBackOnRefundError(t *testing.T) {
	s, mock := newMockStore(t)
	expectRejectUpToBalance(mock)
	mock.ExpectExec(`UPDATE profiles SET balance = balance - \$1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transfers SET occupied_seats`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transfer_participations SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := s.RejectParticipation(context.Background(), "p1", func(*models.TransferParticipation) error {
		return apperr.ErrProcessor
	})
	assert.ErrorIs(t, err, apperr.ErrProcessor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCancelTransferChecksBookingsUnderLock(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transfer_participations WHERE transfer_id=\$1 AND status IN`).WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.CancelTransfer(context.Background(), "t1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCancelTransfer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transfer_participations`).WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`UPDATE transfers SET status='canceled'`).WithArgs("t1").WillReturnRows(transferRow(4, 0))
	mock.ExpectCommit()

	_, err := s.CancelTransfer(context.Background(), "t1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func profileRow(id string, status models.VerificationStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "phone", "role", "verification_status", "documents", "stripe_account_id",
		"payouts_enabled", "balance", "push_token", "plan", "rating_avg", "rating_count", "created_at", "updated_at",
	}).AddRow(id, "Driver", "", "", "transportista", string(status), `["https://docs.example/cnh.pdf"]`, "",
		false, "0.00", "", "free", 0.0, 0, now, now)
}

func TestPostgresUpdateVerification(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT verification_status FROM profiles WHERE id=\$1 FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow("pending"))
	mock.ExpectQuery(`UPDATE profiles SET verification_status=\$1, updated_at=NOW\(\) WHERE id=\$2 RETURNING`).
		WithArgs(models.VerificationApproved, "u1").WillReturnRows(profileRow("u1", models.VerificationApproved))
	mock.ExpectCommit()

	p, err := s.UpdateVerification(context.Background(), "u1", models.VerificationApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationApproved, p.VerificationStatus)
	assert.Equal(t, models.StringList{"https://docs.example/cnh.pdf"}, p.Documents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateVerificationInvalidTransition(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT verification_status FROM profiles WHERE id=\$1 FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow("onboarding"))
	mock.ExpectRollback()

	_, err := s.UpdateVerification(context.Background(), "u1", models.VerificationApproved, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinalizeTransfer(t *testing.T) {
	s, mock := newMockStore(t)
	later := time.Now().Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 2))
	mock.ExpectRollback()
	_, err := s.FinalizeTransfer(context.Background(), "t1", time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM transfers WHERE id=\$1 FOR UPDATE`).WithArgs("t1").WillReturnRows(transferRow(4, 2))
	mock.ExpectQuery(`UPDATE transfers SET status='completed', updated_at=\$1 WHERE id=\$2 RETURNING`).WithArgs(later, "t1").
		WillReturnRows(transferRow(4, 2))
	mock.ExpectCommit()
	_, err = s.FinalizeTransfer(context.Background(), "t1", later)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
