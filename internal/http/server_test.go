package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/booking"
	"github.com/example/van-transfers/internal/dedupe"
	"github.com/example/van-transfers/internal/dispatch"
	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/payments"
	"github.com/example/van-transfers/internal/storage"
)

const (
	testSecret = "test-secret"

	driverID = "6d1f3c2a-4b8e-4f5a-9c7d-1e2f3a4b5c6d"
	riderID  = "0b9e8d7c-6a5b-4c3d-8e2f-1a0b9c8d7e6f"
	newbieID = "3c4d5e6f-7a8b-4c9d-9e0f-1a2b3c4d5e6f"
)

type stubProcessor struct {
	intents int
	event   *payments.Event
	refunds []string
}

func (p *stubProcessor) CreatePixIntent(ctx context.Context, in payments.PixIntentParams) (*payments.PixIntent, error) {
	p.intents++
	return &payments.PixIntent{ID: fmt.Sprintf("pi_%d", p.intents), QRCodeData: "000201", AmountCents: in.AmountCents}, nil
}
func (p *stubProcessor) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	return "acct_new", nil
}
func (p *stubProcessor) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.example/" + accountID, nil
}
func (p *stubProcessor) CreatePayout(ctx context.Context, accountID string, amountCents int64) (string, error) {
	return "po_1", nil
}
func (p *stubProcessor) Refund(ctx context.Context, paymentIntentID string) error {
	p.refunds = append(p.refunds, paymentIntentID)
	return nil
}
func (p *stubProcessor) VerifyWebhook(payload []byte, signature string) (*payments.Event, error) {
	if signature != "good" || p.event == nil {
		return nil, fmt.Errorf("%w: bad signature", apperr.ErrValidation)
	}
	return p.event, nil
}

type testEnv struct {
	srv   *Server
	store *storage.MemoryStore
	proc  *stubProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	proc := &stubProcessor{}
	reg := dispatch.NewWSRegistry()
	notifier := &dispatch.Notifier{Store: store, Realtime: reg}
	svc := booking.NewService(store, proc, dedupe.NewMemoryGuard(), notifier, nil, booking.Options{FeePercent: decimal.NewFromInt(10)})

	require.NoError(t, store.CreateProfile(ctx, &models.Profile{
		ID: driverID, FullName: "Driver", Role: models.RoleTransportista, VerificationStatus: models.VerificationApproved,
		StripeAccountID: "acct_driver", Plan: models.PlanFree,
	}))
	require.NoError(t, store.CreateProfile(ctx, &models.Profile{ID: riderID, FullName: "Rider", Role: models.RolePassenger, VerificationStatus: models.VerificationApproved}))
	require.NoError(t, store.CreateTransfer(ctx, &models.Transfer{
		ID: "t1", CreatorID: driverID, Origin: "Florianópolis", Destination: "Garopaba",
		DepartureTime: time.Now().Add(24 * time.Hour), TotalSeats: 2, PricePerSeat: decimal.NewFromInt(50),
		Visibility: models.VisibilityPublic, Status: models.TransferAvailable,
	}))
	return &testEnv{srv: NewServer(store, svc, reg, nil, testSecret), store: store, proc: proc}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, sub string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sub != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, sub))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: riderID}).SignedString([]byte("other"))
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/me", "not-a-uuid", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndCreateProfile(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me", newbieID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/profiles", newbieID, map[string]string{"full_name": "New Person"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/v1/me", newbieID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, models.RolePassenger, p.Role)
}

func TestReserveOverbookingIsConflict(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]any{
		"seats": 3,
		"passengers": []map[string]string{
			{"full_name": "A", "document": "1"}, {"full_name": "B", "document": "2"}, {"full_name": "C", "document": "3"},
		},
	}
	rec := e.do(t, http.MethodPost, "/api/v1/transfers/t1/reservations", riderID, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, e.proc.intents)

	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.NotEmpty(t, eb.Error)
}

func TestReserveThenWebhookCreatesParticipation(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]any{"seats": 1, "passengers": []map[string]string{{"full_name": "A", "document": "1"}}}
	rec := e.do(t, http.MethodPost, "/api/v1/transfers/t1/reservations", riderID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	e.proc.event = &payments.Event{ID: "evt_1", Type: payments.EventPaymentSucceeded, PaymentIntentID: "pi_1"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString("{}"))
	req.Header.Set("Stripe-Signature", "good")
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/me/participations", riderID, nil)
	var parts []models.TransferParticipation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parts))
	require.Len(t, parts, 1)
	assert.Equal(t, models.ParticipationPaid, parts[0].Status)

	rec = e.do(t, http.MethodGet, "/api/v1/notifications/unread-count", driverID, nil)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestCreatorRejectsPaidBooking(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]any{"seats": 1, "passengers": []map[string]string{{"full_name": "A", "document": "1"}}}
	rec := e.do(t, http.MethodPost, "/api/v1/transfers/t1/reservations", riderID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	e.proc.event = &payments.Event{ID: "evt_1", Type: payments.EventPaymentSucceeded, PaymentIntentID: "pi_1"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString("{}"))
	req.Header.Set("Stripe-Signature", "good")
	e.srv.ServeHTTP(httptest.NewRecorder(), req)

	parts, err := e.store.ListParticipationsByTransfer(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, parts, 1)

	rec = e.do(t, http.MethodPost, "/api/v1/participations/"+parts[0].ID+"/status", riderID, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/participations/"+parts[0].ID+"/status", driverID, map[string]string{"status": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.TransferParticipation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.ParticipationRejected, got.Status)
	assert.Equal(t, []string{"pi_1"}, e.proc.refunds)

	tr, err := e.store.GetTransfer(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, tr.OccupiedSeats)
}

func TestRequestIDHeader(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestWebhookBadSignature(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString("{}"))
	req.Header.Set("Stripe-Signature", "forged")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardForbiddenWithoutEnterprise(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me/dashboard", driverID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/me/features", driverID, nil)
	assert.JSONEq(t, `{"dashboard":false,"create_transfer":true,"payouts":true}`, rec.Body.String())
}

func TestListTransfersFilters(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/transfers?origin=floria", riderID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ts []models.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
	assert.Len(t, ts, 1)

	rec = e.do(t, http.MethodGet, "/api/v1/transfers?destination=rio", riderID, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
	assert.Empty(t, ts)

	rec = e.do(t, http.MethodGet, "/api/v1/transfers?date=tomorrow", riderID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMineRouteIsNotShadowedByID(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/transfers/mine", driverID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ts []models.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
	assert.Len(t, ts, 1)
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		apperr.Validation("x"):                          http.StatusBadRequest,
		apperr.NotFound("transfer"):                     http.StatusNotFound,
		apperr.Forbidden("x"):                           http.StatusForbidden,
		storage.ErrInsufficientSeats:                    http.StatusConflict,
		fmt.Errorf("%w: declined", apperr.ErrProcessor): http.StatusBadGateway,
		apperr.ErrRateLimited:                           http.StatusTooManyRequests,
		errors.New("boom"):                              http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
