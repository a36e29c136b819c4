package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex, so every method is
// atomic with respect to the others.
type MemoryStore struct {
	mu             sync.RWMutex
	profiles       map[string]*models.Profile
	vehicles       map[string]*models.Vehicle
	transfers      map[string]*models.Transfer
	reservations   map[string]*models.Reservation
	participations map[string]*models.TransferParticipation
	passengers     map[string][]models.Passenger
	reviews        []models.Review
	transactions   []models.Transaction
	payouts        map[string]*models.Payout
	notifications  map[string]*models.Notification
	events         map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:       make(map[string]*models.Profile),
		vehicles:       make(map[string]*models.Vehicle),
		transfers:      make(map[string]*models.Transfer),
		reservations:   make(map[string]*models.Reservation),
		participations: make(map[string]*models.TransferParticipation),
		passengers:     make(map[string][]models.Passenger),
		payouts:        make(map[string]*models.Payout),
		notifications:  make(map[string]*models.Notification),
		events:         make(map[string]time.Time),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := m.profiles[p.ID]; ok {
		return apperr.Conflict("profile %s already exists", p.ID)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePushToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return apperr.NotFound("profile")
	}
	p.PushToken = token
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateVerification(ctx context.Context, id string, to models.VerificationStatus, docs models.StringList) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	if !lifecycle.CanTransitionVerification(p.VerificationStatus, to) {
		return nil, ErrInvalidTransition
	}
	p.VerificationStatus = to
	if docs != nil {
		p.Documents = append(models.StringList(nil), docs...)
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) SetStripeAccount(ctx context.Context, id, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return apperr.NotFound("profile")
	}
	p.StripeAccountID = accountID
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetPayoutsEnabled(ctx context.Context, accountID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.StripeAccountID != "" && p.StripeAccountID == accountID {
			p.PayoutsEnabled = enabled
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return apperr.NotFound("profile")
}

func (m *MemoryStore) SetPlan(ctx context.Context, id string, plan models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return apperr.NotFound("profile")
	}
	p.Plan = plan
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now()
	v.CreatedAt, v.UpdatedAt = now, now
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (m *MemoryStore) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, apperr.NotFound("vehicle")
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) ListVehiclesByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Vehicle{}
	for _, v := range m.vehicles {
		if v.OwnerID == ownerID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	m.transfers[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTransfers(ctx context.Context, f TransferFilter) ([]models.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transfer{}
	for _, t := range m.transfers {
		if t.Visibility != models.VisibilityPublic || t.Status != models.TransferAvailable {
			continue
		}
		if f.Origin != "" && !strings.Contains(strings.ToLower(t.Origin), strings.ToLower(f.Origin)) {
			continue
		}
		if f.Destination != "" && !strings.Contains(strings.ToLower(t.Destination), strings.ToLower(f.Destination)) {
			continue
		}
		if !f.After.IsZero() && !t.DepartureTime.After(f.After) {
			continue
		}
		if !f.Date.IsZero() {
			y1, m1, d1 := t.DepartureTime.Date()
			y2, m2, d2 := f.Date.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListTransfersByCreator(ctx context.Context, creatorID string) ([]models.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transfer{}
	for _, t := range m.transfers {
		if t.CreatorID == creatorID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.After(out[j].DepartureTime) })
	return out, nil
}

func (m *MemoryStore) ListDepartedUnfinalized(ctx context.Context, now time.Time) ([]models.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transfer{}
	for _, t := range m.transfers {
		if lifecycle.CanFinalize(t, now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateTransferStatus(ctx context.Context, id string, to models.TransferStatus) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	if !lifecycle.CanTransitionTransfer(t.Status, to) {
		return nil, ErrInvalidTransition
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateReservation(ctx context.Context, r *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now()
	cp := *r
	cp.Passengers = append(models.PassengerList(nil), r.Passengers...)
	m.reservations[r.PaymentIntentID] = &cp
	return nil
}

func (m *MemoryStore) GetReservation(ctx context.Context, paymentIntentID string) (*models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[paymentIntentID]
	if !ok {
		return nil, apperr.NotFound("reservation")
	}
	cp := *r
	cp.Passengers = append(models.PassengerList(nil), r.Passengers...)
	return &cp, nil
}

func (m *MemoryStore) DeleteReservation(ctx context.Context, paymentIntentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, paymentIntentID)
	return nil
}

func (m *MemoryStore) DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.reservations {
		if r.ExpiresAt.Before(now) {
			delete(m.reservations, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetParticipation(ctx context.Context, id string) (*models.TransferParticipation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participations[id]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	return m.participationCopy(p), nil
}

func (m *MemoryStore) participationCopy(p *models.TransferParticipation) *models.TransferParticipation {
	cp := *p
	cp.Passengers = append([]models.Passenger(nil), m.passengers[p.ID]...)
	return &cp
}

func (m *MemoryStore) ListParticipationsByTransfer(ctx context.Context, transferID string) ([]models.TransferParticipation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listParticipations(func(p *models.TransferParticipation) bool { return p.TransferID == transferID }), nil
}

func (m *MemoryStore) ListParticipationsByProfile(ctx context.Context, profileID string) ([]models.TransferParticipation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listParticipations(func(p *models.TransferParticipation) bool { return p.ProfileID == profileID }), nil
}

func (m *MemoryStore) listParticipations(keep func(*models.TransferParticipation) bool) []models.TransferParticipation {
	out := []models.TransferParticipation{}
	for _, p := range m.participations {
		if keep(p) {
			out = append(out, *m.participationCopy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) IncrementOccupiedSeats(ctx context.Context, transferID string, seats int) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(transferID, seats)
}

func (m *MemoryStore) incrementLocked(transferID string, seats int) (*models.Transfer, error) {
	t, ok := m.transfers[transferID]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	if t.Status == models.TransferCanceled || t.Status == models.TransferCompleted {
		return nil, ErrTransferClosed
	}
	if t.OccupiedSeats+seats > t.TotalSeats {
		return nil, ErrInsufficientSeats
	}
	t.OccupiedSeats += seats
	t.Status = lifecycle.DeriveStatus(t)
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) HandleSuccessfulPayment(ctx context.Context, s models.PaymentSettlement) (*models.TransferParticipation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[s.EventID]; ok {
		return nil, ErrDuplicateEvent
	}
	r := s.Reservation
	for _, p := range m.participations {
		if p.PaymentIntentID == r.PaymentIntentID {
			return nil, ErrDuplicateEvent
		}
	}
	if err := lifecycle.ValidatePassengers(r.Seats, r.Passengers); err != nil {
		return nil, err
	}
	creator, ok := m.profiles[s.CreatorID]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	// seats are checked first so a failure leaves nothing half-written
	if _, err := m.incrementLocked(r.TransferID, r.Seats); err != nil {
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
	m.participations[part.ID] = part
	ps := make([]models.Passenger, 0, len(r.Passengers))
	for _, p := range r.Passengers {
		p.ID = uuid.NewString()
		p.ParticipationID = part.ID
		ps = append(ps, p)
	}
	m.passengers[part.ID] = ps

	creator.Balance = creator.Balance.Add(s.Net)
	creator.UpdatedAt = now
	m.transactions = append(m.transactions,
		models.Transaction{ID: uuid.NewString(), ProfileID: creator.ID, Kind: models.TransactionCredit, Amount: s.Net, Reference: part.ID, Description: "seat sale", CreatedAt: now},
		models.Transaction{ID: uuid.NewString(), ProfileID: creator.ID, Kind: models.TransactionFee, Amount: r.Fee, Reference: part.ID, Description: "platform fee", CreatedAt: now},
	)
	m.events[s.EventID] = now
	delete(m.reservations, r.PaymentIntentID)
	return m.participationCopy(part), nil
}

func (m *MemoryStore) UpdateParticipationStatus(ctx context.Context, id string, to models.ParticipationStatus) (*models.TransferParticipation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participations[id]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	if !lifecycle.CanTransitionParticipation(p.Status, to) {
		return nil, ErrInvalidTransition
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return m.participationCopy(p), nil
}

// RejectParticipation releases the seats of a booked participation, reverses
// the creator's credit and fee entries and refunds the passenger.
func (m *MemoryStore) RejectParticipation(ctx context.Context, id string, refund RefundFunc) (*models.TransferParticipation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participations[id]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	if !lifecycle.CanTransitionParticipation(p.Status, models.ParticipationRejected) {
		return nil, ErrInvalidTransition
	}
	t, ok := m.transfers[p.TransferID]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	if t.Status == models.TransferCanceled || t.Status == models.TransferCompleted {
		return nil, ErrTransferClosed
	}
	creator, ok := m.profiles[t.CreatorID]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	net, fee := decimal.Zero, decimal.Zero
	if lifecycle.Booked(p.Status) {
		for _, tx := range m.transactions {
			if tx.Reference != p.ID || tx.ProfileID != creator.ID {
				continue
			}
			switch tx.Kind {
			case models.TransactionCredit:
				net = net.Add(tx.Amount)
			case models.TransactionFee:
				fee = fee.Add(tx.Amount)
			}
		}
		if creator.Balance.LessThan(net) {
			return nil, ErrInsufficientBalance
		}
	}
	if refund != nil {
		if err := refund(m.participationCopy(p)); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if lifecycle.Booked(p.Status) {
		t.OccupiedSeats -= p.SeatsRequested
		if t.OccupiedSeats < 0 {
			t.OccupiedSeats = 0
		}
		t.Status = lifecycle.DeriveStatus(t)
		t.UpdatedAt = now
		creator.Balance = creator.Balance.Sub(net)
		creator.UpdatedAt = now
		m.transactions = append(m.transactions,
			models.Transaction{ID: uuid.NewString(), ProfileID: creator.ID, Kind: models.TransactionDebit, Amount: net, Reference: p.ID, Description: "booking rejected", CreatedAt: now},
			models.Transaction{ID: uuid.NewString(), ProfileID: creator.ID, Kind: models.TransactionFee, Amount: fee.Neg(), Reference: p.ID, Description: "platform fee reversed", CreatedAt: now},
		)
	}
	p.Status = models.ParticipationRejected
	p.UpdatedAt = now
	return m.participationCopy(p), nil
}

// CancelTransfer cancels a transfer nobody holds seats on.
func (m *MemoryStore) CancelTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	booked := 0
	for _, p := range m.participations {
		if p.TransferID == id && lifecycle.Booked(p.Status) {
			booked++
		}
	}
	if err := lifecycle.CanCancel(t, booked); err != nil {
		return nil, err
	}
	t.Status = models.TransferCanceled
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) FinalizeTransfer(ctx context.Context, id string, now time.Time) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, apperr.NotFound("transfer")
	}
	if !lifecycle.CanFinalize(t, now) {
		return nil, ErrInvalidTransition
	}
	t.Status = models.TransferCompleted
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) DecrementBalance(ctx context.Context, profileID string, amount decimal.Decimal, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return apperr.NotFound("profile")
	}
	if p.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	p.Balance = p.Balance.Sub(amount)
	p.UpdatedAt = time.Now()
	m.transactions = append(m.transactions, models.Transaction{
		ID: uuid.NewString(), ProfileID: profileID, Kind: models.TransactionDebit, Amount: amount, Reference: ref, Description: "payout", CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) CreditBalance(ctx context.Context, profileID string, amount decimal.Decimal, kind models.TransactionKind, ref, desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return apperr.NotFound("profile")
	}
	p.Balance = p.Balance.Add(amount)
	p.UpdatedAt = time.Now()
	m.transactions = append(m.transactions, models.Transaction{
		ID: uuid.NewString(), ProfileID: profileID, Kind: kind, Amount: amount, Reference: ref, Description: desc, CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) CreateReview(ctx context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.TransferID == r.TransferID && existing.ReviewerID == r.ReviewerID && existing.RevieweeID == r.RevieweeID {
			return ErrDuplicateReview
		}
	}
	reviewee, ok := m.profiles[r.RevieweeID]
	if !ok {
		return apperr.NotFound("profile")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	m.reviews = append(m.reviews, *r)
	total := reviewee.RatingAvg*float64(reviewee.RatingCount) + float64(r.Rating)
	reviewee.RatingCount++
	reviewee.RatingAvg = total / float64(reviewee.RatingCount)
	return nil
}

func (m *MemoryStore) ListReviewsByReviewee(ctx context.Context, revieweeID string) ([]models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if r.RevieweeID == revieweeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, profileID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].ProfileID == profileID {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePayout(ctx context.Context, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdatePayout(ctx context.Context, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; !ok {
		return apperr.NotFound("payout")
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

// Payout returns a stored payout; used by tests.
func (m *MemoryStore) Payout(id string) (*models.Payout, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (m *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, profileID string, limit int) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range m.notifications {
		if n.ProfileID == profileID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, profileID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.ProfileID != profileID {
		return apperr.NotFound("notification")
	}
	n.Read = true
	return nil
}

func (m *MemoryStore) MarkAllNotificationsRead(ctx context.Context, profileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.ProfileID == profileID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) UnreadCount(ctx context.Context, profileID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.ProfileID == profileID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Dashboard(ctx context.Context, profileID string) (*models.Dashboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	d := &models.Dashboard{Balance: p.Balance, RatingAvg: p.RatingAvg, GrossRevenue: decimal.Zero}
	mine := map[string]bool{}
	for _, t := range m.transfers {
		if t.CreatorID != profileID {
			continue
		}
		mine[t.ID] = true
		d.TransfersTotal++
		if t.Status == models.TransferCompleted {
			d.TransfersCompleted++
		}
	}
	for _, part := range m.participations {
		if mine[part.TransferID] && lifecycle.Booked(part.Status) {
			d.SeatsSold += part.SeatsRequested
			d.GrossRevenue = d.GrossRevenue.Add(part.TotalPrice)
		}
	}
	return d, nil
}
