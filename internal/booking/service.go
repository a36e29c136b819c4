// Package booking implements the marketplace workflows: profiles and
// vehicles, transfer publishing, seat reservation with Pix payment, payment
// webhooks, finalization, reviews and payouts.
package booking

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/dedupe"
	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/payments"
	"github.com/example/van-transfers/internal/storage"
)

// Notifier delivers an in-app notification to a profile.
type Notifier interface {
	Notify(ctx context.Context, profileID, title, body string, data map[string]string) (*models.Notification, error)
}

type Options struct {
	FeePercent        decimal.Decimal
	ReservationTTL    time.Duration
	ConnectRefreshURL string
	ConnectReturnURL  string
	ReserveRatePerMin int
	ReserveBurst      int
	// EventTTL bounds how long a webhook event id stays claimed in the guard.
	EventTTL time.Duration
}

func (o *Options) withDefaults() {
	if o.ReservationTTL <= 0 {
		o.ReservationTTL = 30 * time.Minute
	}
	if o.ReserveRatePerMin <= 0 {
		o.ReserveRatePerMin = 6
	}
	if o.ReserveBurst <= 0 {
		o.ReserveBurst = 3
	}
	if o.EventTTL <= 0 {
		o.EventTTL = 72 * time.Hour
	}
}

type Service struct {
	store     storage.Store
	processor payments.Processor
	guard     dedupe.Guard
	notifier  Notifier
	log       *zap.SugaredLogger
	opts      Options
	now       func() time.Time

	limMu     sync.Mutex
	limiters  map[string]*profileLimiter
	lastSweep time.Time
}

// limiterIdle is how long an unused per-profile limiter is kept.
const limiterIdle = 10 * time.Minute

type profileLimiter struct {
	*rate.Limiter
	seen time.Time
}

func NewService(store storage.Store, processor payments.Processor, guard dedupe.Guard, notifier Notifier, log *zap.SugaredLogger, opts Options) *Service {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		store:     store,
		processor: processor,
		guard:     guard,
		notifier:  notifier,
		log:       log,
		opts:      opts,
		now:       time.Now,
		limiters:  make(map[string]*profileLimiter),
	}
}

// allow applies the per-profile reservation rate limit.
func (s *Service) allow(profileID string) bool {
	now := s.now()
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if now.Sub(s.lastSweep) >= limiterIdle {
		for id, l := range s.limiters {
			if now.Sub(l.seen) >= limiterIdle {
				delete(s.limiters, id)
			}
		}
		s.lastSweep = now
	}
	lim, ok := s.limiters[profileID]
	if !ok {
		lim = &profileLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.opts.ReserveRatePerMin)), s.opts.ReserveBurst)}
		s.limiters[profileID] = lim
	}
	lim.seen = now
	return lim.AllowN(now, 1)
}

// notify never fails the caller; the notification is secondary to the state
// change that triggered it.
func (s *Service) notify(ctx context.Context, profileID, title, body string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, profileID, title, body, data); err != nil {
		s.log.Warnw("notification failed", "profile_id", profileID, "title", title, "error", err)
	}
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	p, err := s.store.GetProfile(ctx, actorID)
	if err != nil {
		return err
	}
	if p.Role != models.RoleAdmin {
		return apperr.Forbidden("admin only")
	}
	return nil
}

// ownedTransfer loads a transfer and checks the actor created it.
func (s *Service) ownedTransfer(ctx context.Context, actorID, transferID string) (*models.Transfer, error) {
	t, err := s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != actorID {
		return nil, apperr.Forbidden("only the transfer creator can do this")
	}
	return t, nil
}
