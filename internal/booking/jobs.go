package booking

import (
	"context"
	"fmt"
	"time"
)

// reservationGrace keeps a reservation around a little past its expiry so a
// payment confirmed right at the deadline still finds it.
const reservationGrace = 10 * time.Minute

// ExpireReservations drops holds whose Pix code can no longer be paid.
func (s *Service) ExpireReservations(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredReservations(ctx, s.now().Add(-reservationGrace))
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	if n > 0 {
		s.log.Infow("expired reservations removed", "count", n)
	}
	return n, nil
}

// RemindUnfinalized nudges creators whose transfers departed but were never
// finalized. Each transfer is reminded once per guard lifetime.
func (s *Service) RemindUnfinalized(ctx context.Context) (int, error) {
	transfers, err := s.store.ListDepartedUnfinalized(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list departed transfers: %w", err)
	}
	sent := 0
	for _, t := range transfers {
		ok, err := s.guard.Claim(ctx, "remind-finalize:"+t.ID, 7*24*time.Hour)
		if err != nil {
			return sent, fmt.Errorf("claim reminder %s: %w", t.ID, err)
		}
		if !ok {
			continue
		}
		s.notify(ctx, t.CreatorID, "Finalize your transfer",
			fmt.Sprintf("%s -> %s has departed. Finalize it to open reviews.", t.Origin, t.Destination),
			map[string]string{"type": "transfer", "transfer_id": t.ID})
		sent++
	}
	return sent, nil
}
