package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
)

// ConnectAccount creates the profile's connected account on first use and
// returns a fresh onboarding link.
func (s *Service) ConnectAccount(ctx context.Context, profileID string) (string, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	if p.Role != models.RoleTransportista {
		return "", apperr.Forbidden("only transportistas receive payments")
	}
	accountID := p.StripeAccountID
	if accountID == "" {
		accountID, err = s.processor.CreateConnectedAccount(ctx, p.Email)
		if err != nil {
			return "", err
		}
		if err := s.store.SetStripeAccount(ctx, profileID, accountID); err != nil {
			return "", fmt.Errorf("save connected account: %w", err)
		}
		s.log.Infow("connected account created", "profile_id", profileID, "account_id", accountID)
	}
	return s.processor.CreateAccountLink(ctx, accountID, s.opts.ConnectRefreshURL, s.opts.ConnectReturnURL)
}

// RequestPayout withdraws part of the balance to the connected account. The
// balance is debited first; if the processor refuses, the debit is reversed
// and the payout is kept as failed.
func (s *Service) RequestPayout(ctx context.Context, profileID string, amount decimal.Decimal) (*models.Payout, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.StripeAccountID == "" || !p.PayoutsEnabled {
		return nil, apperr.Conflict("payouts are not enabled for this account")
	}

	payout := &models.Payout{ID: uuid.NewString(), ProfileID: profileID, Amount: amount, Status: models.PayoutPending}
	if err := s.store.DecrementBalance(ctx, profileID, amount, payout.ID); err != nil {
		return nil, err
	}
	if err := s.store.CreatePayout(ctx, payout); err != nil {
		s.reverseDebit(ctx, payout)
		return nil, fmt.Errorf("store payout: %w", err)
	}

	processorID, perr := s.processor.CreatePayout(ctx, p.StripeAccountID, lifecycle.ToCents(amount))
	if perr != nil {
		s.reverseDebit(ctx, payout)
		payout.Status = models.PayoutFailed
		payout.FailureReason = perr.Error()
		if err := s.store.UpdatePayout(ctx, payout); err != nil {
			s.log.Errorw("mark payout failed", "payout_id", payout.ID, "error", err)
		}
		return nil, perr
	}
	payout.Status = models.PayoutPaid
	payout.ProcessorID = processorID
	if err := s.store.UpdatePayout(ctx, payout); err != nil {
		// money already left; the record is reconciled from the processor side
		s.log.Errorw("mark payout paid", "payout_id", payout.ID, "processor_id", processorID, "error", err)
	}
	s.log.Infow("payout sent", "payout_id", payout.ID, "profile_id", profileID, "amount", amount.String())
	return payout, nil
}

func (s *Service) reverseDebit(ctx context.Context, payout *models.Payout) {
	if err := s.store.CreditBalance(ctx, payout.ProfileID, payout.Amount, models.TransactionRefund, payout.ID, "payout reversal"); err != nil {
		s.log.Errorw("payout reversal failed", "payout_id", payout.ID, "profile_id", payout.ProfileID, "amount", payout.Amount.String(), "error", err)
	}
}

type ReviewInput struct {
	ReviewerID string `json:"-"`
	TransferID string `json:"transfer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

// SubmitReview records a rating between the creator of a completed transfer
// and one of its paid participants, in either direction.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}
	if in.ReviewerID == in.RevieweeID {
		return nil, apperr.Validation("cannot review yourself")
	}
	t, err := s.store.GetTransfer(ctx, in.TransferID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TransferCompleted {
		return nil, apperr.Conflict("reviews open once the transfer is completed")
	}
	parts, err := s.store.ListParticipationsByTransfer(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	paid := map[string]bool{}
	for _, p := range parts {
		if lifecycle.Booked(p.Status) {
			paid[p.ProfileID] = true
		}
	}
	creatorToRider := in.ReviewerID == t.CreatorID && paid[in.RevieweeID]
	riderToCreator := in.RevieweeID == t.CreatorID && paid[in.ReviewerID]
	if !creatorToRider && !riderToCreator {
		return nil, apperr.Forbidden("only the driver and paid passengers of this transfer can review each other")
	}
	r := &models.Review{
		TransferID: t.ID,
		ReviewerID: in.ReviewerID,
		RevieweeID: in.RevieweeID,
		Rating:     in.Rating,
		Comment:    in.Comment,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return nil, err
	}
	s.notify(ctx, in.RevieweeID, "New review", fmt.Sprintf("You received %d star(s)", in.Rating),
		map[string]string{"type": "review", "transfer_id": t.ID, "review_id": r.ID})
	return r, nil
}
