package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
	"github.com/stripe/stripe-go/v74/accountlink"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/payout"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/tidwall/gjson"

	"github.com/example/van-transfers/internal/apperr"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventAccountUpdated   = "account.updated"
)

// Processor is the subset of the payment processor the booking flow needs.
type Processor interface {
	CreatePixIntent(ctx context.Context, p PixIntentParams) (*PixIntent, error)
	CreateConnectedAccount(ctx context.Context, email string) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreatePayout(ctx context.Context, accountID string, amountCents int64) (string, error)
	Refund(ctx context.Context, paymentIntentID string) error
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

type PixIntentParams struct {
	AmountCents        int64
	FeeCents           int64
	DestinationAccount string
	CustomerEmail      string
	Description        string
	ExpiresAfter       time.Duration
	Metadata           map[string]string
}

// PixIntent is what the client needs to render the Pix code.
type PixIntent struct {
	ID          string    `json:"payment_intent_id"`
	QRCodeData  string    `json:"qr_code"`
	QRImageURL  string    `json:"qr_image_url,omitempty"`
	HostedURL   string    `json:"hosted_instructions_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	AmountCents int64     `json:"amount_cents"`
}

// Event is a verified webhook event reduced to the fields we route on.
type Event struct {
	ID              string
	Type            string
	PaymentIntentID string
	AccountID       string
	Metadata        map[string]string
	FailureMessage  string
	PayoutsEnabled  bool
}

// StripeClient is a thin wrapper around stripe-go for Pix intents,
// connected accounts, payouts and webhook verification.
type StripeClient struct {
	currency      string
	webhookSecret string
}

// NewStripeClient sets the global stripe key; stripe-go keeps it package-level.
func NewStripeClient(apiKey, webhookSecret, currency string) *StripeClient {
	stripe.Key = apiKey
	if currency == "" {
		currency = string(stripe.CurrencyBRL)
	}
	return &StripeClient{currency: currency, webhookSecret: webhookSecret}
}

// processorError keeps the processor's own message so it can be surfaced.
func processorError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		return fmt.Errorf("%w: %s: %s", apperr.ErrProcessor, op, serr.Msg)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrProcessor, op, err)
}

// CreatePixIntent creates and confirms a Pix PaymentIntent whose funds are
// routed to the creator's connected account minus the application fee.
func (s *StripeClient) CreatePixIntent(ctx context.Context, p PixIntentParams) (*PixIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(s.currency),
		PaymentMethodTypes:   stripe.StringSlice([]string{"pix"}),
		ApplicationFeeAmount: stripe.Int64(p.FeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
		Confirm: stripe.Bool(true),
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(p.CustomerEmail)
	}
	params.Context = ctx
	params.AddExtra("payment_method_data[type]", "pix")
	if p.ExpiresAfter > 0 {
		params.AddExtra("payment_method_options[pix][expires_after_seconds]", fmt.Sprintf("%d", int64(p.ExpiresAfter.Seconds())))
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, processorError("create payment intent", err)
	}
	out := &PixIntent{ID: pi.ID, AmountCents: pi.Amount}
	if pi.LastResponse != nil {
		parsePixAction(pi.LastResponse.RawJSON, out)
	}
	if out.QRCodeData == "" {
		return nil, fmt.Errorf("%w: payment intent %s has no pix code", apperr.ErrProcessor, pi.ID)
	}
	return out, nil
}

// parsePixAction reads next_action.pix_display_qr_code from the raw intent.
func parsePixAction(raw []byte, out *PixIntent) {
	action := gjson.GetBytes(raw, "next_action.pix_display_qr_code")
	if !action.Exists() {
		return
	}
	out.QRCodeData = action.Get("data").String()
	out.QRImageURL = action.Get("image_url_png").String()
	out.HostedURL = action.Get("hosted_instructions_url").String()
	if exp := action.Get("expires_at").Int(); exp > 0 {
		out.ExpiresAt = time.Unix(exp, 0).UTC()
	}
}

func (s *StripeClient) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String("BR"),
		Email:   stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	acct, err := account.New(params)
	if err != nil {
		return "", processorError("create account", err)
	}
	return acct.ID, nil
}

func (s *StripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", processorError("create account link", err)
	}
	return link.URL, nil
}

// CreatePayout pays out from the connected account's balance to its bank.
func (s *StripeClient) CreatePayout(ctx context.Context, accountID string, amountCents int64) (string, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(s.currency),
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	po, err := payout.New(params)
	if err != nil {
		return "", processorError("create payout", err)
	}
	return po.ID, nil
}

func (s *StripeClient) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(paymentIntentID),
		RefundApplicationFee: stripe.Bool(true),
		ReverseTransfer:      stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := refund.New(params); err != nil {
		return processorError("refund", err)
	}
	return nil
}

func (s *StripeClient) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %v", apperr.ErrValidation, err)
	}
	return eventFromStripe(evt.ID, string(evt.Type), evt.Data.Raw)
}

func eventFromStripe(id, typ string, raw json.RawMessage) (*Event, error) {
	out := &Event{ID: id, Type: typ}
	switch {
	case typ == EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out.AccountID = acct.ID
		out.PayoutsEnabled = acct.PayoutsEnabled
	case strings.HasPrefix(typ, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		out.Metadata = pi.Metadata
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}
