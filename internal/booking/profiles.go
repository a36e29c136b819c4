package booking

import (
	"context"
	"net/url"
	"strings"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/lifecycle"
	"github.com/example/van-transfers/internal/models"
)

type ProfileInput struct {
	FullName string      `json:"full_name"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role"`
}

// CreateProfile registers the authenticated user. Passengers need no
// verification; transportistas start onboarding and must submit documents.
func (s *Service) CreateProfile(ctx context.Context, id string, in ProfileInput) (*models.Profile, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, apperr.Validation("full_name is required")
	}
	if in.Role == "" {
		in.Role = models.RolePassenger
	}
	p := &models.Profile{
		ID:       id,
		FullName: strings.TrimSpace(in.FullName),
		Email:    strings.TrimSpace(in.Email),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		Plan:     models.PlanFree,
	}
	switch in.Role {
	case models.RolePassenger:
		p.VerificationStatus = models.VerificationApproved
	case models.RoleTransportista:
		p.VerificationStatus = models.VerificationOnboarding
	default:
		return nil, apperr.Validation("role must be passenger or transportista")
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SubmitVerification moves a transportista to pending review with the given
// document URLs.
func (s *Service) SubmitVerification(ctx context.Context, profileID string, docs []string) (*models.Profile, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.Role != models.RoleTransportista {
		return nil, apperr.Validation("only transportistas submit verification documents")
	}
	if len(docs) == 0 {
		return nil, apperr.Validation("at least one document is required")
	}
	for _, d := range docs {
		u, err := url.Parse(d)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, apperr.Validation("document %q is not a valid URL", d)
		}
	}
	return s.store.UpdateVerification(ctx, profileID, models.VerificationPending, models.StringList(docs))
}

// ReviewVerification is the admin decision on a pending verification.
func (s *Service) ReviewVerification(ctx context.Context, adminID, profileID string, approve bool, reason string) (*models.Profile, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	to := models.VerificationRejected
	if approve {
		to = models.VerificationApproved
	}
	p, err := s.store.UpdateVerification(ctx, profileID, to, nil)
	if err != nil {
		return nil, err
	}
	body := "Your account was approved. You can now publish transfers."
	if !approve {
		body = "Your verification was rejected."
		if reason != "" {
			body += " " + reason
		}
	}
	s.notify(ctx, profileID, "Verification "+string(to), body, map[string]string{"type": "verification"})
	return p, nil
}

func (s *Service) SetPlan(ctx context.Context, adminID, profileID string, plan models.Plan) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	switch plan {
	case models.PlanFree, models.PlanPro, models.PlanEnterprise:
	default:
		return apperr.Validation("unknown plan %q", plan)
	}
	return s.store.SetPlan(ctx, profileID, plan)
}

func (s *Service) Features(ctx context.Context, profileID string) (map[string]bool, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return lifecycle.Features(p), nil
}

// Dashboard is an enterprise plan feature.
func (s *Service) Dashboard(ctx context.Context, profileID string) (*models.Dashboard, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Features(p)[lifecycle.FeatureDashboard] {
		return nil, apperr.Forbidden("dashboard requires the enterprise plan")
	}
	return s.store.Dashboard(ctx, profileID)
}

type VehicleInput struct {
	Model    string `json:"model"`
	Plate    string `json:"plate"`
	Color    string `json:"color"`
	Capacity int    `json:"capacity"`
}

func (s *Service) CreateVehicle(ctx context.Context, ownerID string, in VehicleInput) (*models.Vehicle, error) {
	if strings.TrimSpace(in.Model) == "" || strings.TrimSpace(in.Plate) == "" {
		return nil, apperr.Validation("model and plate are required")
	}
	if in.Capacity <= 0 {
		return nil, apperr.Validation("capacity must be greater than zero")
	}
	owner, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.Role != models.RoleTransportista {
		return nil, apperr.Forbidden("only transportistas register vehicles")
	}
	v := &models.Vehicle{
		OwnerID:  ownerID,
		Model:    strings.TrimSpace(in.Model),
		Plate:    strings.ToUpper(strings.TrimSpace(in.Plate)),
		Color:    in.Color,
		Capacity: in.Capacity,
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
