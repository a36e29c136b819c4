package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/example/van-transfers/internal/booking"
	"github.com/example/van-transfers/internal/models"
)

// publicProfile is what other users may see of a profile.
type publicProfile struct {
	ID                 string                    `json:"id"`
	FullName           string                    `json:"full_name"`
	Role               models.Role               `json:"role"`
	VerificationStatus models.VerificationStatus `json:"verification_status"`
	RatingAvg          float64                   `json:"rating_avg"`
	RatingCount        int                       `json:"rating_count"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.GetProfile(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in booking.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Booking.CreateProfile(r.Context(), profileIDFromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicProfile{
		ID: p.ID, FullName: p.FullName, Role: p.Role, VerificationStatus: p.VerificationStatus,
		RatingAvg: p.RatingAvg, RatingCount: p.RatingCount,
	})
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.UpdatePushToken(r.Context(), profileIDFromContext(r.Context()), in.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	f, err := s.Booking.Features(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Documents []string `json:"documents"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Booking.SubmitVerification(r.Context(), profileIDFromContext(r.Context()), in.Documents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReviewVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Booking.ReviewVerification(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"], in.Approve, in.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Plan models.Plan `json:"plan"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Booking.SetPlan(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"], in.Plan); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.Booking.Dashboard(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.Store.ListTransactions(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleMyParticipations(w http.ResponseWriter, r *http.Request) {
	parts, err := s.Store.ListParticipationsByProfile(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var in booking.VehicleInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.Booking.CreateVehicle(r.Context(), profileIDFromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := s.Store.ListVehiclesByOwner(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Store.ListReviewsByReviewee(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var in booking.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.ReviewerID = profileIDFromContext(r.Context())
	rev, err := s.Booking.SubmitReview(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	link, err := s.Booking.ConnectAccount(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Booking.RequestPayout(r.Context(), profileIDFromContext(r.Context()), in.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
