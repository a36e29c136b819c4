package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cast"

	"github.com/example/van-transfers/internal/apperr"
	"github.com/example/van-transfers/internal/booking"
	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/storage"
)

const defaultListLimit = 50

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var in booking.CreateTransferInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.CreatorID = profileIDFromContext(r.Context())
	t, err := s.Booking.CreateTransfer(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleListTransfers serves the public catalogue of upcoming transfers.
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.TransferFilter{
		Origin:      strings.TrimSpace(q.Get("origin")),
		Destination: strings.TrimSpace(q.Get("destination")),
		After:       time.Now(),
		Limit:       defaultListLimit,
	}
	if v := q.Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.writeError(w, r, apperr.Validation("date must be YYYY-MM-DD"))
			return
		}
		f.Date = d
	}
	if v := q.Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		f.Limit = min(n, 200)
	}
	ts, err := s.Store.ListTransfers(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleMyTransfers(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.ListTransfersByCreator(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTransfer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTransferParticipations(w http.ResponseWriter, r *http.Request) {
	parts, err := s.Booking.TransferParticipations(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) handleFinalizeTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.Booking.FinalizeTransfer(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.Booking.CancelTransfer(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req booking.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.TransferID = mux.Vars(r)["id"]
	req.ProfileID = profileIDFromContext(r.Context())
	res, err := s.Booking.Reserve(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleParticipationStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.ParticipationStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Booking.UpdateParticipationStatus(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"], in.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
