package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"

	"github.com/example/van-transfers/internal/apperr"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, 200)
	}
	ns, err := s.Store.ListNotifications(r.Context(), profileIDFromContext(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.UnreadCount(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.MarkNotificationRead(r.Context(), profileIDFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.MarkAllNotificationsRead(r.Context(), profileIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// handleStripeWebhook answers 2xx for anything the processor should not
// resend, 400 for bad signatures and 500 to ask for redelivery.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	err = s.Booking.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.log.Errorw("webhook failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "webhook processing failed"})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// mobile clients send no Origin header; auth is by token
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams new notifications of the authenticated profile until the
// client disconnects. Clients send nothing; reads only detect closure.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("websocket upgrade failed", "profile_id", profileID, "error", err)
		return
	}
	sess := s.WSReg.Add(profileID, conn)
	defer s.WSReg.Remove(profileID, sess)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
