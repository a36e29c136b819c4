package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/booking"
	"github.com/example/van-transfers/internal/dispatch"
	"github.com/example/van-transfers/internal/storage"
)

type Server struct {
	Store   storage.Store
	Booking *booking.Service
	WSReg   *dispatch.WSRegistry

	log       *zap.SugaredLogger
	jwtSecret []byte
	mux       *mux.Router
}

func NewServer(store storage.Store, svc *booking.Service, wsreg *dispatch.WSRegistry, log *zap.SugaredLogger, jwtSecret string) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		Store:     store,
		Booking:   svc,
		WSReg:     wsreg,
		log:       log,
		jwtSecret: []byte(jwtSecret),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/webhooks/stripe", s.handleStripeWebhook).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/me", s.handleMe).Methods("GET")
	authed.HandleFunc("/me/push-token", s.handlePushToken).Methods("PUT")
	authed.HandleFunc("/me/features", s.handleFeatures).Methods("GET")
	authed.HandleFunc("/me/verification", s.handleSubmitVerification).Methods("POST")
	authed.HandleFunc("/me/dashboard", s.handleDashboard).Methods("GET")
	authed.HandleFunc("/me/transactions", s.handleTransactions).Methods("GET")
	authed.HandleFunc("/me/participations", s.handleMyParticipations).Methods("GET")

	authed.HandleFunc("/profiles", s.handleCreateProfile).Methods("POST")
	authed.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods("GET")
	authed.HandleFunc("/profiles/{id}/reviews", s.handleListReviews).Methods("GET")
	authed.HandleFunc("/admin/profiles/{id}/verification", s.handleReviewVerification).Methods("POST")
	authed.HandleFunc("/admin/profiles/{id}/plan", s.handleSetPlan).Methods("POST")

	authed.HandleFunc("/vehicles", s.handleCreateVehicle).Methods("POST")
	authed.HandleFunc("/vehicles", s.handleListVehicles).Methods("GET")

	authed.HandleFunc("/transfers", s.handleCreateTransfer).Methods("POST")
	authed.HandleFunc("/transfers", s.handleListTransfers).Methods("GET")
	authed.HandleFunc("/transfers/mine", s.handleMyTransfers).Methods("GET")
	authed.HandleFunc("/transfers/{id}", s.handleGetTransfer).Methods("GET")
	authed.HandleFunc("/transfers/{id}/participations", s.handleTransferParticipations).Methods("GET")
	authed.HandleFunc("/transfers/{id}/finalize", s.handleFinalizeTransfer).Methods("POST")
	authed.HandleFunc("/transfers/{id}/cancel", s.handleCancelTransfer).Methods("POST")
	authed.HandleFunc("/transfers/{id}/reservations", s.handleReserve).Methods("POST")

	authed.HandleFunc("/participations/{id}/status", s.handleParticipationStatus).Methods("POST")

	authed.HandleFunc("/reviews", s.handleSubmitReview).Methods("POST")

	authed.HandleFunc("/payments/connect", s.handleConnect).Methods("POST")
	authed.HandleFunc("/payouts", s.handlePayout).Methods("POST")

	authed.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	authed.HandleFunc("/notifications/unread-count", s.handleUnreadCount).Methods("GET")
	authed.HandleFunc("/notifications/read-all", s.handleReadAll).Methods("POST")
	authed.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("POST")

	authed.HandleFunc("/ws/notifications", s.handleWS).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.log.Warnw("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
