package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// ledger
	s.route(mux, "POST /limit/consume", s.requireAuth(s.handleConsume))
	s.route(mux, "GET /limits", s.requireAuth(s.handleLimits))

	// billing
	s.route(mux, "GET /plans", s.handlePlans)
	s.route(mux, "POST /checkout/order", s.rateLimited(s.optionalAuth(s.handleCreateOrder)))
	s.route(mux, "POST /checkout/verify", s.rateLimited(s.requireAuth(s.handleVerify)))
	s.route(mux, "GET /payments/history", s.requireAuth(s.handleHistory))

	// auth
	s.route(mux, "POST /auth/signup", s.rateLimited(s.handleSignup))
	s.route(mux, "POST /auth/login", s.rateLimited(s.handleLogin))
	s.route(mux, "POST /auth/refresh", s.rateLimited(s.handleRefresh))
	s.route(mux, "POST /auth/logout", s.requireAuth(s.handleLogout))
	s.route(mux, "POST /auth/change-password", s.rateLimited(s.requireAuth(s.handleChangePassword)))
	s.route(mux, "GET /me", s.requireAuth(s.handleMe))

	// tools
	s.route(mux, "GET /tools", s.handleListTools)
	s.route(mux, "POST /tools/{tool}/generate", s.requireAuth(s.handleGenerate))
	s.route(mux, "GET /tools/{tool}/chats", s.requireAuth(s.handleListChats))
	s.route(mux, "GET /tools/{tool}/chats/{id}", s.requireAuth(s.handleGetChat))

	// admin
	s.route(mux, "GET /admin/accounts", s.requireAdmin(s.handleListAccounts))
	s.route(mux, "POST /admin/accounts/{id}/reset-limits", s.requireAdmin(s.handleResetLimits))
	s.route(mux, "GET /admin/payments/export", s.requireAdmin(s.handleExportPayments))

	s.route(mux, "GET /healthz", s.handleHealth)

	metricsHandler := promhttp.Handler()
	if s.opts.PublicMetrics {
		s.route(mux, "GET /metrics", metricsHandler.ServeHTTP)
	} else {
		s.route(mux, "GET /metrics", s.requireAdmin(metricsHandler.ServeHTTP))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "NotFound", "route not found")
	})

	return s.withRequestID(s.withLogging(s.withRecover(mux)))
}

// route registers h under pattern and labels its metrics with the pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
