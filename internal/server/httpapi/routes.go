package httpapi

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// limited routes either consume a guessable secret or send email
	limited := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, s.limiter.Middleware(h, s.writeRateLimited)))
	}
	open := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, h))
	}
	gated := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, s.RequireSession(h)))
	}

	limited("POST "+apiPrefix+"/signup", s.handleSignup)
	limited("POST "+apiPrefix+"/resend-verification", s.handleResendVerification)
	limited("POST "+apiPrefix+"/verify-email", s.handleVerifyEmail)
	limited("POST "+apiPrefix+"/save-pass", s.handleSavePass)
	limited("POST "+apiPrefix+"/login", s.handleLogin)
	limited("POST "+apiPrefix+"/forgot-password", s.handleForgotPassword)
	limited("POST "+apiPrefix+"/reset-password/{token}", s.handleResetPassword)
	limited("POST "+apiPrefix+"/auth-passkey", s.handleAuthPasskey)

	open("POST "+apiPrefix+"/init-passkey", s.handleInitPasskey)
	open("POST "+apiPrefix+"/verify-passkey", s.handleVerifyPasskey)
	open("POST "+apiPrefix+"/verify-auth-passkey", s.handleVerifyAuthPasskey)
	open("POST "+apiPrefix+"/logout", s.handleLogout)

	gated("GET "+apiPrefix+"/check-auth", s.handleCheckAuth)
	gated("POST "+apiPrefix+"/vote-confirmed", s.handleVoteConfirmed)
	gated("POST "+apiPrefix+"/claim-token", s.handleClaimToken)
	// camelCase paths used by the existing frontend
	gated("POST "+apiPrefix+"/voteConfirmed", s.handleVoteConfirmed)
	gated("POST "+apiPrefix+"/claimToken", s.handleClaimToken)

	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
