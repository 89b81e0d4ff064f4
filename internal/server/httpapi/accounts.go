package httpapi

import (
	"net/http"

	"github.com/HijjazD/CryptoVote/internal/common"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	const op = "signup"
	var req matricRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	identity, err := s.accounts.Signup(r.Context(), req.StudentMatric)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusCreated, successResponse{
		Success: true,
		Message: "user created, check your email for the verification code",
		User:    newUserView(identity),
	})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	const op = "resend_verification"
	var req matricRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	if err := s.accounts.ResendVerification(r.Context(), req.StudentMatric); err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{Success: true, Message: "verification code sent"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	const op = "verify_email"
	var req verifyEmailRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	res, err := s.accounts.VerifyEmail(r.Context(), req.VerificationCode)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.cookies.setSession(w, res.Session.Token)
	s.ok(w, op, http.StatusOK, successResponse{
		Success:        true,
		Message:        "email verified",
		User:           newUserView(res.Identity),
		SetupToken:     res.SetupToken,
		EmailDelivered: boolPtr(res.EmailDelivered),
	})
}

func (s *Server) handleSavePass(w http.ResponseWriter, r *http.Request) {
	const op = "save_password"
	var req savePassRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	identity, err := s.accounts.SetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusCreated, successResponse{
		Success: true,
		Message: "password saved",
		User:    newUserView(identity),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	res, err := s.accounts.Login(r.Context(), req.StudentMatric, req.Password)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.cookies.setSession(w, res.Session.Token)
	s.ok(w, op, http.StatusOK, successResponse{
		Success: true,
		Message: "logged in",
		User:    newUserView(res.Identity),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.cookies.clearSession(w)
	s.ok(w, "logout", http.StatusOK, successResponse{Success: true, Message: "logged out"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	const op = "forgot_password"
	var req matricRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	if err := s.accounts.ForgotPassword(r.Context(), req.StudentMatric); err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{Success: true, Message: "password reset link sent to your email"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "reset_password"
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	identity, delivered, err := s.accounts.ResetPassword(r.Context(), r.PathValue("token"), req.Password)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{
		Success:        true,
		Message:        "password reset successfully",
		User:           newUserView(identity),
		EmailDelivered: boolPtr(delivered),
	})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	const op = "check_auth"
	id, ok := IdentityID(r.Context())
	if !ok {
		s.fail(w, r, op, common.ErrorUnauthorized)
		return
	}

	identity, err := s.accounts.CurrentIdentity(r.Context(), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{Success: true, User: newUserView(identity)})
}

func (s *Server) handleVoteConfirmed(w http.ResponseWriter, r *http.Request) {
	const op = "vote_confirmed"
	id, ok := IdentityID(r.Context())
	if !ok {
		s.fail(w, r, op, common.ErrorUnauthorized)
		return
	}

	identity, delivered, err := s.accounts.ConfirmVote(r.Context(), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{
		Success:        true,
		Message:        "vote recorded",
		User:           newUserView(identity),
		EmailDelivered: boolPtr(delivered),
	})
}

func (s *Server) handleClaimToken(w http.ResponseWriter, r *http.Request) {
	const op = "claim_token"
	id, ok := IdentityID(r.Context())
	if !ok {
		s.fail(w, r, op, common.ErrorUnauthorized)
		return
	}

	var req claimTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	txHash, err := s.accounts.ClaimToken(r.Context(), id, req.RecipientAddress)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, successResponse{Success: true, TxHash: txHash})
}
