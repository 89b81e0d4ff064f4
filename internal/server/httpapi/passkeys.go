package httpapi

import (
	"net/http"

	"github.com/HijjazD/CryptoVote/internal/common"
)

type verifyResponse struct {
	Success  bool      `json:"success"`
	Verified bool      `json:"verified"`
	Message  string    `json:"message,omitempty"`
	User     *userView `json:"user,omitempty"`
}

// handleInitPasskey answers with the bare creation options so the browser
// can pass them to navigator.credentials.create.
func (s *Server) handleInitPasskey(w http.ResponseWriter, r *http.Request) {
	const op = "passkey_register_begin"
	var req initPasskeyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	start, err := s.passkeys.InitRegistration(r.Context(), req.Token)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.cookies.setChallenge(w, start.ChallengeToken)
	s.ok(w, op, http.StatusOK, start.Options)
}

// handleVerifyPasskey clears the challenge cookie on every outcome.
func (s *Server) handleVerifyPasskey(w http.ResponseWriter, r *http.Request) {
	const op = "passkey_register"
	s.cookies.clearChallenge(w)

	token := cookieValue(r, challengeCookieName)
	if token == "" {
		s.failVerify(w, r, op, common.ErrChallengeMissing)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.failVerify(w, r, op, err)
		return
	}

	identity, err := s.passkeys.VerifyRegistration(r.Context(), token, body)
	if err != nil {
		s.failVerify(w, r, op, err)
		return
	}

	s.ok(w, op, http.StatusOK, verifyResponse{
		Success:  true,
		Verified: true,
		Message:  "passkey registered",
		User:     newUserView(identity),
	})
}

func (s *Server) handleAuthPasskey(w http.ResponseWriter, r *http.Request) {
	const op = "passkey_login_begin"
	var req authPasskeyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}

	start, err := s.passkeys.InitAuthentication(r.Context(), req.Matric)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	s.cookies.setChallenge(w, start.ChallengeToken)
	s.ok(w, op, http.StatusOK, start.Options)
}

// handleVerifyAuthPasskey clears the challenge cookie on every outcome and
// sets the session cookie only on success.
func (s *Server) handleVerifyAuthPasskey(w http.ResponseWriter, r *http.Request) {
	const op = "passkey_login"
	s.cookies.clearChallenge(w)

	token := cookieValue(r, challengeCookieName)
	if token == "" {
		s.failVerify(w, r, op, common.ErrChallengeMissing)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.failVerify(w, r, op, err)
		return
	}

	res, err := s.passkeys.VerifyAuthentication(r.Context(), token, body)
	if err != nil {
		s.failVerify(w, r, op, err)
		return
	}

	s.cookies.setSession(w, res.Session.Token)
	s.ok(w, op, http.StatusOK, verifyResponse{
		Success:  true,
		Verified: true,
		User:     newUserView(res.Identity),
	})
}
