package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/server/models"
)

// userView is the public shape of an identity. Secrets and token fields are
// never serialized.
type userView struct {
	ID            string     `json:"_id"`
	StudentMatric string     `json:"studentMatric"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"isEmailVerified"`
	HasPassword   bool       `json:"hasPassword"`
	Passkeys      int        `json:"passkeys"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	HasVoted      bool       `json:"hasVoted"`
	HasClaim      bool       `json:"hasClaim"`
	PublicAddress string     `json:"publicAddress,omitempty"`
}

func newUserView(i *models.Identity) *userView {
	if i == nil {
		return nil
	}
	v := &userView{
		ID:            i.ID,
		StudentMatric: i.Matric,
		Email:         i.Email,
		EmailVerified: i.EmailVerified,
		HasPassword:   i.HasPassword(),
		Passkeys:      len(i.Credentials),
		HasVoted:      i.HasVoted,
		HasClaim:      i.HasClaim,
		PublicAddress: i.PublicAddress,
	}
	if !i.LastLogin.IsZero() {
		last := i.LastLogin.UTC()
		v.LastLogin = &last
	}
	return v
}

type successResponse struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message,omitempty"`
	User           *userView `json:"user,omitempty"`
	SetupToken     string    `json:"setupToken,omitempty"`
	EmailDelivered *bool     `json:"emailDelivered,omitempty"`
	TxHash         string    `json:"txHash,omitempty"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type verifyFailureResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error"`
}

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable is matched in order with errors.Is.
var errorTable = []errorMapping{
	{common.ErrAlreadyExists, http.StatusConflict, "user already exists"},
	{common.ErrAlreadyClaimed, http.StatusConflict, "tokens already claimed"},
	{common.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid or expired token"},
	{common.ErrInvalidCredentials, http.StatusBadRequest, "invalid credentials"},
	{common.ErrChallengeMissing, http.StatusBadRequest, "passkey challenge missing or expired"},
	{common.ErrCredentialNotFound, http.StatusBadRequest, "credential not found"},
	{common.ErrVerificationFailed, http.StatusBadRequest, "passkey verification failed"},
	{common.ErrInvalidHandle, http.StatusBadRequest, "invalid matric number"},
	{common.ErrNoCredentials, http.StatusBadRequest, "no passkeys registered, log in with your password"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrIdentityNotFound, http.StatusNotFound, "user not found"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{common.ErrDownstream, http.StatusBadGateway, "upstream service unavailable, try again later"},
}

// statusFor maps a service error to an HTTP status and a caller-safe
// message. Validation messages are passed through verbatim.
func statusFor(err error) (int, string) {
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error()
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ok records a successful operation and writes payload.
func (s *Server) ok(w http.ResponseWriter, op string, status int, payload any) {
	s.metrics.AuthOutcome(op, nil)
	writeJSON(w, status, payload)
}

// fail records a failed operation and writes {success:false, message}.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := s.logFailure(r, op, err)
	_, message := statusFor(err)
	writeJSON(w, status, failureResponse{Success: false, Message: message})
}

// failVerify is fail for the ceremony verify routes, which answer
// {verified:false, error}.
func (s *Server) failVerify(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := s.logFailure(r, op, err)
	_, message := statusFor(err)
	writeJSON(w, status, verifyFailureResponse{Verified: false, Error: message})
}

func (s *Server) logFailure(r *http.Request, op string, err error) int {
	s.metrics.AuthOutcome(op, err)
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "op", op, "status", status, "error", err)
	} else {
		s.logger.Debug(r.Context(), "request rejected", "op", op, "status", status, "error", err)
	}
	return status
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, "rate_limit", common.ErrRateLimited)
}

func boolPtr(b bool) *bool { return &b }
