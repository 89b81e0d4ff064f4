package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HijjazD/CryptoVote/internal/common"
)

// validator is implemented by every request body.
type validator interface {
	Validate() error
}

type matricRequest struct {
	StudentMatric string `json:"studentMatric"`
}

func (r *matricRequest) Validate() error {
	r.StudentMatric = strings.TrimSpace(r.StudentMatric)
	if r.StudentMatric == "" {
		return common.NewValidationError("studentMatric", "matric number is required")
	}
	return nil
}

type verifyEmailRequest struct {
	VerificationCode string `json:"verificationCode"`
}

func (r *verifyEmailRequest) Validate() error {
	r.VerificationCode = strings.TrimSpace(r.VerificationCode)
	if r.VerificationCode == "" {
		return common.NewValidationError("verificationCode", "verification code is required")
	}
	return nil
}

type savePassRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r *savePassRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return common.NewValidationError("token", "token is required")
	}
	if r.Password == "" {
		return common.NewValidationError("password", "password is required")
	}
	return nil
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (r *resetPasswordRequest) Validate() error {
	if r.Password == "" {
		return common.NewValidationError("password", "password is required")
	}
	return nil
}

type loginRequest struct {
	StudentMatric string `json:"studentMatric"`
	Password      string `json:"password"`
}

func (r *loginRequest) Validate() error {
	r.StudentMatric = strings.TrimSpace(r.StudentMatric)
	if r.StudentMatric == "" {
		return common.NewValidationError("studentMatric", "matric number is required")
	}
	if r.Password == "" {
		return common.NewValidationError("password", "password is required")
	}
	return nil
}

type initPasskeyRequest struct {
	Token string `json:"token"`
}

func (r *initPasskeyRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return common.NewValidationError("token", "token is required")
	}
	return nil
}

// authPasskeyRequest keeps the original field name "matric".
type authPasskeyRequest struct {
	Matric string `json:"matric"`
}

func (r *authPasskeyRequest) Validate() error {
	r.Matric = strings.TrimSpace(r.Matric)
	if r.Matric == "" {
		return common.NewValidationError("matric", "matric number is required")
	}
	return nil
}

type claimTokenRequest struct {
	RecipientAddress string `json:"recipientAddress"`
}

func (r *claimTokenRequest) Validate() error {
	r.RecipientAddress = strings.TrimSpace(r.RecipientAddress)
	if r.RecipientAddress == "" {
		return common.NewValidationError("recipientAddress", "recipient address is required")
	}
	return nil
}

// decode reads a JSON body into v and validates it. Unknown fields are
// ignored, a malformed or oversized body is a validation error.
func decode(w http.ResponseWriter, r *http.Request, v validator) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return common.NewValidationError("", "invalid JSON body")
		}
	}
	return v.Validate()
}

// readBody returns the raw request body, bounded by maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, common.NewValidationError("", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, common.NewValidationError("", "unreadable request body")
	}
	return body, nil
}
