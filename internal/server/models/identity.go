package models

import (
	"slices"
	"strings"
	"time"
)

// Device types reported for a passkey, derived from the backup-eligible flag.
const (
	DeviceSingle = "singleDevice"
	DeviceMulti  = "multiDevice"
)

// Identity is a registered student account keyed by matric number.
type Identity struct {
	ID            string
	Matric        string
	Email         string
	PasswordHash  []byte
	EmailVerified bool
	LastLogin     time.Time
	HasVoted      bool
	HasClaim      bool
	PublicAddress string

	VerificationToken          string
	VerificationTokenExpiresAt time.Time
	ResetToken                 string
	ResetTokenExpiresAt        time.Time

	Credentials []PasskeyCredential

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasskeyCredential is a WebAuthn public key bound to one identity.
type PasskeyCredential struct {
	ID              []byte
	PublicKey       []byte
	SignCount       uint32
	DeviceType      string
	BackedUp        bool
	BackupEligible  bool
	Transports      []string
	AttestationType string
	AAGUID          []byte
	CreatedAt       time.Time
}

// HasPassword reports whether a password has been set.
func (i *Identity) HasPassword() bool {
	return len(i.PasswordHash) > 0
}

// FindCredential returns the bound credential with the given id.
func (i *Identity) FindCredential(id []byte) (*PasskeyCredential, bool) {
	for k := range i.Credentials {
		if slices.Equal(i.Credentials[k].ID, id) {
			return &i.Credentials[k], true
		}
	}
	return nil, false
}

// AddCredential appends c, replacing an existing entry with the same id.
func (i *Identity) AddCredential(c PasskeyCredential) {
	if existing, ok := i.FindCredential(c.ID); ok {
		*existing = c
		return
	}
	i.Credentials = append(i.Credentials, c)
}

// ClearVerificationToken drops the email verification code.
func (i *Identity) ClearVerificationToken() {
	i.VerificationToken = ""
	i.VerificationTokenExpiresAt = time.Time{}
}

// ClearResetToken drops the reset/setup token.
func (i *Identity) ClearResetToken() {
	i.ResetToken = ""
	i.ResetTokenExpiresAt = time.Time{}
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.PasswordHash = slices.Clone(i.PasswordHash)
	if i.Credentials != nil {
		out.Credentials = make([]PasskeyCredential, len(i.Credentials))
		for k, c := range i.Credentials {
			out.Credentials[k] = c.Clone()
		}
	}
	return &out
}

func (c PasskeyCredential) Clone() PasskeyCredential {
	c.ID = slices.Clone(c.ID)
	c.PublicKey = slices.Clone(c.PublicKey)
	c.Transports = slices.Clone(c.Transports)
	c.AAGUID = slices.Clone(c.AAGUID)
	return c
}

// EmailFor derives the institutional address for a matric number.
func EmailFor(matric, domain string) string {
	return strings.ToLower(matric) + domain
}
