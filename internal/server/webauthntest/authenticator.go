// Package webauthntest provides a software authenticator that produces
// well-formed WebAuthn registration and assertion responses. It signs with a
// P-256 key and uses the "none" attestation format, so responses pass a real
// relying party exactly when the challenge, origin and counter are right.
package webauthntest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttestedData = 0x40

	// COSE identifiers for an EC2 P-256 ES256 key.
	coseKeyType   = 1
	coseAlg       = 3
	coseCurve     = -1
	coseX         = -2
	coseY         = -3
	coseKtyEC2    = 2
	coseAlgES256  = -7
	coseCurveP256 = 1
)

// Authenticator holds one credential for one relying party.
type Authenticator struct {
	RPID   string
	Origin string
	// UserHandle is echoed in assertions when set.
	UserHandle []byte

	key *ecdsa.PrivateKey
	id  []byte
}

// New creates an authenticator with a fresh key and a random 16-byte
// credential id.
func New(rpID, origin string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &Authenticator{RPID: rpID, Origin: origin, key: key, id: id}, nil
}

// CredentialID is the raw credential id.
func (a *Authenticator) CredentialID() []byte {
	return a.id
}

// Challenge encodes raw challenge bytes the way browsers put them into
// clientDataJSON.
func Challenge(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Register answers navigator.credentials.create for challenge (base64url)
// and returns the JSON body a browser would post.
func (a *Authenticator) Register(challenge string, transports ...string) ([]byte, error) {
	clientData, err := a.clientData("webauthn.create", challenge)
	if err != nil {
		return nil, err
	}

	publicKey, err := webauthncbor.Marshal(map[int]any{
		coseKeyType: coseKtyEC2,
		coseAlg:     coseAlgES256,
		coseCurve:   coseCurveP256,
		coseX:       a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		coseY:       a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	authData := a.authData(flagUserPresent|flagUserVerified|flagAttestedData, 0)
	authData = append(authData, make([]byte, 16)...) // AAGUID
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.id)))
	authData = append(authData, a.id...)
	authData = append(authData, publicKey...)

	attestation, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation: %w", err)
	}

	if transports == nil {
		transports = []string{}
	}
	return json.Marshal(map[string]any{
		"id":    base64.RawURLEncoding.EncodeToString(a.id),
		"rawId": base64.RawURLEncoding.EncodeToString(a.id),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attestation),
			"transports":        transports,
		},
	})
}

// Assert answers navigator.credentials.get for challenge (base64url),
// reporting signCount, and returns the JSON body a browser would post.
func (a *Authenticator) Assert(challenge string, signCount uint32) ([]byte, error) {
	clientData, err := a.clientData("webauthn.get", challenge)
	if err != nil {
		return nil, err
	}

	authData := a.authData(flagUserPresent|flagUserVerified, signCount)
	clientDataHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientDataHash[:]...))

	signature, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	response := map[string]any{
		"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
		"authenticatorData": base64.RawURLEncoding.EncodeToString(authData),
		"signature":         base64.RawURLEncoding.EncodeToString(signature),
	}
	if len(a.UserHandle) > 0 {
		response["userHandle"] = base64.RawURLEncoding.EncodeToString(a.UserHandle)
	}
	return json.Marshal(map[string]any{
		"id":       base64.RawURLEncoding.EncodeToString(a.id),
		"rawId":    base64.RawURLEncoding.EncodeToString(a.id),
		"type":     "public-key",
		"response": response,
	})
}

func (a *Authenticator) clientData(kind, challenge string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":        kind,
		"challenge":   challenge,
		"origin":      a.Origin,
		"crossOrigin": false,
	})
}

func (a *Authenticator) authData(flags byte, signCount uint32) []byte {
	rpIDHash := sha256.Sum256([]byte(a.RPID))
	out := append([]byte{}, rpIDHash[:]...)
	out = append(out, flags)
	return binary.BigEndian.AppendUint32(out, signCount)
}
