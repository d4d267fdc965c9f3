// Package session carries the caller's identity through the core. A Session is
// built per request and passed explicitly; nothing in the core reads identity
// from global state.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/richxcame/safecommute/pkg/common"
)

// Session identifies the acting user and the opaque bearer credential issued
// by the authentication service. The credential is forwarded, never parsed.
type Session struct {
	UserID     string
	Credential string
}

// New trims and returns a session.
func New(userID, credential string) Session {
	return Session{
		UserID:     strings.TrimSpace(userID),
		Credential: strings.TrimSpace(credential),
	}
}

// Validate fails with an AuthError when either field is missing.
func (s Session) Validate() error {
	if s.UserID == "" {
		return common.NewUnauthorizedError("user id is required")
	}
	if s.Credential == "" {
		return common.NewUnauthorizedError("credential is required")
	}
	return nil
}

// Fingerprint identifies the credential without exposing it.
func (s Session) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Credential))
	return hex.EncodeToString(sum[:16])
}

// String hides the credential.
func (s Session) String() string {
	return "session(" + s.UserID + ")"
}
