package session

import (
	"errors"
	"testing"

	"github.com/richxcame/safecommute/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, New("user-1", "token").Validate())
	assert.True(t, errors.Is(New("", "token").Validate(), common.ErrUnauthorized))
	assert.True(t, errors.Is(New("user-1", "   ").Validate(), common.ErrUnauthorized))
}

func TestStringHidesCredential(t *testing.T) {
	s := New(" user-1 ", "secret-token")
	assert.Equal(t, "user-1", s.UserID)
	assert.NotContains(t, s.String(), "secret-token")
}

func TestFingerprint(t *testing.T) {
	a := New("user-1", "token-1")
	assert.Equal(t, a.Fingerprint(), New("user-1", " token-1 ").Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), New("user-1", "token-2").Fingerprint())
	assert.Len(t, a.Fingerprint(), 32)
	assert.NotContains(t, a.Fingerprint(), "token-1")
}
