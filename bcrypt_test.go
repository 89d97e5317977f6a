package gabriel_test

import (
	"strings"
	"testing"

	"github.com/littlegabriel/gabriel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := gabriel.HashPassword(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, hash)

	assert.NoError(t, gabriel.ComparePasswordAndHash(testPassword, hash))
	assert.ErrorIs(t, gabriel.ComparePasswordAndHash("wrong", hash), gabriel.ErrMismatchedHashAndPassword)

	_, err = gabriel.HashPassword("")
	assert.ErrorIs(t, err, gabriel.ErrNoEmptyString)
}

func TestHashPassword_Limits(t *testing.T) {
	_, err := gabriel.HashPassword(strings.Repeat("a", gabriel.MaxPasswordBytes+1))
	assert.ErrorIs(t, err, gabriel.ErrPasswordTooLong)

	_, err = gabriel.HashPassword(strings.Repeat("a", gabriel.MaxPasswordBytes))
	assert.NoError(t, err)

	err = gabriel.ComparePasswordAndHash(testPassword, "not-a-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, gabriel.ErrMismatchedHashAndPassword)
}

func TestSitePassword(t *testing.T) {
	hash, err := gabriel.HashPassword("hallelujah")
	require.NoError(t, err)

	tests := []struct {
		name    string
		sp      *gabriel.SitePassword
		input   string
		enabled bool
		ok      bool
	}{
		{"disabled", gabriel.NewSitePassword("", ""), "anything", false, false},
		{"nil", nil, "anything", false, false},
		{"plain match", gabriel.NewSitePassword("hallelujah", ""), "hallelujah", true, true},
		{"plain mismatch", gabriel.NewSitePassword("hallelujah", ""), "amen", true, false},
		{"empty input", gabriel.NewSitePassword("hallelujah", ""), "", true, false},
		{"hash match", gabriel.NewSitePassword("", hash), "hallelujah", true, true},
		{"hash wins over plain", gabriel.NewSitePassword("amen", hash), "amen", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, tt.sp.Enabled())
			err := tt.sp.Verify(tt.input)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, gabriel.ErrInvalidSitePassword)
		})
	}
}

func TestSetPasswordHashCost(t *testing.T) {
	assert.Error(t, gabriel.SetPasswordHashCost(3))
	assert.Error(t, gabriel.SetPasswordHashCost(40))
}
