package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := NewSessionID()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, SessionIDPrefix))
		assert.True(t, ValidSessionID(id), id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"session_ab12cd34", true},
		{"", false},
		{"session_", false},
		{"session_AB12CD34", false},
		{"rec_ab12cd34", false},
		{"session_ab12cd34x", false},
		{"analysis_session_ab12cd34", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidSessionID(tt.id), tt.id)
	}
}

func TestPasswordHash(t *testing.T) {
	hashed, err := HashPassword("rehearse-often")
	require.NoError(t, err)
	assert.True(t, CheckPassword("rehearse-often", hashed))
	assert.False(t, CheckPassword("wrong", hashed))

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
