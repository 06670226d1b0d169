package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateToken(t *testing.T) {
	am := NewAuthManager(true, []string{"secret-1", " ", "secret-2"})
	assert.True(t, am.ValidateToken("Bearer secret-1"))
	assert.True(t, am.ValidateToken("secret-2"))
	assert.False(t, am.ValidateToken("Bearer other"))
	assert.False(t, am.ValidateToken(""))

	am.SetTokens([]string{"rotated"})
	assert.False(t, am.ValidateToken("secret-1"))
	assert.True(t, am.ValidateToken("Bearer rotated"))

	assert.True(t, NewAuthManager(false, nil).ValidateToken(""))
}
