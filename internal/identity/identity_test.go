package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom(t *testing.T) {
	email, name := Random("mail.example.com")

	require.NotEmpty(t, name)
	assert.True(t, strings.HasSuffix(email, "@mail.example.com"), "got %q", email)

	local := strings.TrimSuffix(email, "@mail.example.com")
	assert.Equal(t, strings.ToLower(local), local, "local part should be lowercase")
	assert.Contains(t, local, ".")
}
