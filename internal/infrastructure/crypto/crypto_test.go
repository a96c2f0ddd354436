package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAEAD(t *testing.T) *AEAD {
	t.Helper()
	k, err := GenerateKey()
	require.NoError(t, err)
	key, err := ParseKey(k)
	require.NoError(t, err)
	a, err := New(key)
	require.NoError(t, err)
	return a
}

func TestSealOpen(t *testing.T) {
	a := newAEAD(t)
	sealed, err := a.EncryptToString("refresh-token-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "refresh-token-value")

	again, err := a.EncryptToString("refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	plain, err := a.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", plain)
}

func TestPlaintextPassesThrough(t *testing.T) {
	a := newAEAD(t)
	got, err := a.DecryptString("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", got)

	empty, err := a.EncryptToString("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWrongKeyFails(t *testing.T) {
	sealed, err := newAEAD(t).EncryptToString("x")
	require.NoError(t, err)
	_, err = newAEAD(t).DecryptString(sealed)
	assert.Error(t, err)
}

func TestShortKeyRejected(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
