package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(strings.Repeat("k", 32))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("secret-token"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "secret-token")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", string(plain))
}

func TestEncryptor_KeyLength(t *testing.T) {
	_, err := NewEncryptor("short")
	assert.Error(t, err)
}

func TestEncryptor_WrongKey(t *testing.T) {
	a, err := NewEncryptorFromPassphrase("alpha")
	require.NoError(t, err)
	b, err := NewEncryptorFromPassphrase("bravo")
	require.NoError(t, err)

	sealed, err := a.Encrypt([]byte("x"))
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptor_Malformed(t *testing.T) {
	enc, err := NewEncryptorFromPassphrase("alpha")
	require.NoError(t, err)

	_, err = enc.Decrypt("not sealed")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = enc.Decrypt("v1:AA")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncryptor_PassphraseUsesFreshSalt(t *testing.T) {
	enc, err := NewEncryptorFromPassphrase("alpha")
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("secret-token"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("secret-token"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "v2:"))
	rawA, err := decode(a[3:])
	require.NoError(t, err)
	rawB, err := decode(b[3:])
	require.NoError(t, err)
	assert.NotEqual(t, rawA[:saltSize], rawB[:saltSize])

	// A new encryptor with the same passphrase reads values sealed by the old one.
	again, err := NewEncryptorFromPassphrase("alpha")
	require.NoError(t, err)
	for _, sealed := range []string{a, b} {
		plain, err := again.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "secret-token", string(plain))
	}
}

func TestEncryptor_KindsDoNotMix(t *testing.T) {
	keyed, err := NewEncryptor(strings.Repeat("k", 32))
	require.NoError(t, err)
	pass, err := NewEncryptorFromPassphrase(strings.Repeat("k", 32))
	require.NoError(t, err)

	sealed, err := keyed.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = pass.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrMalformed)

	sealed, err = pass.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = keyed.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = pass.Decrypt("v2:AA")
	assert.ErrorIs(t, err, ErrMalformed)
}
