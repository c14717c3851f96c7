package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testAdapter(t *testing.T, mode Mode) *Adapter {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	a, err := NewAdapter(key, "salt-seed", map[FieldKey]Mode{
		{Table: "users", Field: "password_hash"}: mode,
	})
	require.NoError(t, err)
	return a
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := testAdapter(t, Deterministic)
	enc, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	require.NotEqual(t, "abc", enc)

	dec, err := a.DecryptValue(enc)
	require.NoError(t, err)
	require.Equal(t, "abc", dec)
}

func TestDeterministicEncryptionIsStable(t *testing.T) {
	a := testAdapter(t, Deterministic)
	e1, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	e2, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	require.Equal(t, e1, e2, "two encryptions of the same value under the same salt must match")
}

func TestRandomEncryptionVaries(t *testing.T) {
	a := testAdapter(t, Random)
	e1, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	e2, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	require.NotEqual(t, e1, e2, "random-mode encryptions of the same value must differ")
}

func TestEncryptForQueryRejectsRandomMode(t *testing.T) {
	a := testAdapter(t, Random)
	_, err := a.EncryptForQuery("users", "password_hash", "abc")
	require.Error(t, err)
}

func TestDecryptPassesThroughUnencryptedValues(t *testing.T) {
	a := testAdapter(t, Off)
	dec, err := a.DecryptValue("plain-value-not-hex-encrypted")
	require.NoError(t, err)
	require.Equal(t, "plain-value-not-hex-encrypted", dec)
}

func TestEncryptValueOffModePassesThrough(t *testing.T) {
	a := testAdapter(t, Off)
	v, err := a.EncryptValue("users", "password_hash", "abc", false)
	require.NoError(t, err)
	require.Equal(t, "abc", v)
}

func TestBinaryColumnRoundTrip(t *testing.T) {
	a := testAdapter(t, Deterministic)
	enc, err := a.EncryptValue("users", "password_hash", "abc", true)
	require.NoError(t, err)
	raw, ok := enc.([]byte)
	require.True(t, ok)

	dec, err := a.DecryptValue(raw)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), dec)
}
