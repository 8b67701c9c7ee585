package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestBox_RoundTrip(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("ya29.a0AfH6-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ya29")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.a0AfH6-token", opened)
}

func TestBox_NonceVaries(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	a, err := box.Seal("same plaintext")
	require.NoError(t, err)
	b, err := box.Seal("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_RejectsBadKey(t *testing.T) {
	_, err := New("not-base64!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err = New(short)
	assert.Error(t, err)
}

func TestBox_RejectsTamperedCiphertext(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = box.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = box.Open("@@@")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
