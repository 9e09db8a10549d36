package crypto_util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256(t *testing.T) {
	// keccak256("") as used by Ethereum for empty code
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", CalculateKeccak256(nil))
	assert.Equal(t, Keccak256([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
}

func TestBlake3(t *testing.T) {
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", CalculateBlake3(nil))
	assert.Len(t, Blake3([]byte("x")), 32)
	assert.Equal(t, Blake3([]byte("ab")), Blake3([]byte("a"), []byte("b")))
}

func TestHashByName(t *testing.T) {
	h, err := HashByName("keccak256")
	require.NoError(t, err)
	assert.Equal(t, Keccak256([]byte("x")), h([]byte("x")))

	h, err = HashByName("")
	require.NoError(t, err)
	assert.Equal(t, Blake3([]byte("x")), h([]byte("x")))

	_, err = HashByName("md5")
	assert.Error(t, err)
}
