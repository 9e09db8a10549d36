package bip39

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	service := NewMnemonicService()

	for _, tc := range []struct {
		bits  int
		words int
	}{{128, 12}, {256, 24}} {
		mnemonic, err := service.GenerateMnemonic(tc.bits)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(mnemonic), tc.words)
		assert.True(t, service.ValidateMnemonic(mnemonic))
	}
}

func TestMnemonicToSeed(t *testing.T) {
	service := NewMnemonicService()
	expected := "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

	seed := service.MnemonicToSeed(testMnemonic, "")
	assert.Equal(t, expected, hex.EncodeToString(seed))

	seed, err := service.SeedFromMnemonic("  "+strings.ReplaceAll(testMnemonic, " ", "\n")+" ", "")
	require.NoError(t, err)
	assert.Equal(t, expected, hex.EncodeToString(seed))
}

func TestSeedFromMnemonicInvalid(t *testing.T) {
	service := NewMnemonicService()
	_, err := service.SeedFromMnemonic("hello world invalid mnemonic phrase designed to fail validation check", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}
