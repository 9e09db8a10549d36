package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAddressCommand(t *testing.T) {
	out, err := run(t, "address", testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", strings.TrimSpace(out))

	_, err = run(t, "address", "not a mnemonic")
	assert.Error(t, err)
}

func TestNewCommand(t *testing.T) {
	out, err := run(t, "new", "--bits", "128")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Len(t, strings.Fields(strings.TrimPrefix(lines[0], "mnemonic: ")), 12)
	assert.Contains(t, lines[1], "0x")
}

func TestBroadcastRequiresInput(t *testing.T) {
	_, err := run(t, "broadcast")
	assert.ErrorContains(t, err, "--raw or --input")
}

func TestReceiptRejectsBadHash(t *testing.T) {
	_, err := run(t, "receipt", "0x1234")
	assert.ErrorContains(t, err, "invalid transaction hash")
}
