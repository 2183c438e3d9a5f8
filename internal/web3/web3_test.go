package web3

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.12", "120000000000000000"},
		{" 1.2 ", "1200000000000000000"},
		{"0.000000000000000001", "1"},
	}
	for _, tc := range cases {
		got, err := ParseEther(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{"", "abc", "-1", "0.0000000000000000001"} {
		_, err := ParseEther(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1200000000000000000", 10)
	assert.Equal(t, "1.2", FormatEther(wei))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "3", FormatEther(new(big.Int).Mul(big.NewInt(3), weiPerEther)))
	assert.Equal(t, "0.000000000000000001", FormatEther(big.NewInt(1)))
	assert.Equal(t, "-0.5", FormatEther(big.NewInt(-500000000000000000)))
}

func TestWalletExportImportRoundTrip(t *testing.T) {
	wallet, err := NewWallet("base-sepolia")
	require.NoError(t, err)

	blob, err := wallet.Export()
	require.NoError(t, err)

	restored, err := ImportWallet(blob)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID(), restored.ID())
	assert.Equal(t, wallet.NetworkID(), restored.NetworkID())
	assert.Equal(t, wallet.Address(), restored.Address())
}

func TestImportWalletRejectsBadBlobs(t *testing.T) {
	other, err := NewWallet("base-sepolia")
	require.NoError(t, err)

	cases := map[string]string{
		"not json":     "{",
		"missing seed": `{"wallet_id":"w"}`,
		"bad seed":     `{"seed":"zz"}`,
		"mismatch":     `{"seed":"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318","address":"` + other.Address().Hex() + `"}`,
	}
	for name, blob := range cases {
		_, err := ImportWallet(blob)
		assert.Error(t, err, name)
	}
}

func TestLoadChainDefinitions(t *testing.T) {
	empty, err := LoadChainDefinitions("")
	require.NoError(t, err)
	assert.Empty(t, empty.Chains)

	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := "chains:\n  base-sepolia:\n    type: evm\n    rpc_url: http://127.0.0.1:8545\n    network_id: base-sepolia\n    description: testnet\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	defs, err := LoadChainDefinitions(path)
	require.NoError(t, err)
	require.Contains(t, defs.Chains, "base-sepolia")
	assert.Equal(t, "http://127.0.0.1:8545", defs.Chains["base-sepolia"].RPCURL)
	assert.Equal(t, "testnet", defs.Chains["base-sepolia"].Description)

	_, err = LoadChainDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
