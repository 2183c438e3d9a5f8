package toolkit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/web3"
	"OnchainAgent/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundedWrapper(t *testing.T) (*Wrapper, *simulated.Backend) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := web3.NewWalletFromKey("simulated", key)
	blob, err := wallet.Export()
	require.NoError(t, err)

	funds, err := web3.ParseEther("1.2")
	require.NoError(t, err)
	backend := simulated.NewBackend(coretypes.GenesisAlloc{wallet.Address(): {Balance: funds}})
	t.Cleanup(func() { _ = backend.Close() })

	wrapper, err := NewWrapper(Config{
		WalletData: blob,
		Client:     ethereum.NewBackendClient("simulated", backend.Client()),
	})
	require.NoError(t, err)
	require.Equal(t, wallet.Address(), wrapper.Wallet().Address())
	return wrapper, backend
}

func toolByName(t *testing.T, w *Wrapper, name string) Tool {
	t.Helper()
	for _, tool := range w.Tools() {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestToolsetIsFixed(t *testing.T) {
	wrapper, err := NewWrapper(Config{NetworkID: "base-sepolia"})
	require.NoError(t, err)

	var names []string
	for _, tool := range wrapper.Tools() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description())
		schema, err := json.Marshal(tool.Parameters())
		require.NoError(t, err)
		assert.Contains(t, string(schema), `"type":"object"`)
	}
	assert.Equal(t, []string{ToolWalletDetails, ToolBalance, ToolTransfer, ToolChainSnapshot, ToolTransactionCount}, names)
}

func TestNewWrapperCreatesWalletWhenBlobEmpty(t *testing.T) {
	wrapper, err := NewWrapper(Config{NetworkID: "base-sepolia"})
	require.NoError(t, err)

	blob, err := wrapper.ExportWallet()
	require.NoError(t, err)

	restored, err := NewWrapper(Config{WalletData: blob})
	require.NoError(t, err)
	assert.Equal(t, wrapper.Wallet().Address(), restored.Wallet().Address())
	assert.Equal(t, "base-sepolia", restored.Wallet().NetworkID())
}

func TestNewWrapperRejectsInvalidBlob(t *testing.T) {
	_, err := NewWrapper(Config{WalletData: "not-json"})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeCredentialFailure, xerrors.CodeOf(err))
}

func TestWalletDetailsWorksWithoutChain(t *testing.T) {
	wrapper, err := NewWrapper(Config{NetworkID: "base-sepolia"})
	require.NoError(t, err)

	out, err := toolByName(t, wrapper, ToolWalletDetails).Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, wrapper.Wallet().Address().Hex())
	assert.Contains(t, out, "base-sepolia")

	_, err = toolByName(t, wrapper, ToolBalance).Call(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, xerrors.CodeChainFailure, xerrors.CodeOf(err))
}

func TestBalanceAndTransferOnSimulatedChain(t *testing.T) {
	wrapper, backend := fundedWrapper(t)
	ctx := context.Background()

	out, err := toolByName(t, wrapper, ToolBalance).Call(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Balance of "+wrapper.Wallet().Address().Hex()+": 1.2 ETH", out)

	destination := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	out, err = toolByName(t, wrapper, ToolTransfer).Call(ctx,
		json.RawMessage(`{"amount":"0.12","destination":"`+destination.Hex()+`"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Transferred 0.12 ETH to "+destination.Hex()), out)
	assert.Contains(t, out, "Transaction hash: 0x")
	backend.Commit()

	out, err = toolByName(t, wrapper, ToolBalance).Call(ctx, json.RawMessage(`{"address":"`+destination.Hex()+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "Balance of "+destination.Hex()+": 0.12 ETH", out)

	out, err = toolByName(t, wrapper, ToolTransactionCount).Call(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Transaction count of "+wrapper.Wallet().Address().Hex()+": 1", out)

	out, err = toolByName(t, wrapper, ToolChainSnapshot).Call(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "id 0x539")
}

func TestTransferAcceptsNumericAmount(t *testing.T) {
	wrapper, backend := fundedWrapper(t)

	destination := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	_, err := toolByName(t, wrapper, ToolTransfer).Call(context.Background(),
		json.RawMessage(`{"amount":0.5,"destination":"`+destination.Hex()+`"}`))
	require.NoError(t, err)
	backend.Commit()

	out, err := toolByName(t, wrapper, ToolBalance).Call(context.Background(), json.RawMessage(`{"address":"`+destination.Hex()+`"}`))
	require.NoError(t, err)
	assert.Contains(t, out, ": 0.5 ETH")
}

func TestTransferValidatesArguments(t *testing.T) {
	wrapper, _ := fundedWrapper(t)
	transfer := toolByName(t, wrapper, ToolTransfer)
	ctx := context.Background()

	cases := map[string]string{
		"bad json":        `{`,
		"bad destination": `{"amount":"0.1","destination":"nowhere"}`,
		"bad amount":      `{"amount":"-1","destination":"0x00000000000000000000000000000000000000bb"}`,
	}
	for name, args := range cases {
		_, err := transfer.Call(ctx, json.RawMessage(args))
		require.Error(t, err, name)
		assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err), name)
	}
}
