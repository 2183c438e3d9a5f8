package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"OnchainAgent/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

func TestClientTransferOnSimulatedChain(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	funds, _ := web3.ParseEther("10")

	backend := simulated.NewBackend(coretypes.GenesisAlloc{from: {Balance: funds}})
	t.Cleanup(func() { _ = backend.Close() })

	client := NewBackendClient("simulated", backend.Client())
	t.Cleanup(client.Close)

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "0x539" {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.Name != "simulated" {
		t.Fatalf("unexpected name %s", snapshot.Name)
	}

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	amount, _ := web3.ParseEther("0.12")
	hash, err := client.Transfer(ctx, key, to, amount)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatal("expected transaction hash")
	}
	backend.Commit()

	balance, err := client.BalanceAt(ctx, to)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(amount) != 0 {
		t.Fatalf("unexpected balance %s", balance)
	}

	nonce, err := client.PendingNonce(ctx, from)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("unexpected nonce %d", nonce)
	}

	after, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot after commit: %v", err)
	}
	if after.BlockNumber == snapshot.BlockNumber {
		t.Fatal("expected block number to advance after commit")
	}
}

func TestClientTransferRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	backend := simulated.NewBackend(coretypes.GenesisAlloc{})
	t.Cleanup(func() { _ = backend.Close() })
	client := NewBackendClient("simulated", backend.Client())

	key, _ := crypto.GenerateKey()
	if _, err := client.Transfer(context.Background(), key, common.Address{}, big.NewInt(0)); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
	if _, err := client.Transfer(context.Background(), nil, common.Address{}, big.NewInt(1)); err == nil {
		t.Fatal("expected missing key to be rejected")
	}
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}

func TestNilClientIsNotReady(t *testing.T) {
	var client *Client
	if _, err := client.FetchChainSnapshot(context.Background()); err == nil {
		t.Fatal("expected error from nil client")
	}
}
