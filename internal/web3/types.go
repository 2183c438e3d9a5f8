package web3

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSnapshot represents summarized network metadata for tool output.
type ChainSnapshot struct {
	Name        string
	ChainID     string
	BlockNumber string
	Notes       string
}

// Client defines the chain operations the agent toolkit relies on so the
// toolkit can run against any EVM network, or a simulated one in tests.
type Client interface {
	Name() string
	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)
	// Transfer signs a native value transfer with key and broadcasts it.
	Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (common.Hash, error)
	Close()
}
