package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	ToolWalletDetails    = "get_wallet_details"
	ToolBalance          = "get_balance"
	ToolTransfer         = "transfer"
	ToolChainSnapshot    = "get_chain_snapshot"
	ToolTransactionCount = "get_transaction_count"
)

var addressProperty = jsonschema.Definition{
	Type:        jsonschema.String,
	Description: "Hex encoded account address. Defaults to the agent wallet address.",
}

func (w *Wrapper) walletDetailsTool() Tool {
	return &funcTool{
		name:        ToolWalletDetails,
		description: "Get the details of the agent wallet: wallet id, network and default address.",
		parameters:  objectSchema(nil),
		call: func(context.Context, json.RawMessage) (string, error) {
			return fmt.Sprintf("Wallet: %s on network: %s with default address: %s",
				w.wallet.ID(), w.wallet.NetworkID(), w.wallet.Address().Hex()), nil
		},
	}
}

func (w *Wrapper) balanceTool() Tool {
	return &funcTool{
		name:        ToolBalance,
		description: "Get the native ETH balance of the agent wallet or of a given address.",
		parameters:  objectSchema(map[string]jsonschema.Definition{"address": addressProperty}),
		call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Address string `json:"address"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			client, err := w.chain()
			if err != nil {
				return "", err
			}
			address, err := w.resolveAddress(args.Address)
			if err != nil {
				return "", err
			}
			balance, err := client.BalanceAt(ctx, address)
			if err != nil {
				return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "")
			}
			return fmt.Sprintf("Balance of %s: %s ETH", address.Hex(), web3.FormatEther(balance)), nil
		},
	}
}

func (w *Wrapper) transferTool() Tool {
	return &funcTool{
		name:        ToolTransfer,
		description: "Transfer a native ETH amount from the agent wallet to a destination address.",
		parameters: objectSchema(map[string]jsonschema.Definition{
			"amount": {
				Type:        jsonschema.String,
				Description: "Amount of ETH to send as a decimal string, e.g. 0.01.",
			},
			"destination": {
				Type:        jsonschema.String,
				Description: "Hex encoded destination address.",
			},
		}, "amount", "destination"),
		call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Amount      json.Number `json:"amount"`
				Destination string      `json:"destination"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			client, err := w.chain()
			if err != nil {
				return "", err
			}
			if !common.IsHexAddress(strings.TrimSpace(args.Destination)) {
				return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid destination address %q", args.Destination))
			}
			amount, err := web3.ParseEther(args.Amount.String())
			if err != nil {
				return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid amount")
			}
			to := common.HexToAddress(strings.TrimSpace(args.Destination))
			hash, err := client.Transfer(ctx, w.wallet.PrivateKey(), to, amount)
			if err != nil {
				return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "")
			}
			return fmt.Sprintf("Transferred %s ETH to %s\nTransaction hash: %s",
				web3.FormatEther(amount), to.Hex(), hash.Hex()), nil
		},
	}
}

func (w *Wrapper) chainSnapshotTool() Tool {
	return &funcTool{
		name:        ToolChainSnapshot,
		description: "Get the chain id and the latest block number of the connected network.",
		parameters:  objectSchema(nil),
		call: func(ctx context.Context, _ json.RawMessage) (string, error) {
			client, err := w.chain()
			if err != nil {
				return "", err
			}
			snapshot, err := client.FetchChainSnapshot(ctx)
			if err != nil {
				return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "")
			}
			out := fmt.Sprintf("Chain %s: id %s, latest block %s", snapshot.Name, snapshot.ChainID, snapshot.BlockNumber)
			if snapshot.Notes != "" {
				out += " (" + snapshot.Notes + ")"
			}
			return out, nil
		},
	}
}

func (w *Wrapper) transactionCountTool() Tool {
	return &funcTool{
		name:        ToolTransactionCount,
		description: "Get the pending transaction count (nonce) of the agent wallet or of a given address.",
		parameters:  objectSchema(map[string]jsonschema.Definition{"address": addressProperty}),
		call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Address string `json:"address"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			client, err := w.chain()
			if err != nil {
				return "", err
			}
			address, err := w.resolveAddress(args.Address)
			if err != nil {
				return "", err
			}
			nonce, err := client.PendingNonce(ctx, address)
			if err != nil {
				return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "")
			}
			return fmt.Sprintf("Transaction count of %s: %d", address.Hex(), nonce), nil
		},
	}
}

func (w *Wrapper) chain() (web3.Client, error) {
	if w.client == nil {
		return nil, xerrors.New(xerrors.CodeChainFailure, "no chain client configured")
	}
	return w.client, nil
}

func (w *Wrapper) resolveAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return w.wallet.Address(), nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid address %q", raw))
	}
	return common.HexToAddress(raw), nil
}
