package toolkit

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/web3"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Tool is a single callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() *jsonschema.Definition
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Config seeds a Wrapper.
type Config struct {
	// WalletData is an exported wallet blob. Empty means create a new wallet.
	WalletData string
	// NetworkID labels newly created wallets.
	NetworkID string
	// Client is the chain the tools act on. Chain tools fail without one.
	Client web3.Client
}

// Wrapper owns the agent wallet and builds the toolset around it.
type Wrapper struct {
	wallet *web3.Wallet
	client web3.Client
}

// NewWrapper restores the wallet from cfg.WalletData or creates a fresh one.
func NewWrapper(cfg Config) (*Wrapper, error) {
	var (
		wallet *web3.Wallet
		err    error
	)
	if strings.TrimSpace(cfg.WalletData) == "" {
		wallet, err = web3.NewWallet(cfg.NetworkID)
	} else {
		wallet, err = web3.ImportWallet(cfg.WalletData)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCredentialFailure, err, "")
	}
	return &Wrapper{wallet: wallet, client: cfg.Client}, nil
}

// Wallet returns the wrapped wallet.
func (w *Wrapper) Wallet() *web3.Wallet { return w.wallet }

// ExportWallet serializes the wallet so a later construction can reuse it.
func (w *Wrapper) ExportWallet() (string, error) {
	blob, err := w.wallet.Export()
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeCredentialFailure, err, "")
	}
	return blob, nil
}

// Tools returns the fixed toolset in a stable order.
func (w *Wrapper) Tools() []Tool {
	return []Tool{
		w.walletDetailsTool(),
		w.balanceTool(),
		w.transferTool(),
		w.chainSnapshotTool(),
		w.transactionCountTool(),
	}
}

type funcTool struct {
	name        string
	description string
	parameters  jsonschema.Definition
	call        func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t *funcTool) Name() string                        { return t.name }
func (t *funcTool) Description() string                 { return t.description }
func (t *funcTool) Parameters() *jsonschema.Definition { return &t.parameters }

func (t *funcTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	return t.call(ctx, args)
}

func decodeArgs(raw json.RawMessage, target any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(trimmed), target); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid tool arguments")
	}
	return nil
}

func objectSchema(properties map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
	if properties == nil {
		properties = map[string]jsonschema.Definition{}
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: properties,
		Required:   required,
	}
}
