package web3

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// WalletData is the exported form of a Wallet. It is the credential blob the
// service round-trips through its wallet store.
type WalletData struct {
	WalletID  string `json:"wallet_id"`
	NetworkID string `json:"network_id"`
	Address   string `json:"address"`
	Seed      string `json:"seed"`
}

// Wallet is a single-key EVM account used by the agent toolkit.
type Wallet struct {
	id        string
	networkID string
	key       *ecdsa.PrivateKey
	address   common.Address
}

// NewWallet generates a fresh key for the given network.
func NewWallet(networkID string) (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("生成钱包私钥失败: %w", err)
	}
	return newWallet(uuid.NewString(), networkID, key), nil
}

// NewWalletFromKey wraps an existing private key.
func NewWalletFromKey(networkID string, key *ecdsa.PrivateKey) *Wallet {
	return newWallet(uuid.NewString(), networkID, key)
}

func newWallet(id, networkID string, key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		id:        id,
		networkID: networkID,
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
	}
}

// ImportWallet restores a wallet from an exported blob.
func ImportWallet(blob string) (*Wallet, error) {
	var data WalletData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("解析钱包数据失败: %w", err)
	}
	seed := strings.TrimPrefix(strings.TrimSpace(data.Seed), "0x")
	if seed == "" {
		return nil, errors.New("钱包数据缺少 seed")
	}
	key, err := crypto.HexToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("钱包 seed 无效: %w", err)
	}
	id := strings.TrimSpace(data.WalletID)
	if id == "" {
		id = uuid.NewString()
	}
	wallet := newWallet(id, data.NetworkID, key)
	if data.Address != "" && !strings.EqualFold(data.Address, wallet.address.Hex()) {
		return nil, fmt.Errorf("钱包地址 %s 与 seed 不匹配", data.Address)
	}
	return wallet, nil
}

// ID returns the wallet identifier.
func (w *Wallet) ID() string { return w.id }

// NetworkID returns the network the wallet was created for.
func (w *Wallet) NetworkID() string { return w.networkID }

// Address returns the wallet's account address.
func (w *Wallet) Address() common.Address { return w.address }

// PrivateKey returns the signing key.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey { return w.key }

// Export serializes the wallet so it can be restored with ImportWallet.
func (w *Wallet) Export() (string, error) {
	encoded, err := json.Marshal(WalletData{
		WalletID:  w.id,
		NetworkID: w.networkID,
		Address:   w.address.Hex(),
		Seed:      hexutil.Encode(crypto.FromECDSA(w.key))[2:],
	})
	if err != nil {
		return "", fmt.Errorf("序列化钱包数据失败: %w", err)
	}
	return string(encoded), nil
}
