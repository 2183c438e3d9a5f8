package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"OnchainAgent/internal/config"
	"OnchainAgent/internal/web3"
	"OnchainAgent/internal/web3/ethereum"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	networks     map[string]string
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	registry := &Registry{clients: make(map[string]web3.Client), networks: make(map[string]string)}
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:   name,
				RPCURL: chain.RPCURL,
				Notes:  chain.Description,
			})
			if err != nil {
				registry.Close()
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			registry.Register(name, chain.NetworkID, client)
		default:
			registry.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(registry.clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		registry.Register("default", cfg.NetworkID, client)
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	if len(registry.clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if err := registry.SetDefault(cfg.DefaultChain); err != nil {
		registry.Close()
		return nil, err
	}
	return registry, nil
}

// NewStaticRegistry builds a registry from already constructed clients.
func NewStaticRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	registry := &Registry{clients: make(map[string]web3.Client), networks: make(map[string]string)}
	for name, client := range clients {
		registry.Register(name, "", client)
	}
	if len(registry.clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	if err := registry.SetDefault(defaultChain); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds or replaces a client under name.
func (r *Registry) Register(name, networkID string, client web3.Client) {
	if previous, ok := r.clients[name]; ok && previous != nil && previous != client {
		previous.Close()
	}
	r.clients[name] = client
	if strings.TrimSpace(networkID) == "" {
		networkID = name
	}
	r.networks[name] = networkID
}

// SetDefault selects the default chain. An empty name picks the first chain
// in lexical order.
func (r *Registry) SetDefault(name string) error {
	if name == "" {
		names := r.Chains()
		if len(names) == 0 {
			return errors.New("注册表中没有可用的链")
		}
		name = names[0]
	}
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("默认链 %s 未在配置中找到", name)
	}
	r.defaultChain = name
	return nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// DefaultNetwork returns the network id of the default chain, used when a
// new wallet has to be created.
func (r *Registry) DefaultNetwork() string {
	if r == nil {
		return ""
	}
	return r.networks[r.defaultChain]
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
