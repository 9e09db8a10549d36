package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Sepolia Network = "sepolia"
)

// ProviderConfig describes one JSON-RPC endpoint.
type ProviderConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

var defaultProviders = map[Network][]ProviderConfig{
	Mainnet: {
		{Name: "ankr", URL: "https://rpc.ankr.com/eth"},
		{Name: "publicnode", URL: "https://ethereum.publicnode.com"},
		{Name: "cloudflare", URL: "https://cloudflare-eth.com"},
	},
	Sepolia: {
		{Name: "ankr", URL: "https://rpc.ankr.com/eth_sepolia"},
		{Name: "publicnode", URL: "https://ethereum-sepolia.publicnode.com"},
	},
}

// ProviderSet returns the configured endpoints, falling back to the
// built-in list for the network when none are configured.
func ProviderSet(network Network, configured []ProviderConfig) ([]ProviderConfig, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	set, ok := defaultProviders[network]
	if !ok {
		return nil, fmt.Errorf("no providers configured for network %q", network)
	}
	out := make([]ProviderConfig, len(set))
	copy(out, set)
	return out, nil
}

// Provider is a single untrusted JSON-RPC endpoint.
type Provider interface {
	Name() string
	Call(ctx context.Context, result any, method string, args ...any) error
}

// EthProvider is a Provider backed by a go-ethereum RPC client.
type EthProvider struct {
	name   string
	client *gethrpc.Client
}

func (p *EthProvider) Name() string { return p.name }

func (p *EthProvider) Call(ctx context.Context, result any, method string, args ...any) error {
	err := p.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return &JsonRpcError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}

func (p *EthProvider) Close() { p.client.Close() }

// DialProviders connects to every endpoint; each dial is retried a few times.
func DialProviders(ctx context.Context, configs []ProviderConfig) ([]*EthProvider, error) {
	providers := make([]*EthProvider, 0, len(configs))
	for _, cfg := range configs {
		var client *gethrpc.Client
		err := retry.Do(
			func() error {
				c, err := gethrpc.DialContext(ctx, cfg.URL)
				if err != nil {
					return err
				}
				client = c
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(500*time.Millisecond),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			for _, p := range providers {
				p.Close()
			}
			return nil, fmt.Errorf("dial provider %s: %w", cfg.Name, err)
		}
		for k, v := range cfg.Headers {
			client.SetHeader(k, v)
		}
		providers = append(providers, &EthProvider{name: cfg.Name, client: client})
	}
	return providers, nil
}

// AsProviders widens a slice of concrete providers to the interface.
func AsProviders(ps []*EthProvider) []Provider {
	out := make([]Provider, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}
