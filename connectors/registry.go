// Package connectors builds the wallet connectors of one gateway from its
// configuration.
package connectors

import (
	"context"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/connectors/chainweaver"
	"github.com/kadena-community/cabinet-gateway/connectors/eckowallet"
	"github.com/kadena-community/cabinet-gateway/connectors/walletconnect"
	"github.com/kadena-community/cabinet-gateway/connectors/zelcore"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/store"
)

var log = logging.Logger("connectors")

type Deps struct {
	// Repo resolves relative file paths in the configuration.
	Repo     string
	Verifier chain.Verifier
	Injected *injected.InjectedEventStream
	// SignClient replaces the relay client dialed from configuration.
	SignClient walletconnect.SignClient
	// Modal shows walletconnect pairing uris, a LogModal when nil.
	Modal walletconnect.Modal
}

// Build creates one connector per configured name, in registration order.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*core.Registry, error) {
	if deps.Injected == nil {
		return nil, errors.New("injected event stream is required")
	}

	seen := make(map[core.ConnectorName]struct{})
	entries := make([]core.Entry, 0, len(cfg.Connectors.Order))
	for _, raw := range cfg.Connectors.Order {
		name := core.ConnectorName(raw)
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("connector %s registered twice", name)
		}
		seen[name] = struct{}{}

		entry, err := build(ctx, cfg, deps, name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	_, zel := seen[core.Zelcore]
	_, cw := seen[core.Chainweaver]
	if zel && cw && cfg.Zelcore.URL != "" && cfg.Zelcore.URL == cfg.Chainweaver.URL {
		log.Warnw("Zelcore and Chainweaver share a signing api address, whichever wallet runs there answers both",
			"url", cfg.Zelcore.URL)
	}

	registry := core.NewRegistry(entries...)
	if cfg.Connectors.Selected != "" {
		if err := registry.SetSelected(core.ConnectorName(cfg.Connectors.Selected)); err != nil {
			return nil, errors.Wrap(err, "selected wallet")
		}
	}
	return registry, nil
}

func build(ctx context.Context, cfg *config.Config, deps Deps, name core.ConnectorName) (core.Entry, error) {
	network := cfg.Network
	switch name {
	case core.EckoWallet:
		c, hooks, _ := core.InitializeConnector(func(actions store.Actions) *eckowallet.EckoWallet {
			return eckowallet.New(actions, deps.Injected, eckowallet.Options{
				NetworkID: network.NetworkID,
				ChainID:   network.ChainID,
				Timeout:   cfg.EckoWallet.Timeout(),
				Verifier:  deps.Verifier,
			})
		})
		return core.Entry{Connector: c, Hooks: hooks}, nil
	case core.Zelcore:
		c, hooks, _ := core.InitializeConnector(func(actions store.Actions) *zelcore.Zelcore {
			return zelcore.New(actions, zelcore.Options{
				URL:            cfg.Zelcore.URL,
				NetworkID:      network.NetworkID,
				ChainID:        network.ChainID,
				Accounts:       cfg.Zelcore.Accounts,
				DefaultAccount: cfg.Zelcore.DefaultAccount,
				Verifier:       deps.Verifier,
			})
		})
		return core.Entry{Connector: c, Hooks: hooks}, nil
	case core.Chainweaver:
		c, hooks, _ := core.InitializeConnector(func(actions store.Actions) *chainweaver.Chainweaver {
			return chainweaver.New(actions, chainweaver.Options{
				URL:            cfg.Chainweaver.URL,
				NetworkID:      network.NetworkID,
				ChainID:        network.ChainID,
				Accounts:       cfg.Chainweaver.Accounts,
				DefaultAccount: cfg.Chainweaver.DefaultAccount,
				Verifier:       deps.Verifier,
			})
		})
		return core.Entry{Connector: c, Hooks: hooks}, nil
	case core.WalletConnect:
		client := deps.SignClient
		if client == nil {
			client = dialWalletConnect(ctx, cfg.WalletConnect, deps.Repo)
		}
		c, hooks, _ := core.InitializeConnector(func(actions store.Actions) *walletconnect.WalletConnect {
			return walletconnect.New(actions, client, walletconnect.Options{
				NetworkID:      network.NetworkID,
				ChainID:        network.ChainID,
				Verifier:       deps.Verifier,
				Modal:          deps.Modal,
				PairingTimeout: cfg.WalletConnect.Timeout(),
			})
		})
		return core.Entry{Connector: c, Hooks: hooks}, nil
	}
	return core.Entry{}, errors.Errorf("unknown connector %s", name)
}

// dialWalletConnect returns nil when no project is configured or the relay
// is unreachable, the connector then reports ErrNoWalletConnect.
func dialWalletConnect(ctx context.Context, cfg *config.WalletConnectConfig, repo string) walletconnect.SignClient {
	if cfg.ProjectID == "" {
		log.Infof("walletconnect project id not configured, walletconnect disabled")
		return nil
	}
	sessionFile := cfg.SessionFile
	if sessionFile != "" && !filepath.IsAbs(sessionFile) {
		sessionFile = filepath.Join(repo, sessionFile)
	}
	var icons []string
	if cfg.Icon != "" {
		icons = []string{cfg.Icon}
	}

	client, err := walletconnect.NewClient(ctx, walletconnect.ClientOptions{
		RelayURL:  cfg.RelayURL,
		ProjectID: cfg.ProjectID,
		Metadata: walletconnect.Metadata{
			Name:        cfg.Name,
			Description: cfg.Description,
			URL:         cfg.AppURL,
			Icons:       icons,
		},
		Store: walletconnect.NewFileStore(sessionFile),
	})
	if err != nil {
		log.Warnf("walletconnect client unavailable: %v", err)
		return nil
	}
	go func() {
		<-ctx.Done()
		if err := client.Close(); err != nil {
			log.Debugf("close walletconnect client: %v", err)
		}
	}()
	return client
}
