package connectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/testhelper"
	"github.com/kadena-community/cabinet-gateway/types"
)

func testDeps(t *testing.T, ctx context.Context, cfg *config.Config) Deps {
	node := testhelper.NewChainwebNode(t, nil)
	cfg.Network.Host = node.URL
	return Deps{
		Repo:     t.TempDir(),
		Verifier: chain.NewClient(cfg.Network),
		Injected: injected.NewInjectedEventStream(ctx, types.DefaultConfig()),
	}
}

func names(registry *core.Registry) []core.ConnectorName {
	var out []core.ConnectorName
	for _, entry := range registry.Entries() {
		out = append(out, entry.Connector.Name())
	}
	return out
}

func TestBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("default order", func(t *testing.T) {
		cfg := config.DefaultConfig()
		registry, err := Build(ctx, cfg, testDeps(t, ctx, cfg))
		require.NoError(t, err)
		require.Equal(t, []core.ConnectorName{core.EckoWallet, core.Zelcore, core.Chainweaver, core.WalletConnect}, names(registry))
		require.Equal(t, core.ConnectorName(""), registry.Selected())
		require.Equal(t, core.EckoWallet, registry.Current().Connector)

		entry, err := registry.Get(core.WalletConnect)
		require.NoError(t, err)
		require.ErrorIs(t, entry.Connector.Activate(ctx), types.ErrNoWalletConnect)
		require.Contains(t, core.Capabilities(entry.Connector), core.CapQuickSign)
	})

	t.Run("custom order and selection", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Connectors.Order = []string{"Chainweaver", "eckoWALLET"}
		cfg.Connectors.Selected = "Chainweaver"
		registry, err := Build(ctx, cfg, testDeps(t, ctx, cfg))
		require.NoError(t, err)
		require.Equal(t, []core.ConnectorName{core.Chainweaver, core.EckoWallet}, names(registry))
		require.Equal(t, core.Chainweaver, registry.Selected())
	})

	t.Run("rejects bad configuration", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Connectors.Order = []string{"Metamask"}
		_, err := Build(ctx, cfg, testDeps(t, ctx, cfg))
		require.Error(t, err)

		cfg = config.DefaultConfig()
		cfg.Connectors.Order = []string{"Zelcore", "Zelcore"}
		_, err = Build(ctx, cfg, testDeps(t, ctx, cfg))
		require.Error(t, err)

		cfg = config.DefaultConfig()
		cfg.Connectors.Order = []string{"Zelcore"}
		cfg.Connectors.Selected = "Chainweaver"
		_, err = Build(ctx, cfg, testDeps(t, ctx, cfg))
		require.ErrorIs(t, err, types.ErrConnectorNotFound)

		_, err = Build(ctx, cfg, Deps{})
		require.Error(t, err)
	})
}
