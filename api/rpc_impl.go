package api

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/metrics"
	"github.com/kadena-community/cabinet-gateway/types"
	"github.com/kadena-community/cabinet-gateway/version"
)

var log = logging.Logger("api")

var _ CabinetAPI = (*CabinetAPIImpl)(nil)

type pairingURIProvider interface {
	PairingURI() string
}

type CabinetAPIImpl struct {
	injected.IInjectedEvent
	injected.IInjectedEventAPI

	registry *core.Registry
}

func NewCabinetAPIImpl(registry *core.Registry, stream *injected.InjectedEventStream) *CabinetAPIImpl {
	return &CabinetAPIImpl{
		IInjectedEvent:    stream,
		IInjectedEventAPI: stream,
		registry:          registry,
	}
}

func (a *CabinetAPIImpl) status(entry core.Entry, priority core.ConnectorName) *types.ConnectorStatus {
	caps := core.Capabilities(entry.Connector)
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	state := entry.Hooks.State()
	name := entry.Connector.Name()
	return &types.ConnectorStatus{
		Name:         string(name),
		Capabilities: names,
		State:        state,
		IsActive:     core.ComputeIsActive(state),
		Selected:     a.registry.Selected() == name,
		Priority:     priority == name,
	}
}

func (a *CabinetAPIImpl) ListConnectors(ctx context.Context) ([]*types.ConnectorStatus, error) {
	priority := a.priorityName()
	entries := a.registry.Entries()
	out := make([]*types.ConnectorStatus, 0, len(entries))
	for _, entry := range entries {
		out = append(out, a.status(entry, priority))
	}
	return out, nil
}

func (a *CabinetAPIImpl) ConnectorState(ctx context.Context, name string) (*types.ConnectorStatus, error) {
	entry, err := a.registry.Get(core.ConnectorName(name))
	if err != nil {
		return nil, err
	}
	return a.status(entry, a.priorityName()), nil
}

func (a *CabinetAPIImpl) priorityName() core.ConnectorName {
	if entry := a.registry.Priority(); entry.Connector != nil {
		return entry.Connector.Name()
	}
	return ""
}

func (a *CabinetAPIImpl) PriorityState(ctx context.Context) (*core.PriorityState, error) {
	current := a.registry.Current()
	return &current, nil
}

func (a *CabinetAPIImpl) StateEvents(ctx context.Context) (<-chan core.PriorityState, error) {
	return a.registry.Subscribe(ctx), nil
}

func (a *CabinetAPIImpl) Version(ctx context.Context) (VersionInfo, error) {
	return VersionInfo{Version: version.UserVersion, APIVersion: APIVersion}, nil
}

func (a *CabinetAPIImpl) WalletConnectPairingURI(ctx context.Context) (string, error) {
	entry, err := a.registry.Get(core.WalletConnect)
	if err != nil {
		return "", err
	}
	p, ok := entry.Connector.(pairingURIProvider)
	if !ok {
		return "", types.ErrUnsupported
	}
	return p.PairingURI(), nil
}

func (a *CabinetAPIImpl) Activate(ctx context.Context, name string) error {
	entry, err := a.registry.Get(core.ConnectorName(name))
	if err != nil {
		return err
	}

	err = entry.Connector.Activate(ctx)
	result := "success"
	if err != nil {
		result = "failure"
		log.Warnw("activate connector", "connector", name, "err", err)
	}
	mctx, _ := tag.New(ctx, tag.Upsert(metrics.ConnectorKey, name), tag.Upsert(metrics.ResultKey, result))
	stats.Record(mctx, metrics.Activation.M(1))
	return err
}

func (a *CabinetAPIImpl) ConnectEagerly(ctx context.Context, name string) error {
	entry, err := a.registry.Get(core.ConnectorName(name))
	if err != nil {
		return err
	}
	return core.ConnectEagerly(ctx, entry.Connector)
}

func (a *CabinetAPIImpl) Deactivate(ctx context.Context, name string) error {
	entry, err := a.registry.Get(core.ConnectorName(name))
	if err != nil {
		return err
	}
	return core.Deactivate(ctx, entry.Connector)
}

func (a *CabinetAPIImpl) SelectAccount(ctx context.Context, name string, account string) error {
	entry, err := a.registry.Get(core.ConnectorName(name))
	if err != nil {
		return err
	}
	return core.SelectAccount(ctx, entry.Connector, account)
}

func (a *CabinetAPIImpl) SelectWallet(ctx context.Context, name string) error {
	return a.registry.SelectWallet(ctx, core.ConnectorName(name))
}

// SetPriorityOverride pins the priority connector, an empty name clears it.
func (a *CabinetAPIImpl) SetPriorityOverride(ctx context.Context, name string) error {
	if name == "" {
		a.registry.ClearOverride()
		return nil
	}
	return a.registry.SetOverride(core.ConnectorName(name))
}

// SignTx signs with the named connector, or the priority connector when
// name is empty.
func (a *CabinetAPIImpl) SignTx(ctx context.Context, name string, cmd *types.SignCommand) (*types.SignedTxResult, error) {
	entry, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return types.SignFailure("empty sign command"), nil
	}

	start := time.Now()
	res := entry.Connector.SignTx(ctx, cmd)
	mctx, _ := tag.New(ctx,
		tag.Upsert(metrics.ConnectorKey, string(entry.Connector.Name())),
		tag.Upsert(metrics.ResultKey, string(res.Status)))
	stats.Record(mctx, metrics.SignTx.M(metrics.SinceInMilliseconds(start)))
	return res, nil
}

func (a *CabinetAPIImpl) QuickSign(ctx context.Context, name string, req *types.QuickSignRequest) (*types.QuickSignResponse, error) {
	entry, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	return core.QuickSign(ctx, entry.Connector, req)
}

func (a *CabinetAPIImpl) resolve(name string) (core.Entry, error) {
	if name == "" {
		entry := a.registry.Priority()
		if entry.Connector == nil {
			return core.Entry{}, types.ErrConnectorNotFound
		}
		return entry, nil
	}
	return a.registry.Get(core.ConnectorName(name))
}
