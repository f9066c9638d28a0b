package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/types"
)

const APINamespace = "Cabinet"

// APIVersion is bumped on breaking changes of the rpc surface.
const APIVersion = "1.0.0"

type VersionInfo struct {
	Version    string
	APIVersion string
}

type IConnectorAPI interface {
	ListConnectors(ctx context.Context) ([]*types.ConnectorStatus, error)
	ConnectorState(ctx context.Context, name string) (*types.ConnectorStatus, error)
	PriorityState(ctx context.Context) (*core.PriorityState, error)
	StateEvents(ctx context.Context) (<-chan core.PriorityState, error)

	Activate(ctx context.Context, name string) error
	ConnectEagerly(ctx context.Context, name string) error
	Deactivate(ctx context.Context, name string) error
	SelectAccount(ctx context.Context, name string, account string) error
	SelectWallet(ctx context.Context, name string) error
	SetPriorityOverride(ctx context.Context, name string) error
	WalletConnectPairingURI(ctx context.Context) (string, error)

	SignTx(ctx context.Context, name string, cmd *types.SignCommand) (*types.SignedTxResult, error)
	QuickSign(ctx context.Context, name string, req *types.QuickSignRequest) (*types.QuickSignResponse, error)
}

type IInjectedAPI interface {
	ListenInjectedEvent(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error)
	ResponseInjectedEvent(ctx context.Context, resp *types.ResponseEvent) error
	NotifyInjectedEvent(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error
	ListInjectedProviders(ctx context.Context) ([]*types.InjectedProviderDetail, error)
}

type CabinetAPI interface {
	IConnectorAPI
	IInjectedAPI
	Version(ctx context.Context) (VersionInfo, error)
}

var _ CabinetAPI = (*CabinetAPIStruct)(nil)

type CabinetAPIStruct struct {
	Internal struct {
		ListConnectors          func(ctx context.Context) ([]*types.ConnectorStatus, error)                                                `perm:"read"`
		ConnectorState          func(ctx context.Context, name string) (*types.ConnectorStatus, error)                                     `perm:"read"`
		PriorityState           func(ctx context.Context) (*core.PriorityState, error)                                                     `perm:"read"`
		StateEvents             func(ctx context.Context) (<-chan core.PriorityState, error)                                               `perm:"read"`
		Version                 func(ctx context.Context) (VersionInfo, error)                                                             `perm:"read"`
		WalletConnectPairingURI func(ctx context.Context) (string, error)                                                                  `perm:"read"`
		Activate                func(ctx context.Context, name string) error                                                               `perm:"write"`
		ConnectEagerly          func(ctx context.Context, name string) error                                                               `perm:"write"`
		Deactivate              func(ctx context.Context, name string) error                                                               `perm:"write"`
		SelectAccount           func(ctx context.Context, name string, account string) error                                               `perm:"write"`
		SelectWallet            func(ctx context.Context, name string) error                                                               `perm:"write"`
		SignTx                  func(ctx context.Context, name string, cmd *types.SignCommand) (*types.SignedTxResult, error)              `perm:"sign"`
		QuickSign               func(ctx context.Context, name string, req *types.QuickSignRequest) (*types.QuickSignResponse, error)      `perm:"sign"`
		SetPriorityOverride     func(ctx context.Context, name string) error                                                               `perm:"admin"`
		ListInjectedProviders   func(ctx context.Context) ([]*types.InjectedProviderDetail, error)                                         `perm:"admin"`
		ListenInjectedEvent     func(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error)        `perm:"read"`
		ResponseInjectedEvent   func(ctx context.Context, resp *types.ResponseEvent) error                                                 `perm:"read"`
		NotifyInjectedEvent     func(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error                   `perm:"read"`
	}
}

func (s *CabinetAPIStruct) ListConnectors(ctx context.Context) ([]*types.ConnectorStatus, error) {
	return s.Internal.ListConnectors(ctx)
}

func (s *CabinetAPIStruct) ConnectorState(ctx context.Context, name string) (*types.ConnectorStatus, error) {
	return s.Internal.ConnectorState(ctx, name)
}

func (s *CabinetAPIStruct) PriorityState(ctx context.Context) (*core.PriorityState, error) {
	return s.Internal.PriorityState(ctx)
}

func (s *CabinetAPIStruct) StateEvents(ctx context.Context) (<-chan core.PriorityState, error) {
	return s.Internal.StateEvents(ctx)
}

func (s *CabinetAPIStruct) Version(ctx context.Context) (VersionInfo, error) {
	return s.Internal.Version(ctx)
}

func (s *CabinetAPIStruct) WalletConnectPairingURI(ctx context.Context) (string, error) {
	return s.Internal.WalletConnectPairingURI(ctx)
}

func (s *CabinetAPIStruct) Activate(ctx context.Context, name string) error {
	return s.Internal.Activate(ctx, name)
}

func (s *CabinetAPIStruct) ConnectEagerly(ctx context.Context, name string) error {
	return s.Internal.ConnectEagerly(ctx, name)
}

func (s *CabinetAPIStruct) Deactivate(ctx context.Context, name string) error {
	return s.Internal.Deactivate(ctx, name)
}

func (s *CabinetAPIStruct) SelectAccount(ctx context.Context, name string, account string) error {
	return s.Internal.SelectAccount(ctx, name, account)
}

func (s *CabinetAPIStruct) SelectWallet(ctx context.Context, name string) error {
	return s.Internal.SelectWallet(ctx, name)
}

func (s *CabinetAPIStruct) SignTx(ctx context.Context, name string, cmd *types.SignCommand) (*types.SignedTxResult, error) {
	return s.Internal.SignTx(ctx, name, cmd)
}

func (s *CabinetAPIStruct) QuickSign(ctx context.Context, name string, req *types.QuickSignRequest) (*types.QuickSignResponse, error) {
	return s.Internal.QuickSign(ctx, name, req)
}

func (s *CabinetAPIStruct) SetPriorityOverride(ctx context.Context, name string) error {
	return s.Internal.SetPriorityOverride(ctx, name)
}

func (s *CabinetAPIStruct) ListInjectedProviders(ctx context.Context) ([]*types.InjectedProviderDetail, error) {
	return s.Internal.ListInjectedProviders(ctx)
}

func (s *CabinetAPIStruct) ListenInjectedEvent(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error) {
	return s.Internal.ListenInjectedEvent(ctx, policy)
}

func (s *CabinetAPIStruct) ResponseInjectedEvent(ctx context.Context, resp *types.ResponseEvent) error {
	return s.Internal.ResponseInjectedEvent(ctx, resp)
}

func (s *CabinetAPIStruct) NotifyInjectedEvent(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error {
	return s.Internal.NotifyInjectedEvent(ctx, channelID, notify)
}
