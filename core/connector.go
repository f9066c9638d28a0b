package core

import (
	"context"

	"github.com/kadena-community/cabinet-gateway/types"
)

type ConnectorName string

const (
	EckoWallet    ConnectorName = "eckoWALLET"
	Zelcore       ConnectorName = "Zelcore"
	Chainweaver   ConnectorName = "Chainweaver"
	WalletConnect ConnectorName = "WalletConnect"
)

// Connector adapts one wallet transport to a common activate/sign surface.
// Optional behaviour lives in the capability interfaces below.
type Connector interface {
	Name() ConnectorName
	// Provider returns the live transport handle, nil before activation.
	Provider() interface{}
	// Activate connects the wallet and publishes network and account. On
	// failure the activation is cancelled and the error returned.
	Activate(ctx context.Context) error
	// SignTx never fails with an error, failures are folded into the result.
	SignTx(ctx context.Context, cmd *types.SignCommand) *types.SignedTxResult
}

// EagerConnector silently restores a previous session. It never surfaces
// errors, on failure the state is reset.
type EagerConnector interface {
	ConnectEagerly(ctx context.Context)
}

type Deactivator interface {
	Deactivate(ctx context.Context) error
}

// AccountSelector is implemented by wallets exposing several accounts that
// need an explicit choice after connecting.
type AccountSelector interface {
	SelectAccount(ctx context.Context, account string) error
}

type QuickSigner interface {
	QuickSign(ctx context.Context, req *types.QuickSignRequest) (*types.QuickSignResponse, error)
}

type Capability string

const (
	CapConnectEagerly Capability = "connectEagerly"
	CapDeactivate     Capability = "deactivate"
	CapSelectAccount  Capability = "onSelectAccount"
	CapQuickSign      Capability = "quickSign"
)

func Capabilities(c Connector) []Capability {
	var caps []Capability
	if _, ok := c.(EagerConnector); ok {
		caps = append(caps, CapConnectEagerly)
	}
	if _, ok := c.(Deactivator); ok {
		caps = append(caps, CapDeactivate)
	}
	if _, ok := c.(AccountSelector); ok {
		caps = append(caps, CapSelectAccount)
	}
	if _, ok := c.(QuickSigner); ok {
		caps = append(caps, CapQuickSign)
	}
	return caps
}

func ConnectEagerly(ctx context.Context, c Connector) error {
	eager, ok := c.(EagerConnector)
	if !ok {
		return types.ErrUnsupported
	}
	eager.ConnectEagerly(ctx)
	return nil
}

func Deactivate(ctx context.Context, c Connector) error {
	d, ok := c.(Deactivator)
	if !ok {
		return types.ErrUnsupported
	}
	return d.Deactivate(ctx)
}

func SelectAccount(ctx context.Context, c Connector, account string) error {
	s, ok := c.(AccountSelector)
	if !ok {
		return types.ErrUnsupported
	}
	return s.SelectAccount(ctx, account)
}

func QuickSign(ctx context.Context, c Connector, req *types.QuickSignRequest) (*types.QuickSignResponse, error) {
	q, ok := c.(QuickSigner)
	if !ok {
		return nil, types.ErrUnsupported
	}
	return q.QuickSign(ctx, req)
}
