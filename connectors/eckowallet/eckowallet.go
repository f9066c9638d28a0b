package eckowallet

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/connectors/signresult"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("eckowallet")

const (
	MethodConnect        = "kda_connect"
	MethodDisconnect     = "kda_disconnect"
	MethodCheckStatus    = "kda_checkStatus"
	MethodRequestAccount = "kda_requestAccount"
	MethodGetNetwork     = "kda_getNetwork"
	MethodRequestSign    = "kda_requestSign"

	DefaultTimeout = 3000 * time.Millisecond

	statusSuccess = "success"
)

var (
	_ core.Connector      = (*EckoWallet)(nil)
	_ core.EagerConnector = (*EckoWallet)(nil)
	_ core.Deactivator    = (*EckoWallet)(nil)
)

type Options struct {
	NetworkID string
	ChainID   string
	// Timeout bounds the wait for the extension to be injected.
	Timeout  time.Duration
	Verifier chain.Verifier
	// Reload runs after an account switch inside the wallet reset the state.
	// Nil means reconnect eagerly.
	Reload func(ctx context.Context)
}

type NetworkInfo struct {
	Name      string `json:"name"`
	NetworkID string `json:"networkId"`
	URL       string `json:"url"`
	Explorer  string `json:"explorer"`
}

type walletAccount struct {
	Account   string `json:"account"`
	PublicKey string `json:"publicKey"`
	ChainID   string `json:"chainId,omitempty"`
}

type statusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Account *walletAccount `json:"account,omitempty"`
	Wallet  *walletAccount `json:"wallet,omitempty"`
}

func (r *statusResponse) ok() bool {
	return r != nil && r.Status == statusSuccess
}

func (r *statusResponse) message() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Error != "" {
		return r.Error
	}
	return "status " + r.Status
}

type networkParams struct {
	NetworkID string `json:"networkId"`
}

type signParams struct {
	NetworkID string             `json:"networkId"`
	Data      *types.SignCommand `json:"data"`
}

// EckoWallet drives the eckoWALLET browser extension through an injected
// bridge.
type EckoWallet struct {
	actions store.Actions
	stream  *injected.InjectedEventStream
	opts    Options

	lk          sync.Mutex
	provider    *injected.Provider
	unsubscribe func()
}

func New(actions store.Actions, stream *injected.InjectedEventStream, opts Options) *EckoWallet {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &EckoWallet{actions: actions, stream: stream, opts: opts}
}

func (e *EckoWallet) Name() core.ConnectorName {
	return core.EckoWallet
}

func (e *EckoWallet) Provider() interface{} {
	e.lk.Lock()
	defer e.lk.Unlock()
	if e.provider == nil {
		return nil
	}
	return e.provider
}

func (e *EckoWallet) currentProvider() *injected.Provider {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.provider
}

// waitProvider races the extension injection against the configured timeout.
func (e *EckoWallet) waitProvider(ctx context.Context) (*injected.Provider, error) {
	provider, err := e.stream.WaitProvider(ctx, string(core.EckoWallet), e.opts.Timeout)
	if err != nil {
		if errors.Is(err, injected.ErrNoProvider) {
			return nil, types.ErrNoEckoWallet
		}
		return nil, err
	}

	e.lk.Lock()
	defer e.lk.Unlock()
	e.provider = provider
	if e.unsubscribe == nil {
		e.unsubscribe = provider.OnAccountChange(e.onAccountChange)
	}
	return provider, nil
}

// onAccountChange does not reconcile, it drops the connection and reloads.
func (e *EckoWallet) onAccountChange(payload json.RawMessage) {
	log.Warnw("account changed in wallet, reset connection", "payload", string(payload))
	e.actions.ResetState()
	if e.opts.Reload != nil {
		e.opts.Reload(context.Background())
		return
	}
	e.ConnectEagerly(context.Background())
}

func (e *EckoWallet) Activate(ctx context.Context) error {
	provider, err := e.waitProvider(ctx)
	if err != nil {
		return err
	}

	var cancelActivation func()
	status, err := e.checkStatus(ctx, provider)
	if err != nil || !status.ok() {
		cancelActivation = e.actions.StartActivation()
		var resp statusResponse
		if err := provider.Request(ctx, MethodConnect, networkParams{NetworkID: e.opts.NetworkID}, &resp); err != nil {
			cancelActivation()
			return errors.Wrap(err, "connect eckoWALLET")
		}
		if !resp.ok() {
			cancelActivation()
			return errors.Errorf("connect eckoWALLET: %s", resp.message())
		}
	}

	update, err := e.loadAccount(ctx, provider)
	if err != nil {
		if cancelActivation != nil {
			cancelActivation()
		}
		return err
	}
	e.actions.Update(*update)
	return nil
}

func (e *EckoWallet) ConnectEagerly(ctx context.Context) {
	provider, err := e.waitProvider(ctx)
	if err != nil {
		log.Debugw("eager connect skipped", "err", err)
		e.actions.ResetState()
		return
	}

	_ = e.actions.StartActivation()
	status, err := e.checkStatus(ctx, provider)
	if err != nil || !status.ok() {
		log.Debugw("eager connect: wallet not connected", "err", err)
		e.actions.ResetState()
		return
	}
	update, err := e.loadAccount(ctx, provider)
	if err != nil {
		log.Debugw("eager connect: load account", "err", err)
		e.actions.ResetState()
		return
	}
	e.actions.Update(*update)
}

func (e *EckoWallet) Deactivate(ctx context.Context) error {
	provider := e.currentProvider()
	if provider == nil {
		e.actions.ResetState()
		return types.ErrNoEckoWallet
	}
	var resp statusResponse
	err := provider.Request(ctx, MethodDisconnect, networkParams{NetworkID: e.opts.NetworkID}, &resp)
	e.actions.ResetState()
	if err != nil {
		return errors.Wrap(err, "disconnect eckoWALLET")
	}
	return nil
}

func (e *EckoWallet) SignTx(ctx context.Context, cmd *types.SignCommand) *types.SignedTxResult {
	provider := e.currentProvider()
	if provider == nil {
		return types.SignFailure(types.ErrNoEckoWallet.Error())
	}
	if cmd == nil {
		return types.SignFailure("empty sign command")
	}
	req := *cmd
	if req.NetworkID == "" {
		req.NetworkID = e.opts.NetworkID
	}

	var raw json.RawMessage
	if err := provider.Request(ctx, MethodRequestSign, signParams{NetworkID: req.NetworkID, Data: &req}, &raw); err != nil {
		return types.SignFailure(err.Error())
	}
	return signresult.Normalize(raw)
}

// NetworkInfo asks the extension which network it is pointed at.
func (e *EckoWallet) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	provider := e.currentProvider()
	if provider == nil {
		return nil, types.ErrNoEckoWallet
	}
	var info NetworkInfo
	if err := provider.Request(ctx, MethodGetNetwork, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (e *EckoWallet) checkStatus(ctx context.Context, provider *injected.Provider) (*statusResponse, error) {
	var resp statusResponse
	if err := provider.Request(ctx, MethodCheckStatus, networkParams{NetworkID: e.opts.NetworkID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// loadAccount requests the wallet account and looks it up on chain.
func (e *EckoWallet) loadAccount(ctx context.Context, provider *injected.Provider) (*types.StateUpdate, error) {
	var resp statusResponse
	if err := provider.Request(ctx, MethodRequestAccount, networkParams{NetworkID: e.opts.NetworkID}, &resp); err != nil {
		return nil, errors.Wrap(err, "request account")
	}
	if !resp.ok() || resp.Wallet == nil || resp.Wallet.Account == "" {
		return nil, errors.Errorf("request account: %s", resp.message())
	}

	account := &types.KadenaAccount{
		Account:   resp.Wallet.Account,
		PublicKey: resp.Wallet.PublicKey,
		ChainID:   e.opts.ChainID,
	}
	if resp.Wallet.ChainID != "" {
		account.ChainID = resp.Wallet.ChainID
	}
	if e.opts.Verifier != nil {
		verified := e.opts.Verifier.CheckVerifiedAccount(ctx, account.Account)
		if !verified.OK() {
			return nil, errors.Errorf("verify account %s: %s", account.Account, verified.Message)
		}
		account.Balance = verified.Data.Balance
	}

	networkID := e.opts.NetworkID
	if networkID == "" {
		var info NetworkInfo
		if err := provider.Request(ctx, MethodGetNetwork, nil, &info); err != nil {
			return nil, errors.Wrap(err, "get network")
		}
		networkID = info.NetworkID
	}
	return &types.StateUpdate{NetworkID: types.WithNetwork(networkID), Account: account}, nil
}
