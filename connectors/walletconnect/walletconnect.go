// Package walletconnect connects wallets over the walletconnect sign
// protocol. A session is proposed through a pairing uri, persisted once the
// wallet settles it and restored on the next start.
package walletconnect

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
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("walletconnect")

var (
	_ core.Connector      = (*WalletConnect)(nil)
	_ core.EagerConnector = (*WalletConnect)(nil)
	_ core.Deactivator    = (*WalletConnect)(nil)
	_ core.QuickSigner    = (*WalletConnect)(nil)
)

var ErrNoSession = errors.New("no walletconnect session")

type Options struct {
	NetworkID string
	ChainID   string
	Verifier  chain.Verifier
	// Modal shows the pairing uri, a LogModal when nil.
	Modal          Modal
	PairingTimeout time.Duration
}

type getAccountsParams struct {
	Accounts []accountQuery `json:"accounts"`
}

type accountQuery struct {
	Account   string   `json:"account"`
	Contracts []string `json:"contracts"`
}

type getAccountsResult struct {
	Accounts []struct {
		Account        string `json:"account"`
		PublicKey      string `json:"publicKey"`
		KadenaAccounts []struct {
			Name     string   `json:"name"`
			Contract string   `json:"contract"`
			Chains   []string `json:"chains"`
		} `json:"kadenaAccounts"`
	} `json:"accounts"`
}

type WalletConnect struct {
	actions store.Actions
	client  SignClient
	opts    Options

	lk        sync.Mutex
	session   *Session
	networkID string
	account   *types.KadenaAccount
}

// New binds the connector to client. A nil client makes every operation
// fail with types.ErrNoWalletConnect.
func New(actions store.Actions, client SignClient, opts Options) *WalletConnect {
	if opts.Modal == nil {
		opts.Modal = &LogModal{}
	}
	if opts.PairingTimeout <= 0 {
		opts.PairingTimeout = DefaultPairingTimeout
	}
	w := &WalletConnect{actions: actions, client: client, opts: opts}
	if client != nil {
		client.OnSessionDelete(w.onSessionDelete)
	}
	return w
}

func (w *WalletConnect) Name() core.ConnectorName {
	return core.WalletConnect
}

func (w *WalletConnect) Provider() interface{} {
	if w.client == nil {
		return nil
	}
	return w.client
}

// PairingURI returns the uri of the proposal waiting for approval.
func (w *WalletConnect) PairingURI() string {
	if m, ok := w.opts.Modal.(interface{ URI() string }); ok {
		return m.URI()
	}
	return ""
}

func (w *WalletConnect) Activate(ctx context.Context) error {
	if w.client == nil {
		return types.ErrNoWalletConnect
	}
	cancelActivation := w.actions.StartActivation()

	session := w.restorable()
	if session == nil {
		var err error
		if session, err = w.pair(ctx); err != nil {
			cancelActivation()
			return err
		}
	}
	update, err := w.loadSession(ctx, session)
	if err != nil {
		cancelActivation()
		return err
	}
	w.actions.Update(*update)
	return nil
}

func (w *WalletConnect) ConnectEagerly(ctx context.Context) {
	if w.client == nil {
		log.Debugw("eager connect skipped", "err", types.ErrNoWalletConnect)
		w.actions.ResetState()
		return
	}
	session := w.restorable()
	if session == nil {
		log.Debugw("eager connect: no session to restore")
		w.actions.ResetState()
		return
	}

	_ = w.actions.StartActivation()
	update, err := w.loadSession(ctx, session)
	if err != nil {
		log.Debugw("eager connect: restore session", "topic", session.Topic, "err", err)
		w.actions.ResetState()
		return
	}
	w.actions.Update(*update)
}

func (w *WalletConnect) Deactivate(ctx context.Context) error {
	if w.client == nil {
		w.actions.ResetState()
		return types.ErrNoWalletConnect
	}
	w.lk.Lock()
	session := w.session
	w.session, w.account, w.networkID = nil, nil, ""
	w.lk.Unlock()

	var err error
	if session != nil {
		err = w.client.Disconnect(ctx, session.Topic, UserDisconnected)
	}
	w.actions.ResetState()
	if err != nil {
		return errors.Wrap(err, "disconnect walletconnect")
	}
	return nil
}

func (w *WalletConnect) SignTx(ctx context.Context, cmd *types.SignCommand) *types.SignedTxResult {
	if w.client == nil {
		return types.SignFailure(types.ErrNoWalletConnect.Error())
	}
	session, networkID, account := w.current()
	if session == nil {
		return types.SignFailure(ErrNoSession.Error())
	}
	if cmd == nil {
		return types.SignFailure("empty sign command")
	}

	req := *cmd
	if req.NetworkID == "" {
		req.NetworkID = networkID
	}
	if req.ChainID == "" {
		req.ChainID = w.opts.ChainID
	}
	if account != nil {
		if req.Sender == "" {
			req.Sender = account.Account
		}
		if req.SigningPubKey == "" {
			req.SigningPubKey = account.PublicKey
		}
	}

	var raw json.RawMessage
	err := w.client.Request(ctx, RequestParams{
		Topic:   session.Topic,
		ChainID: ChainID(req.NetworkID),
		Request: RequestArguments{Method: MethodSign, Params: &req},
	}, &raw)
	if err != nil {
		return types.SignFailure(err.Error())
	}
	return signresult.Normalize(raw)
}

func (w *WalletConnect) QuickSign(ctx context.Context, req *types.QuickSignRequest) (*types.QuickSignResponse, error) {
	if w.client == nil {
		return nil, types.ErrNoWalletConnect
	}
	session, networkID, _ := w.current()
	if session == nil {
		return nil, ErrNoSession
	}
	if req == nil || len(req.CommandSigDatas) == 0 {
		return nil, errors.New("empty quicksign request")
	}

	var resp types.QuickSignResponse
	err := w.client.Request(ctx, RequestParams{
		Topic:   session.Topic,
		ChainID: ChainID(networkID),
		Request: RequestArguments{Method: MethodQuickSign, Params: req},
	}, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "quicksign")
	}
	return &resp, nil
}

func (w *WalletConnect) current() (*Session, string, *types.KadenaAccount) {
	w.lk.Lock()
	defer w.lk.Unlock()
	return w.session, w.networkID, w.account.Clone()
}

func (w *WalletConnect) onSessionDelete(topic string) {
	w.lk.Lock()
	if w.session == nil || w.session.Topic != topic {
		w.lk.Unlock()
		return
	}
	w.session, w.account, w.networkID = nil, nil, ""
	w.lk.Unlock()
	log.Infow("wallet ended the session", "topic", topic)
	w.actions.ResetState()
}

// restorable picks the newest session carrying kadena accounts.
func (w *WalletConnect) restorable() *Session {
	sessions := w.client.Sessions()
	for i := len(sessions) - 1; i >= 0; i-- {
		if len(sessions[i].Accounts(Namespace)) > 0 {
			return sessions[i]
		}
	}
	return nil
}

func (w *WalletConnect) requiredNamespaces() map[string]ProposalNamespace {
	chains := make([]string, 0, len(Networks))
	for _, network := range Networks {
		chains = append(chains, ChainID(network))
	}
	return map[string]ProposalNamespace{
		Namespace: {
			Chains:  chains,
			Methods: []string{MethodGetAccounts, MethodSign, MethodQuickSign},
			Events:  []string{EventAccountsChanged},
		},
	}
}

func (w *WalletConnect) pair(ctx context.Context) (*Session, error) {
	pairing, err := w.client.Connect(ctx, ConnectParams{RequiredNamespaces: w.requiredNamespaces()})
	if err != nil {
		return nil, errors.Wrap(err, "connect walletconnect")
	}
	w.opts.Modal.Open(pairing.URI)
	defer w.opts.Modal.Close()

	waitCtx, cancel := context.WithTimeout(ctx, w.opts.PairingTimeout)
	defer cancel()
	session, err := pairing.Approval(waitCtx)
	if err != nil {
		return nil, errors.Wrap(err, "walletconnect approval")
	}
	return session, nil
}

// loadSession picks the session account on the configured network, resolves
// its on-chain name and verifies it.
func (w *WalletConnect) loadSession(ctx context.Context, session *Session) (*types.StateUpdate, error) {
	var parsed []Account
	for _, raw := range session.Accounts(Namespace) {
		account, err := ParseAccount(raw)
		if err != nil {
			log.Debugw("skip session account", "err", err)
			continue
		}
		parsed = append(parsed, account)
	}
	if len(parsed) == 0 {
		return nil, errors.Errorf("session %s carries no kadena account", session.Topic)
	}

	chosen := parsed[0]
	if w.opts.NetworkID != "" {
		for _, a := range parsed {
			if a.NetworkID == w.opts.NetworkID {
				chosen = a
				break
			}
		}
	}

	account := &types.KadenaAccount{
		Account:   w.resolveName(ctx, session.Topic, chosen),
		PublicKey: chosen.PublicKey,
		ChainID:   w.opts.ChainID,
	}
	if w.opts.Verifier != nil {
		verified := w.opts.Verifier.CheckVerifiedAccount(ctx, account.Account)
		if !verified.OK() {
			return nil, errors.Errorf("verify account %s: %s", account.Account, verified.Message)
		}
		account.Balance = verified.Data.Balance
	}

	update := &types.StateUpdate{NetworkID: types.WithNetwork(chosen.NetworkID), Account: account}
	var shared []string
	for _, a := range parsed {
		if a.NetworkID == chosen.NetworkID {
			shared = append(shared, a.Name())
		}
	}
	if len(shared) > 1 {
		update.SharedAccounts = shared
	}

	w.lk.Lock()
	w.session = session
	w.networkID = chosen.NetworkID
	w.account = account.Clone()
	w.lk.Unlock()
	return update, nil
}

// resolveName asks the wallet for the coin account owned by the key and
// falls back to the k: account.
func (w *WalletConnect) resolveName(ctx context.Context, topic string, account Account) string {
	var result getAccountsResult
	err := w.client.Request(ctx, RequestParams{
		Topic:   topic,
		ChainID: ChainID(account.NetworkID),
		Request: RequestArguments{
			Method: MethodGetAccounts,
			Params: getAccountsParams{Accounts: []accountQuery{{Account: account.String(), Contracts: []string{"coin"}}}},
		},
	}, &result)
	if err != nil {
		log.Debugw("get accounts, fall back to k: account", "err", err)
		return account.Name()
	}
	for _, a := range result.Accounts {
		for _, ka := range a.KadenaAccounts {
			if ka.Contract == "coin" && ka.Name != "" {
				return ka.Name
			}
		}
	}
	return account.Name()
}
