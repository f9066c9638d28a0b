package walletconnect

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/testhelper"
	"github.com/kadena-community/cabinet-gateway/types"
)

const pubKey = "c8e4a5b3f0d6a3e2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8"

type fakeSignClient struct {
	lk        sync.Mutex
	sessions  []*Session
	approve   *Session
	rejectErr error
	requests  []RequestParams
	handlers  map[string]func(params interface{}) (interface{}, error)
	deleted   []string
	onDelete  []func(topic string)
	connected int
}

func newFakeSignClient() *fakeSignClient {
	return &fakeSignClient{handlers: make(map[string]func(params interface{}) (interface{}, error))}
}

func (f *fakeSignClient) Sessions() []*Session {
	f.lk.Lock()
	defer f.lk.Unlock()
	return append([]*Session(nil), f.sessions...)
}

func (f *fakeSignClient) Connect(ctx context.Context, params ConnectParams) (*Pairing, error) {
	f.lk.Lock()
	f.connected++
	f.lk.Unlock()
	ns := params.RequiredNamespaces[Namespace]
	if len(ns.Methods) != 3 || len(ns.Chains) != len(Networks) {
		return nil, errors.New("unexpected proposal")
	}
	return &Pairing{
		URI: "wc:topic@2?relay-protocol=irn&symKey=00",
		Approval: func(ctx context.Context) (*Session, error) {
			f.lk.Lock()
			defer f.lk.Unlock()
			if f.rejectErr != nil {
				return nil, f.rejectErr
			}
			if f.approve == nil {
				f.lk.Unlock()
				<-ctx.Done()
				f.lk.Lock()
				return nil, ctx.Err()
			}
			f.sessions = append(f.sessions, f.approve)
			return f.approve, nil
		},
	}, nil
}

func (f *fakeSignClient) Request(ctx context.Context, params RequestParams, result interface{}) error {
	f.lk.Lock()
	f.requests = append(f.requests, params)
	handler, ok := f.handlers[params.Request.Method]
	f.lk.Unlock()
	if !ok {
		return &RPCError{Code: errCodeUnsupported, Message: "unsupported method"}
	}
	resp, err := handler(params.Request.Params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func (f *fakeSignClient) Disconnect(ctx context.Context, topic string, reason Reason) error {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.deleted = append(f.deleted, topic)
	for i, s := range f.sessions {
		if s.Topic == topic {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeSignClient) OnSessionDelete(fn func(topic string)) {
	f.lk.Lock()
	f.onDelete = append(f.onDelete, fn)
	f.lk.Unlock()
}

func (f *fakeSignClient) peerDelete(topic string) {
	f.lk.Lock()
	callbacks := append([]func(string){}, f.onDelete...)
	f.lk.Unlock()
	for _, fn := range callbacks {
		fn(topic)
	}
}

func (f *fakeSignClient) methods() []string {
	f.lk.Lock()
	defer f.lk.Unlock()
	var methods []string
	for _, r := range f.requests {
		methods = append(methods, r.Request.Method)
	}
	return methods
}

func session(topic string, accounts ...string) *Session {
	return &Session{
		Topic:      topic,
		Namespaces: map[string]SessionNamespace{Namespace: {Accounts: accounts}},
		Peer:       Metadata{Name: "test wallet"},
		Expiry:     time.Now().Add(time.Hour).Unix(),
	}
}

type env struct {
	wc     *WalletConnect
	hooks  *core.Hooks
	store  *store.Store
	client *fakeSignClient
	modal  *LogModal
}

func setup(t *testing.T, client *fakeSignClient) *env {
	node := testhelper.NewChainwebNode(t, map[string]float64{"k:" + pubKey: 3.5, "alice": 9})
	netCfg := config.DefaultConfig().Network
	netCfg.Host = node.URL
	netCfg.NetworkID = "testnet04"

	e := &env{client: client, modal: &LogModal{}}
	opts := Options{
		NetworkID:      "testnet04",
		ChainID:        "1",
		Verifier:       chain.NewClient(netCfg),
		Modal:          e.modal,
		PairingTimeout: time.Second,
	}
	var signClient SignClient
	if client != nil {
		signClient = client
	}
	e.wc, e.hooks, e.store = core.InitializeConnector(func(actions store.Actions) *WalletConnect {
		return New(actions, signClient, opts)
	})
	return e
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("client not initialized", func(t *testing.T) {
		e := setup(t, nil)
		require.ErrorIs(t, e.wc.Activate(ctx), types.ErrNoWalletConnect)
		require.Equal(t, types.DefaultState(), e.hooks.State())
		require.Nil(t, e.wc.Provider())
		require.Equal(t, types.ErrNoWalletConnect.Error(), *e.wc.SignTx(ctx, &types.SignCommand{}).Errors)
	})

	t.Run("pairs a new session", func(t *testing.T) {
		client := newFakeSignClient()
		client.approve = session("t1", "kadena:mainnet01:"+pubKey, "kadena:testnet04:"+pubKey)
		e := setup(t, client)

		require.NoError(t, e.wc.Activate(ctx))
		require.True(t, e.hooks.IsActive())
		require.Equal(t, "testnet04", e.hooks.NetworkID())
		require.Equal(t, "k:"+pubKey, e.hooks.Account().Account)
		require.Equal(t, pubKey, e.hooks.Account().PublicKey)
		require.Equal(t, 3.5, e.hooks.Account().Balance)
		require.Equal(t, 1, client.connected)
		require.Empty(t, e.wc.PairingURI())
		require.Equal(t, []string{MethodGetAccounts}, client.methods())
		require.Equal(t, ChainID("testnet04"), client.requests[0].ChainID)
	})

	t.Run("restores an existing session", func(t *testing.T) {
		client := newFakeSignClient()
		client.sessions = []*Session{session("old", "kadena:testnet04:"+pubKey)}
		e := setup(t, client)

		require.NoError(t, e.wc.Activate(ctx))
		require.True(t, e.hooks.IsActive())
		require.Equal(t, 0, client.connected)
	})

	t.Run("resolves coin account name", func(t *testing.T) {
		client := newFakeSignClient()
		client.approve = session("t1", "kadena:testnet04:"+pubKey)
		client.handlers[MethodGetAccounts] = func(params interface{}) (interface{}, error) {
			return map[string]interface{}{
				"accounts": []map[string]interface{}{{
					"account":        "kadena:testnet04:" + pubKey,
					"publicKey":      pubKey,
					"kadenaAccounts": []map[string]interface{}{{"name": "alice", "contract": "coin", "chains": []string{"1"}}},
				}},
			}, nil
		}
		e := setup(t, client)

		require.NoError(t, e.wc.Activate(ctx))
		require.Equal(t, "alice", e.hooks.Account().Account)
		require.Equal(t, float64(9), e.hooks.Account().Balance)
	})

	t.Run("user rejects the proposal", func(t *testing.T) {
		client := newFakeSignClient()
		client.rejectErr = errors.New("user rejected")
		e := setup(t, client)

		err := e.wc.Activate(ctx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "user rejected")
		require.False(t, e.hooks.IsActivating())
		require.False(t, e.hooks.IsActive())
	})

	t.Run("approval times out", func(t *testing.T) {
		client := newFakeSignClient()
		e := setup(t, client)

		err := e.wc.Activate(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, e.hooks.IsActivating())
	})

	t.Run("pairing uri shown while waiting", func(t *testing.T) {
		client := newFakeSignClient()
		e := setup(t, client)

		done := make(chan error, 1)
		go func() { done <- e.wc.Activate(ctx) }()
		require.Eventually(t, func() bool {
			return e.wc.PairingURI() != ""
		}, time.Second, 10*time.Millisecond)
		require.Contains(t, e.wc.PairingURI(), "wc:topic@2")
		require.Error(t, <-done)
		require.Empty(t, e.wc.PairingURI())
	})

	t.Run("account not on chain", func(t *testing.T) {
		client := newFakeSignClient()
		client.approve = session("t1", "kadena:testnet04:ffff")
		e := setup(t, client)

		require.Error(t, e.wc.Activate(ctx))
		require.False(t, e.hooks.IsActivating())
		require.Nil(t, e.hooks.Account())
	})

	t.Run("session without kadena accounts", func(t *testing.T) {
		client := newFakeSignClient()
		client.approve = session("t1", "eip155:1:0xabc")
		e := setup(t, client)

		require.Error(t, e.wc.Activate(ctx))
		require.False(t, e.hooks.IsActive())
	})

	t.Run("several accounts are shared", func(t *testing.T) {
		client := newFakeSignClient()
		other := "d1e0f9a8c8e4a5b3f0d6a3e2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2"
		client.approve = session("t1", "kadena:testnet04:"+pubKey, "kadena:testnet04:"+other)
		e := setup(t, client)

		require.NoError(t, e.wc.Activate(ctx))
		require.Equal(t, []string{"k:" + pubKey, "k:" + other}, e.hooks.SharedAccounts())
		require.True(t, e.hooks.IsActive())
	})
}

func TestConnectEagerly(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing to restore", func(t *testing.T) {
		client := newFakeSignClient()
		e := setup(t, client)

		e.wc.ConnectEagerly(ctx)
		require.Equal(t, types.DefaultState(), e.hooks.State())
		require.Equal(t, 0, client.connected)
	})

	t.Run("restores newest kadena session", func(t *testing.T) {
		client := newFakeSignClient()
		client.sessions = []*Session{
			session("older", "kadena:testnet04:ffff"),
			session("newer", "kadena:testnet04:"+pubKey),
			{Topic: "evm", Namespaces: map[string]SessionNamespace{"eip155": {Accounts: []string{"eip155:1:0xabc"}}}},
		}
		e := setup(t, client)

		e.wc.ConnectEagerly(ctx)
		require.True(t, e.hooks.IsActive())
		require.Equal(t, "k:"+pubKey, e.hooks.Account().Account)
	})

	t.Run("swallows verification errors", func(t *testing.T) {
		client := newFakeSignClient()
		client.sessions = []*Session{session("old", "kadena:testnet04:ffff")}
		e := setup(t, client)

		e.wc.ConnectEagerly(ctx)
		require.Equal(t, types.DefaultState(), e.hooks.State())
	})

	t.Run("client not initialized", func(t *testing.T) {
		e := setup(t, nil)
		e.wc.ConnectEagerly(ctx)
		require.Equal(t, types.DefaultState(), e.hooks.State())
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	client := newFakeSignClient()
	client.sessions = []*Session{session("t1", "kadena:testnet04:"+pubKey)}
	e := setup(t, client)

	require.NoError(t, e.wc.Activate(ctx))
	require.NoError(t, e.wc.Deactivate(ctx))
	require.Equal(t, types.DefaultState(), e.hooks.State())
	require.Equal(t, []string{"t1"}, client.deleted)
	require.Empty(t, client.Sessions())
	require.Equal(t, ErrNoSession.Error(), *e.wc.SignTx(ctx, &types.SignCommand{}).Errors)

	require.ErrorIs(t, setup(t, nil).wc.Deactivate(ctx), types.ErrNoWalletConnect)
}

func TestPeerDeletesSession(t *testing.T) {
	ctx := context.Background()
	client := newFakeSignClient()
	client.sessions = []*Session{session("t1", "kadena:testnet04:"+pubKey)}
	e := setup(t, client)

	require.NoError(t, e.wc.Activate(ctx))
	client.peerDelete("other")
	require.True(t, e.hooks.IsActive())
	client.peerDelete("t1")
	require.Equal(t, types.DefaultState(), e.hooks.State())
}

func TestSignTx(t *testing.T) {
	ctx := context.Background()
	client := newFakeSignClient()
	client.sessions = []*Session{session("t1", "kadena:testnet04:"+pubKey)}
	var received types.SignCommand
	client.handlers[MethodSign] = func(params interface{}) (interface{}, error) {
		received = *params.(*types.SignCommand)
		if received.Code == "reject" {
			return nil, &RPCError{Code: 5000, Message: "user rejected"}
		}
		if received.Code == "garbage" {
			return map[string]string{"hello": "world"}, nil
		}
		return map[string]interface{}{
			"body": map[string]interface{}{"cmd": "{}", "hash": "h", "sigs": []map[string]string{{"sig": "s"}}},
		}, nil
	}
	e := setup(t, client)
	require.NoError(t, e.wc.Activate(ctx))

	result := e.wc.SignTx(ctx, &types.SignCommand{Code: "(coin.details \"alice\")"})
	require.True(t, result.Valid())
	require.Equal(t, types.SignSuccessStatus, result.Status)
	require.Equal(t, "h", result.SignedCmd.Hash)
	require.Equal(t, "k:"+pubKey, received.Sender)
	require.Equal(t, pubKey, received.SigningPubKey)
	require.Equal(t, "testnet04", received.NetworkID)
	require.Equal(t, "1", received.ChainID)

	result = e.wc.SignTx(ctx, &types.SignCommand{Code: "reject"})
	require.True(t, result.Valid())
	require.Equal(t, types.SignFailureStatus, result.Status)
	require.Contains(t, *result.Errors, "user rejected")

	result = e.wc.SignTx(ctx, &types.SignCommand{Code: "garbage"})
	require.True(t, result.Valid())
	require.Equal(t, types.SignFailureStatus, result.Status)

	result = e.wc.SignTx(ctx, nil)
	require.Equal(t, types.SignFailureStatus, result.Status)
}

func TestQuickSign(t *testing.T) {
	ctx := context.Background()
	client := newFakeSignClient()
	client.sessions = []*Session{session("t1", "kadena:testnet04:"+pubKey)}
	client.handlers[MethodQuickSign] = func(params interface{}) (interface{}, error) {
		req := params.(*types.QuickSignRequest)
		resp := types.QuickSignResponse{}
		for _, data := range req.CommandSigDatas {
			sig := "sig-" + data.Cmd
			data.Sigs = []types.QuickSignSig{{PubKey: pubKey, Sig: &sig}}
			resp.Responses = append(resp.Responses, types.QuickSignResponseItem{
				CommandSigData: data,
				Outcome:        types.QuickSignOutcome{Result: "success", Hash: "h-" + data.Cmd},
			})
		}
		return resp, nil
	}
	e := setup(t, client)

	_, err := e.wc.QuickSign(ctx, &types.QuickSignRequest{})
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, e.wc.Activate(ctx))
	_, err = e.wc.QuickSign(ctx, &types.QuickSignRequest{})
	require.Error(t, err)

	resp, err := e.wc.QuickSign(ctx, &types.QuickSignRequest{CommandSigDatas: []types.CommandSigData{{Cmd: "a"}, {Cmd: "b"}}})
	require.NoError(t, err)
	require.Len(t, resp.Responses, 2)
	require.Equal(t, "sig-b", *resp.Responses[1].CommandSigData.Sigs[0].Sig)
	require.Equal(t, "h-a", resp.Responses[0].Outcome.Hash)

	caps := core.Capabilities(e.wc)
	require.Contains(t, caps, core.CapQuickSign)
	require.NotContains(t, caps, core.CapSelectAccount)
}
