package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// testRelay is an in-process relay. Messages published on a topic nobody
// else listens to are kept until someone subscribes.
type testRelay struct {
	srv *httptest.Server

	lk      sync.Mutex
	peers   map[*relayPeer]struct{}
	subs    map[string]map[*relayPeer]string
	mailbox map[string][]string
	tags    []int
	queries []string
}

type relayPeer struct {
	lk   sync.Mutex
	conn *websocket.Conn
}

func (p *relayPeer) send(msg *rpcPayload) {
	p.lk.Lock()
	defer p.lk.Unlock()
	_ = p.conn.WriteJSON(msg)
}

func newTestRelay(t *testing.T) *testRelay {
	r := &testRelay{
		peers:   make(map[*relayPeer]struct{}),
		subs:    make(map[string]map[*relayPeer]string),
		mailbox: make(map[string][]string),
	}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		peer := &relayPeer{conn: conn}
		r.lk.Lock()
		r.queries = append(r.queries, req.URL.RawQuery)
		r.peers[peer] = struct{}{}
		r.lk.Unlock()
		defer r.drop(peer)

		for {
			var msg rpcPayload
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.isRequest() {
				r.handle(peer, &msg)
			}
		}
	}))
	t.Cleanup(func() {
		r.lk.Lock()
		for peer := range r.peers {
			_ = peer.conn.Close()
		}
		r.lk.Unlock()
		r.srv.Close()
	})
	return r
}

func (r *testRelay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *testRelay) drop(peer *relayPeer) {
	r.lk.Lock()
	defer r.lk.Unlock()
	delete(r.peers, peer)
	for _, subs := range r.subs {
		delete(subs, peer)
	}
}

func (r *testRelay) connectQueries() []string {
	r.lk.Lock()
	defer r.lk.Unlock()
	return append([]string(nil), r.queries...)
}

func (r *testRelay) publishedTags() []int {
	r.lk.Lock()
	defer r.lk.Unlock()
	return append([]int(nil), r.tags...)
}

func (r *testRelay) handle(peer *relayPeer, msg *rpcPayload) {
	switch msg.Method {
	case relaySubscribe:
		var params subscribeParams
		_ = json.Unmarshal(msg.Params, &params)
		id := uuid.NewString()
		r.lk.Lock()
		if r.subs[params.Topic] == nil {
			r.subs[params.Topic] = make(map[*relayPeer]string)
		}
		r.subs[params.Topic][peer] = id
		queued := r.mailbox[params.Topic]
		delete(r.mailbox, params.Topic)
		r.lk.Unlock()

		resp, _ := newResult(msg.ID, id)
		peer.send(resp)
		for _, message := range queued {
			r.deliver(peer, id, params.Topic, message)
		}
	case relayUnsubscribe:
		var params unsubscribeParams
		_ = json.Unmarshal(msg.Params, &params)
		r.lk.Lock()
		delete(r.subs[params.Topic], peer)
		r.lk.Unlock()
		resp, _ := newResult(msg.ID, true)
		peer.send(resp)
	case relayPublish:
		var params publishParams
		_ = json.Unmarshal(msg.Params, &params)
		targets := make(map[*relayPeer]string)
		r.lk.Lock()
		r.tags = append(r.tags, params.Tag)
		for p, id := range r.subs[params.Topic] {
			if p != peer {
				targets[p] = id
			}
		}
		if len(targets) == 0 {
			r.mailbox[params.Topic] = append(r.mailbox[params.Topic], params.Message)
		}
		r.lk.Unlock()

		resp, _ := newResult(msg.ID, true)
		peer.send(resp)
		for p, id := range targets {
			r.deliver(p, id, params.Topic, params.Message)
		}
	default:
		peer.send(newError(msg.ID, -32601, "method not found"))
	}
}

func (r *testRelay) deliver(peer *relayPeer, id, topic, message string) {
	params := subscriptionParams{ID: id}
	params.Data.Topic = topic
	params.Data.Message = message
	req, _ := newRequest(relaySubscription, params)
	peer.send(req)
}

// testWallet answers proposals and requests the way a mobile wallet does.
type testWallet struct {
	t        *testing.T
	relay    *Relay
	accounts []string

	lk      sync.Mutex
	keys    map[string][]byte
	reject  bool
	methods []string
	deleted chan string
}

func newTestWallet(t *testing.T, relayURL string, accounts ...string) *testWallet {
	w := &testWallet{
		t:        t,
		accounts: accounts,
		keys:     make(map[string][]byte),
		deleted:  make(chan string, 4),
	}
	relay, err := DialRelay(context.Background(), relayURL, w.onMessage)
	require.NoError(t, err)
	w.relay = relay
	t.Cleanup(func() { _ = relay.Close() })
	return w
}

func (w *testWallet) pair(ctx context.Context, uri string) error {
	topic, key, err := parsePairingURI(uri)
	if err != nil {
		return err
	}
	w.lk.Lock()
	w.keys[topic] = key
	w.lk.Unlock()
	return w.relay.Subscribe(ctx, topic)
}

func (w *testWallet) received() []string {
	w.lk.Lock()
	defer w.lk.Unlock()
	return append([]string(nil), w.methods...)
}

func (w *testWallet) publish(ctx context.Context, topic string, msg *rpcPayload, tag int) error {
	w.lk.Lock()
	key := w.keys[topic]
	w.lk.Unlock()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	envelope, err := encrypt(key, data)
	if err != nil {
		return err
	}
	return w.relay.Publish(ctx, topic, envelope, 300, tag)
}

func (w *testWallet) deleteSession(ctx context.Context, topic string) error {
	req, err := newRequest(methodSessionDelete, Reason{Code: 6000, Message: "wallet disconnected"})
	if err != nil {
		return err
	}
	return w.publish(ctx, topic, req, protocolOpts[methodSessionDelete].reqTag)
}

func (w *testWallet) onMessage(topic, message string) {
	w.lk.Lock()
	key := w.keys[topic]
	w.lk.Unlock()
	plain, err := decrypt(key, message)
	if err != nil {
		return
	}
	var msg rpcPayload
	if err := json.Unmarshal(plain, &msg); err != nil || !msg.isRequest() {
		return
	}
	w.lk.Lock()
	w.methods = append(w.methods, msg.Method)
	w.lk.Unlock()
	go w.handle(topic, &msg)
}

func (w *testWallet) handle(topic string, msg *rpcPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch msg.Method {
	case methodSessionPropose:
		w.lk.Lock()
		reject := w.reject
		w.lk.Unlock()
		if reject {
			_ = w.publish(ctx, topic, newError(msg.ID, 5000, "user rejected"), protocolOpts[msg.Method].respTag)
			return
		}

		var params proposeParams
		_ = json.Unmarshal(msg.Params, &params)
		self, _ := generateKeyPair()
		peer, _ := hex.DecodeString(params.Proposer.PublicKey)
		key, err := deriveSymKey(self.private, peer)
		if err != nil {
			return
		}
		sessionTopic := topicFromKey(key)
		w.lk.Lock()
		w.keys[sessionTopic] = key
		w.lk.Unlock()
		_ = w.relay.Subscribe(ctx, sessionTopic)

		required := params.RequiredNamespaces[Namespace]
		settle, _ := newRequest(methodSessionSettle, settleParams{
			Relay: relayProtocol{Protocol: "irn"},
			Namespaces: map[string]SessionNamespace{
				Namespace: {Accounts: w.accounts, Methods: required.Methods, Events: required.Events},
			},
			Controller: participant{PublicKey: hex.EncodeToString(self.public), Metadata: Metadata{Name: "test wallet"}},
			Expiry:     time.Now().Add(7 * 24 * time.Hour).Unix(),
		})
		_ = w.publish(ctx, sessionTopic, settle, protocolOpts[methodSessionSettle].reqTag)

		resp, _ := newResult(msg.ID, proposeResult{
			Relay:              relayProtocol{Protocol: "irn"},
			ResponderPublicKey: hex.EncodeToString(self.public),
		})
		_ = w.publish(ctx, topic, resp, protocolOpts[msg.Method].respTag)
	case methodSessionRequest:
		var params struct {
			Request struct {
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			} `json:"request"`
			ChainID string `json:"chainId"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		var resp *rpcPayload
		switch params.Request.Method {
		case MethodSign:
			resp, _ = newResult(msg.ID, map[string]interface{}{
				"body": map[string]interface{}{
					"cmd":  string(params.Request.Params),
					"hash": "hash-" + params.ChainID,
					"sigs": []map[string]string{{"sig": "sig"}},
				},
			})
		default:
			resp = newError(msg.ID, errCodeUnsupported, "unsupported method "+params.Request.Method)
		}
		_ = w.publish(ctx, topic, resp, protocolOpts[msg.Method].respTag)
	case methodSessionDelete:
		resp, _ := newResult(msg.ID, true)
		_ = w.publish(ctx, topic, resp, protocolOpts[msg.Method].respTag)
		w.deleted <- topic
	}
}

func TestRelayPubSub(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t)

	type delivery struct{ topic, message string }
	got := make(chan delivery, 4)
	sub, err := DialRelay(ctx, relay.URL(), func(topic, message string) {
		got <- delivery{topic, message}
	})
	require.NoError(t, err)
	defer sub.Close() //nolint:errcheck
	pub, err := DialRelay(ctx, relay.URL(), nil)
	require.NoError(t, err)
	defer pub.Close() //nolint:errcheck

	require.NoError(t, pub.Publish(ctx, "queued", "early", 300, 1))
	require.NoError(t, sub.Subscribe(ctx, "queued"))
	require.Equal(t, delivery{"queued", "early"}, <-got)

	require.NoError(t, sub.Subscribe(ctx, "live"))
	require.NoError(t, pub.Publish(ctx, "live", "hello", 300, 2))
	require.Equal(t, delivery{"live", "hello"}, <-got)
	require.Equal(t, []int{1, 2}, relay.publishedTags())

	require.NoError(t, sub.Unsubscribe(ctx, "live"))
	require.NoError(t, sub.Unsubscribe(ctx, "never-subscribed"))

	require.NoError(t, pub.Close())
	select {
	case <-pub.Done():
	case <-time.After(time.Second):
		t.Fatal("relay not closed")
	}
	require.ErrorIs(t, pub.Publish(ctx, "live", "late", 300, 2), ErrRelayClosed)
}
