package walletconnect

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	methodSessionPropose = "wc_sessionPropose"
	methodSessionSettle  = "wc_sessionSettle"
	methodSessionUpdate  = "wc_sessionUpdate"
	methodSessionExtend  = "wc_sessionExtend"
	methodSessionRequest = "wc_sessionRequest"
	methodSessionEvent   = "wc_sessionEvent"
	methodSessionDelete  = "wc_sessionDelete"
	methodSessionPing    = "wc_sessionPing"

	errCodeUnsupported = 10001
	errCodeNoProposal  = 1302

	relayCallTimeout = 30 * time.Second
)

type publishOpts struct {
	reqTag  int
	respTag int
	ttl     int64
}

var protocolOpts = map[string]publishOpts{
	methodSessionPropose: {1100, 1101, 300},
	methodSessionSettle:  {1102, 1103, 300},
	methodSessionUpdate:  {1104, 1105, 86400},
	methodSessionExtend:  {1106, 1107, 86400},
	methodSessionRequest: {1108, 1109, 300},
	methodSessionEvent:   {1110, 1111, 300},
	methodSessionDelete:  {1112, 1113, 86400},
	methodSessionPing:    {1114, 1115, 30},
}

type relayProtocol struct {
	Protocol string `json:"protocol"`
}

type participant struct {
	PublicKey string   `json:"publicKey"`
	Metadata  Metadata `json:"metadata"`
}

type proposeParams struct {
	Relays             []relayProtocol              `json:"relays"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
	Proposer           participant                  `json:"proposer"`
}

type proposeResult struct {
	Relay              relayProtocol `json:"relay"`
	ResponderPublicKey string        `json:"responderPublicKey"`
}

type settleParams struct {
	Relay      relayProtocol               `json:"relay"`
	Namespaces map[string]SessionNamespace `json:"namespaces"`
	Controller participant                 `json:"controller"`
	Expiry     int64                       `json:"expiry"`
}

type sessionRequestParams struct {
	Request RequestArguments `json:"request"`
	ChainID string           `json:"chainId"`
}

type sessionEventParams struct {
	Event struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	} `json:"event"`
	ChainID string `json:"chainId"`
}

type ClientOptions struct {
	RelayURL  string
	ProjectID string
	Metadata  Metadata
	Store     *FileStore
}

// Client speaks the walletconnect sign protocol over a relay. Every topic
// the client holds a key for stays subscribed across reconnects.
type Client struct {
	opts     ClientOptions
	identity ed25519.PrivateKey

	ctx    context.Context
	cancel context.CancelFunc

	relayLk sync.RWMutex
	relay   *Relay

	lk       sync.Mutex
	keys     map[string][]byte
	sessions map[string]*Session
	pending  map[int64]chan *rpcPayload
	settles  map[string]chan *Session
	onDelete []func(topic string)
}

var _ SignClient = (*Client)(nil)

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.RelayURL == "" {
		opts.RelayURL = DefaultRelayURL
	}
	if opts.Store == nil {
		opts.Store = NewFileStore("")
	}
	state, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}
	identity, err := loadIdentity(state.ClientSeed)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:     opts,
		identity: identity,
		keys:     make(map[string][]byte),
		sessions: make(map[string]*Session),
		pending:  make(map[int64]chan *rpcPayload),
		settles:  make(map[string]chan *Session),
	}
	now := time.Now()
	for _, rec := range state.Sessions {
		if rec.Session == nil || rec.Session.Expired(now) {
			continue
		}
		key, err := rec.key()
		if err != nil {
			log.Warnw("skip stored session with bad key", "topic", rec.Session.Topic, "err", err)
			continue
		}
		c.keys[rec.Session.Topic] = key
		c.sessions[rec.Session.Topic] = rec.Session
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	if err := c.connect(ctx); err != nil {
		c.cancel()
		return nil, err
	}
	if err := c.persist(); err != nil {
		log.Warnw("persist walletconnect sessions", "err", err)
	}
	go c.keepAlive()
	log.Infow("walletconnect client ready", "relay", opts.RelayURL, "sessions", len(c.sessions))
	return c, nil
}

func loadIdentity(seedHex string) (ed25519.PrivateKey, error) {
	if seedHex == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.New("malformed client seed in session file")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func (c *Client) Close() error {
	c.cancel()
	return c.currentRelay().Close()
}

func (c *Client) currentRelay() *Relay {
	c.relayLk.RLock()
	defer c.relayLk.RUnlock()
	return c.relay
}

func (c *Client) connect(ctx context.Context) error {
	auth, err := signRelayJWT(c.identity, c.opts.RelayURL, time.Now())
	if err != nil {
		return errors.Wrap(err, "sign relay auth")
	}
	u, err := relayURL(c.opts.RelayURL, c.opts.ProjectID, auth)
	if err != nil {
		return err
	}
	relay, err := DialRelay(ctx, u, c.handleMessage)
	if err != nil {
		return err
	}
	for _, topic := range c.topics() {
		if err := relay.Subscribe(ctx, topic); err != nil {
			_ = relay.Close()
			return err
		}
	}
	c.relayLk.Lock()
	c.relay = relay
	c.relayLk.Unlock()
	return nil
}

func (c *Client) keepAlive() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.currentRelay().Done():
		}
		log.Warnw("relay connection lost, reconnecting", "relay", c.opts.RelayURL)
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			if err := c.connect(c.ctx); err != nil {
				log.Warnw("reconnect relay", "err", err)
				continue
			}
			break
		}
	}
}

func (c *Client) topics() []string {
	c.lk.Lock()
	defer c.lk.Unlock()
	topics := make([]string, 0, len(c.keys))
	for topic := range c.keys {
		topics = append(topics, topic)
	}
	return topics
}

func (c *Client) key(topic string) []byte {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.keys[topic]
}

// Sessions returns the live sessions ordered by expiry.
func (c *Client) Sessions() []*Session {
	c.lk.Lock()
	defer c.lk.Unlock()
	now := time.Now()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if !s.Expired(now) {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Expiry != sessions[j].Expiry {
			return sessions[i].Expiry < sessions[j].Expiry
		}
		return sessions[i].Topic < sessions[j].Topic
	})
	return sessions
}

func (c *Client) OnSessionDelete(fn func(topic string)) {
	c.lk.Lock()
	c.onDelete = append(c.onDelete, fn)
	c.lk.Unlock()
}

// Connect opens a pairing topic and proposes a session on it.
func (c *Client) Connect(ctx context.Context, params ConnectParams) (*Pairing, error) {
	symKey, err := generateSymKey()
	if err != nil {
		return nil, err
	}
	self, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	pairingTopic := topicFromKey(symKey)

	c.lk.Lock()
	c.keys[pairingTopic] = symKey
	c.lk.Unlock()
	if err := c.currentRelay().Subscribe(ctx, pairingTopic); err != nil {
		c.dropTopic(pairingTopic)
		return nil, err
	}

	req, respCh, err := c.request(ctx, pairingTopic, methodSessionPropose, proposeParams{
		Relays:             []relayProtocol{{Protocol: "irn"}},
		RequiredNamespaces: params.RequiredNamespaces,
		Proposer:           participant{PublicKey: hex.EncodeToString(self.public), Metadata: c.opts.Metadata},
	})
	if err != nil {
		c.dropTopic(pairingTopic)
		return nil, errors.Wrap(err, "propose session")
	}

	return &Pairing{
		URI: pairingURI(pairingTopic, symKey),
		Approval: func(ctx context.Context) (*Session, error) {
			defer c.dropTopic(pairingTopic)
			return c.approve(ctx, self, req.ID, respCh)
		},
	}, nil
}

func (c *Client) approve(ctx context.Context, self *keyPair, id int64, respCh <-chan *rpcPayload) (*Session, error) {
	var resp *rpcPayload
	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case resp = <-respCh:
	}
	if resp.Error != nil {
		return nil, errors.Wrap(resp.Error, "session proposal rejected")
	}

	var result proposeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "parse proposal response")
	}
	peer, err := hex.DecodeString(result.ResponderPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode responder key")
	}
	key, err := deriveSymKey(self.private, peer)
	if err != nil {
		return nil, err
	}
	topic := topicFromKey(key)

	settled := make(chan *Session, 1)
	c.lk.Lock()
	c.keys[topic] = key
	c.settles[topic] = settled
	c.lk.Unlock()
	if err := c.currentRelay().Subscribe(ctx, topic); err != nil {
		c.abandonSettle(topic)
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.abandonSettle(topic)
		return nil, ctx.Err()
	case session := <-settled:
		c.lk.Lock()
		c.sessions[topic] = session
		c.lk.Unlock()
		if err := c.persist(); err != nil {
			log.Warnw("persist walletconnect sessions", "err", err)
		}
		log.Infow("walletconnect session settled", "topic", topic, "peer", session.Peer.Name)
		return session, nil
	}
}

func (c *Client) abandonSettle(topic string) {
	c.lk.Lock()
	delete(c.settles, topic)
	c.lk.Unlock()
	c.dropTopic(topic)
}

func (c *Client) Request(ctx context.Context, params RequestParams, result interface{}) error {
	c.lk.Lock()
	_, ok := c.sessions[params.Topic]
	c.lk.Unlock()
	if !ok {
		return errors.Errorf("no walletconnect session %s", params.Topic)
	}

	req, respCh, err := c.request(ctx, params.Topic, methodSessionRequest, sessionRequestParams{
		Request: params.Request,
		ChainID: params.ChainID,
	})
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

func (c *Client) Disconnect(ctx context.Context, topic string, reason Reason) error {
	c.lk.Lock()
	_, ok := c.sessions[topic]
	c.lk.Unlock()
	if !ok {
		return errors.Errorf("no walletconnect session %s", topic)
	}
	req, _, err := c.request(ctx, topic, methodSessionDelete, reason)
	if req != nil {
		c.forget(req.ID)
	}
	c.removeSession(topic)
	return err
}

func (c *Client) removeSession(topic string) {
	c.lk.Lock()
	delete(c.sessions, topic)
	c.lk.Unlock()
	c.dropTopic(topic)
	if err := c.persist(); err != nil {
		log.Warnw("persist walletconnect sessions", "err", err)
	}
}

// dropTopic forgets the key of topic and leaves it on the relay.
func (c *Client) dropTopic(topic string) {
	c.lk.Lock()
	delete(c.keys, topic)
	c.lk.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, relayCallTimeout)
	defer cancel()
	if err := c.currentRelay().Unsubscribe(ctx, topic); err != nil {
		log.Debugw("unsubscribe topic", "topic", topic, "err", err)
	}
}

func (c *Client) persist() error {
	state := &storeState{ClientSeed: hex.EncodeToString(c.identity.Seed())}
	c.lk.Lock()
	for topic, session := range c.sessions {
		state.Sessions = append(state.Sessions, &sessionRecord{Session: session, SymKey: hex.EncodeToString(c.keys[topic])})
	}
	c.lk.Unlock()
	sort.Slice(state.Sessions, func(i, j int) bool {
		return state.Sessions[i].Session.Topic < state.Sessions[j].Session.Topic
	})
	return c.opts.Store.Save(state)
}

// request publishes a request and returns the channel its response lands on.
func (c *Client) request(ctx context.Context, topic, method string, params interface{}) (*rpcPayload, <-chan *rpcPayload, error) {
	req, err := newRequest(method, params)
	if err != nil {
		return nil, nil, err
	}
	respCh := make(chan *rpcPayload, 1)
	c.lk.Lock()
	c.pending[req.ID] = respCh
	c.lk.Unlock()

	opts := protocolOpts[method]
	if err := c.publish(ctx, topic, req, opts.reqTag, opts.ttl); err != nil {
		c.forget(req.ID)
		return nil, nil, err
	}
	return req, respCh, nil
}

func (c *Client) respond(ctx context.Context, topic, method string, resp *rpcPayload) {
	opts := protocolOpts[method]
	if err := c.publish(ctx, topic, resp, opts.respTag, opts.ttl); err != nil {
		log.Warnw("respond to peer", "method", method, "topic", topic, "err", err)
	}
}

func (c *Client) publish(ctx context.Context, topic string, msg *rpcPayload, tag int, ttl int64) error {
	key := c.key(topic)
	if key == nil {
		return errors.Errorf("no key for topic %s", topic)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	envelope, err := encrypt(key, data)
	if err != nil {
		return err
	}
	return c.currentRelay().Publish(ctx, topic, envelope, ttl, tag)
}

func (c *Client) forget(id int64) {
	c.lk.Lock()
	delete(c.pending, id)
	c.lk.Unlock()
}

func (c *Client) handleMessage(topic, message string) {
	key := c.key(topic)
	if key == nil {
		log.Debugw("message on unknown topic", "topic", topic)
		return
	}
	plain, err := decrypt(key, message)
	if err != nil {
		log.Warnw("decrypt peer message", "topic", topic, "err", err)
		return
	}
	var msg rpcPayload
	if err := json.Unmarshal(plain, &msg); err != nil {
		log.Warnw("parse peer message", "topic", topic, "err", err)
		return
	}

	if !msg.isRequest() {
		c.lk.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.lk.Unlock()
		if !ok {
			log.Debugw("response to unknown request", "id", msg.ID)
			return
		}
		ch <- &msg
		return
	}
	go c.handleRequest(topic, &msg)
}

func (c *Client) handleRequest(topic string, msg *rpcPayload) {
	ctx, cancel := context.WithTimeout(c.ctx, relayCallTimeout)
	defer cancel()

	ok, _ := newResult(msg.ID, true)
	switch msg.Method {
	case methodSessionSettle:
		var params settleParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.respond(ctx, topic, msg.Method, newError(msg.ID, errCodeUnsupported, err.Error()))
			return
		}
		c.lk.Lock()
		ch, found := c.settles[topic]
		delete(c.settles, topic)
		c.lk.Unlock()
		if !found {
			c.respond(ctx, topic, msg.Method, newError(msg.ID, errCodeNoProposal, "no matching proposal"))
			return
		}
		c.respond(ctx, topic, msg.Method, ok)
		ch <- &Session{Topic: topic, Namespaces: params.Namespaces, Peer: params.Controller.Metadata, Expiry: params.Expiry}
	case methodSessionUpdate:
		var params struct {
			Namespaces map[string]SessionNamespace `json:"namespaces"`
		}
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			c.mutateSession(topic, func(s *Session) { s.Namespaces = params.Namespaces })
		}
		c.respond(ctx, topic, msg.Method, ok)
	case methodSessionExtend:
		var params struct {
			Expiry int64 `json:"expiry"`
		}
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			c.mutateSession(topic, func(s *Session) { s.Expiry = params.Expiry })
		}
		c.respond(ctx, topic, msg.Method, ok)
	case methodSessionEvent:
		var params sessionEventParams
		_ = json.Unmarshal(msg.Params, &params)
		log.Infow("walletconnect session event", "topic", topic, "event", params.Event.Name, "chain", params.ChainID)
		c.respond(ctx, topic, msg.Method, ok)
	case methodSessionPing:
		c.respond(ctx, topic, msg.Method, ok)
	case methodSessionDelete:
		var reason Reason
		_ = json.Unmarshal(msg.Params, &reason)
		log.Infow("walletconnect session deleted by peer", "topic", topic, "reason", reason.Message)
		c.respond(ctx, topic, msg.Method, ok)
		c.removeSession(topic)
		c.lk.Lock()
		callbacks := append([]func(string){}, c.onDelete...)
		c.lk.Unlock()
		for _, fn := range callbacks {
			fn(topic)
		}
	default:
		c.respond(ctx, topic, msg.Method, newError(msg.ID, errCodeUnsupported, "unsupported method "+msg.Method))
	}
}

func (c *Client) mutateSession(topic string, fn func(s *Session)) {
	c.lk.Lock()
	session, ok := c.sessions[topic]
	if ok {
		cp := *session
		fn(&cp)
		c.sessions[topic] = &cp
	}
	c.lk.Unlock()
	if ok {
		if err := c.persist(); err != nil {
			log.Warnw("persist walletconnect sessions", "err", err)
		}
	}
}
