package injected

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/kadena-community/cabinet-gateway/metrics"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("injected")

var ErrNoProvider = errors.New("injected provider not found")

type IInjectedEvent interface {
	ListInjectedProviders(ctx context.Context) ([]*types.InjectedProviderDetail, error)
}

type IInjectedEventAPI interface {
	ListenInjectedEvent(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error)
	ResponseInjectedEvent(ctx context.Context, resp *types.ResponseEvent) error
	NotifyInjectedEvent(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error
}

var (
	_ IInjectedEvent    = (*InjectedEventStream)(nil)
	_ IInjectedEventAPI = (*InjectedEventStream)(nil)
)

type listener struct {
	provider string
	event    string
	fn       func(payload json.RawMessage)
}

// InjectedEventStream stands in for objects a browser extension injects into
// a page. Bridges attach per provider name and requests are routed to them.
type InjectedEventStream struct {
	connMgr *connMgr
	cfg     *types.RequestConfig
	*types.BaseEventStream

	lk        sync.Mutex
	nextID    uint64
	listeners map[uint64]*listener
}

func NewInjectedEventStream(ctx context.Context, cfg *types.RequestConfig) *InjectedEventStream {
	return &InjectedEventStream{
		connMgr:         newConnMgr(),
		cfg:             cfg,
		BaseEventStream: types.NewBaseEventStream(ctx, cfg),
		listeners:       make(map[uint64]*listener),
	}
}

func (s *InjectedEventStream) ListenInjectedEvent(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error) {
	if policy == nil || len(policy.Name) == 0 {
		return nil, errors.New("provider name is required to register an injected bridge")
	}

	ip := types.CtxGetIP(ctx)
	queueSize := s.cfg.RequestQueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	out := make(chan *types.RequestEvent, queueSize)
	providerLog := log.With("provider", policy.Name).With("ip", ip)
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.ProviderKey, policy.Name), tag.Upsert(metrics.IPKey, ip))

	channel := types.NewChannelInfo(ctx, ip, out)
	connectBytes, err := json.Marshal(types.ConnectedCompleted{
		ChannelID: channel.ChannelID,
	})
	if err != nil {
		return nil, err
	}
	// queued before the connection is visible so it is always the first event
	out <- &types.RequestEvent{
		ID:         uuid.New(),
		Method:     types.MethodInitConnect,
		CreateTime: time.Now(),
		Payload:    connectBytes,
		Result:     nil,
	} // not response

	s.connMgr.addNewConn(policy, channel)
	providerLog.Infof("add new connections %s", channel.ChannelID)
	stats.Record(ctx, metrics.InjectedRegister.M(1))

	go func() {
		defer close(out)
		<-ctx.Done()
		stats.Record(ctx, metrics.InjectedUnregister.M(1))
		s.connMgr.removeConn(policy.Name, channel)
	}()
	return out, nil
}

func (s *InjectedEventStream) ResponseInjectedEvent(ctx context.Context, resp *types.ResponseEvent) error {
	return s.ResponseEvent(ctx, resp)
}

// NotifyInjectedEvent delivers a wallet originated event to every listener
// registered for the provider owning channelID.
func (s *InjectedEventStream) NotifyInjectedEvent(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error {
	if notify == nil {
		return errors.New("empty notification")
	}
	name, err := s.connMgr.providerOf(channelID)
	if err != nil {
		return err
	}

	s.lk.Lock()
	var fns []func(json.RawMessage)
	for _, l := range s.listeners {
		if l.provider == name && l.event == notify.Event {
			fns = append(fns, l.fn)
		}
	}
	s.lk.Unlock()

	log.Infow("injected notification", "provider", name, "event", notify.Event, "listeners", len(fns))
	for _, fn := range fns {
		go fn(notify.Payload)
	}
	return nil
}

func (s *InjectedEventStream) ListInjectedProviders(ctx context.Context) ([]*types.InjectedProviderDetail, error) {
	return s.connMgr.listProviders(), nil
}

// WaitProvider returns the provider registered under name, waiting up to
// timeout for a bridge to attach.
func (s *InjectedEventStream) WaitProvider(ctx context.Context, name string, timeout time.Duration) (*Provider, error) {
	ok, attached := s.connMgr.registered(name)
	if ok {
		return s.Provider(name), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-attached:
		return s.Provider(name), nil
	case <-timer.C:
		return nil, errors.Wrapf(ErrNoProvider, "%s not injected after %s", name, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Provider returns a handle for name whether or not a bridge is attached.
func (s *InjectedEventStream) Provider(name string) *Provider {
	return &Provider{name: name, stream: s}
}

func (s *InjectedEventStream) on(provider, event string, fn func(json.RawMessage)) func() {
	s.lk.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = &listener{provider: provider, event: event, fn: fn}
	s.lk.Unlock()

	return func() {
		s.lk.Lock()
		delete(s.listeners, id)
		s.lk.Unlock()
	}
}
