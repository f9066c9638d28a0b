package injected

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kadena-community/cabinet-gateway/types"
)

// IInjectedServiceProvider is the gateway surface a bridge talks to.
type IInjectedServiceProvider interface {
	ListenInjectedEvent(ctx context.Context, policy *types.InjectedRegisterPolicy) (<-chan *types.RequestEvent, error)
	ResponseInjectedEvent(ctx context.Context, resp *types.ResponseEvent) error
	NotifyInjectedEvent(ctx context.Context, channelID uuid.UUID, notify *types.InjectedNotification) error
}

// BridgeClient runs next to a wallet and answers the requests the gateway
// routes to the injected provider it stands in for.
type BridgeClient struct {
	processor types.InjectedWalletHandler
	client    IInjectedServiceProvider
	policy    *types.InjectedRegisterPolicy
	log       *zap.SugaredLogger

	lk      sync.Mutex
	channel uuid.UUID
	readyCh chan struct{}
}

func NewBridgeClient(process types.InjectedWalletHandler, client IInjectedServiceProvider, policy *types.InjectedRegisterPolicy, log *zap.SugaredLogger) *BridgeClient {
	return &BridgeClient{
		processor: process,
		client:    client,
		policy:    policy,
		log:       log,
		readyCh:   make(chan struct{}, 1),
	}
}

func (e *BridgeClient) ChannelID() uuid.UUID {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.channel
}

// NotifyAccountChange tells the gateway the user switched account in the wallet.
func (e *BridgeClient) NotifyAccountChange(ctx context.Context, payload interface{}) error {
	return e.Notify(ctx, types.NotifyAccountChange, payload)
}

func (e *BridgeClient) Notify(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return e.client.NotifyInjectedEvent(ctx, e.ChannelID(), &types.InjectedNotification{Event: event, Payload: data})
}

func (e *BridgeClient) ListenInjectedRequest(ctx context.Context) {
	for {
		if err := e.listenInjectedRequestOnce(ctx); err != nil {
			e.log.Errorf("listen injected event errored: %s", err)
		} else {
			e.log.Warn("listenInjectedRequestOnce quit, try again")
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			e.log.Warnf("not restarting listenInjectedRequestOnce: context error: %s", ctx.Err())
			return
		}
		e.log.Info("restarting listenInjectedRequestOnce")
		// try clear ready channel
		select {
		case <-e.readyCh:
		default:
		}
	}
}

func (e *BridgeClient) WaitReady(ctx context.Context) {
	select {
	case <-e.readyCh:
	case <-ctx.Done():
	}
}

func (e *BridgeClient) listenInjectedRequestOnce(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.log.Infow("register injected bridge", "provider", e.policy.Name, "networks", e.policy.Networks)
	eventCh, err := e.client.ListenInjectedEvent(ctx, e.policy)
	if err != nil {
		// Retry is handled by caller
		return fmt.Errorf("listenInjectedRequestOnce ListenInjectedEvent call failed: %w", err)
	}

	for event := range eventCh {
		switch event.Method {
		case types.MethodInitConnect:
			req := types.ConnectedCompleted{}
			err := json.Unmarshal(event.Payload, &req)
			if err != nil {
				e.log.Errorf("init connect error %s", err)
			}
			e.lk.Lock()
			e.channel = req.ChannelID
			e.lk.Unlock()
			e.log.Infof("connect to server success %v", req.ChannelID)
			select {
			case e.readyCh <- struct{}{}:
			default:
			}
			// do not response
		default:
			go e.request(ctx, event)
		}
	}

	return nil
}

func (e *BridgeClient) request(ctx context.Context, event *types.RequestEvent) {
	e.log.Debugf("receive %s event", event.Method)
	res, err := e.processor.Request(ctx, event.Method, event.Payload)
	if err != nil {
		e.log.Errorf("%s error %s", event.Method, err)
		e.error(ctx, event.ID, err)
		return
	}
	e.value(ctx, event.ID, res)
}

func (e *BridgeClient) value(ctx context.Context, id uuid.UUID, val interface{}) {
	respBytes, err := json.Marshal(val)
	if err != nil {
		e.log.Errorf("marshal response error %s", err)
		e.error(ctx, id, err)
		return
	}
	err = e.client.ResponseInjectedEvent(ctx, &types.ResponseEvent{
		ID:      id,
		Payload: respBytes,
		Error:   "",
	})
	if err != nil {
		e.log.Errorf("response error %v", err)
	}
}

func (e *BridgeClient) error(ctx context.Context, id uuid.UUID, err error) {
	err = e.client.ResponseInjectedEvent(ctx, &types.ResponseEvent{
		ID:      id,
		Payload: nil,
		Error:   err.Error(),
	})
	if err != nil {
		e.log.Errorf("response error %v", err)
	}
}
