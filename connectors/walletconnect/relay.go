package walletconnect

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	relaySubscribe    = "irn_subscribe"
	relayUnsubscribe  = "irn_unsubscribe"
	relayPublish      = "irn_publish"
	relaySubscription = "irn_subscription"
)

var ErrRelayClosed = errors.New("relay connection closed")

// MessageHandler receives every message published on a subscribed topic. It
// runs on the read loop and must not call back into the relay.
type MessageHandler func(topic, message string)

type publishParams struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	TTL     int64  `json:"ttl"`
	Tag     int    `json:"tag"`
}

type subscribeParams struct {
	Topic string `json:"topic"`
}

type unsubscribeParams struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

type subscriptionParams struct {
	ID   string `json:"id"`
	Data struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	} `json:"data"`
}

// Relay is a JSON-RPC 2.0 connection to a walletconnect relay.
type Relay struct {
	conn    *websocket.Conn
	handler MessageHandler

	writeLk sync.Mutex

	lk      sync.Mutex
	pending map[int64]chan *rpcPayload
	subs    map[string]string
	err     error

	done chan struct{}
}

func DialRelay(ctx context.Context, url string, handler MessageHandler) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial relay")
	}
	r := &Relay{
		conn:    conn,
		handler: handler,
		pending: make(map[int64]chan *rpcPayload),
		subs:    make(map[string]string),
		done:    make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Done is closed once the connection is lost.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) Subscribe(ctx context.Context, topic string) error {
	var id string
	if err := r.call(ctx, relaySubscribe, subscribeParams{Topic: topic}, &id); err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	r.lk.Lock()
	r.subs[topic] = id
	r.lk.Unlock()
	return nil
}

func (r *Relay) Unsubscribe(ctx context.Context, topic string) error {
	r.lk.Lock()
	id, ok := r.subs[topic]
	delete(r.subs, topic)
	r.lk.Unlock()
	if !ok {
		return nil
	}
	return r.call(ctx, relayUnsubscribe, unsubscribeParams{Topic: topic, ID: id}, nil)
}

func (r *Relay) Publish(ctx context.Context, topic, message string, ttl int64, tag int) error {
	return r.call(ctx, relayPublish, publishParams{Topic: topic, Message: message, TTL: ttl, Tag: tag}, nil)
}

func (r *Relay) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}

func (r *Relay) call(ctx context.Context, method string, params, result interface{}) error {
	req, err := newRequest(method, params)
	if err != nil {
		return err
	}
	respCh := make(chan *rpcPayload, 1)
	r.lk.Lock()
	if r.err != nil {
		r.lk.Unlock()
		return r.err
	}
	r.pending[req.ID] = respCh
	r.lk.Unlock()
	defer func() {
		r.lk.Lock()
		delete(r.pending, req.ID)
		r.lk.Unlock()
	}()

	if err := r.write(req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRelayClosed
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

func (r *Relay) write(msg *rpcPayload) error {
	r.writeLk.Lock()
	defer r.writeLk.Unlock()
	return r.conn.WriteJSON(msg)
}

func (r *Relay) readLoop() {
	defer close(r.done)
	for {
		var msg rpcPayload
		if err := r.conn.ReadJSON(&msg); err != nil {
			log.Debugw("relay read loop exit", "err", err)
			r.lk.Lock()
			r.err = ErrRelayClosed
			r.lk.Unlock()
			return
		}

		if !msg.isRequest() {
			r.lk.Lock()
			ch, ok := r.pending[msg.ID]
			r.lk.Unlock()
			if ok {
				select {
				case ch <- &msg:
				default:
				}
			}
			continue
		}

		if msg.Method != relaySubscription {
			log.Warnw("unexpected relay request", "method", msg.Method)
			continue
		}
		var params subscriptionParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			log.Warnw("malformed relay subscription", "err", err)
			continue
		}
		ack, _ := newResult(msg.ID, true)
		if err := r.write(ack); err != nil {
			log.Warnw("ack relay subscription", "err", err)
		}
		if r.handler != nil {
			r.handler(params.Data.Topic, params.Data.Message)
		}
	}
}
