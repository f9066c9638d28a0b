package types

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type mockParams struct {
	A string
}

type mockResult struct {
	B string
}

func TestSendRequest(t *testing.T) {
	t.Run("correct", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		parms, err := json.Marshal(mockParams{A: "mock arg"})
		require.NoError(t, err)
		result := &mockResult{}

		client := setupClient(t, eventSteam, "127.1.1.1")
		go client.start(ctx)

		err = eventSteam.SendRequest(ctx, []*ChannelInfo{client.channel}, "mock_method", parms, result)
		require.NoError(t, err)
		require.Equal(t, "mock", result.B)
		require.Equal(t, 0, eventSteam.PendingRequests())

		err = eventSteam.SendRequest(ctx, nil, "mock_method", parms, result)
		require.EqualError(t, err, "send request must have channel")
	})

	t.Run("response to unknown id", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		err := eventSteam.ResponseEvent(ctx, &ResponseEvent{ID: uuid.New()})
		require.Error(t, err)

		parms, err := json.Marshal(mockParams{A: "mock arg"})
		require.NoError(t, err)
		client := setupClient(t, eventSteam, "127.1.1.1")
		go client.start(ctx)
		err = eventSteam.SendRequest(ctx, []*ChannelInfo{client.channel}, "mock_method", parms, &mockResult{})
		require.NoError(t, err)
	})

	t.Run("error response", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		client := setupClient(t, eventSteam, "127.1.1.1")
		client.respErr = "user rejected"
		go client.start(ctx)

		parms, err := json.Marshal(mockParams{A: "mock arg"})
		require.NoError(t, err)
		err = eventSteam.SendRequest(ctx, []*ChannelInfo{client.channel}, "mock_method", parms, &mockResult{})
		require.EqualError(t, err, "user rejected")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		var channels []*ChannelInfo
		for i := 0; i < 3; i++ {
			client := setupClient(t, eventSteam, "127.1.1.1")
			go client.start(ctx)
			channels = append(channels, client.channel)
		}
		sendCtx, sendCancel := context.WithCancel(context.Background())
		sendCancel()
		err := eventSteam.SendRequest(sendCtx, channels, "mock_method", nil, &mockResult{})
		require.EqualError(t, err, "send request cancel by context context canceled")
	})

	t.Run("first channel closed retry others", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		client := setupClient(t, eventSteam, "127.1.1.1")
		go client.start(ctx)
		client2 := setupClient(t, eventSteam, "127.1.1.2")
		go client2.start(ctx)
		client.close()

		parms, err := json.Marshal(mockParams{A: "mock arg"})
		require.NoError(t, err)
		result := &mockResult{}
		err = eventSteam.SendRequest(ctx, []*ChannelInfo{client.channel, client2.channel}, "mock_method", parms, result)
		require.NoError(t, err)
		require.Equal(t, "mock", result.B)
	})

	t.Run("all request failed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, DefaultConfig())

		client := setupClient(t, eventSteam, "127.1.1.1")
		go client.start(ctx)
		client2 := setupClient(t, eventSteam, "127.1.1.2")
		go client2.start(ctx)
		client3 := setupClient(t, eventSteam, "127.1.1.3")
		go client3.start(ctx)
		client.close()
		client2.close()
		client3.close()

		err := eventSteam.SendRequest(ctx, []*ChannelInfo{client.channel, client2.channel, client3.channel}, "mock_method", nil, &mockResult{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "all request failed:")
	})

	t.Run("clear timeout request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventSteam := NewBaseEventStream(ctx, &RequestConfig{
			RequestQueueSize: 30,
			RequestTimeout:   time.Millisecond * 50,
			ClearInterval:    time.Millisecond * 50,
		})
		var requests []*RequestEvent
		eventSteam.reqLk.Lock()
		for i := 0; i < 10; i++ {
			req := &RequestEvent{
				CreateTime: time.Now(),
				Result:     make(chan *ResponseEvent, 1),
			}
			eventSteam.idRequest[uuid.New()] = req
			requests = append(requests, req)
		}
		eventSteam.reqLk.Unlock()

		require.Eventually(t, func() bool {
			return eventSteam.PendingRequests() == 0
		}, time.Second*5, time.Millisecond*20)
		for _, req := range requests {
			require.Len(t, req.Result, 1)
			result := <-req.Result
			require.Contains(t, result.Error, ErrRequestTimeout.Error())
		}
	})
}

func TestIsTimeoutError(t *testing.T) {
	err := fmt.Errorf("%w %s method %s", ErrRequestTimeout, time.Now(), "MOCK")
	require.True(t, isTimeoutError(err))
	require.False(t, isTimeoutError(nil))
}

type mockClient struct {
	t       *testing.T
	event   *BaseEventStream
	channel *ChannelInfo
	respErr string
	cancel  context.CancelFunc
}

func setupClient(t *testing.T, event *BaseEventStream, ip string) *mockClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockClient{
		t:       t,
		event:   event,
		channel: NewChannelInfo(ctx, ip, make(chan *RequestEvent)),
		cancel:  cancel,
	}
}

func (m *mockClient) close() {
	m.cancel()
}

func (m *mockClient) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.channel.Ctx.Done():
			return
		case req := <-m.channel.OutBound:
			resp := &ResponseEvent{ID: req.ID, Error: m.respErr}
			if m.respErr == "" {
				if len(req.Payload) > 0 {
					var params mockParams
					require.NoError(m.t, json.Unmarshal(req.Payload, &params))
					require.Equal(m.t, "mock arg", params.A)
				}
				data, err := json.Marshal(mockResult{B: "mock"})
				require.NoError(m.t, err)
				resp.Payload = data
			}
			require.NoError(m.t, m.event.ResponseEvent(ctx, resp))
		}
	}
}
