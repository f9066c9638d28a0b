package injected

import (
	"context"
	"encoding/json"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/kadena-community/cabinet-gateway/metrics"
	"github.com/kadena-community/cabinet-gateway/types"
)

// Provider is the gateway side handle of an injected wallet object.
type Provider struct {
	name   string
	stream *InjectedEventStream
}

func (p *Provider) Name() string {
	return p.name
}

// Request forwards one RPC call to the attached bridges and decodes the
// answer into result.
func (p *Provider) Request(ctx context.Context, method string, params interface{}, result interface{}) error {
	channels, err := p.stream.connMgr.getChannels(p.name)
	if err != nil {
		return err
	}

	var payload []byte
	if params != nil {
		if payload, err = json.Marshal(params); err != nil {
			return err
		}
	}

	start := time.Now()
	err = p.stream.SendRequest(ctx, channels, method, payload, result)
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.ProviderKey, p.name), tag.Upsert(metrics.MethodKey, method)},
		metrics.InjectedRequest.M(metrics.SinceInMilliseconds(start)))
	return err
}

// On subscribes fn to a wallet event, the returned func unsubscribes.
func (p *Provider) On(event string, fn func(payload json.RawMessage)) func() {
	return p.stream.on(p.name, event, fn)
}

func (p *Provider) OnAccountChange(fn func(payload json.RawMessage)) func() {
	return p.On(types.NotifyAccountChange, fn)
}
