package metrics

import (
	"context"
	"time"

	rpcMetrics "github.com/filecoin-project/go-jsonrpc/metrics"
	"github.com/ipfs-force-community/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Global Tags
var (
	ConnectorKey, _ = tag.NewKey("connector")
	ResultKey, _    = tag.NewKey("result")
	ProviderKey, _  = tag.NewKey("provider")
	MethodKey, _    = tag.NewKey("method")

	IPKey, _ = tag.NewKey("ip")
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

var (
	// connector
	ConnectorNum    = metrics.NewInt64("connector/num", "Registered connector count", stats.UnitDimensionless)
	ConnectorActive = metrics.NewInt64("connector/active", "Connector state. 0: inactive, 1: active", "", ConnectorKey)
	Activation      = stats.Int64("connector/activation", "Connector activation attempts", stats.UnitDimensionless)

	// injected
	InjectedProviderNum = metrics.NewInt64("injected/provider_num", "Injected provider count", stats.UnitDimensionless)
	InjectedConnNum     = metrics.NewInt64("injected/conn_num", "Injected bridge connection count", stats.UnitDimensionless)
	InjectedRegister    = stats.Int64("injected/register", "Injected bridge register", stats.UnitDimensionless)
	InjectedUnregister  = stats.Int64("injected/unregister", "Injected bridge unregister", stats.UnitDimensionless)

	// method call
	SignTx          = stats.Float64("sign_tx", "Call SignTx spent time", stats.UnitMilliseconds)
	InjectedRequest = stats.Float64("injected_request", "Injected provider request spent time", stats.UnitMilliseconds)

	ApiState = metrics.NewInt64("api/state", "api service state. 0: down, 1: up", "")
)

var (
	activationView = &view.View{
		Measure:     Activation,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ConnectorKey, ResultKey},
	}

	injectedRegisterView = &view.View{
		Measure:     InjectedRegister,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ProviderKey, IPKey},
	}
	injectedUnregisterView = &view.View{
		Measure:     InjectedUnregister,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ProviderKey, IPKey},
	}

	// method call
	signTxView = &view.View{
		Measure:     SignTx,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ConnectorKey, ResultKey},
	}
	injectedRequestView = &view.View{
		Measure:     InjectedRequest,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ProviderKey, MethodKey},
	}
)

var views = append([]*view.View{
	activationView,
	injectedRegisterView,
	injectedUnregisterView,
	signTxView,
	injectedRequestView,
}, rpcMetrics.DefaultViews...)

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// RecordAPIState sets the api/state gauge.
func RecordAPIState(ctx context.Context, up bool) {
	var v int64
	if up {
		v = 1
	}
	ApiState.Set(ctx, v)
}
