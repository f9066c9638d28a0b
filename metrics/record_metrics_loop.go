package metrics

import (
	"context"
	"time"

	"go.opencensus.io/tag"
)

func recordMetricsLoop(ctx context.Context, api StatusAPI) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			recordConnectorInfo(ctx, api)
			recordInjectedInfo(ctx, api)
		case <-ctx.Done():
			log.Infof("context done, stop record metrics")
			return
		}
	}
}

func recordConnectorInfo(ctx context.Context, api StatusAPI) {
	connectors, err := api.ListConnectors(ctx)
	if err != nil {
		log.Warnf("failed to list connectors %v", err)
		return
	}

	for _, c := range connectors {
		cctx, _ := tag.New(ctx, tag.Upsert(ConnectorKey, c.Name))
		var active int64
		if c.IsActive {
			active = 1
		}
		ConnectorActive.Set(cctx, active)
	}
	ConnectorNum.Set(ctx, int64(len(connectors)))
}

func recordInjectedInfo(ctx context.Context, api StatusAPI) {
	providers, err := api.ListInjectedProviders(ctx)
	if err != nil {
		log.Warnf("failed to list injected providers %v", err)
		return
	}

	var connNum int64
	for _, p := range providers {
		connNum += int64(len(p.ConnectStates))
	}
	InjectedConnNum.Set(ctx, connNum)
	InjectedProviderNum.Set(ctx, int64(len(providers)))
}
