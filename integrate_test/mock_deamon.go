package integrate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/kadena-community/cabinet-gateway/api"
	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/connectors"
	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/proxy"
	"github.com/kadena-community/cabinet-gateway/types"
	"github.com/kadena-community/cabinet-gateway/utils"
	"github.com/kadena-community/cabinet-gateway/version"
)

var log = logging.Logger("mock main")

type testConfig struct {
	requestTimeout time.Duration
	clearInterval  time.Duration
}

func defaultTestConfig() testConfig {
	return testConfig{
		requestTimeout: time.Minute * 5,
		clearInterval:  time.Minute * 5,
	}
}

// MockMain starts an in-process gateway and returns its base url with an
// admin token.
func MockMain(ctx context.Context, repoPath string, cfg *config.Config, tcfg testConfig) (string, []byte, error) {
	requestCfg := &types.RequestConfig{
		RequestQueueSize: 30,
		RequestTimeout:   tcfg.requestTimeout,
		ClearInterval:    tcfg.clearInterval,
	}

	injectedStream := injected.NewInjectedEventStream(ctx, requestCfg)
	registry, err := connectors.Build(ctx, cfg, connectors.Deps{
		Repo:     repoPath,
		Verifier: chain.NewClient(cfg.Network),
		Injected: injectedStream,
	})
	if err != nil {
		return "", nil, err
	}

	log.Infof("cabinet-gateway current version %s", version.UserVersion)
	log.Info("Setting up control endpoint at " + cfg.API.ListenAddress)

	var fullNode api.CabinetAPIStruct
	api.PermissionProxy(api.NewCabinetAPIImpl(registry, injectedStream), &fullNode)

	router := mux.NewRouter()
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(api.APINamespace, &fullNode)
	router.Handle("/rpc/v1", rpcServer)
	router.PathPrefix("/").Handler(http.DefaultServeMux)

	reverse := proxy.NewForwarder(cfg.Network.NetworkID)
	if err := reverse.SetUpstreamAddr(proxy.UpstreamChainweb, cfg.Network.Host); err != nil {
		return "", nil, err
	}

	localJwt, err := utils.NewLocalJwtClient(repoPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate local jwt client: %v", err)
	}

	handler := (http.Handler)(&utils.AuthHandler{
		Verify: localJwt.Verify,
		Next:   reverse.Middleware(router).ServeHTTP,
	})

	log.Infof("trace config %v", cfg.Trace)
	repoter, err := metrics.RegisterJaeger(cfg.Trace.ServerName, cfg.Trace)
	if err != nil {
		return "", nil, fmt.Errorf("register jaeger exporter failed %v", cfg.Trace)
	}
	if repoter != nil {
		log.Info("register jaeger exporter success!")

		defer metrics.UnregisterJaeger(repoter)
		handler = &ochttp.Handler{Handler: handler}
	}

	srv := httptest.NewServer(handler)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	return srv.URL, localJwt.Token, nil
}
