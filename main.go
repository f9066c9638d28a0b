package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/etherlabsio/healthcheck/v2"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	multiaddr "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/ipfs-force-community/metrics"

	"github.com/kadena-community/cabinet-gateway/api"
	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/cmds"
	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/connectors"
	"github.com/kadena-community/cabinet-gateway/injected"
	cabinetMetrics "github.com/kadena-community/cabinet-gateway/metrics"
	"github.com/kadena-community/cabinet-gateway/proxy"
	"github.com/kadena-community/cabinet-gateway/types"
	"github.com/kadena-community/cabinet-gateway/utils"
	"github.com/kadena-community/cabinet-gateway/version"
)

var log = logging.Logger("main")

func main() {
	_ = logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:  "cabinet-gateway",
		Usage: "cabinet-gateway connects kadena wallets and signs on their behalf",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "host address and port the api will listen on",
				Value: "/ip4/127.0.0.1/tcp/45133",
			},
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "directory holding config, token and sessions",
				Value:   "~/.cabinet-gateway",
				EnvVars: []string{"CABINET_GATEWAY_REPO"},
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "api token, read from the repo when empty",
			},
		},
		Commands: []*cli.Command{
			runCmd, initCmd, cmds.ConnectorCmds, cmds.InjectedCmds, cmds.TokenCmds,
		},
	}
	app.Version = version.UserVersion
	if err := app.Run(os.Args); err != nil {
		log.Warn(err)
		os.Exit(1)
	}
}

var configFlags = []cli.Flag{
	&cli.StringFlag{Name: "network-id", Usage: "kadena network, e.g. mainnet01, testnet04"},
	&cli.StringFlag{Name: "chain-id", Usage: "default chain for account lookups"},
	&cli.StringFlag{Name: "chainweb", Usage: "chainweb node url"},
	&cli.StringFlag{Name: "selected", Usage: "wallet reconnected at start up"},
	&cli.StringFlag{Name: "walletconnect-project-id", EnvVars: []string{"CABINET_GATEWAY_WC_PROJECT_ID"}},
	&cli.StringFlag{Name: "jaeger-proxy", EnvVars: []string{"CABINET_GATEWAY_JAEGER_PROXY"}},
	&cli.Float64Flag{Name: "trace-sampler", EnvVars: []string{"CABINET_GATEWAY_TRACE_SAMPLER"}, Value: 1.0},
	&cli.StringFlag{Name: "trace-node-name", Value: "cabinet-gateway"},
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "write a default config into the repo",
	Flags: configFlags,
	Action: func(cctx *cli.Context) error {
		repo, err := cmds.RepoPath(cctx)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(repo, 0755); err != nil {
			return err
		}
		cfgPath := filepath.Join(repo, config.ConfigFile)
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("repo %s already initialized", repo)
		}

		cfg := config.DefaultConfig()
		applyFlags(cctx, cfg)
		if err := config.WriteConfig(cfgPath, cfg); err != nil {
			return err
		}
		localJwt, err := utils.NewLocalJwtClient(repo)
		if err != nil {
			return err
		}
		if err := localJwt.SaveToken(); err != nil {
			return err
		}
		log.Infof("initialized repo %s", repo)
		return nil
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start cabinet-gateway daemon",
	Flags: configFlags,
	Action: func(cctx *cli.Context) error {
		repo, err := cmds.RepoPath(cctx)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repo)
		if err != nil {
			return err
		}
		applyFlags(cctx, cfg)
		if cctx.IsSet("listen") || cfg.API.ListenAddress == "" {
			cfg.API.ListenAddress = cctx.String("listen")
		}
		return RunMain(cctx.Context, repo, cfg)
	},
}

// loadConfig reads the repo config, initializing the repo on first run.
func loadConfig(repo string) (*config.Config, error) {
	if err := os.MkdirAll(repo, 0755); err != nil {
		return nil, err
	}
	cfgPath := filepath.Join(repo, config.ConfigFile)
	cfg, err := config.ReadConfig(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
	}
	cfg = config.DefaultConfig()
	return cfg, config.WriteConfig(cfgPath, cfg)
}

func applyFlags(cctx *cli.Context, cfg *config.Config) {
	if v := cctx.String("network-id"); v != "" {
		cfg.Network.NetworkID = v
	}
	if v := cctx.String("chain-id"); v != "" {
		cfg.Network.ChainID = v
	}
	if v := cctx.String("chainweb"); v != "" {
		cfg.Network.Host = v
	}
	if cctx.IsSet("selected") {
		cfg.Connectors.Selected = cctx.String("selected")
	}
	if v := cctx.String("walletconnect-project-id"); v != "" {
		cfg.WalletConnect.ProjectID = v
	}

	if jaeger := strings.TrimSpace(cctx.String("jaeger-proxy")); jaeger != "" {
		cfg.Trace.JaegerTracingEnabled = true
		cfg.Trace.JaegerEndpoint = jaeger
		cfg.Trace.ProbabilitySampler = cctx.Float64("trace-sampler")
		cfg.Trace.ServerName = strings.TrimSpace(cctx.String("trace-node-name"))
	}
}

func RunMain(ctx context.Context, repo string, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requestCfg := &types.RequestConfig{
		RequestQueueSize: cfg.Request.RequestQueueSize,
		RequestTimeout:   cfg.Request.Timeout(),
		ClearInterval:    cfg.Request.Interval(),
	}

	log.Infof("cabinet-gateway current version %s, listen %s, network %s", version.UserVersion, cfg.API.ListenAddress, cfg.Network.NetworkID)

	chainClient := chain.NewClient(cfg.Network)
	injectedStream := injected.NewInjectedEventStream(ctx, requestCfg)
	registry, err := connectors.Build(ctx, cfg, connectors.Deps{
		Repo:     repo,
		Verifier: chainClient,
		Injected: injectedStream,
	})
	if err != nil {
		return err
	}

	cabinetAPIImpl := api.NewCabinetAPIImpl(registry, injectedStream)
	if err := cabinetMetrics.SetupMetrics(ctx, cfg.Metrics, cabinetAPIImpl); err != nil {
		return err
	}

	log.Info("Setting up control endpoint at " + cfg.API.ListenAddress)

	var fullNode api.CabinetAPIStruct
	api.PermissionProxy(cabinetAPIImpl, &fullNode)
	cabinetAPI := (api.CabinetAPI)(&fullNode)

	router := mux.NewRouter()
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(api.APINamespace, cabinetAPI)
	router.Handle("/rpc/v1", rpcServer)
	router.Handle("/rpc/v0", rpcServer)
	router.Handle("/healthcheck", healthcheck.Handler(
		healthcheck.WithTimeout(5*time.Second),
		healthcheck.WithChecker("chainweb", healthcheck.CheckerFunc(chainClient.Ping)),
	))
	router.PathPrefix("/").Handler(http.DefaultServeMux)

	reverse := proxy.NewForwarder(cfg.Network.NetworkID)
	upstream := cfg.Proxy.Chainweb
	if upstream == "" {
		upstream = cfg.Network.Host
	}
	if err := reverse.SetUpstreamAddr(proxy.UpstreamChainweb, upstream); err != nil {
		return fmt.Errorf("register chainweb proxy: %w", err)
	}

	localJwt, err := utils.NewLocalJwtClient(repo)
	if err != nil {
		return fmt.Errorf("make token failed:%s", err.Error())
	}
	if err = localJwt.SaveToken(); err != nil {
		return err
	}

	handler := (http.Handler)(&utils.AuthHandler{
		Verify: localJwt.Verify,
		Next:   reverse.Middleware(router).ServeHTTP,
	})

	log.Infof("trace config %v", cfg.Trace)
	if repoter, err := metrics.RegisterJaeger(cfg.Trace.ServerName, cfg.Trace); err != nil {
		return fmt.Errorf("register %s JaegerRepoter to %s failed:%w", cfg.Trace.ServerName, cfg.Trace.JaegerEndpoint, err)
	} else if repoter != nil {
		log.Infof("register jaeger-tracing exporter to %s, with node-name:%s", cfg.Trace.JaegerEndpoint, cfg.Trace.ServerName)
		defer metrics.UnregisterJaeger(repoter)
		handler = &ochttp.Handler{Handler: handler}
	}
	srv := &http.Server{Handler: handler}

	if cfg.Connectors.EagerConnect {
		go func() {
			if err := registry.Initialize(ctx); err != nil {
				log.Warnf("eager connect %s: %v", registry.Selected(), err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warnw("received shutdown", "signal", sig)
		case <-ctx.Done():
			log.Warn("received shutdown")
		}

		log.Info("Shutting down...")
		cabinetMetrics.RecordAPIState(context.Background(), false)
		cancel()
		if err := srv.Shutdown(context.TODO()); err != nil {
			log.Errorf("shutting down RPC server failed: %s", err)
		}
	}()
	addr, err := multiaddr.NewMultiaddr(cfg.API.ListenAddress)
	if err != nil {
		return err
	}

	nl, err := manet.Listen(addr)
	if err != nil {
		return err
	}

	log.Infof("start to rpc listen %s", nl.Addr())
	cabinetMetrics.RecordAPIState(ctx, true)
	if err = srv.Serve(manet.NetListener(nl)); err != nil && err != http.ErrServerClosed {
		return err
	}

	log.Info("Graceful shutdown successful")
	return nil
}
