// Package proxy lets the gateway listener double as a chainweb endpoint:
// requests carrying a namespace header are forwarded to the chainweb node
// instead of reaching the gateway api.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	maNet "github.com/multiformats/go-multiaddr/net"
)

var log = logging.Logger("proxy")

type Router interface {
	SetUpstream(up Upstream, handler http.Handler)
	SetUpstreamAddr(up Upstream, address string) error
	Middleware(next http.Handler) http.Handler
}

// Forwarder routes on NamespaceHeader. For the pact namespace a path naming
// only the endpoint, e.g. /local, is expanded to the full chainweb pact path
// of the configured network and the chain in ChainHeader.
type Forwarder struct {
	networkID string

	lk         sync.RWMutex
	upstreams  map[Upstream]http.Handler
	namespaces map[string]Upstream
}

var _ Router = (*Forwarder)(nil)

func NewForwarder(networkID string) *Forwarder {
	return &Forwarder{
		networkID: networkID,
		upstreams: make(map[Upstream]http.Handler),
		namespaces: map[string]Upstream{
			strings.ToLower(ChainwebNamespace): UpstreamChainweb,
			strings.ToLower(PactNamespace):     UpstreamChainweb,
			strings.ToLower(GatewayNamespace):  UpstreamGateway,
		},
	}
}

// AddNamespace maps an extra header value onto up.
func (f *Forwarder) AddNamespace(namespace string, up Upstream) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.namespaces[strings.ToLower(namespace)] = up
}

func (f *Forwarder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		namespace := r.Header.Get(NamespaceHeader)
		if namespace == "" {
			next.ServeHTTP(w, r)
			return
		}

		up, handler, err := f.route(namespace)
		if err != nil {
			log.Warnw("route request", "namespace", namespace, "path", r.URL.Path, "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if up == UpstreamGateway {
			next.ServeHTTP(w, r)
			return
		}
		if strings.EqualFold(namespace, PactNamespace) {
			if err := f.expandPactPath(r); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		handler.ServeHTTP(w, r)
	})
}

func (f *Forwarder) route(namespace string) (Upstream, http.Handler, error) {
	f.lk.RLock()
	defer f.lk.RUnlock()
	up, ok := f.namespaces[strings.ToLower(namespace)]
	if !ok {
		return UpstreamNone, nil, fmt.Errorf("%s: %w", namespace, ErrUnknownNamespace)
	}
	if up == UpstreamGateway {
		return up, nil, nil
	}
	handler, ok := f.upstreams[up]
	if !ok {
		return up, nil, fmt.Errorf("%s: %w", up, ErrNoUpstream)
	}
	return up, handler, nil
}

// expandPactPath rewrites /<endpoint> and /api/v1/<endpoint> into
// /chainweb/0.0/<network>/chain/<chain>/pact/api/v1/<endpoint>. Full paths
// are left untouched.
func (f *Forwarder) expandPactPath(r *http.Request) error {
	p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/api/v1")
	endpoint := strings.TrimPrefix(p, "/")
	if _, ok := pactEndpoints[endpoint]; !ok {
		return nil
	}
	chain := r.Header.Get(ChainHeader)
	if chain == "" || f.networkID == "" {
		return fmt.Errorf("pact endpoint %s needs the %s header", endpoint, ChainHeader)
	}
	r.URL.Path = fmt.Sprintf("/chainweb/0.0/%s/chain/%s/pact/api/v1/%s", f.networkID, url.PathEscape(chain), endpoint)
	r.URL.RawPath = ""
	return nil
}

func (f *Forwarder) SetUpstream(up Upstream, handler http.Handler) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if handler == nil {
		delete(f.upstreams, up)
		log.Infof("removed upstream %s", up)
		return
	}
	f.upstreams[up] = handler
}

// SetUpstreamAddr points up at a url or multiaddr, an empty address removes
// it.
func (f *Forwarder) SetUpstreamAddr(up Upstream, address string) error {
	if address == "" {
		f.SetUpstream(up, nil)
		return nil
	}
	u, err := parseAddr(address)
	if err != nil {
		return err
	}

	log.Infof("forward %s to %s", up, u.String())
	f.SetUpstream(up, newUpstreamHandler(u))
	return nil
}

// parseAddr accepts a multiaddr or a plain url. Multiaddrs with a tls
// protocol map to https.
func parseAddr(address string) (*url.URL, error) {
	ma, err := multiaddr.NewMultiaddr(address)
	if err != nil {
		return url.Parse(address)
	}
	_, hostPort, err := maNet.DialArgs(ma)
	if err != nil {
		return nil, fmt.Errorf("dial args of %s: %w", address, err)
	}

	scheme := "http"
	for _, code := range []int{multiaddr.P_HTTPS, multiaddr.P_WSS, multiaddr.P_TLS} {
		if _, err := ma.ValueForProtocol(code); err == nil {
			scheme = "https"
			break
		}
	}
	return &url.URL{Scheme: scheme, Host: hostPort}, nil
}
