package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	t.Run("unknown namespace", func(t *testing.T) {
		f := NewForwarder("testnet04")
		_, _, err := f.route("Metamask")
		require.ErrorIs(t, err, ErrUnknownNamespace)
	})

	t.Run("no chainweb upstream", func(t *testing.T) {
		f := NewForwarder("testnet04")
		up, _, err := f.route(PactNamespace)
		require.Equal(t, UpstreamChainweb, up)
		require.ErrorIs(t, err, ErrNoUpstream)
	})

	t.Run("namespaces ignore case", func(t *testing.T) {
		f := NewForwarder("testnet04")
		f.SetUpstream(UpstreamChainweb, http.NotFoundHandler())
		_, h, err := f.route("chainWEB")
		require.NoError(t, err)
		require.NotNil(t, h)

		up, _, err := f.route("cabinet")
		require.NoError(t, err)
		require.Equal(t, UpstreamGateway, up)
	})

	t.Run("extra namespace", func(t *testing.T) {
		f := NewForwarder("testnet04")
		f.AddNamespace("Explorer", UpstreamChainweb)
		_, _, err := f.route("explorer")
		require.ErrorIs(t, err, ErrNoUpstream)
	})
}

func TestSetUpstreamAddr(t *testing.T) {
	f := NewForwarder("testnet04")
	require.NoError(t, f.SetUpstreamAddr(UpstreamChainweb, "/ip4/127.0.0.1/tcp/1848"))
	_, _, err := f.route(ChainwebNamespace)
	require.NoError(t, err)

	require.NoError(t, f.SetUpstreamAddr(UpstreamChainweb, ""))
	_, _, err = f.route(ChainwebNamespace)
	require.ErrorIs(t, err, ErrNoUpstream)
}

type testServer struct {
	t   *testing.T
	url string
}

func (s *testServer) get(path string, header map[string]string) (int, string) {
	req, err := http.NewRequest(http.MethodGet, s.url+path, nil)
	require.NoError(s.t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, string(body)
}

func setupForwarder(t *testing.T) *testServer {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get(NamespaceHeader))
		require.Empty(t, r.Header.Get(ChainHeader))
		_, _ = w.Write([]byte("chainweb " + r.URL.Path))
	}))
	t.Cleanup(node.Close)

	f := NewForwarder("testnet04")
	require.NoError(t, f.SetUpstreamAddr(UpstreamChainweb, node.URL))
	srv := httptest.NewServer(f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("gateway"))
	})))
	t.Cleanup(srv.Close)
	return &testServer{t: t, url: srv.URL}
}

func TestMiddleware(t *testing.T) {
	srv := setupForwarder(t)

	_, body := srv.get("/chainweb/0.0/testnet04/cut", nil)
	require.Equal(t, "gateway", body)
	_, body = srv.get("/chainweb/0.0/testnet04/cut", map[string]string{NamespaceHeader: GatewayNamespace})
	require.Equal(t, "gateway", body)
	_, body = srv.get("/chainweb/0.0/testnet04/cut", map[string]string{NamespaceHeader: ChainwebNamespace})
	require.Equal(t, "chainweb /chainweb/0.0/testnet04/cut", body)

	code, _ := srv.get("/cut", map[string]string{NamespaceHeader: "unknown"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestPactPaths(t *testing.T) {
	srv := setupForwarder(t)
	pact := map[string]string{NamespaceHeader: PactNamespace, ChainHeader: "1"}

	_, body := srv.get("/local", pact)
	require.Equal(t, "chainweb /chainweb/0.0/testnet04/chain/1/pact/api/v1/local", body)
	_, body = srv.get("/api/v1/send", pact)
	require.Equal(t, "chainweb /chainweb/0.0/testnet04/chain/1/pact/api/v1/send", body)

	// full paths pass through
	full := "/chainweb/0.0/mainnet01/chain/3/pact/api/v1/poll"
	_, body = srv.get(full, pact)
	require.Equal(t, "chainweb "+full, body)

	code, body := srv.get("/local", map[string]string{NamespaceHeader: PactNamespace})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body, ChainHeader)
}

func TestUpstreamDown(t *testing.T) {
	node := httptest.NewServer(http.NotFoundHandler())
	node.Close()

	f := NewForwarder("testnet04")
	require.NoError(t, f.SetUpstreamAddr(UpstreamChainweb, node.URL))
	srv := httptest.NewServer(f.Middleware(http.NotFoundHandler()))
	defer srv.Close()

	code, _ := (&testServer{t: t, url: srv.URL}).get("/cut", map[string]string{NamespaceHeader: ChainwebNamespace})
	require.Equal(t, http.StatusBadGateway, code)
}

func TestWebsocketRelay(t *testing.T) {
	upgrader := websocket.Upgrader{}
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() // nolint
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, []byte("echo "+string(msg))); err != nil {
				return
			}
		}
	}))
	defer node.Close()

	f := NewForwarder("testnet04")
	require.NoError(t, f.SetUpstreamAddr(UpstreamChainweb, node.URL))
	srv := httptest.NewServer(f.Middleware(http.NotFoundHandler()))
	defer srv.Close()

	header := http.Header{}
	header.Set(NamespaceHeader, ChainwebNamespace)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/header/updates", header)
	require.NoError(t, err)
	defer conn.Close() // nolint

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "echo hi", string(msg))
}

func TestParseAddr(t *testing.T) {
	u, err := parseAddr("/ip4/127.0.0.1/tcp/1848")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:1848", u.String())

	u, err = parseAddr("/ip4/127.0.0.1/tcp/443/https")
	require.NoError(t, err)
	require.Equal(t, "https://127.0.0.1:443", u.String())

	u, err = parseAddr("https://api.chainweb.com")
	require.NoError(t, err)
	require.Equal(t, "api.chainweb.com", u.Host)
}
