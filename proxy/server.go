package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gorilla/websocket"
)

// hop headers the websocket dialer sets itself
var wsHandshakeHeaders = []string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions"}

func newUpstreamHandler(u *url.URL) http.Handler {
	target := *u
	rp := httputil.NewSingleHostReverseProxy(&target)
	director := rp.Director
	rp.Director = func(r *http.Request) {
		director(r)
		// chainweb nodes behind a load balancer route on the host name
		r.Host = target.Host
		r.Header.Del(NamespaceHeader)
		r.Header.Del(ChainHeader)
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warnw("chainweb upstream", "host", target.Host, "path", r.URL.Path, "err", err)
		http.Error(w, "chainweb upstream: "+err.Error(), http.StatusBadGateway)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			rp.ServeHTTP(w, r)
			return
		}
		relayWebsocket(w, r, &target)
	})
}

func relayWebsocket(w http.ResponseWriter, r *http.Request, target *url.URL) {
	dialURL := *r.URL
	dialURL.Host = target.Host
	if target.Scheme == "https" {
		dialURL.Scheme = "wss"
	} else {
		dialURL.Scheme = "ws"
	}

	header := r.Header.Clone()
	header.Del(NamespaceHeader)
	for _, h := range wsHandshakeHeaders {
		header.Del(h)
	}

	upstream, resp, err := websocket.DefaultDialer.DialContext(r.Context(), dialURL.String(), header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		log.Warnw("dial chainweb websocket", "url", dialURL.String(), "status", status, "err", err)
		http.Error(w, fmt.Sprintf("dial chainweb websocket: %v", err), http.StatusBadGateway)
		return
	}
	defer upstream.Close() // nolint

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	client, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("upgrade client websocket", "err", err)
		return
	}
	defer client.Close() // nolint

	errc := make(chan error, 2)
	go pump(client, upstream, errc)
	go pump(upstream, client, errc)
	err = <-errc
	log.Debugw("websocket relay closed", "url", dialURL.String(), "err", err)
}

// pump copies frames from src to dst until either side fails. A close frame
// from src is passed on to dst.
func pump(src, dst *websocket.Conn, errc chan<- error) {
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				_ = dst.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(ce.Code, ce.Text))
			}
			errc <- err
			return
		}
		if err := dst.WriteMessage(msgType, msg); err != nil {
			errc <- err
			return
		}
	}
}
