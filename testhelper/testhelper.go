package testhelper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/kadena-community/cabinet-gateway/injected"
	"github.com/kadena-community/cabinet-gateway/types"
)

var detailsRe = regexp.MustCompile(`coin\.details\s+"([^"]*)"`)

// ChainwebNode is a fake chainweb node answering coin.details lookups for a
// fixed set of accounts.
type ChainwebNode struct {
	*httptest.Server

	lk       sync.Mutex
	balances map[string]float64
	sent     []string
}

func NewChainwebNode(t *testing.T, balances map[string]float64) *ChainwebNode {
	node := &ChainwebNode{balances: make(map[string]float64)}
	for k, v := range balances {
		node.balances[k] = v
	}
	node.Server = httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(node.Close)
	return node
}

func (n *ChainwebNode) SetBalance(account string, balance float64) {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.balances[account] = balance
}

func (n *ChainwebNode) Sent() []string {
	n.lk.Lock()
	defer n.lk.Unlock()
	return append([]string(nil), n.sent...)
}

func (n *ChainwebNode) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/cut"):
		_, _ = w.Write([]byte(`{"height":1}`))
	case strings.HasSuffix(r.URL.Path, "/pact/api/v1/local"):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		code := gjson.Get(gjson.GetBytes(body, "cmd").String(), "payload.exec.code").String()
		match := detailsRe.FindStringSubmatch(code)
		if match == nil {
			http.Error(w, "unsupported code "+code, http.StatusBadRequest)
			return
		}
		n.lk.Lock()
		balance, ok := n.balances[match[1]]
		n.lk.Unlock()
		if !ok {
			_, _ = fmt.Fprintf(w, `{"result":{"status":"failure","error":{"message":"with-read: row not found: %s"}}}`, match[1])
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"status": "success",
				"data": map[string]interface{}{
					"account": match[1],
					"balance": map[string]string{"decimal": fmt.Sprintf("%v", balance)},
					"guard":   map[string]interface{}{"keys": []string{strings.TrimPrefix(match[1], "k:")}, "pred": "keys-all"},
				},
			},
		})
	case strings.HasSuffix(r.URL.Path, "/pact/api/v1/send"):
		var req struct {
			Cmds []*types.SignedCmd `json:"cmds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		keys := make([]string, 0, len(req.Cmds))
		n.lk.Lock()
		for _, c := range req.Cmds {
			keys = append(keys, c.Hash)
			n.sent = append(n.sent, c.Hash)
		}
		n.lk.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"requestKeys": keys})
	default:
		http.NotFound(w, r)
	}
}

// AttachBridge connects handler to stream as the injected provider name and
// waits for the bridge to be registered.
func AttachBridge(ctx context.Context, t *testing.T, stream injected.IInjectedServiceProvider, name string, handler types.InjectedWalletHandler) *injected.BridgeClient {
	policy := &types.InjectedRegisterPolicy{Name: name, Networks: []string{"testnet04"}}
	client := injected.NewBridgeClient(handler, stream, policy, logging.Logger("bridge").With())
	go client.ListenInjectedRequest(ctx)
	client.WaitReady(ctx)
	require.NoError(t, ctx.Err())
	return client
}
