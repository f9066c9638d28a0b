package walletconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	Namespace = "kadena"

	MethodGetAccounts = "kadena_getAccounts_v1"
	MethodSign        = "kadena_sign_v1"
	MethodQuickSign   = "kadena_quicksign_v1"

	EventAccountsChanged = "kadena_accountsChanged"

	DefaultRelayURL       = "wss://relay.walletconnect.com"
	DefaultPairingTimeout = 5 * time.Minute
)

// Networks are the kadena chains a session is proposed for.
var Networks = []string{"mainnet01", "testnet04", "development"}

// ChainID is the CAIP-2 chain id of a kadena network.
func ChainID(networkID string) string {
	return Namespace + ":" + networkID
}

type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// ProposalNamespace is what the dapp asks the wallet to approve.
type ProposalNamespace struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// SessionNamespace is what the wallet approved.
type SessionNamespace struct {
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Chains   []string `json:"chains,omitempty"`
}

type Session struct {
	Topic      string                      `json:"topic"`
	Namespaces map[string]SessionNamespace `json:"namespaces"`
	Peer       Metadata                    `json:"peer"`
	Expiry     int64                       `json:"expiry"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.Expiry > 0 && now.Unix() >= s.Expiry
}

// Accounts lists the CAIP-10 accounts approved for ns.
func (s *Session) Accounts(ns string) []string {
	if s == nil {
		return nil
	}
	return s.Namespaces[ns].Accounts
}

type ConnectParams struct {
	RequiredNamespaces map[string]ProposalNamespace
}

// Pairing is an outstanding session proposal. URI is shown to the user,
// Approval blocks until the wallet settles the session or ctx is done.
type Pairing struct {
	URI      string
	Approval func(ctx context.Context) (*Session, error)
}

type RequestArguments struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type RequestParams struct {
	Topic   string
	ChainID string
	Request RequestArguments
}

type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var UserDisconnected = Reason{Code: 6000, Message: "User disconnected."}

// SignClient is the sign client surface the connector drives.
type SignClient interface {
	// Sessions returns every live session, oldest first.
	Sessions() []*Session
	Connect(ctx context.Context, params ConnectParams) (*Pairing, error)
	Request(ctx context.Context, params RequestParams, result interface{}) error
	Disconnect(ctx context.Context, topic string, reason Reason) error
	// OnSessionDelete registers fn to run when the peer ends a session.
	OnSessionDelete(fn func(topic string))
}

// rpcPayload is a JSON-RPC 2.0 message. Requests carry Method, responses
// carry Result or Error.
type rpcPayload struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (p *rpcPayload) isRequest() bool {
	return p.Method != ""
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newRequest(method string, params interface{}) (*rpcPayload, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &rpcPayload{ID: payloadID(), JSONRPC: "2.0", Method: method, Params: raw}, nil
}

func newResult(id int64, result interface{}) (*rpcPayload, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &rpcPayload{ID: id, JSONRPC: "2.0", Result: raw}, nil
}

func newError(id int64, code int, msg string) *rpcPayload {
	return &rpcPayload{ID: id, JSONRPC: "2.0", Error: &RPCError{Code: code, Message: msg}}
}
