package testhelper

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/types"
)

var _ types.InjectedWalletHandler = (*MemEckoWallet)(nil)

type walletAccount struct {
	Account   string `json:"account"`
	PublicKey string `json:"publicKey"`
	ChainID   string `json:"chainId,omitempty"`
}

// MemEckoWallet answers kda_* requests the way the browser extension does,
// signing with an in-memory ed25519 key.
type MemEckoWallet struct {
	lk        sync.Mutex
	priv      ed25519.PrivateKey
	pub       string
	networkID string
	connected bool

	fail      bool
	reject    bool
	malformed bool
	calls     []string
}

func NewMemEckoWallet(networkID string) *MemEckoWallet {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return &MemEckoWallet{
		priv:      priv,
		pub:       hex.EncodeToString(pub),
		networkID: networkID,
	}
}

func (m *MemEckoWallet) PublicKey() string {
	return m.pub
}

func (m *MemEckoWallet) Account() string {
	return "k:" + m.pub
}

func (m *MemEckoWallet) SetConnected(connected bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.connected = connected
}

func (m *MemEckoWallet) Connected() bool {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.connected
}

// SetFail makes every request return an error.
func (m *MemEckoWallet) SetFail(fail bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.fail = fail
}

// SetReject makes sign requests answer as if the user declined.
func (m *MemEckoWallet) SetReject(reject bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.reject = reject
}

// SetMalformed makes sign requests answer with an unexpected shape.
func (m *MemEckoWallet) SetMalformed(malformed bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.malformed = malformed
}

func (m *MemEckoWallet) Calls() []string {
	m.lk.Lock()
	defer m.lk.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemEckoWallet) account() walletAccount {
	return walletAccount{Account: m.Account(), PublicKey: m.pub}
}

func (m *MemEckoWallet) Request(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.calls = append(m.calls, method)
	if m.fail {
		return nil, fmt.Errorf("mock error")
	}

	switch method {
	case "kda_checkStatus":
		if !m.connected {
			return map[string]interface{}{"status": "fail", "message": "Not connected"}, nil
		}
		return map[string]interface{}{"status": "success", "account": m.account()}, nil
	case "kda_connect":
		m.connected = true
		return map[string]interface{}{"status": "success", "account": m.account()}, nil
	case "kda_disconnect":
		m.connected = false
		return map[string]interface{}{"status": "success"}, nil
	case "kda_requestAccount":
		if !m.connected {
			return map[string]interface{}{"status": "fail", "message": "Not connected"}, nil
		}
		return map[string]interface{}{"status": "success", "wallet": m.account()}, nil
	case "kda_getNetwork":
		return map[string]interface{}{
			"name":      m.networkID,
			"networkId": m.networkID,
			"url":       "https://api.testnet.chainweb.com",
			"explorer":  "https://explorer.chainweb.com/testnet",
		}, nil
	case "kda_requestSign":
		return m.sign(params)
	}
	return nil, fmt.Errorf("method %s not supported", method)
}

func (m *MemEckoWallet) sign(params json.RawMessage) (interface{}, error) {
	if !m.connected {
		return map[string]interface{}{"status": "fail", "error": "Not connected"}, nil
	}
	if m.reject {
		return map[string]interface{}{"status": "fail", "error": "Rejected by user"}, nil
	}
	if m.malformed {
		return []string{"unexpected"}, nil
	}

	var req struct {
		NetworkID string             `json:"networkId"`
		Data      *types.SignCommand `json:"data"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	if req.Data == nil {
		return nil, fmt.Errorf("missing sign data")
	}
	if req.Data.SigningPubKey == "" {
		req.Data.SigningPubKey = m.pub
	}
	if req.Data.NetworkID == "" {
		req.Data.NetworkID = req.NetworkID
	}
	cmd, err := chain.BuildUnsigned(req.Data, time.Now())
	if err != nil {
		return nil, err
	}
	hash, err := base64.RawURLEncoding.DecodeString(cmd.Hash)
	if err != nil {
		return nil, err
	}
	cmd.Sigs = []types.Sig{{Sig: hex.EncodeToString(ed25519.Sign(m.priv, hash))}}
	return map[string]interface{}{"status": "success", "signedCmd": cmd}, nil
}

// VerifySignedCmd checks cmd carries a valid signature of pubKey over its hash.
func VerifySignedCmd(pubKey string, cmd *types.SignedCmd) bool {
	if cmd == nil || len(cmd.Sigs) == 0 || chain.HashCommand(cmd.Cmd) != cmd.Hash {
		return false
	}
	pub, err := hex.DecodeString(pubKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	hash, err := base64.RawURLEncoding.DecodeString(cmd.Hash)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(cmd.Sigs[0].Sig)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, hash, sig)
}
