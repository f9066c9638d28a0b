package types

import "encoding/json"

type CapabilityRef struct {
	Name string        `json:"name"`
	Args []interface{} `json:"args"`
}

// Capability is a signing capability shown to the user by the wallet.
type Capability struct {
	Role        string        `json:"role"`
	Description string        `json:"description"`
	Cap         CapabilityRef `json:"cap"`
}

// SignCommand is an unsigned Pact exec command waiting for a wallet signature.
type SignCommand struct {
	Code          string          `json:"code"`
	EnvData       json.RawMessage `json:"envData,omitempty"`
	Caps          []Capability    `json:"caps,omitempty"`
	Sender        string          `json:"sender"`
	ChainID       string          `json:"chainId"`
	GasLimit      int64           `json:"gasLimit"`
	GasPrice      float64         `json:"gasPrice"`
	TTL           int64           `json:"ttl"`
	Nonce         string          `json:"nonce,omitempty"`
	SigningPubKey string          `json:"signingPubKey,omitempty"`
	NetworkID     string          `json:"networkId"`
}

type Sig struct {
	Sig string `json:"sig"`
}

// SignedCmd is the wire form accepted by chainweb /send and /local.
type SignedCmd struct {
	Cmd  string `json:"cmd"`
	Hash string `json:"hash"`
	Sigs []Sig  `json:"sigs"`
}

type SignStatus string

const (
	SignSuccessStatus SignStatus = "success"
	SignFailureStatus SignStatus = "failure"
)

// SignedTxResult is the one result shape every connector maps its wallet
// response into.
type SignedTxResult struct {
	Status    SignStatus `json:"status"`
	SignedCmd *SignedCmd `json:"signedCmd"`
	Errors    *string    `json:"errors"`
}

func SignSuccess(cmd *SignedCmd) *SignedTxResult {
	if cmd == nil {
		return SignFailure("wallet returned an empty signed command")
	}
	return &SignedTxResult{Status: SignSuccessStatus, SignedCmd: cmd}
}

func SignFailure(msg string) *SignedTxResult {
	if msg == "" {
		msg = "unknown signing error"
	}
	return &SignedTxResult{Status: SignFailureStatus, Errors: &msg}
}

func (r *SignedTxResult) Valid() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case SignSuccessStatus:
		return r.SignedCmd != nil && r.Errors == nil
	case SignFailureStatus:
		return r.SignedCmd == nil && r.Errors != nil && *r.Errors != ""
	default:
		return false
	}
}

type QuickSignSig struct {
	PubKey string  `json:"pubKey"`
	Sig    *string `json:"sig"`
}

type CommandSigData struct {
	Cmd  string         `json:"cmd"`
	Sigs []QuickSignSig `json:"sigs"`
}

type QuickSignRequest struct {
	CommandSigDatas []CommandSigData `json:"commandSigDatas"`
}

type QuickSignOutcome struct {
	Result string `json:"result"`
	Hash   string `json:"hash,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

type QuickSignResponseItem struct {
	CommandSigData CommandSigData   `json:"commandSigData"`
	Outcome        QuickSignOutcome `json:"outcome"`
}

type QuickSignResponse struct {
	Responses []QuickSignResponseItem `json:"responses"`
}
