package chain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/kadena-community/cabinet-gateway/types"
)

type execPayload struct {
	Exec execBody `json:"exec"`
}

type execBody struct {
	Data interface{} `json:"data"`
	Code string      `json:"code"`
}

type signer struct {
	PubKey string                `json:"pubKey"`
	Clist  []types.CapabilityRef `json:"clist,omitempty"`
}

type meta struct {
	CreationTime int64   `json:"creationTime"`
	TTL          int64   `json:"ttl"`
	GasLimit     int64   `json:"gasLimit"`
	ChainID      string  `json:"chainId"`
	GasPrice     float64 `json:"gasPrice"`
	Sender       string  `json:"sender"`
}

type command struct {
	NetworkID string      `json:"networkId"`
	Payload   execPayload `json:"payload"`
	Signers   []signer    `json:"signers"`
	Meta      meta        `json:"meta"`
	Nonce     string      `json:"nonce"`
}

// BuildUnsigned turns a sign request into an unsigned chainweb command with
// its request key filled in.
func BuildUnsigned(req *types.SignCommand, now time.Time) (*types.SignedCmd, error) {
	var data interface{} = map[string]interface{}{}
	if len(req.EnvData) > 0 {
		data = req.EnvData
	}
	nonce := req.Nonce
	if nonce == "" {
		nonce = strconv.FormatInt(now.UnixNano(), 10)
	}
	cmd := command{
		NetworkID: req.NetworkID,
		Payload:   execPayload{Exec: execBody{Data: data, Code: req.Code}},
		Signers:   []signer{},
		Meta: meta{
			CreationTime: now.Unix(),
			TTL:          req.TTL,
			GasLimit:     req.GasLimit,
			ChainID:      req.ChainID,
			GasPrice:     req.GasPrice,
			Sender:       req.Sender,
		},
		Nonce: nonce,
	}
	if req.SigningPubKey != "" {
		s := signer{PubKey: req.SigningPubKey}
		for _, c := range req.Caps {
			s.Clist = append(s.Clist, c.Cap)
		}
		cmd.Signers = append(cmd.Signers, s)
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return &types.SignedCmd{Cmd: string(raw), Hash: HashCommand(string(raw)), Sigs: []types.Sig{}}, nil
}
