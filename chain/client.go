package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/kadena-community/cabinet-gateway/config"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("chain")

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// AccountDetails is the on-chain view of a coin account.
type AccountDetails struct {
	Account string          `json:"account"`
	Balance float64         `json:"balance"`
	Guard   json.RawMessage `json:"guard"`
}

// PublicKey returns the first key of a keyset guard, empty for other guards.
func (d *AccountDetails) PublicKey() string {
	if d == nil || len(d.Guard) == 0 {
		return ""
	}
	return gjson.GetBytes(d.Guard, "keys.0").String()
}

type VerifiedAccount struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    *AccountDetails `json:"data"`
}

func (v *VerifiedAccount) OK() bool {
	return v != nil && v.Status == StatusSuccess && v.Data != nil
}

// Verifier looks up an account on chain after a wallet connects.
type Verifier interface {
	CheckVerifiedAccount(ctx context.Context, account string) *VerifiedAccount
}

type Client struct {
	host      string
	networkID string
	chainID   string
	gasLimit  int64
	gasPrice  float64
	ttl       int64

	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ Verifier = (*Client)(nil)

func NewClient(cfg *config.NetworkConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		networkID:  cfg.NetworkID,
		chainID:    cfg.ChainID,
		gasLimit:   cfg.GasLimit,
		gasPrice:   cfg.GasPrice,
		ttl:        cfg.TTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
	}
}

func (c *Client) NetworkID() string {
	return c.networkID
}

func (c *Client) ChainID() string {
	return c.chainID
}

func (c *Client) Host() string {
	return c.host
}

func (c *Client) endpoint(chainID, op string) string {
	if chainID == "" {
		chainID = c.chainID
	}
	return fmt.Sprintf("%s/chainweb/0.0/%s/chain/%s/pact/api/v1/%s", c.host, c.networkID, chainID, op)
}

// Local runs code read-only on chainID and returns the raw command result.
func (c *Client) Local(ctx context.Context, chainID, code string, data interface{}) (json.RawMessage, error) {
	var envData json.RawMessage
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		envData = raw
	}
	if chainID == "" {
		chainID = c.chainID
	}
	cmd, err := BuildUnsigned(&types.SignCommand{
		Code:      code,
		EnvData:   envData,
		ChainID:   chainID,
		GasLimit:  c.gasLimit,
		GasPrice:  c.gasPrice,
		TTL:       c.ttl,
		NetworkID: c.networkID,
	}, c.now())
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, c.endpoint(chainID, "local"), cmd)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(body, "result")
	if !res.Exists() {
		return nil, errors.Errorf("unexpected local response: %s", string(body))
	}
	if res.Get("status").String() != StatusSuccess {
		msg := res.Get("error.message").String()
		if msg == "" {
			msg = res.Get("error").Raw
		}
		return nil, errors.Errorf("local call failed: %s", msg)
	}
	return json.RawMessage(res.Get("data").Raw), nil
}

// Send submits signed commands and returns their request keys.
func (c *Client) Send(ctx context.Context, chainID string, cmds ...*types.SignedCmd) ([]string, error) {
	if len(cmds) == 0 {
		return nil, errors.New("no command to send")
	}
	body, err := c.post(ctx, c.endpoint(chainID, "send"), map[string]interface{}{"cmds": cmds})
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range gjson.GetBytes(body, "requestKeys").Array() {
		keys = append(keys, k.String())
	}
	if len(keys) == 0 {
		return nil, errors.Errorf("unexpected send response: %s", string(body))
	}
	return keys, nil
}

// CheckVerifiedAccount never fails, lookup errors fold into a failure status.
func (c *Client) CheckVerifiedAccount(ctx context.Context, account string) *VerifiedAccount {
	data, err := c.Local(ctx, "", fmt.Sprintf("(coin.details %s)", PactString(account)), nil)
	if err != nil {
		log.Debugw("verify account", "account", account, "err", err)
		return &VerifiedAccount{Status: StatusFailure, Message: err.Error()}
	}
	res := gjson.ParseBytes(data)
	balance, err := parseDecimal(res.Get("balance"))
	if err != nil {
		return &VerifiedAccount{Status: StatusFailure, Message: err.Error()}
	}
	details := &AccountDetails{
		Account: res.Get("account").String(),
		Balance: balance,
	}
	if guard := res.Get("guard"); guard.Exists() {
		details.Guard = json.RawMessage(guard.Raw)
	}
	if details.Account == "" {
		details.Account = account
	}
	return &VerifiedAccount{Status: StatusSuccess, Message: "account verified", Data: details}
}

// parseDecimal accepts both a bare number and the {"decimal": "..."} form.
func parseDecimal(v gjson.Result) (float64, error) {
	switch {
	case v.Type == gjson.Number:
		return v.Float(), nil
	case v.IsObject() && v.Get("decimal").Exists():
		return strconv.ParseFloat(v.Get("decimal").String(), 64)
	case v.IsObject() && v.Get("int").Exists():
		return strconv.ParseFloat(v.Get("int").String(), 64)
	case !v.Exists():
		return 0, nil
	}
	return 0, errors.Errorf("unexpected balance %s", v.Raw)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("chainweb %s: %s %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Ping checks the node answers on its cut endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/chainweb/0.0/%s/cut", c.host, c.networkID), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("chainweb node status %s", resp.Status)
	}
	return nil
}
