// Package signapi talks to the local signing api desktop wallets expose on
// 127.0.0.1:9467.
package signapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/kadena-community/cabinet-gateway/connectors/signresult"
	"github.com/kadena-community/cabinet-gateway/types"
)

const DefaultURL = "http://127.0.0.1:9467"

// ErrUnreachable marks requests that never got an http response.
var ErrUnreachable = errors.New("signing api unreachable")

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		url:  strings.TrimRight(url, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) URL() string {
	return c.url
}

// signBody is the command with envData repeated under data, which is the
// field name the signing api reads.
func signBody(cmd *types.SignCommand) ([]byte, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if len(cmd.EnvData) > 0 {
		body["data"] = cmd.EnvData
	} else {
		body["data"] = json.RawMessage("{}")
	}
	return json.Marshal(body)
}

// Sign posts cmd to /v1/sign. Transport failures and unexpected replies are
// folded into a failure result.
func (c *Client) Sign(ctx context.Context, cmd *types.SignCommand) *types.SignedTxResult {
	if cmd == nil {
		return types.SignFailure("empty sign command")
	}
	body, err := signBody(cmd)
	if err != nil {
		return types.SignFailure(err.Error())
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/sign", body)
	if err != nil {
		return types.SignFailure(err.Error())
	}
	return signresult.Normalize(raw)
}

// Accounts lists the accounts the wallet offers, for wallets that expose it.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/accounts", nil)
	if err != nil {
		return nil, err
	}
	v := gjson.ParseBytes(raw)
	if !v.IsArray() {
		v = v.Get("accounts")
	}
	if !v.IsArray() {
		return nil, errors.Errorf("unexpected accounts response: %s", string(raw))
	}
	var accounts []string
	for _, a := range v.Array() {
		if a.Type == gjson.String {
			accounts = append(accounts, a.String())
		} else if name := a.Get("account"); name.Exists() {
			accounts = append(accounts, name.String())
		}
	}
	return accounts, nil
}

// Ping checks that something answers http on the signing api address. Any
// status code counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/v1/accounts", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnreachable, "%s: %v", c.url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "%s: %v", c.url, err)
	}
	defer resp.Body.Close() // nolint

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("signing api %s%s: %s", c.url, path, msg)
	}
	return data, nil
}
