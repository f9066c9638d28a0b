// Package signresult maps the response shapes wallets return for a signing
// request onto types.SignedTxResult.
package signresult

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/kadena-community/cabinet-gateway/types"
)

type Shape int

const (
	ShapeUnknown Shape = iota
	// {"body": {cmd, hash, sigs}, "errors": ...}, the signing api form
	ShapeBody
	// {"status": ..., "signedCmd": {cmd, hash, sigs}}, the extension form
	ShapeSignedCmd
	// {cmd, hash, sigs}
	ShapeBare
	// {"status": "fail", "error": ...} or any object carrying only an error
	ShapeError
)

func (s Shape) String() string {
	switch s {
	case ShapeBody:
		return "body"
	case ShapeSignedCmd:
		return "signedCmd"
	case ShapeBare:
		return "bare"
	case ShapeError:
		return "error"
	}
	return "unknown"
}

// Classify reports which response shape raw has.
func Classify(raw []byte) Shape {
	if !gjson.ValidBytes(raw) {
		return ShapeUnknown
	}
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		return ShapeUnknown
	}
	switch {
	case v.Get("body").IsObject():
		return ShapeBody
	case v.Get("signedCmd").IsObject():
		return ShapeSignedCmd
	case v.Get("cmd").Type == gjson.String:
		return ShapeBare
	case errorMessage(v) != "":
		return ShapeError
	}
	return ShapeUnknown
}

// Normalize never fails: anything that is not a well formed signed command
// becomes a failure result carrying a message.
func Normalize(raw []byte) *types.SignedTxResult {
	v := gjson.ParseBytes(raw)
	switch shape := Classify(raw); shape {
	case ShapeBody:
		if msg := errorMessage(v); msg != "" {
			return types.SignFailure(msg)
		}
		return fromCommand(v.Get("body"))
	case ShapeSignedCmd:
		status := v.Get("status").String()
		if status != "" && status != string(types.SignSuccessStatus) {
			msg := errorMessage(v)
			if msg == "" {
				msg = fmt.Sprintf("wallet returned status %s", status)
			}
			return types.SignFailure(msg)
		}
		// without a status an error next to the command wins
		if msg := errorMessage(v); status == "" && msg != "" {
			return types.SignFailure(msg)
		}
		return fromCommand(v.Get("signedCmd"))
	case ShapeBare:
		return fromCommand(v)
	case ShapeError:
		return types.SignFailure(errorMessage(v))
	case ShapeUnknown:
		return types.SignFailure(fmt.Sprintf("unexpected sign response: %s", truncate(string(raw))))
	}
	return types.SignFailure("unexpected sign response")
}

func fromCommand(v gjson.Result) *types.SignedTxResult {
	var cmd types.SignedCmd
	if err := json.Unmarshal([]byte(v.Raw), &cmd); err != nil {
		return types.SignFailure(fmt.Sprintf("malformed signed command: %v", err))
	}
	if cmd.Cmd == "" || cmd.Hash == "" {
		return types.SignFailure("signed command is missing cmd or hash")
	}
	return types.SignSuccess(&cmd)
}

func errorMessage(v gjson.Result) string {
	for _, path := range []string{"errors", "error", "message"} {
		e := v.Get(path)
		switch {
		case !e.Exists() || e.Type == gjson.Null:
			continue
		case e.Type == gjson.String:
			if e.String() != "" {
				return e.String()
			}
		case e.IsArray():
			if len(e.Array()) > 0 {
				return e.Raw
			}
		case e.IsObject():
			if m := e.Get("message"); m.Type == gjson.String {
				return m.String()
			}
			return e.Raw
		case e.Type == gjson.True:
			return path
		}
	}
	return ""
}

const maxEcho = 256

// truncate cuts s to at most maxEcho bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxEcho {
		return s
	}
	cut := maxEcho
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
