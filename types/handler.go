package types

import (
	"context"
	"encoding/json"
)

// InjectedWalletHandler is implemented by the wallet side of an injected
// bridge. Request receives the raw kda_* params and returns a JSON
// marshallable response.
type InjectedWalletHandler interface {
	Request(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}
