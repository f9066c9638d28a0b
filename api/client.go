package api

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"
)

// NewCabinetRPCClient dials a gateway at addr, a ws:// or http:// rpc url.
func NewCabinetRPCClient(ctx context.Context, addr string, requestHeader http.Header, opts ...jsonrpc.Option) (CabinetAPI, jsonrpc.ClientCloser, error) {
	var res CabinetAPIStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, APINamespace,
		[]interface{}{&res.Internal},
		requestHeader,
		opts...,
	)
	return &res, closer, err
}
