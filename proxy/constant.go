package proxy

import (
	"errors"
)

// Upstream names a backend requests can be forwarded to.
type Upstream string

const (
	UpstreamNone     Upstream = ""
	UpstreamChainweb Upstream = "chainweb"
	UpstreamGateway  Upstream = "gateway"
)

const (
	// NamespaceHeader selects the upstream of a request, the gateway api
	// itself when absent.
	NamespaceHeader = "X-Cabinet-Namespace"
	// ChainHeader completes short pact paths, see Forwarder.
	ChainHeader = "X-Chainweb-Chain"

	ChainwebNamespace = "Chainweb"
	PactNamespace     = "Pact"
	GatewayNamespace  = "Cabinet"
)

// pact api endpoints that may be addressed without the chainweb prefix
var pactEndpoints = map[string]struct{}{
	"local":  {},
	"send":   {},
	"poll":   {},
	"listen": {},
	"spv":    {},
}

var (
	ErrUnknownNamespace = errors.New("unknown " + NamespaceHeader)
	ErrNoUpstream       = errors.New("no upstream registered")
)
