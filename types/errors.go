package types

import "errors"

var (
	ErrNoEckoWallet      = errors.New("eckoWALLET is not installed")
	ErrNoZelcore         = errors.New("zelcore signing api is not configured")
	ErrNoChainweaver     = errors.New("chainweaver signing api is not configured")
	ErrNoWalletConnect   = errors.New("walletconnect client is not initialized")
	ErrUnsupported       = errors.New("operation not supported by connector")
	ErrConnectorNotFound = errors.New("connector not found")
	ErrNoAccount         = errors.New("no account selected")
	ErrCloseChannel      = errors.New("recover send once")
	ErrRequestTimeout    = errors.New("timer clean this request due to exceed wait time")
)
