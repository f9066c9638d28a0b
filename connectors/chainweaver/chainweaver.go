package chainweaver

import (
	"time"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/connectors/signapi"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

var (
	_ core.Connector       = (*Chainweaver)(nil)
	_ core.Deactivator     = (*Chainweaver)(nil)
	_ core.AccountSelector = (*Chainweaver)(nil)
)

type Options struct {
	URL            string
	NetworkID      string
	ChainID        string
	Accounts       []string
	DefaultAccount string
	Verifier       chain.Verifier
	Timeout        time.Duration
}

// Chainweaver signs through the desktop wallet's local signing api. Any
// account name may be selected, the wallet decides whether it can sign.
type Chainweaver struct {
	*signapi.Session
}

func New(actions store.Actions, opts Options) *Chainweaver {
	return &Chainweaver{Session: signapi.NewSession(actions, signapi.SessionOptions{
		Name:           string(core.Chainweaver),
		URL:            opts.URL,
		NetworkID:      opts.NetworkID,
		ChainID:        opts.ChainID,
		Accounts:       opts.Accounts,
		DefaultAccount: opts.DefaultAccount,
		Verifier:       opts.Verifier,
		Timeout:        opts.Timeout,
		ErrNoWallet:    types.ErrNoChainweaver,
	})}
}

func (c *Chainweaver) Name() core.ConnectorName {
	return core.Chainweaver
}
