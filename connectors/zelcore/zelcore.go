package zelcore

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/connectors/signapi"
	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("zelcore")

var (
	_ core.Connector       = (*Zelcore)(nil)
	_ core.EagerConnector  = (*Zelcore)(nil)
	_ core.Deactivator     = (*Zelcore)(nil)
	_ core.AccountSelector = (*Zelcore)(nil)
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

// Zelcore is a multi account wallet: activation offers its accounts and
// one of them has to be selected to finish connecting.
type Zelcore struct {
	*signapi.Session
}

func New(actions store.Actions, opts Options) *Zelcore {
	return &Zelcore{
		Session: signapi.NewSession(actions, signapi.SessionOptions{
			Name:             string(core.Zelcore),
			URL:              opts.URL,
			NetworkID:        opts.NetworkID,
			ChainID:          opts.ChainID,
			Accounts:         opts.Accounts,
			DefaultAccount:   opts.DefaultAccount,
			Verifier:         opts.Verifier,
			Timeout:          opts.Timeout,
			ErrNoWallet:      types.ErrNoZelcore,
			RestrictAccounts: true,
		}),
	}
}

func (z *Zelcore) Name() core.ConnectorName {
	return core.Zelcore
}

// ConnectEagerly only restores a connection that needs no account choice.
func (z *Zelcore) ConnectEagerly(ctx context.Context) {
	if err := z.Activate(ctx); err != nil {
		log.Debugw("eager connect failed", "err", err)
		z.Reset()
		return
	}
	if z.Account() == nil {
		log.Debugw("eager connect needs an account selection, skipped")
		z.Reset()
	}
}
