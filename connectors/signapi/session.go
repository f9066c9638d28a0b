package signapi

import (
	"context"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/kadena-community/cabinet-gateway/chain"
	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("signapi")

// StaticProvider is the provider handle of wallets without an injected
// object. It resolves immediately with fixed chain info.
type StaticProvider struct {
	Name      string
	NetworkID string
	ChainID   string
	URL       string
}

type SessionOptions struct {
	Name      string
	URL       string
	NetworkID string
	ChainID   string
	// Accounts offered to the user. When empty, the wallet is asked through
	// /v1/accounts.
	Accounts       []string
	DefaultAccount string
	Verifier       chain.Verifier
	Timeout        time.Duration
	// ErrNoWallet is returned when no signing api url is configured or the
	// signing api cannot be reached.
	ErrNoWallet error
	// RestrictAccounts limits SelectAccount to the offered accounts.
	RestrictAccounts bool
}

// Session is the connection logic shared by wallets signing through the
// local signing api: activation publishes the offered accounts and an
// explicit selection completes the connection.
type Session struct {
	actions  store.Actions
	opts     SessionOptions
	client   *Client
	provider *StaticProvider

	lk        sync.Mutex
	account   *types.KadenaAccount
	shared    []string
	connected bool
}

func NewSession(actions store.Actions, opts SessionOptions) *Session {
	if opts.ErrNoWallet == nil {
		opts.ErrNoWallet = errors.Errorf("%s signing api is not configured", opts.Name)
	}
	s := &Session{actions: actions, opts: opts}
	if opts.URL != "" {
		s.client = NewClient(opts.URL, opts.Timeout)
		s.provider = &StaticProvider{Name: opts.Name, NetworkID: opts.NetworkID, ChainID: opts.ChainID, URL: s.client.URL()}
	}
	return s
}

// Provider is nil until the signing api answered an activation.
func (s *Session) Provider() interface{} {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.provider == nil || !s.connected {
		return nil
	}
	return s.provider
}

func (s *Session) Account() *types.KadenaAccount {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.account.Clone()
}

func (s *Session) Activate(ctx context.Context) error {
	cancelActivation := s.actions.StartActivation()
	if s.client == nil {
		cancelActivation()
		return s.opts.ErrNoWallet
	}

	accounts, err := s.offeredAccounts(ctx)
	if err != nil {
		cancelActivation()
		return err
	}
	if s.opts.RestrictAccounts && len(accounts) == 0 {
		cancelActivation()
		return errors.Errorf("%s offered no accounts", s.opts.Name)
	}
	update := types.StateUpdate{NetworkID: types.WithNetwork(s.opts.NetworkID), SharedAccounts: accounts}

	selected := s.opts.DefaultAccount
	if selected == "" && len(accounts) == 1 {
		selected = accounts[0]
	}
	if selected != "" {
		account, err := s.verify(ctx, selected)
		if err != nil {
			cancelActivation()
			return err
		}
		update.Account = account
	}

	s.lk.Lock()
	s.shared = accounts
	s.account = update.Account.Clone()
	s.connected = true
	s.lk.Unlock()
	s.actions.Update(update)
	return nil
}

func (s *Session) SelectAccount(ctx context.Context, account string) error {
	if s.client == nil {
		return s.opts.ErrNoWallet
	}
	if account == "" {
		return types.ErrNoAccount
	}
	if s.opts.RestrictAccounts && !s.offered(account) {
		return errors.Errorf("account %s is not offered by %s", account, s.opts.Name)
	}
	verified, err := s.verify(ctx, account)
	if err != nil {
		return err
	}

	s.lk.Lock()
	s.account = verified.Clone()
	s.connected = true
	s.lk.Unlock()
	s.actions.Update(types.StateUpdate{NetworkID: types.WithNetwork(s.opts.NetworkID), Account: verified})
	return nil
}

func (s *Session) Deactivate(ctx context.Context) error {
	s.Reset()
	return nil
}

// Reset forgets the offered and selected accounts along with the store state.
func (s *Session) Reset() {
	s.lk.Lock()
	s.account = nil
	s.shared = nil
	s.connected = false
	s.lk.Unlock()
	s.actions.ResetState()
}

// SignTx fills sender, signer key and network from the selected account
// when the command leaves them empty.
func (s *Session) SignTx(ctx context.Context, cmd *types.SignCommand) *types.SignedTxResult {
	if s.client == nil {
		return types.SignFailure(s.opts.ErrNoWallet.Error())
	}
	if cmd == nil {
		return types.SignFailure("empty sign command")
	}
	req := *cmd
	if req.NetworkID == "" {
		req.NetworkID = s.opts.NetworkID
	}
	if req.ChainID == "" {
		req.ChainID = s.opts.ChainID
	}
	if account := s.Account(); account != nil {
		if req.Sender == "" {
			req.Sender = account.Account
		}
		if req.SigningPubKey == "" {
			req.SigningPubKey = account.PublicKey
		}
	}
	return s.client.Sign(ctx, &req)
}

// offeredAccounts returns the configured accounts, or asks the wallet. An
// unreachable signing api is reported as ErrNoWallet. Wallets that may sign
// for any account are allowed to not list them.
func (s *Session) offeredAccounts(ctx context.Context) ([]string, error) {
	if len(s.opts.Accounts) > 0 {
		if err := s.client.Ping(ctx); err != nil {
			return nil, errors.Wrap(s.opts.ErrNoWallet, err.Error())
		}
		return append([]string(nil), s.opts.Accounts...), nil
	}
	accounts, err := s.client.Accounts(ctx)
	switch {
	case err == nil:
		return accounts, nil
	case errors.Is(err, ErrUnreachable):
		return nil, errors.Wrap(s.opts.ErrNoWallet, err.Error())
	case s.opts.RestrictAccounts:
		return nil, errors.Wrapf(err, "%s list accounts", s.opts.Name)
	default:
		log.Debugw("list accounts", "wallet", s.opts.Name, "err", err)
		return nil, nil
	}
}

func (s *Session) offered(account string) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, a := range s.shared {
		if a == account {
			return true
		}
	}
	return false
}

func (s *Session) verify(ctx context.Context, name string) (*types.KadenaAccount, error) {
	account := &types.KadenaAccount{Account: name, ChainID: s.opts.ChainID}
	if strings.HasPrefix(name, "k:") {
		account.PublicKey = strings.TrimPrefix(name, "k:")
	}
	if s.opts.Verifier == nil {
		return account, nil
	}
	verified := s.opts.Verifier.CheckVerifiedAccount(ctx, name)
	if !verified.OK() {
		return nil, errors.Errorf("verify account %s: %s", name, verified.Message)
	}
	account.Balance = verified.Data.Balance
	if key := verified.Data.PublicKey(); key != "" {
		account.PublicKey = key
	}
	return account, nil
}
