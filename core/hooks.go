package core

import (
	"context"

	"github.com/kadena-community/cabinet-gateway/store"
	"github.com/kadena-community/cabinet-gateway/types"
)

// Hooks is the derived view over one connector's store.
type Hooks struct {
	store     *store.Store
	connector Connector
}

// InitializeConnector builds a store, hands its actions to the factory and
// binds the resulting connector to a Hooks bundle.
func InitializeConnector[T Connector](factory func(actions store.Actions) T) (T, *Hooks, *store.Store) {
	s := store.New()
	c := factory(s)
	return c, &Hooks{store: s, connector: c}, s
}

func (h *Hooks) State() types.ConnectionState {
	return h.store.State()
}

func (h *Hooks) NetworkID() string {
	return h.store.State().NetworkID
}

func (h *Hooks) Account() *types.KadenaAccount {
	return h.store.State().Account
}

func (h *Hooks) IsActivating() bool {
	return h.store.State().Activating
}

func (h *Hooks) SharedAccounts() []string {
	return h.store.State().SharedAccounts
}

func (h *Hooks) IsActive() bool {
	return ComputeIsActive(h.store.State())
}

func (h *Hooks) Provider() interface{} {
	return h.connector.Provider()
}

func (h *Hooks) Subscribe(ctx context.Context) <-chan types.ConnectionState {
	return h.store.Subscribe(ctx)
}

// ComputeIsActive reports a finished connection. SharedAccounts does not
// take part: a wallet offering accounts is not connected until one is chosen.
func ComputeIsActive(state types.ConnectionState) bool {
	return state.NetworkID != "" && state.Account != nil && !state.Activating
}
