package types

// KadenaAccount is an on-chain account as seen by a connected wallet.
type KadenaAccount struct {
	Account   string  `json:"account"`
	PublicKey string  `json:"publicKey,omitempty"`
	Balance   float64 `json:"balance"`
	ChainID   string  `json:"chainId"`
}

func (a *KadenaAccount) Clone() *KadenaAccount {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// ConnectionState is the per connector connection state. An empty NetworkID,
// a nil Account and nil SharedAccounts all mean "not set".
type ConnectionState struct {
	NetworkID      string         `json:"networkId,omitempty"`
	Account        *KadenaAccount `json:"account,omitempty"`
	Activating     bool           `json:"activating"`
	SharedAccounts []string       `json:"sharedAccounts,omitempty"`
}

func DefaultState() ConnectionState {
	return ConnectionState{}
}

func (s ConnectionState) Clone() ConnectionState {
	cp := ConnectionState{
		NetworkID:  s.NetworkID,
		Account:    s.Account.Clone(),
		Activating: s.Activating,
	}
	if s.SharedAccounts != nil {
		cp.SharedAccounts = append(make([]string, 0, len(s.SharedAccounts)), s.SharedAccounts...)
	}
	return cp
}

// StateUpdate is a partial ConnectionState, nil fields are left untouched.
type StateUpdate struct {
	NetworkID      *string
	Account        *KadenaAccount
	SharedAccounts []string
}

func WithNetwork(networkID string) *string {
	return &networkID
}
