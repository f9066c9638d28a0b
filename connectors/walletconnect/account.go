package walletconnect

import (
	"strings"

	"github.com/pkg/errors"
)

// Account is a session account string split into its parts.
type Account struct {
	Namespace string
	NetworkID string
	PublicKey string
}

// Name is the k: account owned by the key.
func (a Account) Name() string {
	return "k:" + a.PublicKey
}

func (a Account) String() string {
	return a.Namespace + ":" + a.NetworkID + ":" + a.PublicKey
}

// ParseAccount splits "kadena:<network>:<pubkey>".
func ParseAccount(s string) (Account, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Account{}, errors.Errorf("malformed session account %q", s)
	}
	if parts[0] != Namespace {
		return Account{}, errors.Errorf("session account %q is not in the %s namespace", s, Namespace)
	}
	return Account{Namespace: parts[0], NetworkID: parts[1], PublicKey: parts[2]}, nil
}
