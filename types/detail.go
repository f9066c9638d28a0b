package types

import (
	"time"

	"github.com/google/uuid"
)

// InjectedProviderDetail describes one injected provider and the bridges
// attached for it.
type InjectedProviderDetail struct {
	Name          string
	Networks      []string
	ConnectStates []InjectedConnState
}

type InjectedConnState struct {
	ChannelID    uuid.UUID
	IP           string
	RequestCount int
	CreateTime   time.Time
}

// ConnectorStatus is the externally visible snapshot of one registered
// connector.
type ConnectorStatus struct {
	Name         string
	Capabilities []string
	State        ConnectionState
	IsActive     bool
	Selected     bool
	Priority     bool
}
