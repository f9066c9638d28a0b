package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// MethodInitConnect is the first event a bridge receives on its request
	// channel, it carries the assigned channel id and expects no response.
	MethodInitConnect = "InitConnect"

	NotifyAccountChange = "accountChange"
)

type RequestEvent struct {
	ID         uuid.UUID
	Method     string
	Payload    []byte
	CreateTime time.Time           `json:"-"`
	Result     chan *ResponseEvent `json:"-"`
}

type ResponseEvent struct {
	ID      uuid.UUID
	Payload []byte
	Error   string
}

type ConnectedCompleted struct {
	ChannelID uuid.UUID
}

// InjectedRegisterPolicy is sent by a bridge when it attaches, Name is the
// injected object name the bridge stands in for (e.g. "eckoWALLET").
type InjectedRegisterPolicy struct {
	Name     string
	Networks []string
}

// InjectedNotification is a wallet originated event such as an account
// switch inside the extension.
type InjectedNotification struct {
	Event   string
	Payload json.RawMessage
}
