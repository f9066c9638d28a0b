package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChannelInfo struct {
	ChannelID  uuid.UUID
	IP         string
	OutBound   chan *RequestEvent
	CreateTime time.Time
	Ctx        context.Context
}

func NewChannelInfo(ctx context.Context, ip string, sendEvents chan *RequestEvent) *ChannelInfo {
	return &ChannelInfo{
		ChannelID:  uuid.New(),
		OutBound:   sendEvents,
		IP:         ip,
		CreateTime: time.Now(),
		Ctx:        ctx,
	}
}

type CtxKey int

const (
	IPKey CtxKey = iota
	AccountKey
)

// CtxGetIP returns the remote address stored by the auth handler.
func CtxGetIP(ctx context.Context) string {
	if ip, ok := ctx.Value(IPKey).(string); ok {
		return ip
	}
	return ""
}

func CtxGetAccount(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(AccountKey).(string)
	return name, ok
}
