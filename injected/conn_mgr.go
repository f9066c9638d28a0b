package injected

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kadena-community/cabinet-gateway/types"
)

type providerInfo struct {
	name        string
	networks    map[string]struct{}
	connections map[uuid.UUID]*types.ChannelInfo
}

type connMgr struct {
	infoLk    sync.Mutex
	providers map[string]*providerInfo
	// closed on the next registration of a provider name
	waiters map[string]chan struct{}
}

func newConnMgr() *connMgr {
	return &connMgr{
		providers: make(map[string]*providerInfo),
		waiters:   make(map[string]chan struct{}),
	}
}

func (m *connMgr) addNewConn(policy *types.InjectedRegisterPolicy, channel *types.ChannelInfo) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	info, ok := m.providers[policy.Name]
	if !ok {
		info = &providerInfo{
			name:        policy.Name,
			networks:    make(map[string]struct{}),
			connections: make(map[uuid.UUID]*types.ChannelInfo),
		}
		m.providers[policy.Name] = info
	}
	info.connections[channel.ChannelID] = channel
	for _, network := range policy.Networks {
		info.networks[network] = struct{}{}
	}

	if ch, ok := m.waiters[policy.Name]; ok {
		close(ch)
		delete(m.waiters, policy.Name)
	}

	log.Infow("add injected connection", "channel", channel.ChannelID.String(),
		"provider", policy.Name,
		"networks", policy.Networks,
		"ip", channel.IP,
	)
}

func (m *connMgr) removeConn(name string, channel *types.ChannelInfo) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	if info, ok := m.providers[name]; ok {
		delete(info.connections, channel.ChannelID)
		if len(info.connections) == 0 {
			delete(m.providers, name)
		}
	}
	log.Infof("provider %s remove connection %s", name, channel.ChannelID)
}

// registered reports whether name has a live bridge, and if not, returns a
// channel closed when one attaches.
func (m *connMgr) registered(name string) (bool, <-chan struct{}) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	if info, ok := m.providers[name]; ok && len(info.connections) > 0 {
		return true, nil
	}
	ch, ok := m.waiters[name]
	if !ok {
		ch = make(chan struct{})
		m.waiters[name] = ch
	}
	return false, ch
}

func (m *connMgr) getChannels(name string) ([]*types.ChannelInfo, error) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	info, ok := m.providers[name]
	if !ok || len(info.connections) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, name)
	}
	channels := make([]*types.ChannelInfo, 0, len(info.connections))
	for _, c := range info.connections {
		channels = append(channels, c)
	}
	// newest bridge first, an old one is more likely to be stale
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreateTime.After(channels[j].CreateTime)
	})
	return channels, nil
}

func (m *connMgr) providerOf(channelID uuid.UUID) (string, error) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	for name, info := range m.providers {
		if _, ok := info.connections[channelID]; ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("no connect found for channel %s", channelID)
}

func (m *connMgr) listProviders() []*types.InjectedProviderDetail {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()

	details := make([]*types.InjectedProviderDetail, 0, len(m.providers))
	for name, info := range m.providers {
		detail := &types.InjectedProviderDetail{Name: name, ConnectStates: []types.InjectedConnState{}}
		for network := range info.networks {
			detail.Networks = append(detail.Networks, network)
		}
		sort.Strings(detail.Networks)
		for channelID, conn := range info.connections {
			detail.ConnectStates = append(detail.ConnectStates, types.InjectedConnState{
				ChannelID:    channelID,
				IP:           conn.IP,
				RequestCount: len(conn.OutBound),
				CreateTime:   conn.CreateTime,
			})
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details
}
