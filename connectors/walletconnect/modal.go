package walletconnect

import "sync"

// Modal shows a pairing uri to the user while a proposal is pending.
type Modal interface {
	Open(uri string)
	Close()
}

// LogModal logs the uri and keeps it readable until the modal closes.
type LogModal struct {
	lk  sync.Mutex
	uri string
}

func (m *LogModal) Open(uri string) {
	log.Infow("pair a walletconnect wallet", "uri", uri)
	m.lk.Lock()
	m.uri = uri
	m.lk.Unlock()
}

func (m *LogModal) Close() {
	m.lk.Lock()
	m.uri = ""
	m.lk.Unlock()
}

// URI returns the pending pairing uri, empty when nothing is pending.
func (m *LogModal) URI() string {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.uri
}
