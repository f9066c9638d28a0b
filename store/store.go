package store

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("store")

// Actions is the only way a connector mutates its connection state.
type Actions interface {
	// StartActivation resets the state with Activating set and returns a
	// cancel func. The cancel func clears Activating only if no other
	// mutation happened after this call.
	StartActivation() func()
	Update(update types.StateUpdate)
	ResetState()
}

var _ Actions = (*Store)(nil)

// Store holds one connector's ConnectionState.
type Store struct {
	lk        sync.Mutex
	state     types.ConnectionState
	nullifier uint64

	subLk       sync.Mutex
	subscribers map[chan types.ConnectionState]struct{}
}

func New() *Store {
	return &Store{
		state:       types.DefaultState(),
		subscribers: make(map[chan types.ConnectionState]struct{}),
	}
}

func (s *Store) State() types.ConnectionState {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.state.Clone()
}

func (s *Store) Nullifier() uint64 {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.nullifier
}

func (s *Store) StartActivation() func() {
	s.lk.Lock()
	s.nullifier++
	nullifier := s.nullifier
	s.state = types.DefaultState()
	s.state.Activating = true
	s.publish(s.state.Clone())
	s.lk.Unlock()

	return func() {
		s.lk.Lock()
		if current := s.nullifier; current != nullifier {
			s.lk.Unlock()
			log.Debugf("skip stale activation cancel %d, current %d", nullifier, current)
			return
		}
		s.state.Activating = false
		s.publish(s.state.Clone())
		s.lk.Unlock()
	}
}

func (s *Store) Update(update types.StateUpdate) {
	s.lk.Lock()
	s.nullifier++
	if update.NetworkID != nil {
		s.state.NetworkID = *update.NetworkID
	}
	if update.Account != nil {
		s.state.Account = update.Account.Clone()
	}
	if update.SharedAccounts != nil {
		s.state.SharedAccounts = append(make([]string, 0, len(update.SharedAccounts)), update.SharedAccounts...)
	}
	if s.state.NetworkID != "" && s.state.Account != nil {
		s.state.Activating = false
	}
	s.publish(s.state.Clone())
	s.lk.Unlock()
}

func (s *Store) ResetState() {
	s.lk.Lock()
	s.nullifier++
	s.state = types.DefaultState()
	s.publish(s.state.Clone())
	s.lk.Unlock()
}

// Subscribe streams state snapshots after every mutation until ctx is done.
// A slow reader only sees the latest snapshot.
func (s *Store) Subscribe(ctx context.Context) <-chan types.ConnectionState {
	ch := make(chan types.ConnectionState, 1)
	s.subLk.Lock()
	s.subscribers[ch] = struct{}{}
	s.subLk.Unlock()

	go func() {
		<-ctx.Done()
		s.subLk.Lock()
		delete(s.subscribers, ch)
		close(ch)
		s.subLk.Unlock()
	}()
	return ch
}

func (s *Store) publish(state types.ConnectionState) {
	s.subLk.Lock()
	defer s.subLk.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// drop the stale snapshot, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}
