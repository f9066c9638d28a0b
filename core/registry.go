package core

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("core")

// Registry composes the connectors of one application session and resolves
// which of them has priority.
type Registry struct {
	lk       sync.RWMutex
	entries  []Entry
	override ConnectorName
	selected ConnectorName
}

func NewRegistry(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

func (r *Registry) Entries() []Entry {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) Get(name ConnectorName) (Entry, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return r.get(name)
}

func (r *Registry) get(name ConnectorName) (Entry, error) {
	for _, entry := range r.entries {
		if entry.Connector.Name() == name {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: %w", name, types.ErrConnectorNotFound)
}

// SetOverride forces name to be reported as the priority connector
// regardless of which connector is active.
func (r *Registry) SetOverride(name ConnectorName) error {
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, err := r.get(name); err != nil {
		return err
	}
	r.override = name
	return nil
}

func (r *Registry) ClearOverride() {
	r.lk.Lock()
	r.override = ""
	r.lk.Unlock()
}

func (r *Registry) Priority() Entry {
	r.lk.RLock()
	defer r.lk.RUnlock()
	if r.override != "" {
		if entry, err := r.get(r.override); err == nil {
			return entry
		}
	}
	return PriorityConnector(r.entries...)
}

func (r *Registry) Current() PriorityState {
	entry := r.Priority()
	if entry.Connector == nil {
		return PriorityState{}
	}
	return snapshot(entry)
}

func (r *Registry) Selected() ConnectorName {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return r.selected
}

// SetSelected records the wallet choice without reconnecting.
func (r *Registry) SetSelected(name ConnectorName) error {
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, err := r.get(name); err != nil {
		return err
	}
	r.selected = name
	return nil
}

// SelectWallet records the user's wallet choice and silently reconnects it.
func (r *Registry) SelectWallet(ctx context.Context, name ConnectorName) error {
	if err := r.SetSelected(name); err != nil {
		return err
	}
	return r.Initialize(ctx)
}

// Initialize eagerly reconnects whichever wallet is selected when it runs,
// connectors without eager support are left untouched.
func (r *Registry) Initialize(ctx context.Context) error {
	selected := r.Selected()
	if selected == "" {
		log.Debugf("no wallet selected, skip eager connect")
		return nil
	}
	entry, err := r.Get(selected)
	if err != nil {
		return err
	}
	if err := ConnectEagerly(ctx, entry.Connector); err != nil {
		log.Infof("connector %s does not support eager connect", selected)
	}
	return nil
}

// Subscribe streams the priority snapshot after any connector state change.
func (r *Registry) Subscribe(ctx context.Context) <-chan PriorityState {
	out := make(chan PriorityState, 1)
	var wg sync.WaitGroup
	for _, entry := range r.Entries() {
		wg.Add(1)
		go func(ch <-chan types.ConnectionState) {
			defer wg.Done()
			for range ch {
				current := r.Current()
				select {
				case out <- current:
				default:
					select {
					case <-out:
					default:
					}
					select {
					case out <- current:
					default:
					}
				}
			}
		}(entry.Hooks.Subscribe(ctx))
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
