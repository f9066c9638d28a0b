package core

import (
	"github.com/kadena-community/cabinet-gateway/types"
)

type Entry struct {
	Connector Connector
	Hooks     *Hooks
}

// PriorityIndex returns the index of the first active entry, or 0 when none
// is active. Registration order breaks ties.
func PriorityIndex(entries ...Entry) int {
	for i, entry := range entries {
		if entry.Hooks.IsActive() {
			return i
		}
	}
	return 0
}

func PriorityConnector(entries ...Entry) Entry {
	if len(entries) == 0 {
		return Entry{}
	}
	return entries[PriorityIndex(entries...)]
}

// PriorityState is the snapshot of whichever connector currently has priority.
type PriorityState struct {
	Connector      ConnectorName
	NetworkID      string
	Account        *types.KadenaAccount
	IsActivating   bool
	SharedAccounts []string
	IsActive       bool
}

func snapshot(entry Entry) PriorityState {
	state := entry.Hooks.State()
	return PriorityState{
		Connector:      entry.Connector.Name(),
		NetworkID:      state.NetworkID,
		Account:        state.Account,
		IsActivating:   state.Activating,
		SharedAccounts: state.SharedAccounts,
		IsActive:       ComputeIsActive(state),
	}
}
