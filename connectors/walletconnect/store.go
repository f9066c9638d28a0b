package walletconnect

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

type sessionRecord struct {
	Session *Session `json:"session"`
	SymKey  string   `json:"symKey"`
}

type storeState struct {
	// ClientSeed is the ed25519 seed of the relay identity.
	ClientSeed string           `json:"clientSeed"`
	Sessions   []*sessionRecord `json:"sessions"`
}

// FileStore persists sessions and their keys as JSON, so they survive a
// restart. An empty path keeps everything in memory.
type FileStore struct {
	path string

	lk    sync.Mutex
	state storeState
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*storeState, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.path == "" {
		return s.copyState(), nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.copyState(), nil
		}
		return nil, errors.Wrap(err, "read session file")
	}
	var state storeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrapf(err, "parse session file %s", s.path)
	}
	s.state = state
	return s.copyState(), nil
}

func (s *FileStore) Save(state *storeState) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.state = *state
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) copyState() *storeState {
	cp := storeState{ClientSeed: s.state.ClientSeed}
	cp.Sessions = append(cp.Sessions, s.state.Sessions...)
	return &cp
}

func (r *sessionRecord) key() ([]byte, error) {
	return hex.DecodeString(r.SymKey)
}
