package approval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/localfirst/agentcore/core"
)

// TrustStore maps workflow_hash -> set<action_signature>. Consulted
// before every approval solicitation.
type TrustStore interface {
	IsTrusted(workflowHash, actionSignature string) bool
	Trust(workflowHash, actionSignature string) error
}

// FileTrustStore is a JSON-file-backed TrustStore. Persistence is
// atomic (tmp+rename) on every admission.
type FileTrustStore struct {
	path string
	mu   sync.Mutex
	data map[string]map[string]struct{}
}

// LoadFileTrustStore parses path on startup. A missing file starts an
// empty store; a file that exists but fails to parse fails
// initialization outright rather than silently discarding trust.
func LoadFileTrustStore(path string) (*FileTrustStore, error) {
	s := &FileTrustStore{path: path, data: make(map[string]map[string]struct{})}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, core.NewFrameworkError("approval.LoadFileTrustStore", "truststore", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var wire map[string][]string
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, core.NewFrameworkError("approval.LoadFileTrustStore", "truststore", err).WithMessage("trust store parse failure; refusing to start with corrupt trust data")
	}
	for hash, sigs := range wire {
		set := make(map[string]struct{}, len(sigs))
		for _, sig := range sigs {
			set[sig] = struct{}{}
		}
		s.data[hash] = set
	}
	return s, nil
}

// IsTrusted reports whether (workflowHash, actionSignature) was
// previously admitted.
func (s *FileTrustStore) IsTrusted(workflowHash, actionSignature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sigs, ok := s.data[workflowHash]
	if !ok {
		return false
	}
	_, ok = sigs[actionSignature]
	return ok
}

// Trust admits (workflowHash, actionSignature) and persists the store
// atomically (write to a temp file, then rename over the target).
func (s *FileTrustStore) Trust(workflowHash, actionSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sigs, ok := s.data[workflowHash]
	if !ok {
		sigs = make(map[string]struct{})
		s.data[workflowHash] = sigs
	}
	sigs[actionSignature] = struct{}{}

	return s.persistLocked()
}

func (s *FileTrustStore) persistLocked() error {
	wire := make(map[string][]string, len(s.data))
	for hash, sigs := range s.data {
		list := make([]string, 0, len(sigs))
		for sig := range sigs {
			list = append(list, sig)
		}
		wire[hash] = list
	}

	raw, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return core.NewFrameworkError("approval.FileTrustStore.persist", "truststore", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".trust_store-*.tmp")
	if err != nil {
		return core.NewFrameworkError("approval.FileTrustStore.persist", "truststore", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return core.NewFrameworkError("approval.FileTrustStore.persist", "truststore", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return core.NewFrameworkError("approval.FileTrustStore.persist", "truststore", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return core.NewFrameworkError("approval.FileTrustStore.persist", "truststore", err)
	}
	return nil
}
