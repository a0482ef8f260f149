package dock

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kwv/dockmesh/internal/logger"
)

// StateTracker holds the latest surfaces and docking results for the service
// modes. MQTT handlers write into it; the HTTP endpoints and the auto-matcher
// read from it. All methods are safe for concurrent use.
type StateTracker struct {
	mu       sync.RWMutex
	surfaces map[string]*Surface
	roles    map[string]string // surface ID -> RoleTarget/RoleLigand
	results  map[string]*DockingResult
	updated  map[string]time.Time
	dataDir  string // results persistence directory; empty disables persistence
}

// NewStateTracker creates a state tracker without result persistence.
func NewStateTracker() *StateTracker {
	return &StateTracker{
		surfaces: make(map[string]*Surface),
		roles:    make(map[string]string),
		results:  make(map[string]*DockingResult),
		updated:  make(map[string]time.Time),
	}
}

// NewStateTrackerWithDataDir creates a state tracker that persists each
// ligand's result under dataDir.
func NewStateTrackerWithDataDir(dataDir string) *StateTracker {
	st := NewStateTracker()
	st.dataDir = dataDir
	return st
}

// SetDataDir sets the result persistence directory. An empty string disables
// persistence.
func (st *StateTracker) SetDataDir(dataDir string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.dataDir = dataDir
}

// SetRole records a surface's role.
func (st *StateTracker) SetRole(surfaceID, role string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.roles[surfaceID] = role
}

// UpdateSurface stores the latest surface data for an ID.
func (st *StateTracker) UpdateSurface(surfaceID string, s *Surface) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.surfaces[surfaceID] = s
	st.updated[surfaceID] = time.Now()
}

// GetSurface returns the stored surface for an ID.
func (st *StateTracker) GetSurface(surfaceID string) (*Surface, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.surfaces[surfaceID]
	return s, ok
}

// GetSurfaces returns all stored surfaces.
func (st *StateTracker) GetSurfaces() map[string]*Surface {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*Surface)
	for k, v := range st.surfaces {
		result[k] = v
	}
	return result
}

// HasSurfaces returns true if at least one surface has arrived.
func (st *StateTracker) HasSurfaces() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.surfaces) > 0
}

// TargetID returns the surface ID registered with the target role.
func (st *StateTracker) TargetID() (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for id, role := range st.roles {
		if role == RoleTarget {
			return id, true
		}
	}
	return "", false
}

// LigandIDs returns the surface IDs registered with the ligand role, sorted.
func (st *StateTracker) LigandIDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []string
	for id, role := range st.roles {
		if role == RoleLigand {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// LastUpdated returns when a surface was last stored.
func (st *StateTracker) LastUpdated(surfaceID string) (time.Time, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	t, ok := st.updated[surfaceID]
	return t, ok
}

// GetResult returns the latest docking result for a ligand.
func (st *StateTracker) GetResult(ligandID string) (*DockingResult, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.results[ligandID]
	return r, ok
}

// GetResults returns the latest result per ligand.
func (st *StateTracker) GetResults() map[string]*DockingResult {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*DockingResult)
	for k, v := range st.results {
		result[k] = v
	}
	return result
}

// LoadPersistedResults loads previously saved results for the given ligand
// IDs from the data directory, so restarts come back up with the last known
// poses. Returns how many were loaded.
func (st *StateTracker) LoadPersistedResults(ligandIDs []string) int {
	st.mu.RLock()
	dataDir := st.dataDir
	st.mu.RUnlock()
	if dataDir == "" {
		return 0
	}

	loaded := 0
	for _, id := range ligandIDs {
		r, err := LoadResults(filepath.Join(dataDir, ResultFileName(id)))
		if err != nil {
			logger.Warn("failed to load persisted result", zap.String("ligand", id), zap.Error(err))
			continue
		}
		if r == nil {
			continue
		}
		st.mu.Lock()
		st.results[id] = r
		st.mu.Unlock()
		loaded++
	}
	return loaded
}

// RunMatching matches one ligand against the target surface: rank, group,
// estimate transforms, and store the assembled result. The result replaces
// the ligand's previous one and is persisted when a data directory is
// configured.
func (st *StateTracker) RunMatching(ligandID string, cfg MatchConfig) (*DockingResult, error) {
	st.mu.RLock()
	targetID := ""
	for id, role := range st.roles {
		if role == RoleTarget {
			targetID = id
			break
		}
	}
	target := st.surfaces[targetID]
	ligand := st.surfaces[ligandID]
	dataDir := st.dataDir
	st.mu.RUnlock()

	if targetID == "" || target == nil {
		return nil, fmt.Errorf("no target surface available")
	}
	if ligand == nil {
		return nil, fmt.Errorf("no surface data for ligand %q", ligandID)
	}

	groups := BuildMatchingGroups(target.Descriptors, ligand.Descriptors, cfg)
	transforms, err := TransformationsFromGroups(groups, target, ligand)
	if err != nil {
		return nil, fmt.Errorf("estimating transforms: %w", err)
	}
	result, err := NewDockingResult(targetID, ligandID, cfg, groups, transforms)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.results[ligandID] = result
	st.mu.Unlock()

	if dataDir != "" {
		path := filepath.Join(dataDir, ResultFileName(ligandID))
		if err := SaveResults(path, result); err != nil {
			logger.Warn("failed to save docking result", zap.String("ligand", ligandID), zap.Error(err))
		}
	}

	return result, nil
}
