package dock

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kwv/dockmesh/internal/logger"
)

const (
	// DefaultMinMatchInterval is the minimum time between matching runs for
	// the same ligand (debounce). Explicit rematch requests bypass it.
	DefaultMinMatchInterval = 5 * time.Minute
)

// AutoMatcher reruns docking when surfaces change. It debounces frequent
// surface updates, lazily fetches missing counterpart surfaces over HTTP,
// runs the matching pipeline through the state tracker, and publishes the
// result.
type AutoMatcher struct {
	config       *Config
	stateTracker *StateTracker
	publisher    *Publisher
	minInterval  time.Duration

	mu          sync.Mutex
	lastMatched map[string]time.Time
}

// NewAutoMatcher creates an AutoMatcher ready to handle surface updates.
// publisher may be nil to disable publishing.
func NewAutoMatcher(config *Config, st *StateTracker, publisher *Publisher) *AutoMatcher {
	return &AutoMatcher{
		config:       config,
		stateTracker: st,
		publisher:    publisher,
		minInterval:  DefaultMinMatchInterval,
		lastMatched:  make(map[string]time.Time),
	}
}

// SetMinMatchInterval overrides the per-ligand debounce interval.
func (am *AutoMatcher) SetMinMatchInterval(d time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.minInterval = d
}

// SetPublisher attaches a result publisher. The service wires this after the
// MQTT client connects, so the matcher may run publisher-less before that.
func (am *AutoMatcher) SetPublisher(p *Publisher) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.publisher = p
}

// OnSurfaceUpdate is called after a surface has been stored in the state
// tracker. A target update invalidates every ligand's pose, so all ligands
// are rematched; a ligand update rematches just that ligand. It is safe to
// call from any goroutine.
func (am *AutoMatcher) OnSurfaceUpdate(surfaceID string) {
	sc := am.config.GetSurfaceByID(surfaceID)
	if sc == nil {
		logger.Warn("surface update for unconfigured surface", zap.String("surface", surfaceID))
		return
	}

	switch sc.Role {
	case RoleTarget:
		for _, lig := range am.config.LigandSurfaces() {
			am.matchOne(lig.ID, false)
		}
	case RoleLigand:
		am.matchOne(surfaceID, false)
	}
}

// OnRematchRequest is the RematchHandler callback registered with the MQTT
// client. Requests bypass the debounce; "all" rematches every ligand.
func (am *AutoMatcher) OnRematchRequest(ligandID string) {
	if ligandID == "all" {
		for _, lig := range am.config.LigandSurfaces() {
			am.matchOne(lig.ID, true)
		}
		return
	}

	sc := am.config.GetSurfaceByID(ligandID)
	if sc == nil || sc.Role != RoleLigand {
		logger.Warn("rematch requested for unknown ligand", zap.String("ligand", ligandID))
		return
	}
	am.matchOne(ligandID, true)
}

// RunAll matches every configured ligand once, fetching any surfaces that
// have URLs but no data yet. Used at startup for an initial pass.
func (am *AutoMatcher) RunAll() {
	for _, lig := range am.config.LigandSurfaces() {
		am.matchOne(lig.ID, false)
	}
}

// matchOne runs the full pipeline for one ligand. Matching runs are
// serialized; the debounce skips a ligand matched more recently than the
// minimum interval unless force is set.
func (am *AutoMatcher) matchOne(ligandID string, force bool) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if !force {
		if last, ok := am.lastMatched[ligandID]; ok {
			if time.Since(last) < am.minInterval {
				logger.Debug("skipping match, too soon",
					zap.String("ligand", ligandID),
					zap.Duration("since", time.Since(last).Round(time.Second)))
				return
			}
		}
	}

	tc := am.config.TargetSurface()
	if tc == nil {
		logger.Warn("no target surface configured")
		return
	}
	if !am.ensureSurface(tc) {
		logger.Warn("target surface unavailable", zap.String("surface", tc.ID))
		return
	}
	lc := am.config.GetSurfaceByID(ligandID)
	if lc == nil || !am.ensureSurface(lc) {
		logger.Warn("ligand surface unavailable", zap.String("ligand", ligandID))
		return
	}

	cfg := am.config.Match.Resolve()
	result, err := am.stateTracker.RunMatching(ligandID, cfg)
	if err != nil {
		logger.Error("matching failed", zap.String("ligand", ligandID), zap.Error(err))
		return
	}
	logger.Info("matching complete",
		zap.String("ligand", ligandID),
		zap.Int("groups", result.Stats.GroupCount),
		zap.Int("largest", result.Stats.LargestGroup))

	am.lastMatched[ligandID] = time.Now()

	if am.publisher != nil {
		if err := am.publisher.PublishResult(result); err != nil {
			logger.Warn("failed to publish result", zap.String("ligand", ligandID), zap.Error(err))
		}
	}
}

// ensureSurface makes sure the tracker holds data for a surface, fetching it
// from the surface's configured URL when absent. Returns false when no data
// can be obtained.
func (am *AutoMatcher) ensureSurface(sc *SurfaceConfig) bool {
	if _, ok := am.stateTracker.GetSurface(sc.ID); ok {
		return true
	}
	if sc.URL == "" {
		return false
	}

	logger.Info("fetching surface", zap.String("surface", sc.ID), zap.String("url", sc.URL))
	s, err := FetchSurface(sc.URL)
	if err != nil {
		logger.Error("failed to fetch surface", zap.String("surface", sc.ID), zap.Error(err))
		return false
	}

	am.stateTracker.SetRole(sc.ID, sc.Role)
	am.stateTracker.UpdateSurface(sc.ID, s)
	return true
}

// String implements fmt.Stringer for debug logging.
func (am *AutoMatcher) String() string {
	am.mu.Lock()
	defer am.mu.Unlock()
	return fmt.Sprintf("AutoMatcher{surfaces=%d, lastMatched=%d}",
		len(am.config.Surfaces), len(am.lastMatched))
}
