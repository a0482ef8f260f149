package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/kwv/dockmesh/dock"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *dock.StateTracker, config *dock.Config, matcher *dock.AutoMatcher) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			HasSurfaces bool      `json:"hasSurfaces"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			HasSurfaces: stateTracker.HasSurfaces(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Surface statistics endpoint
	mux.HandleFunc("/surfaces.json", func(w http.ResponseWriter, r *http.Request) {
		surfaces := stateTracker.GetSurfaces()
		if len(surfaces) == 0 {
			http.Error(w, "No surfaces loaded", http.StatusServiceUnavailable)
			return
		}

		targetID, _ := stateTracker.TargetID()

		type surfaceInfo struct {
			dock.SurfaceStats
			Role string `json:"role"`
		}

		ids := make([]string, 0, len(surfaces))
		for id := range surfaces {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		infos := make([]surfaceInfo, 0, len(ids))
		for _, id := range ids {
			role := dock.RoleLigand
			if id == targetID {
				role = dock.RoleTarget
			}
			infos = append(infos, surfaceInfo{dock.ComputeSurfaceStats(surfaces[id]), role})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(infos); err != nil {
			log.Printf("Error encoding surface stats: %v", err)
		}
	})

	// Full docking result for one ligand
	mux.HandleFunc("/result.json", func(w http.ResponseWriter, r *http.Request) {
		results := stateTracker.GetResults()
		if len(results) == 0 {
			http.Error(w, "No docking results available", http.StatusServiceUnavailable)
			return
		}

		ligandID := r.URL.Query().Get("ligand")
		if ligandID == "" {
			ids := make([]string, 0, len(results))
			for id := range results {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			ligandID = ids[0]
		}

		result, ok := results[ligandID]
		if !ok {
			http.Error(w, fmt.Sprintf("No docking result for ligand %q", ligandID), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Printf("Error encoding docking result: %v", err)
		}
	})

	// Group statistics across all ligands
	mux.HandleFunc("/groups.json", func(w http.ResponseWriter, r *http.Request) {
		results := stateTracker.GetResults()
		if len(results) == 0 {
			http.Error(w, "No docking results available", http.StatusServiceUnavailable)
			return
		}

		summary := make(map[string]dock.ResultStats, len(results))
		for id, res := range results {
			summary[id] = res.Stats
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			log.Printf("Error encoding group stats: %v", err)
		}
	})

	// Contact interface raster view
	mux.HandleFunc("/contact-map.png", func(w http.ResponseWriter, r *http.Request) {
		result, groupIdx, err := resolvePose(stateTracker, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		targetCloud, posedLigand, err := poseCloudsForResult(stateTracker, result, groupIdx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		renderer := dock.NewContactMapRenderer(targetCloud, posedLigand)
		renderer.TargetLabel = result.TargetID
		renderer.LigandLabel = result.LigandID
		applyContactMapConfig(renderer, config, result.TargetID, result.LigandID)

		// If no drawable content exists, return service unavailable to avoid generating invalid images
		if !renderer.HasDrawableContent() {
			log.Printf("Warning: result present but no drawable pose content; endpoint=/contact-map.png")
			http.Error(w, "No drawable pose content", http.StatusServiceUnavailable)
			return
		}

		img := renderer.Render()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding contact map PNG: %v", err)
		}
	})

	// Docking pose outline, vector form
	mux.HandleFunc("/pose.svg", func(w http.ResponseWriter, r *http.Request) {
		result, groupIdx, err := resolvePose(stateTracker, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		targetCloud, posedLigand, err := poseCloudsForResult(stateTracker, result, groupIdx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		vectorRenderer := dock.NewPoseRenderer(targetCloud, posedLigand)
		applyPoseConfig(vectorRenderer, config, result.TargetID, result.LigandID)

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vectorRenderer.RenderSVG(w); err != nil {
			log.Printf("Error encoding pose SVG: %v", err)
		}
	})

	// Docking pose outline, rasterized
	mux.HandleFunc("/pose.png", func(w http.ResponseWriter, r *http.Request) {
		result, groupIdx, err := resolvePose(stateTracker, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		targetCloud, posedLigand, err := poseCloudsForResult(stateTracker, result, groupIdx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		vectorRenderer := dock.NewPoseRenderer(targetCloud, posedLigand)
		applyPoseConfig(vectorRenderer, config, result.TargetID, result.LigandID)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vectorRenderer.RenderPNG(w); err != nil {
			log.Printf("Error encoding pose PNG: %v", err)
		}
	})

	// Force a rematch for one ligand or all of them
	mux.HandleFunc("/rematch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if matcher == nil {
			http.Error(w, "Matching not running", http.StatusServiceUnavailable)
			return
		}

		ligandID := r.URL.Query().Get("ligand")
		if ligandID == "" {
			ligandID = "all"
		}
		go matcher.OnRematchRequest(ligandID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		resp := struct {
			Status string `json:"status"`
			Ligand string `json:"ligand"`
		}{Status: "rematch scheduled", Ligand: ligandID}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("Error encoding rematch response: %v", err)
		}
	})

	// Default route serves HTML page embedding the SVG pose
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>dockmesh</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/pose.svg" alt="Docking Pose">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// resolvePose picks the docking result and group index for a pose request.
// The ligand defaults to the first result in sorted order, the group to the
// largest one.
func resolvePose(stateTracker *dock.StateTracker, r *http.Request) (*dock.DockingResult, int, error) {
	results := stateTracker.GetResults()
	if len(results) == 0 {
		return nil, 0, fmt.Errorf("no docking results available")
	}

	ligandID := r.URL.Query().Get("ligand")
	if ligandID == "" {
		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		ligandID = ids[0]
	}

	result, ok := results[ligandID]
	if !ok {
		return nil, 0, fmt.Errorf("no docking result for ligand %q", ligandID)
	}
	if len(result.Groups) == 0 {
		return nil, 0, fmt.Errorf("docking result for %q has no matching groups", ligandID)
	}

	groupIdx := result.BestGroup()
	if gs := r.URL.Query().Get("group"); gs != "" {
		idx, err := strconv.Atoi(gs)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid group index %q", gs)
		}
		groupIdx = idx
	}
	if groupIdx < 0 || groupIdx >= len(result.Groups) {
		return nil, 0, fmt.Errorf("group index %d out of range (result has %d groups)",
			groupIdx, len(result.Groups))
	}

	return result, groupIdx, nil
}

// poseCloudsForResult rebuilds the pose point clouds for a stored result.
func poseCloudsForResult(stateTracker *dock.StateTracker, result *dock.DockingResult, groupIdx int) (dock.PointCloud, dock.PointCloud, error) {
	target, ok := stateTracker.GetSurface(result.TargetID)
	if !ok {
		return nil, nil, fmt.Errorf("target surface %q no longer loaded", result.TargetID)
	}
	ligand, ok := stateTracker.GetSurface(result.LigandID)
	if !ok {
		return nil, nil, fmt.Errorf("ligand surface %q no longer loaded", result.LigandID)
	}
	return dock.PoseClouds(result.Groups[groupIdx], target, ligand)
}

// applyContactMapConfig applies configured surface colors and raster tuning
func applyContactMapConfig(renderer *dock.ContactMapRenderer, config *dock.Config, targetID, ligandID string) {
	if config == nil {
		return
	}

	var targetHex, ligandHex string
	if sc := config.GetSurfaceByID(targetID); sc != nil {
		targetHex = sc.GetColor()
	}
	if sc := config.GetSurfaceByID(ligandID); sc != nil {
		ligandHex = sc.GetColor()
	}
	renderer.SetSideColors(targetHex, ligandHex)

	if config.Render.Scale > 0 {
		renderer.Scale = config.Render.Scale
	}
	if config.Render.Padding > 0 {
		renderer.Padding = int(config.Render.Padding)
	}
}

// applyPoseConfig applies configured surface colors and outline tuning
func applyPoseConfig(renderer *dock.PoseRenderer, config *dock.Config, targetID, ligandID string) {
	if config == nil {
		return
	}

	var targetHex, ligandHex string
	if sc := config.GetSurfaceByID(targetID); sc != nil {
		targetHex = sc.GetColor()
	}
	if sc := config.GetSurfaceByID(ligandID); sc != nil {
		ligandHex = sc.GetColor()
	}
	renderer.SetSideColors(targetHex, ligandHex)

	if config.Render.CellSize > 0 {
		renderer.CellSize = config.Render.CellSize
	}
	if config.Render.SimplifyTolerance > 0 {
		renderer.Tolerance = config.Render.SimplifyTolerance
	}
	if config.Render.Padding > 0 {
		renderer.Padding = config.Render.Padding
	}
}
