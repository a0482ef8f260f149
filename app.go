package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/dockmesh/dock"
	"github.com/kwv/dockmesh/internal/logger"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *dock.Config
	StateTracker *dock.StateTracker
	MQTTClient   *dock.MQTTClient
	Publisher    *dock.Publisher
	AutoMatcher  *dock.AutoMatcher

	// CLI Flags (effectively dependencies)
	ConfigFile        string
	DataDir           string
	TargetID          string
	LigandID          string
	GroupIndex        int
	OutputFile        string
	RenderFormat      string
	VectorFormat      string
	NBestPairs        int
	GeodesicThreshold float64
	HttpPort          int
	MqttMode          bool
	HttpMode          bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: dock.NewStateTracker(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.TargetID = opts.TargetID
	a.LigandID = opts.LigandID
	a.GroupIndex = opts.GroupIndex
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.VectorFormat = opts.VectorFormat
	a.NBestPairs = opts.NBestPairs
	a.GeodesicThreshold = opts.GeodesicThreshold
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// surfaceNameFromPath extracts the surface ID from an export filename.
func surfaceNameFromPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimPrefix(base, "SurfaceExport-")
	name = strings.TrimSuffix(name, ".json")
	name = strings.Split(name, "-2")[0] // Remove timestamp
	return name
}

// findSurfaceExports locates SurfaceExport JSON files under the data directory,
// falling back to the current directory.
func findSurfaceExports(dataDir string) []string {
	pattern := filepath.Join(dataDir, "SurfaceExport-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	if len(files) == 0 {
		// Try current directory
		files, _ = filepath.Glob("SurfaceExport-*.json")
	}

	return files
}

// loadSurfaceExports parses every surface export found under the data directory.
func loadSurfaceExports(dataDir string) map[string]*dock.Surface {
	surfaces := make(map[string]*dock.Surface)

	for _, file := range findSurfaceExports(dataDir) {
		name := surfaceNameFromPath(file)
		s, err := dock.LoadSurfaceFile(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", name, err)
			continue
		}
		surfaces[name] = s
	}

	return surfaces
}

// loadOptionalConfig loads config.yaml when present; CLI-only runs work without one.
func (a *App) loadOptionalConfig() *dock.Config {
	if _, err := os.Stat(a.ConfigFile); err != nil {
		return nil
	}
	config, err := dock.LoadConfig(a.ConfigFile)
	if err != nil {
		log.Printf("Warning: Failed to load config %s: %v", a.ConfigFile, err)
		return nil
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	return config
}

// matchConfig resolves match settings from config.yaml with CLI flags winning.
func (a *App) matchConfig(config *dock.Config) dock.MatchConfig {
	cfg := dock.DefaultMatchConfig()
	if config != nil {
		cfg = config.Match.Resolve()
	}
	if a.NBestPairs > 0 {
		cfg.NBestPairs = a.NBestPairs
	}
	if a.GeodesicThreshold > 0 {
		cfg.GeodesicThreshold = a.GeodesicThreshold
	}
	return cfg
}

// RunParseOnly parses surface exports and prints their statistics
func (a *App) RunParseOnly() {
	files := findSurfaceExports(a.DataDir)
	if len(files) == 0 {
		log.Fatal("No SurfaceExport-*.json files found")
	}

	fmt.Printf("Found %d surface export(s)\n\n", len(files))

	for _, file := range files {
		a.parseAndPrint(file)
	}
}

func (a *App) parseAndPrint(path string) {
	name := surfaceNameFromPath(path)

	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("File: %s\n", path)

	s, err := dock.LoadSurfaceFile(path)
	if err != nil {
		fmt.Printf("ERROR: %v\n\n", err)
		return
	}

	st := dock.ComputeSurfaceStats(s)

	fmt.Printf("Mesh: %d vertices, %d faces\n", st.VertexCount, st.FaceCount)
	fmt.Printf("Patches: %d (convex %d / concave %d / flat %d)\n",
		st.PatchCount, st.ConvexPatches, st.ConcavePatches, st.FlatPatches)
	if st.PatchCount > 0 {
		fmt.Printf("Curvature: min %.4f, max %.4f, mean %.4f\n",
			st.MinCurvature, st.MaxCurvature, st.MeanCurvature)
		fmt.Printf("Patch size: mean %.1f nodes, largest %d\n",
			st.MeanPatchSize, st.LargestPatch)
	}
	fmt.Printf("Bounds: (%.1f, %.1f, %.1f) - (%.1f, %.1f, %.1f)\n",
		st.BoundsMin[0], st.BoundsMin[1], st.BoundsMin[2],
		st.BoundsMax[0], st.BoundsMax[1], st.BoundsMax[2])
	fmt.Println()
}

// seedTracker registers roles and surfaces with the state tracker.
func (a *App) seedTracker(surfaces map[string]*dock.Surface, targetID string) {
	a.StateTracker.SetDataDir(a.DataDir)
	for id, s := range surfaces {
		role := dock.RoleLigand
		if id == targetID {
			role = dock.RoleTarget
		}
		a.StateTracker.SetRole(id, role)
		a.StateTracker.UpdateSurface(id, s)
	}
}

// resolveTarget picks the target surface, honoring --target and config.yaml.
func (a *App) resolveTarget(surfaces map[string]*dock.Surface, config *dock.Config) string {
	preferred := a.TargetID
	if preferred == "" && config != nil {
		if tc := config.TargetSurface(); tc != nil {
			preferred = tc.ID
		}
	}
	return dock.SelectTargetSurface(surfaces, preferred)
}

// RunMatch performs a one-shot matching run over local surface exports
func (a *App) RunMatch() {
	surfaces := loadSurfaceExports(a.DataDir)
	if len(surfaces) == 0 {
		log.Fatal("No SurfaceExport-*.json files found")
	}
	if len(surfaces) < 2 {
		log.Fatal("Matching needs at least two surfaces (one target, one ligand)")
	}

	config := a.loadOptionalConfig()
	targetID := a.resolveTarget(surfaces, config)
	cfg := a.matchConfig(config)

	fmt.Printf("Target surface: %s\n", targetID)
	fmt.Printf("Match settings: %d best pairs per patch, geodesic threshold %g\n",
		cfg.NBestPairs, cfg.GeodesicThreshold)

	a.seedTracker(surfaces, targetID)

	var ligands []string
	if a.LigandID != "" {
		if _, ok := surfaces[a.LigandID]; !ok {
			log.Fatalf("Ligand surface %q not found among exports", a.LigandID)
		}
		if a.LigandID == targetID {
			log.Fatalf("Surface %q is the target; pick a different ligand", a.LigandID)
		}
		ligands = []string{a.LigandID}
	} else {
		for id := range surfaces {
			if id != targetID {
				ligands = append(ligands, id)
			}
		}
		sort.Strings(ligands)
	}

	for _, id := range ligands {
		result, err := a.StateTracker.RunMatching(id, cfg)
		if err != nil {
			fmt.Printf("Error matching %s: %v\n", id, err)
			continue
		}
		fmt.Printf("\n%s\n", result.Summary())
		for i, g := range result.Groups {
			t := g.Transform
			fmt.Printf("  group %d: %d pairs, translation (%.2f, %.2f, %.2f)\n",
				i, g.Size, t[0][3], t[1][3], t[2][3])
		}
		fmt.Printf("Saved: %s\n", filepath.Join(a.DataDir, dock.ResultFileName(id)))
	}

	fmt.Println("\nDone!")
}

// RunRender renders a docking pose for one ligand to an image file
func (a *App) RunRender() {
	surfaces := loadSurfaceExports(a.DataDir)
	if len(surfaces) == 0 {
		log.Fatal("No SurfaceExport-*.json files found")
	}

	config := a.loadOptionalConfig()
	targetID := a.resolveTarget(surfaces, config)

	ligandID := a.LigandID
	if ligandID == "" {
		var ids []string
		for id := range surfaces {
			if id != targetID {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		if len(ids) > 0 {
			ligandID = ids[0]
		}
	}
	if ligandID == "" || ligandID == targetID {
		log.Fatal("Need a ligand surface distinct from the target (use --ligand)")
	}

	target, ok := surfaces[targetID]
	if !ok {
		log.Fatalf("Target surface %q not found among exports", targetID)
	}
	ligand, ok := surfaces[ligandID]
	if !ok {
		log.Fatalf("Ligand surface %q not found among exports", ligandID)
	}

	// Reuse a persisted result when it is fresh and for the same target.
	result, err := dock.LoadResults(filepath.Join(a.DataDir, dock.ResultFileName(ligandID)))
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	if result == nil || result.TargetID != targetID || result.IsStale(24*time.Hour) {
		fmt.Printf("Matching %s against %s...\n", ligandID, targetID)
		a.seedTracker(map[string]*dock.Surface{targetID: target, ligandID: ligand}, targetID)
		result, err = a.StateTracker.RunMatching(ligandID, a.matchConfig(config))
		if err != nil {
			log.Fatalf("Matching failed: %v", err)
		}
	} else {
		fmt.Printf("Using persisted result %s from %s\n",
			result.RunID, result.Timestamp.Format(time.RFC3339))
	}

	if len(result.Groups) == 0 {
		log.Fatal("No matching groups found; nothing to render")
	}

	groupIdx := a.GroupIndex
	if groupIdx < 0 {
		groupIdx = result.BestGroup()
	}
	if groupIdx < 0 || groupIdx >= len(result.Groups) {
		log.Fatalf("Group index %d out of range (result has %d groups)",
			a.GroupIndex, len(result.Groups))
	}

	g := result.Groups[groupIdx]
	targetCloud, posedLigand, err := dock.PoseClouds(g, target, ligand)
	if err != nil {
		log.Fatalf("Error building pose clouds: %v", err)
	}

	fmt.Printf("Rendering group %d (%d pairs) for %s...\n", groupIdx, g.Size, ligandID)

	switch a.RenderFormat {
	case "raster", "vector", "both":
	default:
		log.Fatalf("Invalid render format: %s (must be raster, vector, or both)", a.RenderFormat)
	}

	if a.RenderFormat == "raster" || a.RenderFormat == "both" {
		renderer := dock.NewContactMapRenderer(targetCloud, posedLigand)
		renderer.TargetLabel = targetID
		renderer.LigandLabel = ligandID
		applyContactMapConfig(renderer, config, targetID, ligandID)

		outputPath := a.OutputFile
		if !strings.HasSuffix(outputPath, ".png") {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".png"
		}
		if err := renderer.SavePNG(outputPath); err != nil {
			log.Fatalf("Error rendering contact map: %v", err)
		}
		fmt.Printf("Created contact map: %s\n", outputPath)
	}

	if a.RenderFormat == "vector" || a.RenderFormat == "both" {
		vr := dock.NewPoseRenderer(targetCloud, posedLigand)
		applyPoseConfig(vr, config, targetID, ligandID)

		// "both" keeps the raster on .png, so the vector side always gets .svg there.
		vectorFormat := a.VectorFormat
		if a.RenderFormat == "both" {
			vectorFormat = "svg"
		}

		ext := "." + vectorFormat
		outputPath := a.OutputFile
		if !strings.HasSuffix(outputPath, ext) {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ext
		}

		outFile, err := os.Create(outputPath)
		if err != nil {
			log.Fatalf("Error creating %s: %v", outputPath, err)
		}

		switch vectorFormat {
		case "svg":
			err = vr.RenderSVG(outFile)
		case "png":
			err = vr.RenderPNG(outFile)
		default:
			outFile.Close()
			log.Fatalf("Invalid vector format: %s (must be svg or png)", vectorFormat)
		}
		if cerr := outFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("Error rendering pose outline: %v", err)
		}
		fmt.Printf("Created pose outline: %s\n", outputPath)
	}

	fmt.Println("Done!")
}

// RunService starts the long-running MQTT/HTTP docking service
func (a *App) RunService() {
	fmt.Println("Starting dockmesh service...")

	// 1. Resolve configuration path relative to data-dir if provided
	resolvedConfig := a.ConfigFile
	if a.DataDir != "." && resolvedConfig == "config.yaml" {
		resolvedConfig = filepath.Join(a.DataDir, "config.yaml")
	}

	// 2. Load config.yaml (required for service mode)
	config, err := dock.LoadConfig(resolvedConfig)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, resolvedConfig)
	}
	a.Config = config
	log.Printf("Loaded config from %s", resolvedConfig)

	// 3. Structured logging for the dock package
	if err := logger.Init(config.Logging.Level, config.Logging.File); err != nil {
		log.Printf("Warning: Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	// 4. Results and cached exports live under the data directory
	dataDir := a.DataDir
	if dataDir == "." && config.DataDir != "" {
		dataDir = config.DataDir
	}
	a.StateTracker.SetDataDir(dataDir)

	// 5. Register configured roles, then seed from any cached exports
	for _, sc := range config.Surfaces {
		a.StateTracker.SetRole(sc.ID, sc.Role)
	}
	initial := loadSurfaceExports(dataDir)
	for id, s := range initial {
		a.StateTracker.UpdateSurface(id, s)
	}
	if len(initial) > 0 {
		fmt.Printf("Loaded %d cached surface export(s)\n", len(initial))
	}

	// 6. Restore persisted docking results so restarts keep their poses
	var ligandIDs []string
	for _, sc := range config.LigandSurfaces() {
		ligandIDs = append(ligandIDs, sc.ID)
	}
	if n := a.StateTracker.LoadPersistedResults(ligandIDs); n > 0 {
		fmt.Printf("Restored %d persisted docking result(s)\n", n)
	}

	// 7. Auto-matcher reacts to surface updates; the publisher attaches once MQTT is up
	a.AutoMatcher = dock.NewAutoMatcher(config, a.StateTracker, nil)

	// 8. Start MQTT if enabled
	if a.MqttMode {
		messageHandler := func(surfaceID string, rawPayload []byte, surface *dock.Surface, err error) {
			if err != nil {
				log.Printf("Error decoding surface %s: %v (%d bytes)", surfaceID, err, len(rawPayload))
				return
			}

			a.StateTracker.UpdateSurface(surfaceID, surface)

			// Cache plain-JSON payloads so surfaces survive restarts
			if len(rawPayload) > 0 && rawPayload[0] == '{' {
				cachePath := filepath.Join(dataDir, fmt.Sprintf("SurfaceExport-%s.json", surfaceID))
				go func(p string, b []byte) {
					if werr := os.WriteFile(p, b, 0644); werr != nil {
						log.Printf("Warning: Failed to cache surface %s: %v", surfaceID, werr)
					}
				}(cachePath, rawPayload)
			}

			a.AutoMatcher.OnSurfaceUpdate(surfaceID)
		}

		mqttClient, err := dock.NewMQTTClient(config, messageHandler)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT mode requires an mqtt.broker entry in config.yaml")
		}
		a.MQTTClient = mqttClient

		mqttClient.SetRematchHandler(a.AutoMatcher.OnRematchRequest)

		a.Publisher = dock.NewPublisherWithConfig(mqttClient.GetClient(), config.MQTT.Publish)
		a.AutoMatcher.SetPublisher(a.Publisher)
		fmt.Println("MQTT result publisher initialized")
	}

	// 9. Start HTTP server if enabled
	port := a.HttpPort
	if port == 8080 && config.HTTP.Port > 0 {
		port = config.HTTP.Port
	}
	if a.HttpMode {
		httpServer := newHTTPServer(a.StateTracker, a.Config, a.AutoMatcher)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", port)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	// 10. Initial matching sweep with whatever is already loaded
	a.AutoMatcher.RunAll()

	// 11. Service info
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		prefix := config.MQTT.Publish.TopicPrefix
		if prefix == "" {
			prefix = dock.DefaultTopicPrefix
		}
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed surface topics:")
		for _, sc := range config.Surfaces {
			if sc.Topic != "" {
				fmt.Printf("    - %s (%s, %s)\n", sc.Topic, sc.ID, sc.Role)
			}
		}
		fmt.Printf("  Rematch control: %s\n", dock.RematchTopic(prefix))
		fmt.Printf("  Publishing results to: %s/{ligandID}/result\n", prefix)
		fmt.Printf("  Combined summary: %s/summary\n", prefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", port)
		fmt.Println("  GET  /health           - Health check")
		fmt.Println("  GET  /surfaces.json    - Loaded surface statistics")
		fmt.Println("  GET  /result.json      - Full docking result for one ligand")
		fmt.Println("  GET  /groups.json      - Group statistics for all ligands")
		fmt.Println("  GET  /contact-map.png  - Contact interface raster view")
		fmt.Println("  GET  /pose.svg         - Docking pose outline (vector)")
		fmt.Println("  GET  /pose.png         - Docking pose outline (raster)")
		fmt.Println("  POST /rematch          - Force a rematch (?ligand=ID or all)")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	// 12. Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
