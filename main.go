package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed CLI options into the application.
type AppOptions struct {
	ConfigFile        string
	DataDir           string
	ParseOnly         bool
	MatchOnly         bool
	RenderOnly        bool
	TargetID          string
	LigandID          string
	GroupIndex        int
	OutputFile        string
	RenderFormat      string
	VectorFormat      string
	NBestPairs        int
	GeodesicThreshold float64
	MqttMode          bool
	HttpMode          bool
	HttpPort          int
}

// appRunner is the application surface main drives; tests substitute a mock.
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunParseOnly()
	RunMatch()
	RunRender()
	RunService()
}

// run parses args, applies the options, and dispatches to the selected mode.
func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("dockmesh", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file")
	dataDir := fs.String("data-dir", ".", "Directory containing surface exports and docking results")
	parseOnly := fs.Bool("parse-only", false, "Parse surface exports and exit (test mode)")
	matchOnly := fs.Bool("match", false, "Run matching on surface exports and exit")
	renderOnly := fs.Bool("render", false, "Render a docking pose and exit")
	targetID := fs.String("target", "", "Target surface ID (default: from config or largest export)")
	ligandID := fs.String("ligand", "", "Ligand surface ID (default: all non-target exports)")
	groupIndex := fs.Int("group", -1, "Group index to render (-1 = largest group)")
	outputFile := fs.String("output", "docking-pose.png", "Output file for --render mode")
	renderFormat := fs.String("format", "raster", "Render format: raster, vector, or both")
	vectorFormat := fs.String("vector-format", "svg", "Vector output format: svg or png")
	nBest := fs.Int("n-best", 0, "Override match.n_best_pairs (0 = use config)")
	gThresh := fs.Float64("g-thresh", 0, "Override match.geodesic_threshold (0 = use config)")
	mqttMode := fs.Bool("mqtt", false, "Run MQTT service mode for live surface updates")
	httpMode := fs.Bool("http", false, "Enable HTTP server for results and pose previews")
	httpPort := fs.Int("http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "dockmesh version: %s\n", Version)

	app.ApplyOptions(AppOptions{
		ConfigFile:        *configFile,
		DataDir:           *dataDir,
		ParseOnly:         *parseOnly,
		MatchOnly:         *matchOnly,
		RenderOnly:        *renderOnly,
		TargetID:          *targetID,
		LigandID:          *ligandID,
		GroupIndex:        *groupIndex,
		OutputFile:        *outputFile,
		RenderFormat:      *renderFormat,
		VectorFormat:      *vectorFormat,
		NBestPairs:        *nBest,
		GeodesicThreshold: *gThresh,
		MqttMode:          *mqttMode,
		HttpMode:          *httpMode,
		HttpPort:          *httpPort,
	})

	switch {
	case *parseOnly:
		app.RunParseOnly()
	case *matchOnly:
		app.RunMatch()
	case *renderOnly:
		app.RunRender()
	case *mqttMode || *httpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "dockmesh service starting...")
		fmt.Fprintln(out, "Use --parse-only to inspect surface exports")
		fmt.Fprintln(out, "Use --match to run matching on surface exports")
		fmt.Fprintln(out, "Use --render to output a docking pose image")
		fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
		fmt.Fprintln(out, "Use --http to run HTTP server mode")
		fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
		fmt.Fprintln(out, "\nConfiguration:")
		fmt.Fprintln(out, "  config.yaml - surfaces, MQTT settings, and match tuning")
		fmt.Fprintln(out, "  DockingResult-<ligand>.json - persisted matching results")
	}

	return nil
}

func main() {
	app := NewApp()
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
}
