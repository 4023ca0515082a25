// Command localizer runs the Monte Carlo localization service: a
// particle filter fed by replayed datasets or live telemetry, with an
// HTTP control API and a monitoring webserver.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/localizer/internal/api"
	"github.com/banshee-data/localizer/internal/config"
	"github.com/banshee-data/localizer/internal/db"
	"github.com/banshee-data/localizer/internal/fsutil"
	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/monitor"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/session"
	"github.com/banshee-data/localizer/internal/telemetry"
	"github.com/banshee-data/localizer/internal/timeutil"
	"github.com/banshee-data/localizer/internal/version"
	"github.com/banshee-data/localizer/internal/worldmap"
)

var (
	devMode       = flag.Bool("dev", false, "run in dev mode: admin debug routes and per-step trace logging")
	listen        = flag.String("listen", ":8080", "API listen address")
	monitorListen = flag.String("monitor-listen", ":8081", "monitor listen address; empty disables the monitor")
	dbFile        = flag.String("db", "localizer.db", "sqlite database path")
	configPath    = flag.String("config", "", "tuning config JSON path")
	unitsFlag     = flag.String("units", "mps", "default speed units for API responses")
	mapFile       = flag.String("map", "", "landmark map file to register at startup")
	mapName       = flag.String("map-name", "default", "name to register the startup map under")
	mapsDir       = flag.String("maps-dir", "maps", "directory for uploaded map file copies")
	pcapFile      = flag.String("pcap-file", "", "capture file for the pcap source")
	recordDir     = flag.String("record-dir", "recordings", "directory for recorded telemetry frame logs")
	runOnStart    = flag.String("run", "", "start a run against the named map immediately and exit when it finishes")
	initX         = flag.Float64("x", 0, "initial x fix for -run, meters")
	initY         = flag.Float64("y", 0, "initial y fix for -run, meters")
	initTheta     = flag.Float64("theta", 0, "initial heading fix for -run, radians")
	showVersion   = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s, built %s)\n", version.Service, version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// Subcommands run before any service wiring.
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			db.RunMigrateCommand(flag.Args()[1:], *dbFile)
			return
		default:
			log.Fatalf("unknown command %q (did you mean 'migrate'?)", flag.Arg(0))
		}
	}

	if *listen == "" {
		log.Fatal("listen address is required")
	}

	var trace io.Writer
	if *devMode {
		trace = os.Stderr
	}
	streams := monitoring.NewStreams("localizer ", os.Stderr, os.Stderr, trace)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		streams.Diagf("loaded tuning config from %s", *configPath)
	}

	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	migrationsFS, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}
	if err := database.CheckMigrations(migrationsFS); err != nil {
		log.Fatalf("database schema check failed: %v", err)
	}

	var startupMap *worldmap.Map
	if *mapFile != "" {
		startupMap, err = worldmap.LoadMapFile(*mapFile)
		if err != nil {
			log.Fatalf("failed to load map %s: %v", *mapFile, err)
		}
		if err := database.SaveMap(*mapName, startupMap); err != nil {
			log.Fatalf("failed to register map %q: %v", *mapName, err)
		}
		streams.Diagf("registered map %q: %d landmarks", *mapName, startupMap.Len())
	}

	manager := session.NewManager(database, streams)

	apiServer := api.NewServer(api.ServerConfig{
		Manager:   manager,
		Maps:      database,
		ListMaps:  listMapSummaries(database),
		Tuning:    tuning,
		Units:     *unitsFlag,
		MapsDir:   *mapsDir,
		NewSource: newSourceFactory(tuning, streams),
		Streams:   streams,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// API server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if *devMode {
			database.AttachAdminRoutes(mux)
		}
		mux.Handle("/", apiServer.LoggingMiddleware(apiServer.ServeMux()))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			streams.Opsf("API listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start API server: %v", err)
			}
		}()

		<-ctx.Done()
		streams.Diagf("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			streams.Opsf("API server shutdown error: %v", err)
		}
	}()

	// Monitor webserver goroutine
	if *monitorListen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *monitorListen,
			Snaps:   manager,
			History: manager,
			Map:     startupMap,
			Streams: streams,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				streams.Opsf("monitor webserver error: %v", err)
			}
		}()
	}

	// One-shot mode: launch a run directly and exit when it finishes.
	if *runOnStart != "" {
		if err := startImmediateRun(ctx, manager, database, tuning, streams); err != nil {
			stop()
			wg.Wait()
			log.Fatalf("failed to start run: %v", err)
		}
		manager.Wait()
		stop()
	}

	wg.Wait()
	streams.Diagf("shutdown complete")
}

// startImmediateRun launches the -run run against the named map.
func startImmediateRun(ctx context.Context, manager *session.Manager, database *db.DB, tuning *config.TuningConfig, streams *monitoring.Streams) error {
	m, err := database.LoadMap(*runOnStart)
	if err != nil {
		return fmt.Errorf("failed to load map %q: %w", *runOnStart, err)
	}
	kind := tuning.GetSource()
	source, err := newSourceFactory(tuning, streams)(kind)
	if err != nil {
		return fmt.Errorf("failed to open %s source: %w", kind, err)
	}
	id, err := manager.StartRun(ctx, session.StartConfig{
		FilterConfig: tuning.FilterConfig(),
		Source:       source,
		SourceName:   kind,
		Map:          m,
		MapName:      *runOnStart,
		Initial:      mcl.Pose{X: *initX, Y: *initY, Theta: *initTheta},
	})
	if err != nil {
		source.Close()
		return err
	}
	streams.Opsf("one-shot run %s started", id)
	return nil
}

// listMapSummaries adapts the db map listing to the API's summary type.
func listMapSummaries(database *db.DB) func() ([]api.MapSummary, error) {
	return func() ([]api.MapSummary, error) {
		infos, err := database.ListMaps()
		if err != nil {
			return nil, err
		}
		out := make([]api.MapSummary, len(infos))
		for i, info := range infos {
			out[i] = api.MapSummary{
				ID:            info.ID,
				Name:          info.Name,
				LandmarkCount: info.LandmarkCount,
				CreatedAt:     info.CreatedAt,
			}
		}
		return out, nil
	}
}

// newSourceFactory builds telemetry sources from the tuning config.
// Each run gets a fresh source; a recorder is attached to live sources
// when record_frames is set.
func newSourceFactory(tuning *config.TuningConfig, streams *monitoring.Streams) api.SourceFactory {
	return func(kind string) (telemetry.Source, error) {
		stats := telemetry.NewFrameStats(streams)
		rec, err := newFrameRecorder(tuning, kind, streams)
		if err != nil {
			return nil, err
		}

		switch kind {
		case "replay":
			return telemetry.NewReplayer(telemetry.ReplayerConfig{
				DataDir: tuning.GetDataDir(),
				DT:      tuning.GetDeltaT(),
				Speed:   tuning.GetReplaySpeed(),
			})
		case "udp":
			return telemetry.NewUDPSource(telemetry.UDPSourceConfig{
				Address:  tuning.GetUDPListen(),
				RcvBuf:   tuning.GetUDPRcvBuf(),
				DT:       tuning.GetDeltaT(),
				Stats:    stats,
				Streams:  streams,
				Recorder: rec,
			})
		case "serial":
			return telemetry.NewSerialSource(telemetry.SerialSourceConfig{
				PortName: tuning.GetSerialPort(),
				BaudRate: tuning.GetSerialBaud(),
				DT:       tuning.GetDeltaT(),
				Stats:    stats,
				Streams:  streams,
				Recorder: rec,
			})
		case "pcap":
			if *pcapFile == "" {
				return nil, fmt.Errorf("pcap source requires -pcap-file")
			}
			return telemetry.NewPCAPSource(telemetry.PCAPSourceConfig{
				File:     *pcapFile,
				UDPPort:  udpPort(tuning.GetUDPListen()),
				DT:       tuning.GetDeltaT(),
				Speed:    tuning.GetReplaySpeed(),
				Stats:    stats,
				Streams:  streams,
				Recorder: rec,
				Clock:    timeutil.RealClock{},
			})
		default:
			return nil, fmt.Errorf("unknown source kind %q", kind)
		}
	}
}

// newFrameRecorder opens a timestamped frame log for live sources when
// recording is enabled. Replay sources are already files; recording
// them again is noise.
func newFrameRecorder(tuning *config.TuningConfig, kind string, streams *monitoring.Streams) (*telemetry.Recorder, error) {
	if !tuning.GetRecordFrames() || kind == "replay" {
		return nil, nil
	}
	name := fmt.Sprintf("%s_%s.log", kind, time.Now().UTC().Format("20060102_150405"))
	rec, err := telemetry.NewRecorder(fsutil.OSFileSystem{}, *recordDir, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame recorder: %w", err)
	}
	streams.Diagf("recording %s frames to %s/%s", kind, *recordDir, name)
	return rec, nil
}

// udpPort extracts the numeric port from a listen address for the pcap
// BPF filter.
func udpPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 9001
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return 9001
	}
	return port
}
