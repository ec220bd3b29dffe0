// Command aimd runs the rotating-target estimation pipeline against a
// stream of plate detection batches and records the resulting target
// history. Batches arrive either from a JSONL replay file or a UDP
// JSON listener; both feed the single sequential pipeline goroutine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/turret.tracker/internal/aim"
	"github.com/banshee-data/turret.tracker/internal/aim/monitor"
	"github.com/banshee-data/turret.tracker/internal/config"
	"github.com/banshee-data/turret.tracker/internal/db"
	"github.com/banshee-data/turret.tracker/internal/version"
)

var (
	dbPath      = flag.String("db", "aim_history.db", "Path to the SQLite history database")
	configPath  = flag.String("config", "", "Path to a tuning config JSON (defaults apply when empty)")
	replayPath  = flag.String("replay", "", "JSONL file of detection batches to replay")
	udpAddr     = flag.String("udp", "", "UDP listen address for detection batches (e.g. :2368)")
	monitorAddr = flag.String("monitor", "", "HTTP listen address for debug endpoints (disabled when empty)")
	trace       = flag.Bool("trace", false, "Enable per-batch trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("aimd", version.String())
		return
	}

	// `aimd migrate <up|down|status>` manages the schema and exits.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		runMigrate(flag.Args()[1:])
		return
	}

	writers := aim.LogWriters{Ops: os.Stderr, Diag: os.Stderr}
	if *trace {
		writers.Trace = os.Stderr
	}
	aim.SetLogWriters(writers)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	store, err := aim.NewSQLStore(database.DB, tuning.GetTargetFrame(), time.Now())
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}
	log.Printf("Recording session %s", store.SessionID())

	transformer := aim.NewStaticTransformer(tuning.GetTransforms())
	tracker := aim.NewTracker(tuning.TrackerConfig())
	solver := aim.NewSolver(tuning.SolverConfig())
	pipeline := aim.NewPipeline(tuning.PipelineConfig(), transformer, tracker, solver, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *monitorAddr != "" {
		ws := monitor.NewWebServer(solver, store)
		go func() {
			log.Printf("Monitor listening on %s", *monitorAddr)
			if err := http.ListenAndServe(*monitorAddr, ws.Handler()); err != nil {
				log.Printf("Monitor server stopped: %v", err)
			}
		}()
	}

	switch {
	case *replayPath != "":
		if err := replayBatches(ctx, pipeline, *replayPath); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
	case *udpAddr != "":
		if err := listenBatches(ctx, pipeline, *udpAddr); err != nil {
			log.Fatalf("UDP listener failed: %v", err)
		}
	default:
		log.Fatal("One of -replay or -udp is required")
	}
}

// replayBatches feeds a JSONL file of detection batches through the
// pipeline in file order.
func replayBatches(ctx context.Context, pipeline *aim.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var batch aim.DetectionBatch
		if err := json.Unmarshal(line, &batch); err != nil {
			log.Printf("Skipping malformed batch at line %d: %v", lineNo, err)
			continue
		}
		processBatch(pipeline, batch)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}
	log.Printf("Replay complete: %d lines", lineNo)
	return nil
}

// listenBatches decodes one JSON batch per UDP datagram. Datagram
// order is the serialization order: the pipeline runs inline on this
// single receive loop.
func listenBatches(ctx context.Context, pipeline *aim.Pipeline, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}
	defer conn.Close()
	log.Printf("Listening for detection batches on %s", addr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		var batch aim.DetectionBatch
		if err := json.Unmarshal(buf[:n], &batch); err != nil {
			log.Printf("Skipping malformed datagram: %v", err)
			continue
		}
		processBatch(pipeline, batch)
	}
}

func processBatch(pipeline *aim.Pipeline, batch aim.DetectionBatch) {
	result, err := pipeline.ProcessBatch(batch)
	if err != nil {
		log.Printf("Batch dropped: %v", err)
		return
	}
	if result.Report.Tracking {
		log.Printf("Tracking %s: center=(%.2f, %.2f, %.2f) v_yaw=%.2f cmd yaw=%.2f° pitch=%.2f° fire=%v",
			result.Report.ID,
			result.Report.Position.X, result.Report.Position.Y, result.Report.Position.Z,
			result.Report.VYaw,
			result.Cmd.YawDiff, result.Cmd.PitchDiff, result.Cmd.FireAdvice)
	}
}

// runMigrate handles the migrate subcommand.
func runMigrate(args []string) {
	if len(args) < 1 {
		log.Fatal("Usage: aimd migrate <up|down|status>")
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied")
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back one migration")
	case "status":
		version, dirty, err := database.MigrateVersion(migrations)
		if err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
		log.Printf("Schema version %d (dirty=%v)", version, dirty)
	default:
		log.Fatalf("Unknown migrate action %q", args[0])
	}
}
