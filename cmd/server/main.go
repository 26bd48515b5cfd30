package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/persistence/indexdb"
	persistlog "shelltown.ai/internal/persistence/log"
	"shelltown.ai/internal/persistence/snapshot"
	"shelltown.ai/internal/sim/scheduler"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/terrain"
	"shelltown.ai/internal/transport/api"
	"shelltown.ai/internal/transport/observer"
)

func main() {
	// .env is optional; real environment variables win over it.
	envErr := godotenv.Load()

	var (
		addr       = flag.String("addr", envOr("ST_ADDR", ":8080"), "http listen address")
		worldID    = flag.String("world", envOr("ST_WORLD", "shelltown"), "world id")
		seed       = flag.Int64("seed", 0, "rng seed (0 = time based)")
		dataDir    = flag.String("data", envOr("ST_DATA", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", envOr("ST_TUNING", "./configs/tuning.yaml"), "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", envBool("ST_DISABLE_DB", false), "disable the sqlite index")
		logLevel   = flag.String("log_level", envOr("ST_LOG_LEVEL", "info"), "debug|info|warn|error")
		logFile    = flag.String("log_file", envOr("ST_LOG_FILE", ""), "rolling log file (empty = stdout only)")
		logJSON    = flag.Bool("log_json", envBool("ST_LOG_JSON", false), "json console logs")
	)
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel, File: *logFile, JSON: *logJSON})
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	tune, err := tuning.Load(*tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("tuning file not found; using defaults", zap.String("path", *tuningPath))
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		logger.Fatal("load tuning", zap.Error(err))
	}

	var grid *terrain.Grid
	if p := strings.TrimSpace(tune.CollisionMap); p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(*tuningPath), p)
		}
		grid, err = terrain.LoadCollisionMap(p)
		if err != nil {
			logger.Fatal("load collision map", zap.String("path", p), zap.Error(err))
		}
		tune.MapWidth, tune.MapHeight = grid.Width(), grid.Height()
		logger.Info("collision map loaded", zap.String("path", p), zap.Int("blocked", grid.BlockedCount()))
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}

	events := persistlog.NewEventLogger(worldDir)
	defer events.Close()
	sinks := world.MultiSink{events}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.sqlite"))
		if err != nil {
			logger.Fatal("open index", zap.Error(err))
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Warn("index: upsert tuning", zap.Error(err))
		}
		sinks = append(sinks, idx)
	}

	w, err := world.New(world.Config{
		ID:     *worldID,
		Tuning: tune,
		Grid:   grid,
		Sink:   sinks,
		Seed:   *seed,
		Logger: logger,
		Hooks: world.Hooks{
			OnLocationDiscovered: func(a model.Agent, loc tuning.Location) {
				logger.Info("location discovered", zap.String("agent_id", a.ID), zap.String("location", loc.ID))
			},
		},
	})
	if err != nil {
		logger.Fatal("world", zap.Error(err))
	}

	worldCtx, stopWorld := context.WithCancel(context.Background())
	defer stopWorld()
	go func() {
		if err := w.Run(worldCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("world stopped", zap.Error(err))
		}
	}()

	store := snapshot.Store{Path: filepath.Join(worldDir, "world.snap.zst")}
	if snap, ok, err := store.Load(); err != nil {
		logger.Error("snapshot unreadable; starting empty", zap.String("path", store.Path), zap.Error(err))
	} else if ok {
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatal("snapshot world id mismatch", zap.String("flag", *worldID), zap.String("snapshot", snap.Header.WorldID))
		}
		if err := w.ImportSnapshot(worldCtx, snap); err != nil {
			logger.Fatal("import snapshot", zap.Error(err))
		}
		logger.Info("resumed from snapshot", zap.Int("agents", len(snap.Agents)), zap.Time("saved_at", snap.Header.SavedAt))
	}

	schedCfg := scheduler.ConfigFromTuning(tune.Maintenance)
	schedCfg.Store = store
	schedCfg.Path = store.Path
	schedCfg.Logger = logger
	if idx != nil {
		schedCfg.Recorder = idx
	}
	sched := scheduler.New(w, schedCfg)

	ctx, cancel := signalContext()
	defer cancel()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(ctx)
	}()

	obsSrv := observer.NewServer(w, observer.Options{Logger: logger.Named("observer")})
	apiSrv := api.NewServer(w, api.Options{
		Logger: logger.Named("api"),
		Gauges: func() map[string]uint64 { return indexGauges(idx) },
	})
	r := apiSrv.Router()
	r.Get("/ws", obsSrv.Handler())
	mountAdmin(r, adminDeps{world: w, saver: sched, index: idx, observers: obsSrv}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.String("world", *worldID), zap.String("data", worldDir))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("ListenAndServe", zap.Error(err))
		cancel()
	}

	// The final snapshot needs the world loop, so the loop stops last.
	<-schedDone
	stopWorld()
	<-w.Done()
	w.Hub().Close()
	logger.Info("shutdown complete")
}

func indexGauges(idx *indexdb.SQLiteIndex) map[string]uint64 {
	if idx == nil {
		return nil
	}
	st := idx.Stats()
	return map[string]uint64{
		"index_queue_depth":         uint64(st.QueueDepth),
		"index_drop_event_total":    st.DropEventTotal,
		"index_drop_snapshot_total": st.DropSnapshotTotal,
		"index_written_total":       st.WrittenTotal,
		"index_write_error_total":   st.WriteErrorTotal,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
