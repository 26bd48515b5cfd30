// Package scheduler runs the periodic world jobs: eviction of idle agents, snapshots and
// need decay. Every job goes through the same World API request handlers use.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/persistence/snapshot"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world"
	"shelltown.ai/internal/sim/world/kernel/model"
)

// World is the subset of *world.World the jobs need.
type World interface {
	EvictInactive(ctx context.Context, timeout time.Duration) ([]string, error)
	DecayNeeds(ctx context.Context, rule world.DecayRule) (int, error)
	ExportSnapshot(ctx context.Context) (snapshot.SnapshotV1, error)
	SaveHints() <-chan struct{}
}

type Saver interface {
	Save(snap snapshot.SnapshotV1) error
}

// Recorder is notified after every successful save (the sqlite index implements it).
type Recorder interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type Config struct {
	EvictEvery    time.Duration
	InactiveAfter time.Duration
	SnapshotEvery time.Duration
	DecayEvery    time.Duration
	Decay         world.DecayRule

	Store    Saver
	Path     string
	Recorder Recorder

	// FinalSaveTimeout bounds the save performed when Run's context ends.
	FinalSaveTimeout time.Duration
	Logger           *zap.Logger
}

type Scheduler struct {
	w   World
	cfg Config
	log *zap.Logger

	saveMu sync.Mutex
}

func New(w World, cfg Config) *Scheduler {
	if cfg.FinalSaveTimeout <= 0 {
		cfg.FinalSaveTimeout = 5 * time.Second
	}
	cfg.Logger = logging.OrNop(cfg.Logger)
	return &Scheduler{w: w, cfg: cfg, log: cfg.Logger.Named("scheduler")}
}

// Run blocks until ctx is done, then saves once more. A zero interval disables that job.
// The world loop must outlive Run for the final save to succeed.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(name string, every time.Duration, fn func(context.Context) error) {
		if every <= 0 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, every, nil, fn)
		}()
	}
	start("evict", s.cfg.EvictEvery, s.evict)
	start("decay", s.cfg.DecayEvery, s.decay)
	if s.cfg.Store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, "snapshot", s.cfg.SnapshotEvery, s.w.SaveHints(), s.save)
		}()
	}
	s.log.Info("scheduler started",
		zap.Duration("evict_every", s.cfg.EvictEvery),
		zap.Duration("snapshot_every", s.cfg.SnapshotEvery),
		zap.Duration("decay_every", s.cfg.DecayEvery))

	<-ctx.Done()
	wg.Wait()

	if s.cfg.Store != nil {
		fctx, cancel := context.WithTimeout(context.Background(), s.cfg.FinalSaveTimeout)
		defer cancel()
		if err := s.SaveNow(fctx); err != nil {
			s.log.Error("final snapshot failed", zap.Error(err))
			return err
		}
		s.log.Info("final snapshot saved", zap.String("path", s.cfg.Path))
	}
	return nil
}

// loop runs fn every interval and whenever kick fires. A nil kick or zero interval is ignored.
func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, kick <-chan struct{}, fn func(context.Context) error) {
	var tick <-chan time.Time
	if every > 0 {
		t := time.NewTicker(every)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-kick:
		}
		s.runOnce(ctx, name, fn)
	}
}

// runOnce isolates one iteration: errors and panics are logged and the loop goes on.
func (s *Scheduler) runOnce(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panic", zap.String("job", name), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("job failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *Scheduler) evict(ctx context.Context) error {
	ids, err := s.w.EvictInactive(ctx, s.cfg.InactiveAfter)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.log.Info("evicted inactive agents", zap.Strings("agent_ids", ids))
	}
	return nil
}

func (s *Scheduler) decay(ctx context.Context) error {
	if len(s.cfg.Decay) == 0 {
		return nil
	}
	_, err := s.w.DecayNeeds(ctx, s.cfg.Decay)
	return err
}

func (s *Scheduler) save(ctx context.Context) error { return s.SaveNow(ctx) }

// SaveNow exports and persists one snapshot. Concurrent calls are serialized.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	if s.cfg.Store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap, err := s.w.ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	if err := s.cfg.Store.Save(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordSnapshot(s.cfg.Path, snap)
	}
	s.log.Debug("snapshot saved", zap.Int("agents", len(snap.Agents)), zap.Int("chat", len(snap.Chat)))
	return nil
}

// ConfigFromTuning fills the job intervals and decay rule from the maintenance tuning.
func ConfigFromTuning(m tuning.Maintenance) Config {
	return Config{
		EvictEvery:    m.EvictEvery(),
		InactiveAfter: m.InactiveAfter(),
		SnapshotEvery: m.SnapshotEvery(),
		DecayEvery:    m.DecayEvery(),
		Decay: world.DecayRule{
			model.NeedEnergy: m.DecayEnergy,
			model.NeedSocial: m.DecaySocial,
		},
	}
}
