package world

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/sim/broadcast"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/movement"
	"shelltown.ai/internal/sim/world/logic/rates"
	"shelltown.ai/internal/sim/world/terrain"
)

// Hooks are feature-layer callbacks. They run on the world loop goroutine and must not
// call back into the World.
type Hooks struct {
	OnLocationDiscovered func(a model.Agent, loc tuning.Location)
}

type Config struct {
	ID     string
	Tuning tuning.Tuning

	// Grid is the collision layer. Nil means an all-free grid of the tuning map size.
	Grid *terrain.Grid
	Hub  *broadcast.Hub
	Sink EventSink

	Hooks Hooks

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Seed   int64
	Logger *zap.Logger
}

type pathCache struct {
	Dest  movement.Pos
	Steps []movement.Pos
}

// World is the single-writer agent registry. Everything from agents down is owned by
// the goroutine running Run.
type World struct {
	id   string
	tun  tuning.Tuning
	grid *terrain.Grid
	hub  *broadcast.Hub
	sink EventSink

	hooks Hooks
	clock func() time.Time
	log   *zap.Logger

	cmds     chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool
	saveHint chan struct{}

	agents  map[string]*model.Agent
	byName  map[string]string
	paths   map[string]*pathCache
	limiter *rates.Limiter
	chat    *model.Ring[model.ChatMessage]
	feed    *model.Ring[model.FeedEntry]
	rel     map[string]map[string]int
	romance map[string]map[string]model.Romance
	rng     *rand.Rand

	spawnCursor int
	joins       uint64
	messages    uint64

	stats counters
}

func New(cfg Config) (*World, error) {
	if cfg.ID == "" {
		cfg.ID = "shelltown"
	}
	// A supplied grid is the map; spawn points are validated against it.
	if cfg.Grid != nil {
		cfg.Tuning.MapWidth, cfg.Tuning.MapHeight = cfg.Grid.Width(), cfg.Grid.Height()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if cfg.Grid == nil {
		g, err := terrain.Open(cfg.Tuning.MapWidth, cfg.Tuning.MapHeight)
		if err != nil {
			return nil, err
		}
		cfg.Grid = g
	}
	if cfg.Hub == nil {
		cfg.Hub = broadcast.NewHub(broadcast.Options{Logger: cfg.Logger})
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.Logger = logging.OrNop(cfg.Logger)
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	w := &World{
		id:       cfg.ID,
		tun:      cfg.Tuning,
		grid:     cfg.Grid,
		hub:      cfg.Hub,
		sink:     cfg.Sink,
		hooks:    cfg.Hooks,
		clock:    cfg.Clock,
		log:      cfg.Logger.With(zap.String("world", cfg.ID)),
		cmds:     make(chan func(), 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		saveHint: make(chan struct{}, 1),
		limiter: rates.NewLimiter(map[rates.Kind]time.Duration{
			rates.KindMove: cfg.Tuning.Cooldowns.Move(),
			rates.KindChat: cfg.Tuning.Cooldowns.Chat(),
		}),
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	w.resetState()
	return w, nil
}

func (w *World) resetState() {
	w.agents = map[string]*model.Agent{}
	w.byName = map[string]string{}
	w.paths = map[string]*pathCache{}
	w.limiter.Reset()
	w.chat = model.NewRing[model.ChatMessage](w.tun.Chat.HistorySize)
	w.feed = model.NewRing[model.FeedEntry](w.tun.FeedSize)
	w.rel = map[string]map[string]int{}
	w.romance = map[string]map[string]model.Romance{}
	w.spawnCursor = 0
	w.stats.agents.Store(0)
}

func (w *World) ID() string { return w.id }

func (w *World) Hub() *broadcast.Hub { return w.hub }

func (w *World) Tuning() tuning.Tuning { return w.tun }

func (w *World) Grid() *terrain.Grid { return w.grid }

// SaveHints fires (coalesced) when a mutation asks for an early snapshot.
func (w *World) SaveHints() <-chan struct{} { return w.saveHint }

func (w *World) hintSave() {
	select {
	case w.saveHint <- struct{}{}:
	default:
	}
}

func (w *World) now() time.Time { return w.clock() }

func nameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (w *World) agent(id string) (*model.Agent, error) {
	a := w.agents[id]
	if a == nil {
		return nil, notFound(id)
	}
	return a, nil
}

func (w *World) removeAgent(id string) *model.Agent {
	a := w.agents[id]
	if a == nil {
		return nil
	}
	delete(w.agents, id)
	delete(w.byName, nameKey(a.Name))
	delete(w.paths, id)
	w.limiter.Forget(id)
	delete(w.rel, id)
	for _, m := range w.rel {
		delete(m, id)
	}
	delete(w.romance, id)
	for _, m := range w.romance {
		delete(m, id)
	}
	for _, other := range w.agents {
		other.RemoveFriend(id)
	}
	w.stats.agents.Store(int64(len(w.agents)))
	return a
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var errAlreadyRunning = errors.New("world: Run called twice")
