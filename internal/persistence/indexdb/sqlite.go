// Package indexdb keeps a queryable sqlite read model of world events and snapshots.
// The JSONL event log stays the source of truth; the index may drop rows under load.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/persistence/snapshot"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world"
	"shelltown.ai/internal/sim/world/kernel/model"
)

const defaultQueue = 65536

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
	written      atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	event    world.EventLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	SavedAt       time.Time
	WorldID       string
	Path          string
	Agents        []snapshot.AgentV1
	Chat          int
	Relationships int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueue)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			world_id TEXT NOT NULL,
			type TEXT NOT NULL,
			agent_id TEXT,
			name TEXT,
			data_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, seq);`,
		`CREATE TABLE IF NOT EXISTS joins (
			at TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (at, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			at TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (at, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT NOT NULL,
			at TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			to_id TEXT,
			message TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			PRIMARY KEY (at, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_agent ON chats(agent_id, at);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			saved_at TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			path TEXT NOT NULL,
			agents INTEGER NOT NULL,
			chat INTEGER NOT NULL,
			relationships INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			move_count INTEGER NOT NULL,
			message_count INTEGER NOT NULL,
			friends INTEGER NOT NULL,
			last_seen TEXT NOT NULL,
			snapshot_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the handle for read-only queries (admin tooling, tests).
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

// WriteEvent queues e. It never blocks and always returns nil.
func (s *SQLiteIndex) WriteEvent(e world.EventLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

// RecordSnapshot indexes a saved snapshot and replaces the agents table with its agents.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		SavedAt:       snap.Header.SavedAt,
		WorldID:       snap.Header.WorldID,
		Path:          path,
		Agents:        snap.Agents,
		Chat:          len(snap.Chat),
		Relationships: len(snap.Relationships),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, keyed by its sha256 digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WrittenTotal      uint64 `json:"written_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WrittenTotal:      s.written.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(q string, args ...any) bool {
		if _, err := tx.Exec(q, args...); err != nil {
			rollback()
			return false
		}
		opCount++
		s.written.Add(1)
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			s.writeEvent(r.event, exec)
		case reqSnapshot:
			s.writeSnapshot(r.snapshot, exec)
		}
		// Commit when idle so readers see rows promptly.
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}
	commit()
}

func (s *SQLiteIndex) writeEvent(e world.EventLogEntry, exec func(string, ...any) bool) {
	at := ts(e.At)
	if !exec(`INSERT INTO events(at,world_id,type,agent_id,name,data_json) VALUES(?,?,?,?,?,?)`,
		at, e.WorldID, e.Type, e.AgentID, e.Name, string(e.Data)) {
		return
	}
	switch e.Type {
	case observerproto.TypeAgentJoined:
		exec(`INSERT OR REPLACE INTO joins(at,agent_id,name) VALUES(?,?,?)`, at, e.AgentID, e.Name)
	case observerproto.TypeAgentLeft:
		var left observerproto.AgentLeft
		_ = json.Unmarshal(e.Data, &left)
		exec(`INSERT OR REPLACE INTO leaves(at,agent_id,reason) VALUES(?,?,?)`, at, e.AgentID, left.Reason)
	case observerproto.TypeChat:
		var m model.ChatMessage
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return
		}
		exec(`INSERT OR REPLACE INTO chats(id,at,agent_id,name,to_id,message,x,y) VALUES(?,?,?,?,?,?,?,?)`,
			m.ID, at, m.FromID, m.FromName, m.To, m.Text, m.X, m.Y)
	}
}

func (s *SQLiteIndex) writeSnapshot(sn snapshotRow, exec func(string, ...any) bool) {
	at := ts(sn.SavedAt)
	if !exec(`INSERT OR REPLACE INTO snapshots(saved_at,world_id,path,agents,chat,relationships) VALUES(?,?,?,?,?,?)`,
		at, sn.WorldID, sn.Path, len(sn.Agents), sn.Chat, sn.Relationships) {
		return
	}
	if !exec(`DELETE FROM agents`) {
		return
	}
	for _, a := range sn.Agents {
		if !exec(`INSERT OR REPLACE INTO agents(agent_id,name,x,y,move_count,message_count,friends,last_seen,snapshot_at) VALUES(?,?,?,?,?,?,?,?,?)`,
			a.ID, a.Name, a.X, a.Y, a.MoveCount, a.MessageCount, len(a.Friends), ts(a.LastSeen), at) {
			return
		}
	}
}
