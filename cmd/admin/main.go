// Command admin inspects a ShellTown data directory offline and talks to a running
// server's local admin endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	persistlog "shelltown.ai/internal/persistence/log"
	"shelltown.ai/internal/persistence/snapshot"
	"shelltown.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func worldDirFlag(fs *flag.FlagSet) func() string {
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "shelltown", "world id")
	return func() string { return filepath.Join(*dataDir, "worlds", *worldID) }
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

type snapshotSummary struct {
	Path          string         `json:"path"`
	WorldID       string         `json:"world_id"`
	SavedAt       time.Time      `json:"saved_at"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	Agents        int            `json:"agents"`
	Chat          int            `json:"chat"`
	Relationships int            `json:"relationships"`
	Romances      int            `json:"romances"`
	Feed          int            `json:"feed"`
	Joins         uint64         `json:"joins_total"`
	Messages      uint64         `json:"messages_total"`
	Activities    map[string]int `json:"activities,omitempty"`
	Names         []string       `json:"names,omitempty"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:          path,
		WorldID:       snap.Header.WorldID,
		SavedAt:       snap.Header.SavedAt,
		Width:         snap.Width,
		Height:        snap.Height,
		Agents:        len(snap.Agents),
		Chat:          len(snap.Chat),
		Relationships: len(snap.Relationships),
		Romances:      len(snap.Romance),
		Feed:          len(snap.Feed),
		Joins:         snap.Counters.Joins,
		Messages:      snap.Counters.Messages,
		Activities:    map[string]int{},
	}
	for _, a := range snap.Agents {
		s.Names = append(s.Names, a.Name)
		if a.Activity != "" {
			s.Activities[a.Activity]++
		}
	}
	sort.Strings(s.Names)
	return s
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	worldDir := worldDirFlag(fs)
	snapPath := fs.String("snapshot", "", "snapshot path (default: <data>/worlds/<world>/world.snap.zst)")
	headerOnly := fs.Bool("header", false, "decode only the header line")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*snapPath)
	if p == "" {
		p = filepath.Join(worldDir(), "world.snap.zst")
	}
	if *headerOnly {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(p, snap))
}

// eventFilter keeps entries matching every non-empty field.
type eventFilter struct {
	Type    string
	AgentID string
	Since   time.Time
}

func (f eventFilter) match(e world.EventLogEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	return true
}

func collectEvents(worldDir string, f eventFilter, limit int) ([]world.EventLogEntry, error) {
	files, err := persistlog.ListEventFiles(worldDir)
	if err != nil {
		return nil, err
	}
	var out []world.EventLogEntry
	for _, p := range files {
		err := persistlog.ReadEvents(p, func(e world.EventLogEntry) error {
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	worldDir := worldDirFlag(fs)
	typ := fs.String("type", "", "event type filter (agent_joined, chat, ...)")
	agentID := fs.String("agent", "", "agent id filter")
	since := fs.Duration("since", 0, "only events newer than this (e.g. 1h)")
	limit := fs.Int("limit", 50, "keep the newest N matches (0 = all)")
	_ = fs.Parse(args)

	f := eventFilter{Type: strings.TrimSpace(*typ), AgentID: strings.TrimSpace(*agentID)}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}
	evs, err := collectEvents(worldDir(), f, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range evs {
		_ = enc.Encode(e)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
