package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"shelltown.ai/internal/persistence/indexdb"
)

type snapshotRow struct {
	SavedAt       string `json:"saved_at"`
	Path          string `json:"path"`
	Agents        int    `json:"agents"`
	Chat          int    `json:"chat"`
	Relationships int    `json:"relationships"`
}

type agentRow struct {
	AgentID      string `json:"agent_id"`
	Name         string `json:"name"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	MoveCount    int    `json:"move_count"`
	MessageCount int    `json:"message_count"`
	Friends      int    `json:"friends"`
	LastSeen     string `json:"last_seen"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	worldDir := worldDirFlag(fs)
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent_id filter (chats)")
	_ = fs.Parse(args)

	q := "counts"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(worldDir(), "index.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	out, err := runQuery(context.Background(), db, q, *agentID, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSON(out)
}

func runQuery(ctx context.Context, db *sql.DB, q, agentID string, limit int) (any, error) {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "counts":
		return indexdb.CountRows(ctx, db)
	case "chats":
		return indexdb.RecentChats(ctx, db, agentID, limit)
	case "snapshots":
		rows, err := db.QueryContext(ctx, `SELECT saved_at,path,agents,chat,relationships FROM snapshots ORDER BY saved_at DESC LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := []snapshotRow{}
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.SavedAt, &r.Path, &r.Agents, &r.Chat, &r.Relationships); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()
	case "agents":
		rows, err := db.QueryContext(ctx, `SELECT agent_id,name,x,y,move_count,message_count,friends,last_seen FROM agents ORDER BY message_count DESC, agent_id LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := []agentRow{}
		for rows.Next() {
			var r agentRow
			if err := rows.Scan(&r.AgentID, &r.Name, &r.X, &r.Y, &r.MoveCount, &r.MessageCount, &r.Friends, &r.LastSeen); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()
	default:
		return nil, fmt.Errorf("unknown query %q (counts|chats|snapshots|agents)", q)
	}
}
