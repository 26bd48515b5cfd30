package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

type Counts struct {
	Events    int64 `json:"events"`
	Joins     int64 `json:"joins"`
	Leaves    int64 `json:"leaves"`
	Chats     int64 `json:"chats"`
	Snapshots int64 `json:"snapshots"`
}

func (s *SQLiteIndex) Counts(ctx context.Context) (Counts, error) {
	return CountRows(ctx, s.db)
}

// CountRows works on any handle with the index schema, e.g. one opened read-only by the admin tool.
func CountRows(ctx context.Context, db *sql.DB) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"events", &c.Events},
		{"joins", &c.Joins},
		{"leaves", &c.Leaves},
		{"chats", &c.Chats},
		{"snapshots", &c.Snapshots},
	} {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

type ChatRow struct {
	At      string `json:"at"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// RecentChats returns the newest limit chat rows, newest first. An empty agentID means everyone.
func RecentChats(ctx context.Context, db *sql.DB, agentID string, limit int) ([]ChatRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT at, agent_id, name, message FROM chats`
	args := []any{}
	if agentID != "" {
		q += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	q += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatRow
	for rows.Next() {
		var r ChatRow
		if err := rows.Scan(&r.At, &r.AgentID, &r.Name, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
