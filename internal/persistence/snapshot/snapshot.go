package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	WorldID string    `json:"world_id"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotV1 is loosely versioned: every field may be absent on read and decodes empty.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Agents        []AgentV1        `json:"agents"`
	Chat          []ChatV1         `json:"chat_history"`
	Relationships []RelationshipV1 `json:"relationships,omitempty"`
	Romance       []RomanceV1      `json:"romance,omitempty"`
	Feed          []FeedV1         `json:"activity_feed,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	SpawnCursor int    `json:"spawn_cursor,omitempty"`
	Joins       uint64 `json:"joins,omitempty"`
	Messages    uint64 `json:"messages,omitempty"`
}

type AgentV1 struct {
	ID          string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	Sprite      string `json:"sprite,omitempty"`
	Token       string `json:"token,omitempty"`

	X int `json:"x"`
	Y int `json:"y"`

	Needs    map[string]float64 `json:"needs,omitempty"`
	Mood     string             `json:"mood,omitempty"`
	Activity string             `json:"activity,omitempty"`
	Location string             `json:"location,omitempty"`

	MoveCount    int `json:"move_count"`
	MessageCount int `json:"message_count"`

	Friends          []string       `json:"friends,omitempty"`
	LocationsVisited []string       `json:"locations_visited,omitempty"`
	LocationVisits   map[string]int `json:"location_visits,omitempty"`

	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}

type ChatV1 struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	FromName  string    `json:"from_name"`
	FromEmoji string    `json:"from_emoji,omitempty"`
	Text      string    `json:"message"`
	To        string    `json:"to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
}

type RelationshipV1 struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Level int    `json:"level"`
}

type RomanceV1 struct {
	Agent   string    `json:"agent"`
	Partner string    `json:"partner"`
	Status  string    `json:"status"`
	Since   time.Time `json:"since"`
}

type FeedV1 struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WriteSnapshot writes to a temp file next to path and renames it over path,
// so readers never observe a partial file.
func WriteSnapshot(path string, snap SnapshotV1) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := encode(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for quick inspection; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the first line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
