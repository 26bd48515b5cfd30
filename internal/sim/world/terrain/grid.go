// Package terrain holds the static collision grid of the town map.
package terrain

import (
	"encoding/json"
	"fmt"
	"os"
)

// Grid is immutable after construction and safe for concurrent reads.
type Grid struct {
	width   int
	height  int
	blocked []bool
	count   int
}

// Layer is the on-disk tile layer: row-major, nonzero = blocked.
type Layer struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Data   []int `json:"data"`
}

// Open returns a grid with every in-bounds tile free.
func Open(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("terrain: bad size %dx%d", width, height)
	}
	return &Grid{width: width, height: height, blocked: make([]bool, width*height)}, nil
}

func FromLayer(l Layer) (*Grid, error) {
	g, err := Open(l.Width, l.Height)
	if err != nil {
		return nil, err
	}
	if len(l.Data) != l.Width*l.Height {
		return nil, fmt.Errorf("terrain: data has %d tiles, want %d", len(l.Data), l.Width*l.Height)
	}
	for i, v := range l.Data {
		if v != 0 {
			g.blocked[i] = true
			g.count++
		}
	}
	return g, nil
}

func LoadCollisionMap(path string) (*Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Layer
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("terrain: %s: %w", path, err)
	}
	return FromLayer(l)
}

func (g *Grid) Width() int        { return g.width }
func (g *Grid) Height() int       { return g.height }
func (g *Grid) BlockedCount() int { return g.count }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// IsBlocked reports true for any tile outside the map.
func (g *Grid) IsBlocked(x, y int) bool {
	if !g.InBounds(x, y) {
		return true
	}
	return g.blocked[y*g.width+x]
}

// Clamp pulls (x, y) into the map rectangle.
func (g *Grid) Clamp(x, y int) (int, int) {
	return clamp(x, 0, g.width-1), clamp(y, 0, g.height-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
