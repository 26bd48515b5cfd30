package movement

import "container/heap"

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Blocker is the read side of a collision grid. Out-of-bounds tiles must report blocked.
type Blocker interface {
	IsBlocked(x, y int) bool
}

const (
	DefaultMaxExpanded = 500
	// SubstituteRadius bounds the ring search for a free tile around a blocked goal.
	SubstituteRadius = 9
)

// Fixed neighbor order (up, down, left, right) keeps ties deterministic.
var neighbors = [...]Pos{{X: 0, Y: -1}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 1, Y: 0}}

func Manhattan(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// NearestFree scans Manhattan rings 1..maxRadius around p, dx outer then dy inner,
// and returns the first free tile. p itself is returned when it is already free.
func NearestFree(g Blocker, p Pos, maxRadius int) (Pos, bool) {
	if !g.IsBlocked(p.X, p.Y) {
		return p, true
	}
	for r := 1; r <= maxRadius; r++ {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				if abs(dx)+abs(dy) != r {
					continue
				}
				if !g.IsBlocked(p.X+dx, p.Y+dy) {
					return Pos{X: p.X + dx, Y: p.Y + dy}, true
				}
			}
		}
	}
	return p, false
}

type pathNode struct {
	pos   Pos
	f     int
	seq   int
	index int
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].seq < pq[j].seq
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	item := x.(*pathNode)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// FindPath returns the tiles from start (exclusive) to goal (inclusive) over 4-neighbors.
// A blocked goal is replaced by NearestFree. The search gives up once maxExpanded
// nodes have been closed; an empty result means no step is possible.
func FindPath(g Blocker, start, goal Pos, maxExpanded int) []Pos {
	if maxExpanded <= 0 {
		maxExpanded = DefaultMaxExpanded
	}
	if g.IsBlocked(goal.X, goal.Y) {
		goal, _ = NearestFree(g, goal, SubstituteRadius)
	}
	if start == goal {
		return nil
	}

	seq := 0
	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{pos: start, f: 0, seq: seq})
	cameFrom := map[Pos]Pos{}
	gScore := map[Pos]int{start: 0}
	closed := make(map[Pos]struct{}, 256)

	for open.Len() > 0 && len(closed) < maxExpanded {
		cur := heap.Pop(open).(*pathNode)
		if _, seen := closed[cur.pos]; seen {
			continue
		}
		closed[cur.pos] = struct{}{}
		if cur.pos == goal {
			return reconstructPath(cameFrom, start, goal)
		}

		for _, d := range neighbors {
			np := Pos{X: cur.pos.X + d.X, Y: cur.pos.Y + d.Y}
			if g.IsBlocked(np.X, np.Y) {
				continue
			}
			tentative := gScore[cur.pos] + 1
			if prev, ok := gScore[np]; ok && tentative >= prev {
				continue
			}
			cameFrom[np] = cur.pos
			gScore[np] = tentative
			seq++
			heap.Push(open, &pathNode{pos: np, f: tentative + Manhattan(np, goal), seq: seq})
		}
	}
	return nil
}

func reconstructPath(cameFrom map[Pos]Pos, start, end Pos) []Pos {
	path := make([]Pos, 0, 16)
	for p := end; p != start; p = cameFrom[p] {
		path = append(path, p)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
