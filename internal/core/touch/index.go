package touch

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// Candidate is one target overlapping a query volume.
type Candidate struct {
	Target       models.Handle
	ClosestPoint mgl64.Vec3
	Distance     float64
}

// SpatialIndex answers overlap queries for touch volumes.
type SpatialIndex interface {
	// QuerySphere appends every target whose surface lies within radius of
	// center to dst and returns it. Order must be stable between calls.
	QuerySphere(center mgl64.Vec3, radius float64, dst []Candidate) []Candidate
}

// Part is one placed shape of an indexed target.
type Part struct {
	Shape physics.Shape
	Pose  physics.Pose
}

type gridEntry struct {
	target models.Handle
	parts  []Part
	bounds physics.AABB
	cells  []uint64
	seq    uint64
	large  bool
}

// HashGrid is a uniform spatial hash broadphase. Cell coordinates are folded
// into 64-bit keys with xxhash; key collisions only add broadphase candidates
// and are filtered by the exact closest-point test.
type HashGrid struct {
	cellSize float64
	cells    map[uint64][]*gridEntry
	entries  map[models.Handle]*gridEntry
	// large holds targets spanning more than maxEntryCells cells; every
	// query checks them by bounds instead of through the cell map.
	large []*gridEntry
	seq   uint64

	// query scratch, the grid belongs to the tick goroutine
	seen   map[*gridEntry]struct{}
	hits   []*gridEntry
	keyBuf [12]byte
}

// DefaultCellSize suits hand-sized interaction volumes in meters.
const DefaultCellSize = 0.25

// maxEntryCells bounds the cells one target is linked into.
const maxEntryCells = 64

// NewHashGrid creates an empty grid.
func NewHashGrid(cellSize float64) *HashGrid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &HashGrid{
		cellSize: cellSize,
		cells:    make(map[uint64][]*gridEntry),
		entries:  make(map[models.Handle]*gridEntry),
		seen:     make(map[*gridEntry]struct{}),
	}
}

// Len returns the number of indexed targets.
func (g *HashGrid) Len() int { return len(g.entries) }

// Upsert indexes or re-indexes a target with its world-placed parts.
// Re-indexing keeps the target's original query order.
func (g *HashGrid) Upsert(target models.Handle, parts ...Part) {
	e, ok := g.entries[target]
	if ok {
		g.unlink(e)
	} else {
		g.seq++
		e = &gridEntry{target: target, seq: g.seq}
		g.entries[target] = e
	}
	e.parts = append(e.parts[:0], parts...)
	e.bounds = partsBounds(parts)
	e.cells = e.cells[:0]
	if len(parts) == 0 {
		return
	}
	if g.cellCount(e.bounds) > maxEntryCells {
		e.large = true
		g.large = append(g.large, e)
		return
	}
	g.forEachCell(e.bounds, func(key uint64) {
		e.cells = append(e.cells, key)
		g.cells[key] = append(g.cells[key], e)
	})
}

// Remove drops a target from the index.
func (g *HashGrid) Remove(target models.Handle) bool {
	e, ok := g.entries[target]
	if !ok {
		return false
	}
	g.unlink(e)
	delete(g.entries, target)
	return true
}

func (g *HashGrid) QuerySphere(center mgl64.Vec3, radius float64, dst []Candidate) []Candidate {
	radius = math.Max(radius, 0)
	bounds := physics.SphereBounds(center, radius)
	g.hits = g.hits[:0]
	clear(g.seen)
	// A query wider than the population is cheaper as a scan of every entry.
	if g.cellCount(bounds) > float64(len(g.entries)) {
		for _, e := range g.entries {
			if len(e.parts) > 0 && e.bounds.Overlaps(bounds) {
				g.hits = append(g.hits, e)
			}
		}
	} else {
		g.forEachCell(bounds, func(key uint64) {
			for _, e := range g.cells[key] {
				if _, dup := g.seen[e]; dup {
					continue
				}
				g.seen[e] = struct{}{}
				g.hits = append(g.hits, e)
			}
		})
		for _, e := range g.large {
			if e.bounds.Overlaps(bounds) {
				g.hits = append(g.hits, e)
			}
		}
	}
	sort.Slice(g.hits, func(i, j int) bool { return g.hits[i].seq < g.hits[j].seq })

	for _, e := range g.hits {
		best := math.Inf(1)
		var bestPoint mgl64.Vec3
		for _, part := range e.parts {
			p := physics.WorldClosestPoint(part.Shape, part.Pose, center)
			if d := physics.Distance3(center, p); d < best {
				best, bestPoint = d, p
			}
		}
		if best <= radius {
			dst = append(dst, Candidate{Target: e.target, ClosestPoint: bestPoint, Distance: best})
		}
	}
	return dst
}

func (g *HashGrid) unlink(e *gridEntry) {
	if e.large {
		for i, cur := range g.large {
			if cur == e {
				g.large = append(g.large[:i], g.large[i+1:]...)
				break
			}
		}
		e.large = false
	}
	for _, key := range e.cells {
		list := g.cells[key]
		for i, cur := range list {
			if cur == e {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(g.cells, key)
		} else {
			g.cells[key] = list
		}
	}
	e.cells = e.cells[:0]
}

func (g *HashGrid) forEachCell(bounds physics.AABB, fn func(key uint64)) {
	lo := g.cellOf(bounds.Min)
	hi := g.cellOf(bounds.Max)
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				fn(g.cellKey(x, y, z))
			}
		}
	}
}

// cellCount is the number of cells bounds covers, computed in floating point
// so huge extents cannot overflow the cell coordinates.
func (g *HashGrid) cellCount(bounds physics.AABB) float64 {
	n := 1.0
	for i := 0; i < 3; i++ {
		n *= math.Floor(bounds.Max[i]/g.cellSize) - math.Floor(bounds.Min[i]/g.cellSize) + 1
	}
	return n
}

func (g *HashGrid) cellOf(p mgl64.Vec3) [3]int32 {
	return [3]int32{
		int32(math.Floor(p[0] / g.cellSize)),
		int32(math.Floor(p[1] / g.cellSize)),
		int32(math.Floor(p[2] / g.cellSize)),
	}
}

func (g *HashGrid) cellKey(x, y, z int32) uint64 {
	binary.LittleEndian.PutUint32(g.keyBuf[0:], uint32(x))
	binary.LittleEndian.PutUint32(g.keyBuf[4:], uint32(y))
	binary.LittleEndian.PutUint32(g.keyBuf[8:], uint32(z))
	return xxhash.Sum64(g.keyBuf[:])
}

func partsBounds(parts []Part) physics.AABB {
	if len(parts) == 0 {
		return physics.AABB{}
	}
	out := physics.WorldBounds(parts[0].Shape, parts[0].Pose)
	for _, p := range parts[1:] {
		b := physics.WorldBounds(p.Shape, p.Pose)
		for i := 0; i < 3; i++ {
			out.Min[i] = math.Min(out.Min[i], b.Min[i])
			out.Max[i] = math.Max(out.Max[i], b.Max[i])
		}
	}
	return out
}
