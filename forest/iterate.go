package forest

import (
	"fmt"
	"sort"
)

// VolumeInfo describes one local leaf during iteration.
type VolumeInfo struct {
	Le   int32
	Quad Quadrant
}

// FaceSideFull is the full (unrefined) side of a face connection.
type FaceSideFull struct {
	IsGhost bool
	// Index is the local element number, or the ghost array index when
	// IsGhost is set.
	Index int32
	Quad  Quadrant
}

// FaceSideHanging is the refined side of a nonconforming face
// connection: two half-size leaves in ascending tangential order, so
// that half j has child id FaceCorners[side.Face][j].
type FaceSideHanging struct {
	IsGhost [2]bool
	Index   [2]int32
	Quad    [2]Quadrant
}

// FaceSide is one side of a face connection, seen from that side's
// own face numbering.
type FaceSide struct {
	Face      int8
	IsHanging bool
	Full      FaceSideFull
	Hanging   FaceSideHanging
}

// FaceInfo describes one face connection. A boundary face carries a
// single side. Orientation is always 0 on a strip of identically
// oriented trees; it is kept so callers handle the general contract.
type FaceInfo struct {
	Orientation int8
	Sides       []FaceSide
}

// CornerSide is one participant of a corner connection.
type CornerSide struct {
	IsGhost bool
	Index   int32
	Quad    Quadrant
	Corner  int8
}

// CornerInfo describes one corner connection. Hanging lattice points
// (midpoints of nonconforming faces) are never corner connections;
// they are reported through the face callback instead.
type CornerInfo struct {
	Sides []CornerSide
}

// Iterate dispatches exactly one volume callback per local leaf, one
// face callback per face connection touching the local partition, and
// one corner callback per corner connection touching it. Remote
// participants are referenced through the ghost layer. Any callback
// may be nil.
func Iterate(f *Forest, g *Ghost, volume func(*VolumeInfo), face func(*FaceInfo), corner func(*CornerInfo)) error {
	it := &iterator{f: f, g: g}
	if err := it.init(); err != nil {
		return err
	}
	if volume != nil {
		lo := f.GlobalFirst[f.Rank]
		for le := int32(0); le < f.NumLocal(); le++ {
			volume(&VolumeInfo{Le: le, Quad: f.Leaves[lo+int64(le)]})
		}
	}
	if face != nil {
		if err := it.faces(face); err != nil {
			return err
		}
	}
	if corner != nil {
		if err := it.corners(corner); err != nil {
			return err
		}
	}
	return nil
}

type iterator struct {
	f *Forest
	g *Ghost
	// ghostOf maps a global leaf index to its ghost array index
	ghostOf map[int64]int32
}

func (it *iterator) init() error {
	it.ghostOf = make(map[int64]int32)
	if it.g == nil {
		return nil
	}
	for i, gi := range it.g.GlobalIdx {
		it.ghostOf[gi] = int32(i)
	}
	return nil
}

func (it *iterator) isLocal(gi int64) bool {
	return gi >= it.f.GlobalFirst[it.f.Rank] && gi < it.f.GlobalFirst[it.f.Rank+1]
}

// side resolves a global leaf index into a (ghost flag, index) pair.
func (it *iterator) side(gi int64) (bool, int32, error) {
	if it.isLocal(gi) {
		return false, int32(gi - it.f.GlobalFirst[it.f.Rank]), nil
	}
	gid, ok := it.ghostOf[gi]
	if !ok {
		return false, -1, fmt.Errorf("forest: leaf %d touches the partition but is missing from the ghost layer", gi)
	}
	return true, gid, nil
}

// faces enumerates all face connections once each, from the global
// leaf vector, and dispatches those with at least one local side.
//
// Emission rules: a boundary face is emitted by its only leaf; a
// conforming face by the leaf on its negative side; a nonconforming
// face by its coarse side.
func (it *iterator) faces(cb func(*FaceInfo)) error {
	f := it.f
	for gi := int64(0); gi < int64(len(f.Leaves)); gi++ {
		q := f.Leaves[gi]
		for fc := 0; fc < 4; fc++ {
			// sample just across the face, in both tangential halves
			x0, y0 := faceSamplePoint(q, fc, 0)
			n0 := f.findPoint(x0, y0)
			if n0 < 0 {
				// domain boundary
				if !it.isLocal(gi) {
					continue
				}
				fi := &FaceInfo{Sides: []FaceSide{{
					Face: int8(fc),
					Full: FaceSideFull{Index: int32(gi - f.GlobalFirst[f.Rank]), Quad: q},
				}}}
				cb(fi)
				continue
			}
			n := f.Leaves[n0]
			switch {
			case n.Level == q.Level:
				// conforming: emit from the -x/-y side only
				if fc == 0 || fc == 2 {
					continue
				}
				if err := it.emitConforming(cb, gi, n0, fc); err != nil {
					return err
				}
			case n.Level < q.Level:
				// q is one of the hanging halves; the coarse side emits
				continue
			default:
				// q is coarse: the other half sits in the second
				// tangential sample
				x1, y1 := faceSamplePoint(q, fc, 1)
				n1 := f.findPoint(x1, y1)
				if err := it.emitHanging(cb, gi, n0, n1, fc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (it *iterator) emitConforming(cb func(*FaceInfo), gi, ni int64, fc int) error {
	if !it.isLocal(gi) && !it.isLocal(ni) {
		return nil
	}
	fi := &FaceInfo{Sides: make([]FaceSide, 2)}
	for i, pair := range [2]struct {
		gi   int64
		face int
	}{{gi, fc}, {ni, fc ^ 1}} {
		ghost, idx, err := it.side(pair.gi)
		if err != nil {
			return err
		}
		fi.Sides[i] = FaceSide{
			Face: int8(pair.face),
			Full: FaceSideFull{IsGhost: ghost, Index: idx, Quad: it.f.Leaves[pair.gi]},
		}
	}
	cb(fi)
	return nil
}

func (it *iterator) emitHanging(cb func(*FaceInfo), gi, h0, h1 int64, fc int) error {
	if !it.isLocal(gi) && !it.isLocal(h0) && !it.isLocal(h1) {
		return nil
	}
	full := FaceSide{Face: int8(fc)}
	ghost, idx, err := it.side(gi)
	if err != nil {
		return err
	}
	full.Full = FaceSideFull{IsGhost: ghost, Index: idx, Quad: it.f.Leaves[gi]}

	hang := FaceSide{Face: int8(fc ^ 1), IsHanging: true}
	for j, hg := range [2]int64{h0, h1} {
		ghost, idx, err := it.side(hg)
		if err != nil {
			return err
		}
		hang.Hanging.IsGhost[j] = ghost
		hang.Hanging.Index[j] = idx
		hang.Hanging.Quad[j] = it.f.Leaves[hg]
		if hang.Hanging.Quad[j].ChildID() != FaceCorners[fc^1][j] {
			return fmt.Errorf("forest: hanging half %d across face %d has unexpected child id", j, fc)
		}
	}
	cb(&FaceInfo{Sides: []FaceSide{full, hang}})
	return nil
}

// corners groups leaf corners by lattice point and dispatches the
// points that are genuine corner connections.
func (it *iterator) corners(cb func(*CornerInfo)) error {
	f := it.f
	type point struct{ x, y int64 }
	seen := make(map[point]struct{})
	points := make([]point, 0, 4*len(f.Leaves))
	for _, q := range f.Leaves {
		for c := 0; c < 4; c++ {
			p := point{q.CornerX(c), q.CornerY(c)}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				points = append(points, p)
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].y != points[j].y {
			return points[i].y < points[j].y
		}
		return points[i].x < points[j].x
	})

	for _, p := range points {
		// the up to four leaves whose closures meet at p
		var touch []int64
		for _, d := range [4][2]int64{{-1, -1}, {0, -1}, {-1, 0}, {0, 0}} {
			gi := f.findPoint(p.x+d[0], p.y+d[1])
			if gi < 0 {
				continue
			}
			dup := false
			for _, t := range touch {
				if t == gi {
					dup = true
					break
				}
			}
			if !dup {
				touch = append(touch, gi)
			}
		}

		hanging := false
		anyLocal := false
		for _, gi := range touch {
			if cornerAt(f.Leaves[gi], p.x, p.y) < 0 {
				// p lies on a face interior of a coarser leaf: the
				// point is a hanging node, not a corner connection
				hanging = true
				break
			}
			if it.isLocal(gi) {
				anyLocal = true
			}
		}
		if hanging || !anyLocal {
			continue
		}

		ci := &CornerInfo{}
		for _, gi := range touch {
			q := f.Leaves[gi]
			ghost, idx, err := it.side(gi)
			if err != nil {
				return err
			}
			ci.Sides = append(ci.Sides, CornerSide{
				IsGhost: ghost, Index: idx, Quad: q,
				Corner: int8(cornerAt(q, p.x, p.y)),
			})
		}
		cb(ci)
	}
	return nil
}

// cornerAt returns which corner of q coincides with the lattice point
// (x, y), or -1 if the point is not a corner of q.
func cornerAt(q Quadrant, x, y int64) int {
	h := int64(q.Length())
	qx, qy := q.GlobalX(), int64(q.Y)
	c := 0
	switch x {
	case qx:
	case qx + h:
		c |= 1
	default:
		return -1
	}
	switch y {
	case qy:
	case qy + h:
		c |= 2
	default:
		return -1
	}
	return c
}
