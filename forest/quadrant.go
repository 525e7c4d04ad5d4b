package forest

// MaxLevel is the deepest refinement level a quadrant can have. A unit
// tree spans RootLen integer units per axis, so a quadrant at level l
// has edge length 1<<(MaxLevel-l).
const MaxLevel = 30

// RootLen is the integer edge length of one unit tree.
const RootLen int32 = 1 << MaxLevel

// Face numbering follows the forest convention: 0 = -x, 1 = +x,
// 2 = -y, 3 = +y. Corner numbering: bit 0 selects high x, bit 1
// selects high y.

// FaceCorners lists, for each face, the two corners lying on it in
// ascending tangential order.
var FaceCorners = [4][2]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}}

// Quadrant is one leaf cell of the forest: a square aligned to the
// refinement lattice of its tree. X and Y are the coordinates of the
// lower-left corner within the tree, in units of the finest lattice.
type Quadrant struct {
	Tree  int32
	X, Y  int32
	Level int8
}

// Length returns the edge length of the quadrant in lattice units.
func (q Quadrant) Length() int32 {
	return int32(1) << (MaxLevel - int(q.Level))
}

// ChildID returns the quadrant's position among its siblings: 0..3,
// bit 0 from x, bit 1 from y. A level-0 quadrant reports 0.
func (q Quadrant) ChildID() int {
	if q.Level == 0 {
		return 0
	}
	h := q.Length()
	id := 0
	if q.X&h != 0 {
		id |= 1
	}
	if q.Y&h != 0 {
		id |= 2
	}
	return id
}

// GlobalX returns the x coordinate in the strip-wide lattice that
// concatenates all trees along the x axis.
func (q Quadrant) GlobalX() int64 {
	return int64(q.Tree)*int64(RootLen) + int64(q.X)
}

// CornerX returns the global x coordinate of corner c.
func (q Quadrant) CornerX(c int) int64 {
	x := q.GlobalX()
	if c&1 != 0 {
		x += int64(q.Length())
	}
	return x
}

// CornerY returns the y coordinate of corner c.
func (q Quadrant) CornerY(c int) int64 {
	y := int64(q.Y)
	if c&2 != 0 {
		y += int64(q.Length())
	}
	return y
}

// mortonIndex interleaves the tree-local x and y bits. A quadrant at
// level l covers exactly the half-open Morton interval
// [mortonIndex, mortonIndex + 4^(MaxLevel-l)).
func (q Quadrant) mortonIndex() uint64 {
	return interleave(uint32(q.X)) | interleave(uint32(q.Y))<<1
}

// mortonSpan is the size of the quadrant's Morton interval.
func (q Quadrant) mortonSpan() uint64 {
	return uint64(1) << (2 * (MaxLevel - int(q.Level)))
}

// interleave spreads the low 30 bits of v so that bit i moves to
// bit 2i.
func interleave(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

// Less orders quadrants by tree, then by Morton index within the
// tree. Leaves of a valid forest are pairwise disjoint, so this is a
// strict total order on them.
func (q Quadrant) Less(r Quadrant) bool {
	if q.Tree != r.Tree {
		return q.Tree < r.Tree
	}
	return q.mortonIndex() < r.mortonIndex()
}

// ContainsPoint reports whether the half-open quadrant area contains
// the global lattice point (gx, y).
func (q Quadrant) ContainsPoint(gx int64, y int64) bool {
	h := int64(q.Length())
	qx := q.GlobalX()
	return gx >= qx && gx < qx+h && y >= int64(q.Y) && y < int64(q.Y)+h
}

// Touches reports whether the closed areas of q and r intersect in at
// least one point.
func (q Quadrant) Touches(r Quadrant) bool {
	qh, rh := int64(q.Length()), int64(r.Length())
	qx, rx := q.GlobalX(), r.GlobalX()
	if qx > rx+rh || rx > qx+qh {
		return false
	}
	qy, ry := int64(q.Y), int64(r.Y)
	return qy <= ry+rh && ry <= qy+qh
}
