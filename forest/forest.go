package forest

import (
	"fmt"
	"sort"
)

// Forest is one rank's handle on a partitioned leaf mesh over a 1xN
// strip of unit trees. Every rank holds the same global leaf vector;
// the partition assigns each rank the contiguous range
// Leaves[GlobalFirst[rank]:GlobalFirst[rank+1]].
//
// The leaf vector is sorted by (tree, Morton) and must tile the strip
// exactly. Construction verifies the tiling and the 2:1 face balance
// the node numbering depends on.
type Forest struct {
	NumTrees int32

	// Leaves holds all leaves of the forest in canonical order.
	Leaves []Quadrant

	// GlobalFirst[r] is the global index of rank r's first leaf;
	// GlobalFirst[size] equals len(Leaves).
	GlobalFirst []int64

	Rank, Size int

	// treeOffset[t] is the index of tree t's first leaf.
	treeOffset []int32
}

// New validates the leaf vector and partition and returns the handle
// for the given rank. The same backing arrays are shared between the
// views of all ranks.
func New(numTrees int32, leaves []Quadrant, globalFirst []int64, rank int) (*Forest, error) {
	if numTrees < 1 {
		return nil, fmt.Errorf("forest: need at least one tree, got %d", numTrees)
	}
	size := len(globalFirst) - 1
	if size < 1 {
		return nil, fmt.Errorf("forest: partition vector too short")
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("forest: rank %d out of range [0,%d)", rank, size)
	}
	if globalFirst[0] != 0 || globalFirst[size] != int64(len(leaves)) {
		return nil, fmt.Errorf("forest: partition offsets must span [0,%d]", len(leaves))
	}
	for r := 0; r < size; r++ {
		if globalFirst[r] > globalFirst[r+1] {
			return nil, fmt.Errorf("forest: partition offsets decrease at rank %d", r)
		}
	}

	f := &Forest{
		NumTrees:    numTrees,
		Leaves:      leaves,
		GlobalFirst: globalFirst,
		Rank:        rank,
		Size:        size,
	}
	if err := f.checkTiling(); err != nil {
		return nil, err
	}
	if err := f.CheckBalance(); err != nil {
		return nil, err
	}
	return f, nil
}

// View returns a handle on the same forest for another rank.
func (f *Forest) View(rank int) (*Forest, error) {
	if rank < 0 || rank >= f.Size {
		return nil, fmt.Errorf("forest: rank %d out of range [0,%d)", rank, f.Size)
	}
	g := *f
	g.Rank = rank
	return &g, nil
}

// checkTiling walks the Morton space of each tree and verifies that
// the leaf intervals partition it exactly, which implies the leaves
// are sorted, disjoint and covering.
func (f *Forest) checkTiling() error {
	const full = uint64(1) << (2 * MaxLevel)
	f.treeOffset = make([]int32, f.NumTrees+1)
	tree := int32(0)
	cursor := uint64(0)
	for i, q := range f.Leaves {
		if q.Level < 0 || int(q.Level) > MaxLevel {
			return fmt.Errorf("forest: leaf %d has invalid level %d", i, q.Level)
		}
		h := q.Length()
		if q.X < 0 || q.Y < 0 || q.X+h > RootLen || q.Y+h > RootLen || q.X%h != 0 || q.Y%h != 0 {
			return fmt.Errorf("forest: leaf %d is not lattice aligned", i)
		}
		for q.Tree > tree {
			if cursor != full {
				return fmt.Errorf("forest: tree %d is not fully covered", tree)
			}
			cursor = 0
			tree++
			f.treeOffset[tree] = int32(i)
		}
		if q.Tree != tree {
			return fmt.Errorf("forest: leaf %d out of tree order", i)
		}
		if m := q.mortonIndex(); m != cursor {
			return fmt.Errorf("forest: leaf %d breaks the Morton tiling of tree %d", i, tree)
		}
		cursor += q.mortonSpan()
	}
	for tree < f.NumTrees-1 {
		if cursor != full {
			return fmt.Errorf("forest: tree %d is not fully covered", tree)
		}
		cursor = 0
		tree++
		f.treeOffset[tree] = int32(len(f.Leaves))
	}
	if cursor != full {
		return fmt.Errorf("forest: tree %d is not fully covered", tree)
	}
	f.treeOffset[f.NumTrees] = int32(len(f.Leaves))
	return nil
}

// NumLocal returns the number of leaves owned by this rank.
func (f *Forest) NumLocal() int32 {
	return int32(f.GlobalFirst[f.Rank+1] - f.GlobalFirst[f.Rank])
}

// Local returns the le-th leaf of this rank.
func (f *Forest) Local(le int32) Quadrant {
	return f.Leaves[f.GlobalFirst[f.Rank]+int64(le)]
}

// OwnerOf returns the rank owning the leaf with the given global
// index.
func (f *Forest) OwnerOf(gi int64) int {
	r := sort.Search(f.Size, func(r int) bool { return f.GlobalFirst[r+1] > gi })
	return r
}

// findPoint returns the global index of the leaf containing the
// global lattice point (gx, y), or -1 if the point lies outside the
// strip.
func (f *Forest) findPoint(gx, y int64) int64 {
	if gx < 0 || y < 0 || y >= int64(RootLen) || gx >= int64(f.NumTrees)*int64(RootLen) {
		return -1
	}
	tree := int32(gx / int64(RootLen))
	p := Quadrant{Tree: tree, X: int32(gx % int64(RootLen)), Y: int32(y), Level: MaxLevel}
	m := p.mortonIndex()
	lo, hi := int(f.treeOffset[tree]), int(f.treeOffset[tree+1])
	// last leaf of the tree whose Morton index is <= m
	i := lo + sort.Search(hi-lo, func(i int) bool {
		return f.Leaves[lo+i].mortonIndex() > m
	}) - 1
	return int64(i)
}

// CheckBalance verifies the 2:1 face balance condition: across every
// face, adjacent leaves differ by at most one level.
func (f *Forest) CheckBalance() error {
	for i, q := range f.Leaves {
		for face := 0; face < 4; face++ {
			// sample both tangential halves of the neighboring
			// same-size region
			for half := 0; half < 2; half++ {
				gx, y := faceSamplePoint(q, face, half)
				gi := f.findPoint(gx, y)
				if gi < 0 {
					continue
				}
				n := f.Leaves[gi]
				d := int(n.Level) - int(q.Level)
				if d < -1 || d > 1 {
					return fmt.Errorf("forest: leaves %d and %d violate 2:1 balance across face %d", i, gi, face)
				}
			}
		}
	}
	return nil
}

// faceSamplePoint returns a lattice point inside the half-th
// tangential half of the same-size region across the given face.
func faceSamplePoint(q Quadrant, face, half int) (int64, int64) {
	h := int64(q.Length())
	gx, y := q.GlobalX(), int64(q.Y)
	t := int64(half) * (h / 2)
	switch face {
	case 0:
		return gx - 1, y + t
	case 1:
		return gx + h, y + t
	case 2:
		return gx + t, y - 1
	default:
		return gx + t, y + h
	}
}

// UniformLeaves returns the leaves of numTrees trees refined
// uniformly to the given level, in canonical order.
func UniformLeaves(numTrees int32, level int) []Quadrant {
	leaves := make([]Quadrant, 0, int(numTrees)<<(2*level))
	for t := int32(0); t < numTrees; t++ {
		leaves = appendUniform(leaves, Quadrant{Tree: t, Level: 0}, level)
	}
	return leaves
}

// appendUniform descends to the given level below q in Morton order.
func appendUniform(leaves []Quadrant, q Quadrant, level int) []Quadrant {
	if int(q.Level) == level {
		return append(leaves, q)
	}
	h := q.Length() / 2
	for c := int32(0); c < 4; c++ {
		child := Quadrant{Tree: q.Tree, X: q.X + (c&1)*h, Y: q.Y + (c>>1)*h, Level: q.Level + 1}
		leaves = appendUniform(leaves, child, level)
	}
	return leaves
}

// RefineAt replaces the leaf at index i with its four children. The
// caller is responsible for re-establishing balance if needed.
func RefineAt(leaves []Quadrant, i int) []Quadrant {
	q := leaves[i]
	h := q.Length() / 2
	children := make([]Quadrant, 4)
	for c := int32(0); c < 4; c++ {
		children[c] = Quadrant{Tree: q.Tree, X: q.X + (c&1)*h, Y: q.Y + (c>>1)*h, Level: q.Level + 1}
	}
	out := make([]Quadrant, 0, len(leaves)+3)
	out = append(out, leaves[:i]...)
	out = append(out, children...)
	out = append(out, leaves[i+1:]...)
	return out
}

// PartitionEven spreads n leaves over size ranks as evenly as
// possible, earlier ranks receiving the remainder.
func PartitionEven(n, size int) []int64 {
	first := make([]int64, size+1)
	q, r := n/size, n%size
	for i := 0; i < size; i++ {
		first[i+1] = first[i] + int64(q)
		if i < r {
			first[i+1]++
		}
	}
	return first
}
