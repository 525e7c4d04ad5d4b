package forest

// Ghost is the layer of remote leaves visible to one rank: every leaf
// owned by another rank whose closure touches the closure of a local
// leaf. Entries are sorted by (owner rank, canonical leaf order), so
// each owner's ghosts form a contiguous run.
type Ghost struct {
	// Quads holds the ghost leaves.
	Quads []Quadrant

	// Ranks[i] is the owner rank of Quads[i].
	Ranks []int32

	// RemoteIdx[i] is the leaf's local element index on its owner.
	RemoteIdx []int32

	// GlobalIdx[i] is the leaf's index in the global leaf vector.
	GlobalIdx []int64
}

// NewGhost collects the ghost layer of f.Rank. With a single rank the
// layer is empty.
func NewGhost(f *Forest) *Ghost {
	g := &Ghost{}
	if f.Size == 1 {
		return g
	}
	lo, hi := f.GlobalFirst[f.Rank], f.GlobalFirst[f.Rank+1]
	for gi := int64(0); gi < int64(len(f.Leaves)); gi++ {
		if gi >= lo && gi < hi {
			continue
		}
		r := f.Leaves[gi]
		for li := lo; li < hi; li++ {
			if f.Leaves[li].Touches(r) {
				owner := f.OwnerOf(gi)
				g.Quads = append(g.Quads, r)
				g.Ranks = append(g.Ranks, int32(owner))
				g.RemoteIdx = append(g.RemoteIdx, int32(gi-f.GlobalFirst[owner]))
				g.GlobalIdx = append(g.GlobalIdx, gi)
				break
			}
		}
	}
	// collection order is ascending global index, which coincides with
	// (rank, canonical) order because the partition is contiguous
	return g
}

// Len returns the number of ghost leaves.
func (g *Ghost) Len() int32 {
	return int32(len(g.Quads))
}
