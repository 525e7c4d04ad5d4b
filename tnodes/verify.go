package tnodes

import (
	"fmt"
	"sort"
)

// Verify checks the structural invariants of a finished numbering
// that are observable on a single rank: configured element slots
// populated and all others at the sentinel, a strictly monotonic
// nonlocal table disjoint from the owned global range, and
// well-formed sharer records.
func (n *Nodes) Verify(rank int) error {
	if n.Vnodes != 9 && n.Vnodes != 25 {
		return fmt.Errorf("tnodes: invalid vnodes %d", n.Vnodes)
	}
	if n.WithFaces != (n.Vnodes == 25) {
		return fmt.Errorf("tnodes: vnodes %d contradicts face flag", n.Vnodes)
	}
	if n.NumLocalNodes != n.OwnedCount+int32(len(n.NonlocalNodes)) {
		return fmt.Errorf("tnodes: local node count %d does not split into %d owned and %d shared",
			n.NumLocalNodes, n.OwnedCount, len(n.NonlocalNodes))
	}
	if rank < 0 || rank >= len(n.GlobalOwnedCount) {
		return fmt.Errorf("tnodes: rank %d outside owned count vector", rank)
	}
	if n.GlobalOwnedCount[rank] != n.OwnedCount {
		return fmt.Errorf("tnodes: owned count %d disagrees with allgather entry %d",
			n.OwnedCount, n.GlobalOwnedCount[rank])
	}

	var total, offset int64
	for q, c := range n.GlobalOwnedCount {
		if c < 0 {
			return fmt.Errorf("tnodes: negative owned count at rank %d", q)
		}
		if q == rank {
			offset = total
		}
		total += int64(c)
	}
	if offset != n.GlobalOffset {
		return fmt.Errorf("tnodes: global offset %d, scan gives %d", n.GlobalOffset, offset)
	}

	if err := n.verifyElements(); err != nil {
		return err
	}
	if err := n.verifyNonlocal(total); err != nil {
		return err
	}
	return n.verifySharers(rank)
}

func (n *Nodes) verifyElements() error {
	vn := int32(n.Vnodes)
	used := make([]bool, vn)
	for le := int32(0); le < n.NumLocalElements; le++ {
		config := n.Configuration[le]
		if config > 16 && config != 32 {
			return fmt.Errorf("tnodes: element %d has invalid configuration %d", le, config)
		}
		cind := configIndex(config)
		for i := range used {
			used[i] = false
		}
		for ci := 0; ci < configCount[cind][0]; ci++ {
			used[configCorners[cind][ci]] = true
		}
		if n.WithFaces {
			for fi := 0; fi < configCount[cind][1]; fi++ {
				used[configFaces[cind][fi]] = true
			}
		}
		for pos := int32(0); pos < vn; pos++ {
			lni := n.ElementNodes[int64(le)*int64(vn)+int64(pos)]
			if used[pos] {
				if lni < 0 || lni >= n.NumLocalNodes {
					return fmt.Errorf("tnodes: element %d position %d holds invalid node %d", le, pos, lni)
				}
			} else if lni != Sentinel {
				return fmt.Errorf("tnodes: element %d position %d should be unused", le, pos)
			}
		}
	}
	return nil
}

func (n *Nodes) verifyNonlocal(total int64) error {
	prev := int64(-1)
	for i, gni := range n.NonlocalNodes {
		if gni < 0 || gni >= total {
			return fmt.Errorf("tnodes: nonlocal node %d has global id %d outside [0,%d)", i, gni, total)
		}
		if gni >= n.GlobalOffset && gni < n.GlobalOffset+int64(n.OwnedCount) {
			return fmt.Errorf("tnodes: nonlocal node %d lies in the owned global range", i)
		}
		if gni <= prev {
			return fmt.Errorf("tnodes: nonlocal nodes not strictly increasing at %d", i)
		}
		prev = gni
	}
	return nil
}

func (n *Nodes) verifySharers(rank int) error {
	sawLocal := false
	ownedSum := int64(0)
	for i := range n.Sharers {
		sh := &n.Sharers[i]
		if i > 0 && n.Sharers[i-1].Rank >= sh.Rank {
			return fmt.Errorf("tnodes: sharer records not sorted by rank at %d", i)
		}
		if sh.Rank == rank {
			sawLocal = true
			if sh.OwnedOffset != 0 || sh.OwnedCount != n.OwnedCount {
				return fmt.Errorf("tnodes: local sharer owned range [%d,%d) is wrong",
					sh.OwnedOffset, sh.OwnedOffset+sh.OwnedCount)
			}
		}
		ownedSum += int64(sh.OwnedCount)
		if sh.SharedMineOffset != 0 || sh.SharedMineCount > int32(len(sh.SharedNodes)) {
			return fmt.Errorf("tnodes: sharer %d has invalid shared-mine segment", sh.Rank)
		}
		prev := int32(-1)
		for _, lni := range sh.SharedNodes {
			if lni < 0 || lni >= n.NumLocalNodes {
				return fmt.Errorf("tnodes: sharer %d lists invalid node %d", sh.Rank, lni)
			}
			if lni <= prev {
				return fmt.Errorf("tnodes: sharer %d list not strictly increasing", sh.Rank)
			}
			prev = lni
		}
		for j, lni := range sh.SharedNodes {
			mine := lni < n.OwnedCount
			if mine != (j < int(sh.SharedMineCount)) {
				return fmt.Errorf("tnodes: sharer %d mixes owned and shared segments", sh.Rank)
			}
		}
	}
	if len(n.Sharers) > 0 {
		if !sawLocal {
			return fmt.Errorf("tnodes: local sharer record missing")
		}
		if ownedSum != int64(n.NumLocalNodes) {
			return fmt.Errorf("tnodes: sharer owned counts sum to %d, want %d", ownedSum, n.NumLocalNodes)
		}
	}
	return nil
}

// VerifyWorld cross-checks the outputs of all ranks of one run: the
// owned ranges tile the global id space, sharer relations are
// symmetric, and both sides of every relation agree on the shared
// global ids.
func VerifyWorld(nodes []*Nodes) error {
	size := len(nodes)
	total := int64(0)
	for r, n := range nodes {
		if err := n.Verify(r); err != nil {
			return err
		}
		if len(n.GlobalOwnedCount) != size {
			return fmt.Errorf("tnodes: rank %d sees %d ranks, want %d", r, len(n.GlobalOwnedCount), size)
		}
		if n.GlobalOffset != total {
			return fmt.Errorf("tnodes: rank %d global offset %d, want %d", r, n.GlobalOffset, total)
		}
		total += int64(n.OwnedCount)
	}

	for r, n := range nodes {
		for i := range n.Sharers {
			sh := &n.Sharers[i]
			if sh.Rank == r {
				continue
			}
			peer := findSharer(nodes[sh.Rank], r)
			if peer == nil {
				return fmt.Errorf("tnodes: rank %d shares with %d but not vice versa", r, sh.Rank)
			}
			if len(peer.SharedNodes) != len(sh.SharedNodes) {
				return fmt.Errorf("tnodes: ranks %d and %d disagree on shared count: %d vs %d",
					r, sh.Rank, len(sh.SharedNodes), len(peer.SharedNodes))
			}
			if !sameGlobalSet(n, sh.SharedNodes, nodes[sh.Rank], peer.SharedNodes) {
				return fmt.Errorf("tnodes: ranks %d and %d disagree on shared global ids", r, sh.Rank)
			}
		}
	}
	return nil
}

func findSharer(n *Nodes, rank int) *Sharer {
	for i := range n.Sharers {
		if n.Sharers[i].Rank == rank {
			return &n.Sharers[i]
		}
	}
	return nil
}

func sameGlobalSet(na *Nodes, la []int32, nb *Nodes, lb []int32) bool {
	ga := make([]int64, len(la))
	gb := make([]int64, len(lb))
	for i, lni := range la {
		ga[i] = na.GlobalID(lni)
	}
	for i, lni := range lb {
		gb[i] = nb.GlobalID(lni)
	}
	sort.Slice(ga, func(i, j int) bool { return ga[i] < ga[j] })
	sort.Slice(gb, func(i, j int) bool { return gb[i] < gb[j] })
	for i := range ga {
		if ga[i] != gb[i] {
			return false
		}
	}
	return true
}
