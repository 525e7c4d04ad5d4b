package tnodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davknapp/p4est/forest"
)

func buildAll(t *testing.T, numTrees int32, leaves []forest.Quadrant, globalFirst []int64, opts Options) []*Nodes {
	t.Helper()
	nodes, err := BuildAll(numTrees, leaves, globalFirst, opts)
	require.NoError(t, err)
	require.NoError(t, VerifyWorld(nodes))
	return nodes
}

func TestTwoRanksStrip(t *testing.T) {
	// two level-0 trees side by side, one per rank: the common face
	// carries two shared corners, both owned by rank 0
	leaves := forest.UniformLeaves(2, 0)
	nodes := buildAll(t, 2, leaves, []int64{0, 1, 2}, Options{})
	n0, n1 := nodes[0], nodes[1]

	// level-0 elements are rendered full style
	assert.Equal(t, uint8(32), n0.Configuration[0])
	assert.Equal(t, uint8(32), n1.Configuration[0])

	assert.Equal(t, int32(5), n0.OwnedCount)
	assert.Equal(t, int32(5), n0.NumLocalNodes)
	assert.Equal(t, int32(3), n1.OwnedCount)
	assert.Equal(t, int32(5), n1.NumLocalNodes)
	assert.Equal(t, []int32{5, 3}, n0.GlobalOwnedCount)
	assert.Equal(t, int64(0), n0.GlobalOffset)
	assert.Equal(t, int64(5), n1.GlobalOffset)

	// rank 0 numbers its element positions 0..4 in canonical order
	assert.Equal(t, []int32{0, 1, 2, 3, 4, -1, -1, -1, -1}, n0.ElementNodes)

	// rank 1 sees rank 0's corners 1 and 3 as shared-in nodes 3 and 4
	assert.Equal(t, []int64{1, 3}, n1.NonlocalNodes)
	assert.Equal(t, []int32{3, 0, 4, 1, 2, -1, -1, -1, -1}, n1.ElementNodes)

	// sharer lists of size 2 on both ranks
	require.Len(t, n0.Sharers, 2)
	require.Len(t, n1.Sharers, 2)
	assert.Equal(t, []int32{1, 3}, n0.Sharers[1].SharedNodes)
	assert.Equal(t, 1, n0.Sharers[1].Rank)
	assert.Equal(t, []int32{1, 3}, n0.Sharers[0].SharedNodes)
	assert.Equal(t, int32(2), n0.Sharers[0].SharedMineCount)
	assert.Equal(t, []int32{3, 4}, n1.Sharers[0].SharedNodes)
	assert.Equal(t, 0, n1.Sharers[0].Rank)
	assert.Equal(t, int32(0), n1.Sharers[0].SharedMineCount)
	assert.Equal(t, int32(2), n1.Sharers[0].OwnedCount)
	assert.Equal(t, int32(3), n1.Sharers[0].OwnedOffset)
}

func TestCoarseFineAcrossRanks(t *testing.T) {
	// a level-0 tree on rank 0 against a uniformly refined tree on
	// rank 1: the hanging midpoint is owned by rank 0
	leaves := append([]forest.Quadrant{{Tree: 0, Level: 0}}, forest.UniformLeaves(2, 1)[4:]...)
	nodes := buildAll(t, 2, leaves, []int64{0, 1, 5}, Options{})
	n0, n1 := nodes[0], nodes[1]

	// the coarse element carries the split bit of its +x face
	assert.Equal(t, uint8(2), n0.Configuration[0])
	assert.Equal(t, []uint8{0, 16, 16, 0}, n1.Configuration)

	// the small side records the hanging axis and child id
	assert.Equal(t, uint8(4|0), n1.FaceCode[0])
	assert.Equal(t, uint8(0), n1.FaceCode[1])
	assert.Equal(t, uint8(4|2), n1.FaceCode[2])
	assert.Equal(t, uint8(0), n1.FaceCode[3])
	assert.Equal(t, uint8(0), n0.FaceCode[0])

	// rank 0 owns its corners, center and the hanging midpoint
	assert.Equal(t, int32(6), n0.OwnedCount)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, -1, 5, -1, -1}, n0.ElementNodes)

	// rank 1 owns the six lattice points right of the interface and
	// shares in the interface corners and midpoint
	assert.Equal(t, int32(6), n1.OwnedCount)
	assert.Equal(t, int32(9), n1.NumLocalNodes)
	assert.Equal(t, []int64{1, 3, 5}, n1.NonlocalNodes)

	want := []int32{
		6, 0, 8, 1, -1, -1, -1, -1, -1, // child 0: hangs at its corner 2
		0, 2, 1, 3, -1, -1, -1, -1, -1, // child 1
		8, 1, 7, 4, -1, -1, -1, -1, -1, // child 2: hangs at its corner 0
		1, 3, 4, 5, -1, -1, -1, -1, -1, // child 3
	}
	assert.Equal(t, want, n1.ElementNodes)

	// sharers: rank 0 tells rank 1 about nodes 1, 3 and 5
	require.Len(t, n0.Sharers, 2)
	assert.Equal(t, []int32{1, 3, 5}, n0.Sharers[1].SharedNodes)
	assert.Equal(t, int32(3), n0.Sharers[0].SharedMineCount)
	require.Len(t, n1.Sharers, 2)
	assert.Equal(t, []int32{6, 7, 8}, n1.Sharers[0].SharedNodes)
	assert.Equal(t, int32(0), n1.Sharers[0].SharedMineCount)
	assert.Equal(t, int32(3), n1.Sharers[0].OwnedCount)
	assert.Equal(t, int32(6), n1.Sharers[0].OwnedOffset)
}

func TestEmptyPartition(t *testing.T) {
	// a rank without leaves numbers nothing and has no peers
	leaves := forest.UniformLeaves(1, 1)
	nodes := buildAll(t, 1, leaves, []int64{0, 0, 4}, Options{})
	n0 := nodes[0]

	assert.Equal(t, int32(0), n0.NumLocalElements)
	assert.Equal(t, int32(0), n0.OwnedCount)
	assert.Equal(t, int32(0), n0.NumLocalNodes)
	assert.Empty(t, n0.ElementNodes)
	require.Len(t, n0.Sharers, 1)
	assert.Empty(t, n0.Sharers[0].SharedNodes)

	assert.Equal(t, int32(9), nodes[1].OwnedCount)
}

func TestPassiveShares(t *testing.T) {
	// one leaf per rank on a 2x2 refinement: ranks 1 and 2 hold
	// diagonal leaves that touch only at the center, which rank 0
	// owns; they become passive peers of each other and exchange no
	// messages
	leaves := forest.UniformLeaves(1, 1)
	nodes := buildAll(t, 1, leaves, []int64{0, 1, 2, 3, 4}, Options{})
	n1, n2 := nodes[1], nodes[2]

	require.Len(t, n1.Sharers, 4)
	sh12 := findSharer(n1, 2)
	require.NotNil(t, sh12)
	require.Len(t, sh12.SharedNodes, 1)
	assert.Equal(t, int32(0), sh12.OwnedCount)
	assert.Equal(t, int32(0), sh12.SharedMineCount)

	sh21 := findSharer(n2, 1)
	require.NotNil(t, sh21)
	require.Len(t, sh21.SharedNodes, 1)

	// both passive views resolve to the same global node, owned by
	// rank 0
	g1 := n1.GlobalID(sh12.SharedNodes[0])
	g2 := n2.GlobalID(sh21.SharedNodes[0])
	assert.Equal(t, g1, g2)
	assert.Less(t, g1, int64(nodes[0].OwnedCount))
}

func TestThreeRanksRefined(t *testing.T) {
	leaves := forest.RefineAt(forest.UniformLeaves(2, 1), 0)
	for _, opts := range []Options{
		{},
		{FullStyle: true},
		{WithFaces: true},
		{FullStyle: true, WithFaces: true},
	} {
		nodes := buildAll(t, 2, leaves, forest.PartitionEven(len(leaves), 3), opts)

		// global count is independent of the partition
		single := buildAll(t, 2, leaves, forest.PartitionEven(len(leaves), 1), opts)
		var parallel int64
		for _, n := range nodes {
			parallel += int64(n.OwnedCount)
		}
		assert.Equal(t, int64(single[0].OwnedCount), parallel,
			"options %+v", opts)
	}
}

func TestParallelIdempotence(t *testing.T) {
	leaves := forest.RefineAt(forest.UniformLeaves(2, 1), 0)
	first := forest.PartitionEven(len(leaves), 3)
	a := buildAll(t, 2, leaves, first, Options{WithFaces: true})
	b := buildAll(t, 2, leaves, first, Options{WithFaces: true})
	assert.Equal(t, a, b)
}

func TestPartitionIndependentGlobalStructure(t *testing.T) {
	// the global node id at every element position must not depend
	// on the partition
	leaves := forest.RefineAt(forest.UniformLeaves(1, 1), 0)
	serial := buildAll(t, 1, leaves, forest.PartitionEven(len(leaves), 1), Options{})
	split := buildAll(t, 1, leaves, forest.PartitionEven(len(leaves), 2), Options{})

	want := elementGlobalIDs(t, serial)
	got := elementGlobalIDs(t, split)
	assert.Equal(t, want, got)
}

// elementGlobalIDs flattens the element node tables of all ranks into
// global ids, in global element order.
func elementGlobalIDs(t *testing.T, nodes []*Nodes) []int64 {
	t.Helper()
	var out []int64
	for _, n := range nodes {
		vn := int32(n.Vnodes)
		for le := int32(0); le < n.NumLocalElements; le++ {
			for pos := int32(0); pos < vn; pos++ {
				lni := n.ElementNodes[le*vn+pos]
				if lni == Sentinel {
					out = append(out, -1)
				} else {
					out = append(out, n.GlobalID(lni))
				}
			}
		}
	}
	return out
}
