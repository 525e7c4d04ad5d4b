package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformLeaves(t *testing.T) {
	leaves := UniformLeaves(1, 2)
	require.Len(t, leaves, 16)
	for i := 1; i < len(leaves); i++ {
		assert.True(t, leaves[i-1].Less(leaves[i]), "leaves out of order at %d", i)
	}

	f, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(16), f.NumLocal())
}

func TestUniformLeavesStrip(t *testing.T) {
	leaves := UniformLeaves(3, 1)
	require.Len(t, leaves, 12)
	_, err := New(3, leaves, PartitionEven(len(leaves), 2), 0)
	require.NoError(t, err)
}

func TestChildID(t *testing.T) {
	leaves := UniformLeaves(1, 1)
	ids := make([]int, len(leaves))
	for i, q := range leaves {
		ids[i] = q.ChildID()
	}
	assert.Equal(t, []int{0, 1, 2, 3}, ids)
	assert.Equal(t, 0, Quadrant{Level: 0}.ChildID())
}

func TestRefineAtKeepsOrder(t *testing.T) {
	leaves := RefineAt(UniformLeaves(1, 1), 0)
	require.Len(t, leaves, 7)
	for i := 1; i < len(leaves); i++ {
		assert.True(t, leaves[i-1].Less(leaves[i]))
	}
	_, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	require.NoError(t, err)
}

func TestNewRejectsBrokenTiling(t *testing.T) {
	leaves := UniformLeaves(1, 1)
	// swap two leaves out of Morton order
	leaves[1], leaves[2] = leaves[2], leaves[1]
	_, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	assert.Error(t, err)

	// drop a leaf: the tree is no longer covered
	leaves = UniformLeaves(1, 1)[:3]
	_, err = New(1, leaves, PartitionEven(len(leaves), 1), 0)
	assert.Error(t, err)
}

func TestNewRejectsUnbalanced(t *testing.T) {
	// refining child 1 of an already refined child 0 puts a level-3
	// leaf face to face with a level-1 leaf
	leaves := RefineAt(RefineAt(UniformLeaves(1, 1), 0), 1)
	_, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balance")
}

func TestPartitionEven(t *testing.T) {
	assert.Equal(t, []int64{0, 4, 7}, PartitionEven(7, 2))
	assert.Equal(t, []int64{0, 1, 2}, PartitionEven(2, 2))
	assert.Equal(t, []int64{0, 1, 1}, PartitionEven(1, 2))
}

func TestOwnerOf(t *testing.T) {
	leaves := UniformLeaves(1, 1)
	f, err := New(1, leaves, []int64{0, 2, 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.OwnerOf(0))
	assert.Equal(t, 0, f.OwnerOf(1))
	assert.Equal(t, 1, f.OwnerOf(2))
	assert.Equal(t, 1, f.OwnerOf(3))
}

func TestStatistics(t *testing.T) {
	leaves := RefineAt(UniformLeaves(1, 1), 0)
	f, err := New(1, leaves, PartitionEven(len(leaves), 2), 0)
	require.NoError(t, err)
	stats := f.Statistics()
	assert.Equal(t, 2, stats.NumRanks)
	assert.Equal(t, 3, stats.MinLeaves)
	assert.Equal(t, 4, stats.MaxLeaves)
	assert.InDelta(t, 3.5, stats.MeanLeaves, 1e-12)
	assert.InDelta(t, 4.0/3.5, stats.Imbalance, 1e-12)
}
