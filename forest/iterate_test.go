package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventCounts struct {
	volumes    int
	boundary   int
	conforming int
	hanging    int
	corners    []int // sides per corner event
}

func countEvents(t *testing.T, f *Forest, g *Ghost) eventCounts {
	t.Helper()
	var ec eventCounts
	err := Iterate(f, g,
		func(vi *VolumeInfo) { ec.volumes++ },
		func(fi *FaceInfo) {
			switch {
			case len(fi.Sides) == 1:
				ec.boundary++
			case fi.Sides[0].IsHanging || fi.Sides[1].IsHanging:
				ec.hanging++
			default:
				ec.conforming++
			}
		},
		func(ci *CornerInfo) { ec.corners = append(ec.corners, len(ci.Sides)) })
	require.NoError(t, err)
	return ec
}

func TestIterateSingleElement(t *testing.T) {
	leaves := UniformLeaves(1, 0)
	f, err := New(1, leaves, PartitionEven(1, 1), 0)
	require.NoError(t, err)

	ec := countEvents(t, f, NewGhost(f))
	assert.Equal(t, 1, ec.volumes)
	assert.Equal(t, 4, ec.boundary)
	assert.Equal(t, 0, ec.conforming)
	assert.Equal(t, 0, ec.hanging)
	assert.Equal(t, []int{1, 1, 1, 1}, ec.corners)
}

func TestIterateUniform2x2(t *testing.T) {
	leaves := UniformLeaves(1, 1)
	f, err := New(1, leaves, PartitionEven(4, 1), 0)
	require.NoError(t, err)

	ec := countEvents(t, f, NewGhost(f))
	assert.Equal(t, 4, ec.volumes)
	assert.Equal(t, 8, ec.boundary)
	assert.Equal(t, 4, ec.conforming)
	assert.Equal(t, 0, ec.hanging)
	// 9 lattice points: four domain corners with one side, four edge
	// midpoints with two, the center with four
	require.Len(t, ec.corners, 9)
	ones, twos, fours := 0, 0, 0
	for _, s := range ec.corners {
		switch s {
		case 1:
			ones++
		case 2:
			twos++
		case 4:
			fours++
		}
	}
	assert.Equal(t, 4, ones)
	assert.Equal(t, 4, twos)
	assert.Equal(t, 1, fours)
}

func TestIterateHanging(t *testing.T) {
	leaves := RefineAt(UniformLeaves(1, 1), 0)
	f, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	require.NoError(t, err)

	var hangings []*FaceInfo
	err = Iterate(f, NewGhost(f), nil, func(fi *FaceInfo) {
		if len(fi.Sides) == 2 && (fi.Sides[0].IsHanging || fi.Sides[1].IsHanging) {
			hangings = append(hangings, fi)
		}
	}, nil)
	require.NoError(t, err)
	require.Len(t, hangings, 2)

	for _, fi := range hangings {
		full, hang := fi.Sides[0], fi.Sides[1]
		require.False(t, full.IsHanging)
		require.True(t, hang.IsHanging)
		assert.EqualValues(t, full.Face^1, hang.Face)
		assert.Equal(t, int8(1), full.Full.Quad.Level)
		for j := 0; j < 2; j++ {
			assert.Equal(t, int8(2), hang.Hanging.Quad[j].Level)
			assert.Equal(t, FaceCorners[hang.Face][j], hang.Hanging.Quad[j].ChildID())
		}
	}

	// hanging midpoints must not appear as corner connections: the
	// refined quarter contributes 5 new lattice points, of which
	// 2 are hanging
	ec := countEvents(t, f, NewGhost(f))
	assert.Len(t, ec.corners, 12)
}

func TestIterateLocalityTwoRanks(t *testing.T) {
	// 2x2 over two ranks: every face and corner event must carry at
	// least one local side, and ghost indices must resolve
	leaves := UniformLeaves(1, 1)
	for rank := 0; rank < 2; rank++ {
		f, err := New(1, leaves, []int64{0, 2, 4}, rank)
		require.NoError(t, err)
		g := NewGhost(f)
		err = Iterate(f, g, nil,
			func(fi *FaceInfo) {
				anyLocal := false
				for _, s := range fi.Sides {
					if s.IsHanging {
						for j := 0; j < 2; j++ {
							if !s.Hanging.IsGhost[j] {
								anyLocal = true
							}
						}
					} else if !s.Full.IsGhost {
						anyLocal = true
					}
				}
				assert.True(t, anyLocal)
			},
			func(ci *CornerInfo) {
				anyLocal := false
				for _, s := range ci.Sides {
					if s.IsGhost {
						assert.Less(t, s.Index, g.Len())
					} else {
						anyLocal = true
						assert.Less(t, s.Index, f.NumLocal())
					}
				}
				assert.True(t, anyLocal)
			})
		require.NoError(t, err)
	}
}

func TestIterateVolumeOrder(t *testing.T) {
	leaves := RefineAt(UniformLeaves(1, 1), 0)
	f, err := New(1, leaves, PartitionEven(len(leaves), 1), 0)
	require.NoError(t, err)
	var seen []int32
	err = Iterate(f, NewGhost(f), func(vi *VolumeInfo) {
		seen = append(seen, vi.Le)
	}, nil, nil)
	require.NoError(t, err)
	require.Len(t, seen, 7)
	for i, le := range seen {
		assert.Equal(t, int32(i), le)
	}
}
