// Package tnodes builds a globally consistent, distributed node
// numbering for the conforming triangular sub-mesh of a 2:1
// face-balanced quadrilateral forest. Each leaf is split into
// triangles according to a per-element configuration; the triangle
// vertices, and optionally the triangle face midpoints, become nodes
// with a unique global identity, an owning rank and complete sharer
// relationships.
package tnodes

// Node position schema within one element. Positions 0..3 are the
// element corners in child-id order, 4 the element center, 5..8 the
// element-face midpoints in face order. With faces enabled, positions
// 9..24 hold the triangle-face midpoints.
const (
	numCorners = 4
	posCenter  = 4
)

var (
	posCorner = [4]int32{0, 1, 2, 3}
	// element-face midpoints
	posMidface = [4]int32{5, 6, 7, 8}
	// center-to-corner triangle face midpoints
	posCenterFace = [4]int32{9, 10, 11, 12}
	// center midpoint of a split element face
	posSplitMid = [4]int32{14, 17, 20, 22}
	// half midpoints of a split element face, tangential order
	posHalfFace = [4][2]int32{{13, 15}, {16, 18}, {19, 21}, {23, 24}}
)

// alwaysOwned marks positions that only the element itself can refer
// to, so they can never arrive in a peer query.
var alwaysOwned = [25]bool{
	posCenter: true,
	9:         true, 10: true, 11: true, 12: true,
	14: true, 17: true, 20: true, 22: true,
}

// Configuration encoding, stored per element: bits 0..3 flag which of
// the four element faces are split by a smaller neighbor, bit 4 marks
// the half-style pattern of child ids 1 and 2, bit 5 the full-style
// pattern whose center acts as a corner. Valid values are 0..16 and
// 32; the table index for 32 is 17.
const (
	configHalf = uint8(1) << 4
	configFull = uint8(1) << 5
)

// configIndex maps a stored configuration value to its table row.
func configIndex(config uint8) int {
	if config <= 16 {
		return int(config)
	}
	if config != configFull {
		panic("tnodes: corrupt element configuration")
	}
	return 17
}

// configCount gives, per configuration row, the number of
// corner-codimension and face-codimension nodes of the element.
var configCount = [18][2]int{
	{4, 5},            // 0, subconfig 0
	{6, 10}, {6, 10},  // 1, 2 (rotated: 4, 8)
	{7, 12},           // 3 (rotated: 12)
	{6, 10},           // 4 (see 0, 1, 8)
	{7, 12}, {7, 12},  // 5, 6 (rotated: 9, 10)
	{8, 14},           // 7 (rotated: 11, 13, 14)
	{6, 10},           // 8 (see 1, 2, 4)
	{7, 12}, {7, 12},  // 9, 10 (see 5, 6)
	{8, 14},           // 11 (see: 7, 13, 14)
	{7, 12},           // 12 (see: 3)
	{8, 14}, {8, 14},  // 13, 14 (see: 7, 11)
	{9, 16},           // 15
	{4, 5},            // 0, subconfig 1
	{5, 8},            // 0, subconfig 2
}

// configCorners lists, per configuration row, the corner node
// positions in canonical order, padded with -1.
var configCorners = [18][9]int32{
	{0, 1, 2, 3, -1, -1, -1, -1, -1},
	{0, 1, 2, 3, 4, 5, -1, -1, -1}, //  1
	{0, 1, 2, 3, 4, 6, -1, -1, -1}, //  2
	{0, 1, 2, 3, 4, 5, 6, -1, -1},
	{0, 1, 2, 3, 4, 7, -1, -1, -1}, //  4
	{0, 1, 2, 3, 4, 5, 7, -1, -1},
	{0, 1, 2, 3, 4, 6, 7, -1, -1},
	{0, 1, 2, 3, 4, 5, 6, 7, -1},
	{0, 1, 2, 3, 4, 8, -1, -1, -1}, //  8
	{0, 1, 2, 3, 4, 5, 8, -1, -1},
	{0, 1, 2, 3, 4, 6, 8, -1, -1}, // 10
	{0, 1, 2, 3, 4, 5, 6, 8, -1},
	{0, 1, 2, 3, 4, 7, 8, -1, -1}, // 12
	{0, 1, 2, 3, 4, 5, 7, 8, -1},
	{0, 1, 2, 3, 4, 6, 7, 8, -1},
	{0, 1, 2, 3, 4, 5, 6, 7, 8}, // 15
	{0, 1, 2, 3, -1, -1, -1, -1, -1},
	{0, 1, 2, 3, 4, -1, -1, -1, -1},
}

// configFaces lists, per configuration row, the face node positions
// in canonical order, padded with -1.
var configFaces = [18][16]int32{
	{4, 5, 6, 7, 8, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1},
	{6, 7, 8, 9, 10, 11, 12, 13, 14, 15, -1, -1, -1, -1, -1, -1}, //  1
	{5, 7, 8, 9, 10, 11, 12, 16, 17, 18, -1, -1, -1, -1, -1, -1}, //  2
	{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, -1, -1, -1, -1},
	{5, 6, 8, 9, 10, 11, 12, 19, 20, 21, -1, -1, -1, -1, -1, -1}, //  4
	{6, 8, 9, 10, 11, 12, 13, 14, 15, 19, 20, 21, -1, -1, -1, -1},
	{5, 8, 9, 10, 11, 12, 16, 17, 18, 19, 20, 21, -1, -1, -1, -1},
	{8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, -1, -1},
	{5, 6, 7, 9, 10, 11, 12, 22, 23, 24, -1, -1, -1, -1, -1, -1}, //  8
	{6, 7, 9, 10, 11, 12, 13, 14, 15, 22, 23, 24, -1, -1, -1, -1},
	{5, 7, 9, 10, 11, 12, 16, 17, 18, 22, 23, 24, -1, -1, -1, -1}, // 10
	{7, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 22, 23, 24, -1, -1},
	{5, 6, 9, 10, 11, 12, 19, 20, 21, 22, 23, 24, -1, -1, -1, -1}, // 12
	{6, 9, 10, 11, 12, 13, 14, 15, 19, 20, 21, 22, 23, 24, -1, -1},
	{5, 9, 10, 11, 12, 16, 17, 18, 19, 20, 21, 22, 23, 24, -1, -1},
	{9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}, // 15
	{4, 5, 6, 7, 8, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1},
	{5, 6, 7, 8, 9, 10, 11, 12, -1, -1, -1, -1, -1, -1, -1, -1},
}
