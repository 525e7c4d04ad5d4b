package tnodes

import (
	"fmt"

	"github.com/Davknapp/p4est/comm"
	"github.com/Davknapp/p4est/forest"
)

// Options selects the triangulation flavor.
type Options struct {
	// FullStyle subdivides every element into four triangles around
	// its center. When false, elements use the two-triangle half
	// style unless a smaller neighbor forces them to full style;
	// level-0 elements use full style regardless of this flag.
	FullStyle bool

	// WithFaces additionally numbers the triangle face midpoints,
	// raising the per-element position count from 9 to 25.
	WithFaces bool
}

// Sentinel marks unused element node slots.
const Sentinel int32 = -1

// Sharer records which of this rank's local node indices are visible
// to one rank, including the local rank itself.
type Sharer struct {
	Rank int

	// SharedNodes lists, in canonical local order, every local node
	// index shared between this rank and Rank.
	SharedNodes []int32

	// OwnedOffset and OwnedCount locate Rank's owned nodes within
	// this rank's local index space.
	OwnedOffset int32
	OwnedCount  int32

	// SharedMineOffset and SharedMineCount locate the locally owned
	// portion of SharedNodes.
	SharedMineOffset int32
	SharedMineCount  int32
}

// Nodes is the finished node numbering of one rank.
type Nodes struct {
	FullStyle bool
	WithFaces bool

	// Vnodes is the number of node positions per element: 9, or 25
	// with faces.
	Vnodes int

	NumLocalElements int32

	// OwnedCount is the number of nodes owned by this rank;
	// NumLocalNodes additionally counts the shared-in nodes.
	OwnedCount    int32
	NumLocalNodes int32

	// ElementNodes maps position slot le*Vnodes+pos to the final
	// local node index, or Sentinel for slots the element's
	// configuration does not use.
	ElementNodes []int32

	// FaceCode records, per element, the hanging status of the
	// element's faces: bits 0..1 hold the child id, bit 2 flags a
	// hanging x-face, bit 3 a hanging y-face.
	FaceCode []uint8

	// Configuration holds the triangulation pattern per element:
	// 0..16 or 32.
	Configuration []uint8

	// NonlocalNodes gives the global id of every non-owned visible
	// node, indexed by local index minus OwnedCount; it is strictly
	// increasing.
	NonlocalNodes []int64

	// GlobalOwnedCount holds every rank's owned node count;
	// GlobalOffset is the exclusive prefix sum at this rank.
	GlobalOwnedCount []int32
	GlobalOffset     int64

	// Sharers holds one record per peer rank plus one for the local
	// rank, in ascending rank order.
	Sharers []Sharer
}

// GlobalID translates a local node index into its global id.
func (n *Nodes) GlobalID(lni int32) int64 {
	if lni < n.OwnedCount {
		return n.GlobalOffset + int64(lni)
	}
	return n.NonlocalNodes[lni-n.OwnedCount]
}

// codim is the boundary codimension of a node under construction.
type codim uint8

const (
	codimFace codim = iota
	codimCorner
)

// contrib is one referencing process of a node under construction.
// Per rank only the smallest (element, position) referrer is kept.
type contrib struct {
	rank int32
	le   int32
	pos  int32
}

// cnode is a node under construction: the set of contributors that
// reference the same location. The owner is kept as an index into the
// contributor list and maintained as the argmin by rank.
type cnode struct {
	runid int32
	codim codim
	owner int32
	contr []contrib
}

// builder carries the construction state of one rank.
type builder struct {
	opts   Options
	f      *forest.Forest
	ghost  *forest.Ghost
	c      *comm.Rank
	rank   int
	size   int
	vnodes int32

	nd *Nodes

	// chilev packs level and child id per local element
	chilev []uint8

	construct []cnode
	ownsort   []int32
	lenum     int32

	numOwned       int32
	numOwnedShared int32
	numShared      int32

	goffset []int64

	// procPeer[q] is the peer index of rank q plus one, or zero
	procPeer  []int32
	peers     []peer
	sortp     []int32
	locsharer int32
}

// New constructs the node numbering for the rank of f. With more than
// one rank both the ghost layer and the communicator are required;
// the call then participates in one collective and the peer exchange
// and must be entered by every rank. On any failure no partial result
// is returned.
func New(f *forest.Forest, ghost *forest.Ghost, c *comm.Rank, opts Options) (*Nodes, error) {
	if f == nil {
		return nil, fmt.Errorf("tnodes: nil forest")
	}
	if f.Size > 1 {
		if ghost == nil {
			return nil, fmt.Errorf("tnodes: ghost layer required for %d ranks", f.Size)
		}
		if c == nil {
			return nil, fmt.Errorf("tnodes: communicator required for %d ranks", f.Size)
		}
		if c.Rank() != f.Rank || c.Size() != f.Size {
			return nil, fmt.Errorf("tnodes: communicator rank %d/%d does not match forest rank %d/%d",
				c.Rank(), c.Size(), f.Rank, f.Size)
		}
	}
	if err := f.CheckBalance(); err != nil {
		return nil, fmt.Errorf("tnodes: %w", err)
	}

	b := &builder{
		opts:  opts,
		f:     f,
		ghost: ghost,
		c:     c,
		rank:  f.Rank,
		size:  f.Size,
	}
	b.vnodes = 9
	if opts.WithFaces {
		b.vnodes = 25
	}
	lel := f.NumLocal()
	nd := &Nodes{
		FullStyle:        opts.FullStyle,
		WithFaces:        opts.WithFaces,
		Vnodes:           int(b.vnodes),
		NumLocalElements: lel,
		ElementNodes:     make([]int32, int64(lel)*int64(b.vnodes)),
		FaceCode:         make([]uint8, lel),
		Configuration:    make([]uint8, lel),
	}
	for i := range nd.ElementNodes {
		nd.ElementNodes[i] = Sentinel
	}
	b.nd = nd
	b.chilev = make([]uint8, lel)
	b.procPeer = make([]int32, b.size)
	b.locsharer = -1

	// phase 1: traverse the topology and gather node incidences
	if err := forest.Iterate(f, ghost, b.volume, b.face, b.corner); err != nil {
		return nil, fmt.Errorf("tnodes: %w", err)
	}
	if b.lenum != lel {
		panic("tnodes: volume traversal incomplete")
	}

	// phase 2: elect owners and build peer buffers
	b.electOwners()

	// phase 3: sort owned nodes, allgather counts, scan offsets
	b.sortAllgather()

	// order peers and sharer records by rank
	b.sortPeers()

	// phases 4-5: run the query/reply exchange to completion
	if err := b.exchange(); err != nil {
		return nil, fmt.Errorf("tnodes: %w", err)
	}

	// phase 6: rewrite element slots and populate sharers
	b.assignElementNodes()
	b.populateSharers()

	return nd, nil
}

// register adds one contributor to a node under construction. With
// lni == -1 a new candidate is created; otherwise the contribution
// joins the existing candidate. The updated candidate index is
// returned.
func (b *builder) register(lni int32, rank int, le int32, pos int32, cd codim) int32 {
	if pos < 0 || pos >= b.vnodes {
		panic("tnodes: node position out of range")
	}
	if cd == codimCorner && pos > 8 {
		panic("tnodes: corner node at face position")
	}
	if cd == codimFace && pos < numCorners {
		panic("tnodes: face node at corner position")
	}

	if lni == -1 {
		lni = int32(len(b.construct))
		b.construct = append(b.construct, cnode{runid: lni, codim: cd, owner: -1})
	}
	cn := &b.construct[lni]
	if cn.codim != cd {
		panic("tnodes: codimension mismatch on existing node")
	}

	// assign the candidate to the local element position slot
	if rank == b.rank {
		slot := int64(le)*int64(b.vnodes) + int64(pos)
		if b.nd.ElementNodes[slot] != Sentinel {
			panic("tnodes: element node slot already assigned")
		}
		b.nd.ElementNodes[slot] = lni
	}

	// an already known rank keeps its smallest referrer
	for i := range cn.contr {
		ct := &cn.contr[i]
		if int(ct.rank) == rank {
			if le < ct.le || (le == ct.le && pos < ct.pos) {
				ct.le = le
				ct.pos = pos
			}
			return lni
		}
	}

	cn.contr = append(cn.contr, contrib{rank: int32(rank), le: le, pos: pos})
	if cn.owner < 0 || int32(rank) < cn.contr[cn.owner].rank {
		cn.owner = int32(len(cn.contr) - 1)
	}
	return lni
}

// registerLocal adds a contribution of the local rank.
func (b *builder) registerLocal(lni int32, le, pos int32, cd codim) int32 {
	return b.register(lni, b.rank, le, pos, cd)
}

// registerGhost adds a contribution of a ghost element, translated to
// its owner rank and remote element index.
func (b *builder) registerGhost(lni int32, ghostid, pos int32, cd codim) int32 {
	if alwaysOwned[pos] {
		panic("tnodes: ghost contribution at an always-owned position")
	}
	return b.register(lni, int(b.ghost.Ranks[ghostid]), b.ghost.RemoteIdx[ghostid], pos, cd)
}

// faceToCorner re-tags an element's center node from face to corner
// codimension in place, preserving its contributor list.
func (b *builder) faceToCorner(le int32) {
	lni := b.nd.ElementNodes[int64(le)*int64(b.vnodes)+posCenter]
	if lni < 0 {
		panic("tnodes: center node missing on promotion")
	}
	cn := &b.construct[lni]
	if cn.codim != codimFace || len(cn.contr) != 1 {
		panic("tnodes: center node not promotable")
	}
	cn.codim = codimCorner
}

// volume handles one local leaf: store level and child id and emit
// the center nodes the style requires.
func (b *builder) volume(vi *forest.VolumeInfo) {
	le := vi.Le
	if le != b.lenum {
		panic("tnodes: volume callbacks out of order")
	}
	b.lenum++
	level := vi.Quad.Level
	childid := vi.Quad.ChildID()
	b.chilev[le] = uint8(level)<<3 | uint8(childid)

	if b.opts.FullStyle || level == 0 {
		b.nd.Configuration[le] = configFull
		b.registerLocal(-1, le, posCenter, codimCorner)
		if b.opts.WithFaces {
			for j := 0; j < 4; j++ {
				b.registerLocal(-1, le, posCenterFace[j], codimFace)
			}
		}
	} else {
		if childid == 1 || childid == 2 {
			b.nd.Configuration[le] = configHalf
		}
		if b.opts.WithFaces {
			b.registerLocal(-1, le, posCenter, codimFace)
		}
	}
}

// face handles one face connection: boundary, conforming or hanging.
func (b *builder) face(fi *forest.FaceInfo) {
	if len(fi.Sides) == 1 {
		// a boundary face does not contribute to the configuration
		fs := &fi.Sides[0]
		if b.opts.WithFaces && !fs.Full.IsGhost {
			b.registerLocal(-1, fs.Full.Index, posMidface[fs.Face], codimFace)
		}
		return
	}

	s0, s1 := &fi.Sides[0], &fi.Sides[1]
	if !s0.IsHanging && !s1.IsHanging {
		// same-size connection does not contribute to the configuration
		if b.opts.WithFaces {
			lni := Sentinel
			for _, fs := range []*forest.FaceSide{s0, s1} {
				pos := posMidface[fs.Face]
				if !fs.Full.IsGhost {
					lni = b.registerLocal(lni, fs.Full.Index, pos, codimFace)
				} else {
					lni = b.registerGhost(lni, fs.Full.Index, pos, codimFace)
				}
			}
		}
		return
	}

	// one of the two sides is hanging
	lni := Sentinel
	lnh := [2]int32{Sentinel, Sentinel}
	for i, fs := range []*forest.FaceSide{s0, s1} {
		swapi := 0
		if i > 0 && fi.Orientation != 0 {
			swapi = 1
		}
		if !fs.IsHanging {
			face := int32(fs.Face)
			pos := posMidface[face]
			if !fs.Full.IsGhost {
				// the large local element inserts the face midpoint
				le := fs.Full.Index
				if b.nd.Configuration[le]&^configHalf == 0 {
					// a pure half refinement is promoted to full
					if !b.opts.WithFaces {
						b.registerLocal(-1, le, posCenter, codimCorner)
					} else {
						b.faceToCorner(le)
						for j := 0; j < 4; j++ {
							b.registerLocal(-1, le, posCenterFace[j], codimFace)
						}
					}
				}
				b.nd.Configuration[le] &^= configHalf | configFull
				b.nd.Configuration[le] |= uint8(1) << uint(face)
				lni = b.registerLocal(lni, le, pos, codimCorner)
				if b.opts.WithFaces {
					b.registerLocal(-1, le, posSplitMid[face], codimFace)
					for j := 0; j < 2; j++ {
						lnh[j^swapi] = b.registerLocal(lnh[j^swapi], le, posHalfFace[face][j], codimFace)
					}
				}
			} else {
				lni = b.registerGhost(lni, fs.Full.Index, pos, codimCorner)
				if b.opts.WithFaces {
					for j := 0; j < 2; j++ {
						lnh[j^swapi] = b.registerGhost(lnh[j^swapi], fs.Full.Index, posHalfFace[face][j], codimFace)
					}
				}
			}
		} else {
			// each small element contributes its corner on the large
			// face midpoint and records its face code
			face := int32(fs.Face)
			for j := 0; j < 2; j++ {
				pos := posCorner[forest.FaceCorners[face][j^1]]
				if !fs.Hanging.IsGhost[j] {
					le := fs.Hanging.Index[j]
					lni = b.registerLocal(lni, le, pos, codimCorner)
					if b.opts.WithFaces {
						lnh[j^swapi] = b.registerLocal(lnh[j^swapi], le, posMidface[face], codimFace)
					}
					childid := fs.Hanging.Quad[j].ChildID()
					b.nd.FaceCode[le] |= uint8(1)<<(2+uint(face>>1)) | uint8(childid)
				} else {
					lni = b.registerGhost(lni, fs.Hanging.Index[j], pos, codimCorner)
					if b.opts.WithFaces {
						lnh[j^swapi] = b.registerGhost(lnh[j^swapi], fs.Hanging.Index[j], posMidface[face], codimFace)
					}
				}
			}
		}
	}
}

// corner handles one corner connection: every participating side
// contributes to a single corner node.
func (b *builder) corner(ci *forest.CornerInfo) {
	lni := Sentinel
	for i := range ci.Sides {
		cs := &ci.Sides[i]
		pos := posCorner[cs.Corner]
		if !cs.IsGhost {
			lni = b.registerLocal(lni, cs.Index, pos, codimCorner)
		} else {
			lni = b.registerGhost(lni, cs.Index, pos, codimCorner)
		}
	}
}
