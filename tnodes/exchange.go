package tnodes

import (
	"fmt"
	"sort"

	"github.com/Davknapp/p4est/comm"
)

// Message tags of the exchange protocol.
const (
	tagQuery = 1
	tagReply = 2
)

// peerPhase is the protocol state of one peer, modeled explicitly.
type peerPhase uint8

const (
	phaseIdle peerPhase = iota
	// rank > me: a query receive is outstanding
	phaseWaitQuery
	// rank > me: the reply send is outstanding
	phaseSendReply
	// rank < me: the query send is outstanding
	phaseQuerySent
	// rank < me: the reply receive is outstanding
	phaseWaitReply
	phaseDone
)

// peer is one communication partner and/or node sharer.
type peer struct {
	rank  int
	phase peerPhase

	// sharind is the index of the peer's sharer record
	sharind int32

	// passive counts nodes shared with the peer but owned by a third
	// rank; they cause no message
	passive int32

	// lastadd is the most recently added candidate, to keep buffer
	// order strictly increasing
	lastadd int32

	// bufcount is the message length of both query and reply
	bufcount int32

	// shacumul counts the not-owned-by-us nodes preceding this peer
	// in canonical order
	shacumul int32

	// sharedno pairs each query entry with its local candidate
	sharedno []int32

	// querypos is the single send/receive buffer: owner positions on
	// the way out, owner-local indices on the way back
	querypos []int32

	// remosort collects the peer-owned candidates for sorting by the
	// owner's numbering
	remosort []int32
}

// peerAccess returns the peer record of rank q, creating it on first
// use.
func (b *builder) peerAccess(q int) *peer {
	if q == b.rank || q < 0 || q >= b.size {
		panic("tnodes: invalid peer rank")
	}
	if pi := b.procPeer[q]; pi != 0 {
		p := &b.peers[pi-1]
		if p.rank != q {
			panic("tnodes: peer table corrupt")
		}
		return p
	}
	b.peers = append(b.peers, peer{rank: q, sharind: -1, lastadd: -1})
	b.procPeer[q] = int32(len(b.peers))
	return &b.peers[len(b.peers)-1]
}

// addReply notes that the higher-ranked peer will query one of our
// owned candidates.
func (b *builder) addReply(p *peer, lni int32) {
	if p.rank <= b.rank || p.lastadd >= lni {
		panic("tnodes: reply bookkeeping out of order")
	}
	p.bufcount++
	p.lastadd = lni
}

// addQuery appends a query for a candidate owned by a lower-ranked
// peer, encoded as the owner's element position.
func (b *builder) addQuery(p *peer, lni, epos int32) {
	if p.rank >= b.rank || p.lastadd >= lni {
		panic("tnodes: query bookkeeping out of order")
	}
	p.bufcount++
	p.querypos = append(p.querypos, epos)
	p.sharedno = append(p.sharedno, lni)
	p.lastadd = lni
}

// electOwners walks the candidate table once: owned candidates are
// collected for sorting and produce reply slots; remotely owned
// candidates with a local contributor produce queries; candidates
// without a local contributor are pruned.
func (b *builder) electOwners() {
	for zz := range b.construct {
		cn := &b.construct[zz]
		if cn.runid != int32(zz) || cn.owner < 0 {
			panic("tnodes: candidate table corrupt")
		}
		owner := cn.contr[cn.owner]

		if int(owner.rank) == b.rank {
			b.ownsort = append(b.ownsort, int32(zz))
			b.numOwned++

			// post replies for all queries to self
			for _, ct := range cn.contr {
				if int(ct.rank) != b.rank {
					if int(ct.rank) < b.rank {
						panic("tnodes: owner is not the smallest rank")
					}
					b.addReply(b.peerAccess(int(ct.rank)), int32(zz))
				}
			}
			if len(cn.contr) > 1 {
				b.numOwnedShared++
			}
		} else {
			// weed out remote-only candidates
			withloc := false
			for _, ct := range cn.contr {
				if int(ct.rank) == b.rank {
					withloc = true
					break
				}
			}
			if !withloc {
				cn.runid = -1
				continue
			}
			if int(owner.rank) > b.rank {
				panic("tnodes: remote owner must be lower ranked")
			}

			// passively shared: owned remotely, also seen by a third rank
			for _, ct := range cn.contr {
				if int(ct.rank) != b.rank && ct.rank != owner.rank {
					b.peerAccess(int(ct.rank)).passive++
				}
			}

			p := b.peerAccess(int(owner.rank))
			b.addQuery(p, int32(zz), owner.le*b.vnodes+owner.pos)
			p.remosort = append(p.remosort, int32(zz))
			b.numShared++
		}

		// the running id is replaced by the owner's numbering later
		cn.runid = -1
	}
}

// sortAllgather sorts the owned candidates into canonical
// (element, position) order, assigns their local numbers and
// exchanges the per-rank owned counts into the global offset scan.
func (b *builder) sortAllgather() {
	sort.Slice(b.ownsort, func(i, j int) bool {
		oi := b.ownerContrib(b.ownsort[i])
		oj := b.ownerContrib(b.ownsort[j])
		if oi.le != oj.le {
			return oi.le < oj.le
		}
		return oi.pos < oj.pos
	})
	for i, ci := range b.ownsort {
		b.construct[ci].runid = int32(i)
	}

	nd := b.nd
	nd.OwnedCount = b.numOwned
	nd.NumLocalNodes = b.numOwned + b.numShared
	nd.NonlocalNodes = make([]int64, b.numShared)
	if b.c != nil {
		nd.GlobalOwnedCount = b.c.AllgatherInt32(b.numOwned)
	} else {
		nd.GlobalOwnedCount = []int32{b.numOwned}
	}

	b.goffset = make([]int64, b.size+1)
	for q := 0; q < b.size; q++ {
		b.goffset[q+1] = b.goffset[q] + int64(nd.GlobalOwnedCount[q])
	}
	nd.GlobalOffset = b.goffset[b.rank]
}

// ownerContrib returns the owning contributor of a candidate.
func (b *builder) ownerContrib(ci int32) contrib {
	cn := &b.construct[ci]
	return cn.contr[cn.owner]
}

// sortPeers orders the peers by rank, accumulates the shared-node
// offsets and creates the sharer records in rank order with the local
// record in its place.
func (b *builder) sortPeers() {
	b.sortp = make([]int32, len(b.peers))
	for i := range b.peers {
		b.sortp[i] = int32(i)
	}
	sort.Slice(b.sortp, func(i, j int) bool {
		return b.peers[b.sortp[i]].rank < b.peers[b.sortp[j]].rank
	})

	nonlofs := int32(0)
	for _, pi := range b.sortp {
		p := &b.peers[pi]
		p.shacumul = nonlofs
		if p.rank < b.rank {
			nonlofs += p.bufcount
		}
	}
	if nonlofs != b.numShared {
		panic("tnodes: shared node accounting mismatch")
	}

	i := 0
	for ; i < len(b.sortp); i++ {
		p := &b.peers[b.sortp[i]]
		if p.rank > b.rank {
			break
		}
		p.sharind = b.pushSharer(p.rank)
	}
	b.locsharer = b.pushSharer(b.rank)
	for ; i < len(b.sortp); i++ {
		p := &b.peers[b.sortp[i]]
		p.sharind = b.pushSharer(p.rank)
	}
}

// pushSharer appends an empty sharer record.
func (b *builder) pushSharer(rank int) int32 {
	b.nd.Sharers = append(b.nd.Sharers, Sharer{Rank: rank})
	return int32(len(b.nd.Sharers) - 1)
}

// exchange posts the query round and drains the peer state machines
// until every peer is done. Lower ranks respond, higher ranks
// initiate, so the pairing is deadlock free.
func (b *builder) exchange() error {
	if len(b.peers) == 0 {
		return nil
	}

	reqs := make([]*comm.Request, len(b.peers))
	pending := 0
	for i := range b.peers {
		p := &b.peers[i]
		if p.bufcount == 0 {
			// purely passive peers exchange no messages
			if p.passive == 0 {
				panic("tnodes: empty peer without passive shares")
			}
			continue
		}
		var err error
		if p.rank > b.rank {
			// expect the query from the higher rank
			p.querypos = make([]int32, p.bufcount)
			reqs[i], err = b.c.Irecv(p.querypos, p.rank, tagQuery)
			p.phase = phaseWaitQuery
		} else {
			if int32(len(p.querypos)) != p.bufcount {
				panic("tnodes: query buffer size mismatch")
			}
			reqs[i], err = b.c.Isend(p.querypos, p.rank, tagQuery)
			p.phase = phaseQuerySent
		}
		if err != nil {
			return err
		}
		pending++
	}

	for pending > 0 {
		done, err := b.c.Waitsome(reqs)
		if err != nil {
			return err
		}
		for _, j := range done {
			p := &b.peers[j]
			switch p.phase {
			case phaseWaitQuery:
				// translate each queried position into our owned
				// numbering and send the reply
				if err := b.translateQuery(p); err != nil {
					return err
				}
				if reqs[j], err = b.c.Isend(p.querypos, p.rank, tagReply); err != nil {
					return err
				}
				p.phase = phaseSendReply

			case phaseSendReply:
				p.phase = phaseDone
				pending--

			case phaseQuerySent:
				if reqs[j], err = b.c.Irecv(p.querypos, p.rank, tagReply); err != nil {
					return err
				}
				p.phase = phaseWaitReply

			case phaseWaitReply:
				if err := b.absorbReply(p); err != nil {
					return err
				}
				p.phase = phaseDone
				pending--

			default:
				panic("tnodes: peer completion in unexpected phase")
			}
		}
	}
	return nil
}

// translateQuery rewrites a received query buffer in place: each
// owner-element position becomes the owned-local index of the node at
// that position.
func (b *builder) translateQuery(p *peer) error {
	for l, epos := range p.querypos {
		if epos < 0 || int64(epos) >= int64(b.nd.NumLocalElements)*int64(b.vnodes) {
			return fmt.Errorf("query position %d from rank %d out of range", epos, p.rank)
		}
		if alwaysOwned[epos%b.vnodes] {
			return fmt.Errorf("query from rank %d for an always-owned position", p.rank)
		}
		lni := b.nd.ElementNodes[epos]
		if lni < 0 || lni >= int32(len(b.construct)) {
			return fmt.Errorf("query from rank %d hits an unassigned position", p.rank)
		}
		oind := b.construct[lni].runid
		if oind < 0 || oind >= b.numOwned {
			return fmt.Errorf("query from rank %d hits a node we do not own", p.rank)
		}
		p.querypos[l] = oind
	}
	return nil
}

// absorbReply processes the owner's node numbers: store each
// candidate's owner-local index, sort the peer's nodes by it, then
// assign the final local indices and global ids.
func (b *builder) absorbReply(p *peer) error {
	for l, oind := range p.querypos {
		if oind < 0 || oind >= b.nd.GlobalOwnedCount[p.rank] {
			return fmt.Errorf("reply from rank %d out of range", p.rank)
		}
		cn := &b.construct[p.sharedno[l]]
		if int(cn.contr[cn.owner].rank) != p.rank {
			panic("tnodes: reply for a candidate with another owner")
		}
		cn.runid = oind
	}
	sort.Slice(p.remosort, func(i, j int) bool {
		return b.construct[p.remosort[i]].runid < b.construct[p.remosort[j]].runid
	})

	gof := b.goffset[p.rank]
	for l, ci := range p.remosort {
		cn := &b.construct[ci]
		nonloc := p.shacumul + int32(l)
		if nonloc >= b.numShared {
			panic("tnodes: nonlocal index out of range")
		}
		gni := gof + int64(cn.runid)
		if gni < b.goffset[p.rank] || gni >= b.goffset[p.rank+1] {
			return fmt.Errorf("reply from rank %d outside its global range", p.rank)
		}
		b.nd.NonlocalNodes[nonloc] = gni

		// from here on the runid is the local node number
		cn.runid = b.numOwned + nonloc
	}
	return nil
}
