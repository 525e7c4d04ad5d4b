package tnodes

// setElementNode rewrites one element position slot from its
// candidate index to the candidate's final local node number.
func (b *builder) setElementNode(le int32, pos int32) {
	slot := int64(le)*int64(b.vnodes) + int64(pos)
	lni := b.nd.ElementNodes[slot]
	if lni < 0 || lni >= int32(len(b.construct)) {
		panic("tnodes: configured position without a candidate")
	}
	cn := &b.construct[lni]
	runid := cn.runid
	if runid < 0 || runid >= b.numOwned+b.numShared {
		panic("tnodes: candidate without a final number")
	}
	if runid < b.numOwned {
		if int(cn.contr[cn.owner].rank) != b.rank {
			panic("tnodes: owned number on a remotely owned node")
		}
	} else if int(cn.contr[cn.owner].rank) >= b.rank {
		panic("tnodes: shared number on a locally owned node")
	}
	b.nd.ElementNodes[slot] = runid
}

// assignElementNodes rewrites, per element, exactly the position
// slots its configuration populates. All other slots remain at the
// sentinel.
func (b *builder) assignElementNodes() {
	nd := b.nd
	for le := int32(0); le < nd.NumLocalElements; le++ {
		cind := configIndex(nd.Configuration[le])

		ncorner := configCount[cind][0]
		for ci := 0; ci < ncorner; ci++ {
			b.setElementNode(le, configCorners[cind][ci])
		}
		if b.opts.WithFaces {
			nface := configCount[cind][1]
			for fi := 0; fi < nface; fi++ {
				b.setElementNode(le, configFaces[cind][fi])
			}
		}
	}
}

// sharerOf returns the sharer record of rank q.
func (b *builder) sharerOf(q int) *Sharer {
	if q == b.rank {
		return &b.nd.Sharers[b.locsharer]
	}
	pi := b.procPeer[q]
	if pi == 0 {
		panic("tnodes: sharer for an unknown peer")
	}
	return &b.nd.Sharers[b.peers[pi-1].sharind]
}

// populateSharers fills the per-rank sharer records: first the owned
// nodes in canonical order, then the shared-in nodes in canonical
// order, each appended to the record of every contributing rank.
func (b *builder) populateSharers() {
	locshare := &b.nd.Sharers[b.locsharer]

	for lcl, ci := range b.ownsort {
		cn := &b.construct[ci]
		if cn.runid != int32(lcl) {
			panic("tnodes: owned sort out of sync")
		}
		if len(cn.contr) == 1 {
			// purely local node
			continue
		}
		for _, ct := range cn.contr {
			sh := b.sharerOf(int(ct.rank))
			sh.SharedNodes = append(sh.SharedNodes, int32(lcl))
		}
	}
	if int32(len(locshare.SharedNodes)) != b.numOwnedShared {
		panic("tnodes: owned-shared accounting mismatch")
	}

	// offsets and counts per sharer record
	locshare.SharedMineOffset = 0
	locshare.SharedMineCount = b.numOwnedShared
	locshare.OwnedOffset = 0
	locshare.OwnedCount = b.numOwned
	for _, pi := range b.sortp {
		p := &b.peers[pi]
		sh := &b.nd.Sharers[p.sharind]
		sh.SharedMineOffset = 0
		sh.SharedMineCount = int32(len(sh.SharedNodes))
		sh.OwnedOffset = b.numOwned + p.shacumul
		if p.rank < b.rank {
			if p.bufcount == 0 && p.passive == 0 {
				panic("tnodes: lower peer without nodes")
			}
			sh.OwnedCount = p.bufcount
		} else {
			sh.OwnedCount = 0
		}
	}

	// shared-in nodes in canonical order
	lni := b.numOwned
	for _, pi := range b.sortp {
		p := &b.peers[pi]
		if p.rank > b.rank {
			continue
		}
		for _, ci := range p.remosort {
			cn := &b.construct[ci]
			if cn.runid != lni {
				panic("tnodes: shared sort out of sync")
			}
			if len(cn.contr) < 2 {
				panic("tnodes: shared-in node with a single contributor")
			}
			for _, ct := range cn.contr {
				sh := b.sharerOf(int(ct.rank))
				sh.SharedNodes = append(sh.SharedNodes, lni)
			}
			lni++
		}
	}
	if lni != b.numOwned+b.numShared {
		panic("tnodes: shared node accounting mismatch")
	}
}
