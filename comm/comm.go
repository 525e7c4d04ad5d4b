// Package comm provides the in-process message-passing substrate for
// the node numbering exchange: a fixed set of ranks, nonblocking
// tagged sends and receives of 32-bit index buffers, a wait-some
// progress primitive and an allgather collective.
//
// Delivery is reliable, non-lossy and ordered per (sender, receiver,
// tag) triple. Sends are eager: the payload is copied on posting, so
// the sender may reuse its buffer as soon as the send request
// completes.
package comm

import (
	"fmt"
	"sync"
)

// World couples a fixed number of ranks. Each rank is expected to run
// in its own goroutine and to interact through its Rank handle.
type World struct {
	size int

	mu   sync.Mutex
	cond *sync.Cond

	// boxes[dst] queues undelivered messages per (src, tag)
	boxes []map[msgKey][][]int32

	agVals   []int32
	agCount  int
	agGen    int
	agResult []int32
}

type msgKey struct {
	src, tag int
}

// Rank is one rank's handle on the world.
type Rank struct {
	w    *World
	rank int
}

// Request tracks one outstanding nonblocking operation. A request is
// complete when its transfer has happened; Waitsome reports each
// complete request exactly once.
type Request struct {
	recv     bool
	src, tag int
	buf      []int32
	done     bool
	reported bool
}

// NewWorld creates a world of the given size and returns the per-rank
// handles.
func NewWorld(size int) ([]*Rank, error) {
	if size < 1 {
		return nil, fmt.Errorf("comm: world size %d out of range", size)
	}
	w := &World{
		size:   size,
		boxes:  make([]map[msgKey][][]int32, size),
		agVals: make([]int32, size),
	}
	w.cond = sync.NewCond(&w.mu)
	for i := range w.boxes {
		w.boxes[i] = make(map[msgKey][][]int32)
	}
	ranks := make([]*Rank, size)
	for i := range ranks {
		ranks[i] = &Rank{w: w, rank: i}
	}
	return ranks, nil
}

// Rank returns this handle's rank number.
func (r *Rank) Rank() int { return r.rank }

// Size returns the world size.
func (r *Rank) Size() int { return r.w.size }

// Isend posts a nonblocking send of buf to dst under the given tag.
// The payload is copied; the returned request completes immediately.
func (r *Rank) Isend(buf []int32, dst, tag int) (*Request, error) {
	if dst < 0 || dst >= r.w.size || dst == r.rank {
		return nil, fmt.Errorf("comm: rank %d cannot send to %d", r.rank, dst)
	}
	payload := append([]int32(nil), buf...)
	w := r.w
	w.mu.Lock()
	k := msgKey{src: r.rank, tag: tag}
	w.boxes[dst][k] = append(w.boxes[dst][k], payload)
	w.cond.Broadcast()
	w.mu.Unlock()
	return &Request{done: true}, nil
}

// Irecv posts a nonblocking receive into buf from src under the given
// tag. The message length must equal len(buf) exactly; a mismatch is
// reported as an error by Waitsome.
func (r *Rank) Irecv(buf []int32, src, tag int) (*Request, error) {
	if src < 0 || src >= r.w.size || src == r.rank {
		return nil, fmt.Errorf("comm: rank %d cannot receive from %d", r.rank, src)
	}
	return &Request{recv: true, src: src, tag: tag, buf: buf}, nil
}

// Waitsome blocks until at least one not-yet-reported request in reqs
// completes, and returns the indices of all requests that completed
// since the last call. Nil entries are ignored. Calling with no
// pending requests is an error, as is a received message whose length
// does not match the posted buffer.
func (r *Rank) Waitsome(reqs []*Request) ([]int, error) {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		var ready []int
		pending := 0
		for i, req := range reqs {
			if req == nil || req.reported {
				continue
			}
			pending++
			if req.recv && !req.done {
				if err := r.tryRecvLocked(req); err != nil {
					return nil, err
				}
			}
			if req.done {
				req.reported = true
				ready = append(ready, i)
			}
		}
		if len(ready) > 0 {
			return ready, nil
		}
		if pending == 0 {
			return nil, fmt.Errorf("comm: rank %d waits with no pending requests", r.rank)
		}
		w.cond.Wait()
	}
}

// tryRecvLocked matches req against the queued messages. Caller holds
// the world lock.
func (r *Rank) tryRecvLocked(req *Request) error {
	box := r.w.boxes[r.rank]
	k := msgKey{src: req.src, tag: req.tag}
	queue := box[k]
	if len(queue) == 0 {
		return nil
	}
	msg := queue[0]
	if len(msg) != len(req.buf) {
		return fmt.Errorf("comm: rank %d expected %d values from %d tag %d, got %d",
			r.rank, len(req.buf), req.src, req.tag, len(msg))
	}
	if len(queue) == 1 {
		delete(box, k)
	} else {
		box[k] = queue[1:]
	}
	copy(req.buf, msg)
	req.done = true
	return nil
}

// AllgatherInt32 contributes v and returns the vector of all ranks'
// contributions, indexed by rank. Every rank must call it; the call
// blocks until the collective completes.
func (r *Rank) AllgatherInt32(v int32) []int32 {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	gen := w.agGen
	w.agVals[r.rank] = v
	w.agCount++
	if w.agCount == w.size {
		w.agResult = append([]int32(nil), w.agVals...)
		w.agCount = 0
		w.agGen++
		w.cond.Broadcast()
	} else {
		for w.agGen == gen {
			w.cond.Wait()
		}
	}
	return append([]int32(nil), w.agResult...)
}
