package tnodes

import (
	"fmt"
	"sync"

	"github.com/Davknapp/p4est/comm"
	"github.com/Davknapp/p4est/forest"
)

// BuildAll runs the numbering construction for every rank of a
// partitioned forest, each rank in its own goroutine over an
// in-process communicator, and returns the per-rank results. The
// construction is collective; deterministic input errors surface on
// every rank identically.
func BuildAll(numTrees int32, leaves []forest.Quadrant, globalFirst []int64, opts Options) ([]*Nodes, error) {
	size := len(globalFirst) - 1
	if size < 1 {
		return nil, fmt.Errorf("tnodes: partition vector too short")
	}
	ranks, err := comm.NewWorld(size)
	if err != nil {
		return nil, err
	}

	results := make([]*Nodes, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			f, err := forest.New(numTrees, leaves, globalFirst, r)
			if err != nil {
				errs[r] = err
				return
			}
			g := forest.NewGhost(f)
			results[r], errs[r] = New(f, g, ranks[r], opts)
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return results, nil
}
