package forest

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PartitionStats summarizes the leaf load balance across ranks.
type PartitionStats struct {
	NumRanks   int
	MinLeaves  int
	MaxLeaves  int
	MeanLeaves float64
	Imbalance  float64 // MaxLeaves / MeanLeaves
}

// Statistics computes the partition load metrics of the forest.
func (f *Forest) Statistics() PartitionStats {
	counts := make([]float64, f.Size)
	for r := 0; r < f.Size; r++ {
		counts[r] = float64(f.GlobalFirst[r+1] - f.GlobalFirst[r])
	}
	stats := PartitionStats{
		NumRanks:   f.Size,
		MinLeaves:  int(floats.Min(counts)),
		MaxLeaves:  int(floats.Max(counts)),
		MeanLeaves: stat.Mean(counts, nil),
	}
	if stats.MeanLeaves > 0 {
		stats.Imbalance = float64(stats.MaxLeaves) / stats.MeanLeaves
	}
	return stats
}
