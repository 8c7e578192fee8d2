package sim

import (
	"fmt"
	"math"
)

// Polarization maps a dot occupation distribution to its polarization
// vector: one component for 4-dot cells, two for 8-dot cells. An empty
// (all-zero) distribution maps to zero polarization.
func Polarization(dist []float64) ([]float64, error) {
	sum := 0.0
	for _, v := range dist {
		sum += v
	}
	switch len(dist) {
	case 4:
		if sum == 0 {
			return []float64{0}, nil
		}
		return []float64{((dist[0] + dist[2]) - (dist[1] + dist[3])) / sum}, nil
	case 8:
		if sum == 0 {
			return []float64{0, 0}, nil
		}
		return []float64{
			((dist[0] + dist[4]) - (dist[2] + dist[6])) / sum,
			((dist[1] + dist[5]) - (dist[3] + dist[7])) / sum,
		}, nil
	default:
		return nil, fmt.Errorf("dot distribution of length %d: expected 4 or 8", len(dist))
	}
}

// DotDistribution is the inverse of Polarization for 1- and 2-component
// polarizations. Two-component inputs whose magnitudes sum above 1 are
// clamped by the non-negative offset.
func DotDistribution(pol []float64) ([]float64, error) {
	switch len(pol) {
	case 1:
		p := pol[0]/2.0 + 0.5
		pn := 1.0 - p
		return []float64{p, pn, p, pn}, nil
	case 2:
		sum := math.Abs(pol[0]) + math.Abs(pol[1])
		offset := math.Max(0, (1.0-sum)/4)
		p1 := math.Max(0, pol[0]) + offset
		pn1 := math.Max(0, -pol[0]) + offset
		p2 := math.Max(0, pol[1]) + offset
		pn2 := math.Max(0, -pol[1]) + offset
		return []float64{p1, p2, pn1, pn2, p1, p2, pn1, pn2}, nil
	default:
		return nil, fmt.Errorf("polarization of length %d: expected 1 or 2", len(pol))
	}
}
