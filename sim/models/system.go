package models

import (
	"fmt"
	"math"

	"github.com/qca-lab/qca-sim/sim"
)

// coulombConstant is e^2/(4*pi*eps0) in eV*nm.
const coulombConstant = 1.439964

// cellState is one cell of the coupled system.
type cellState struct {
	index   sim.CellIndex
	typ     sim.CellType
	channel int
	width   int
	input   int // position among input cells, -1 otherwise
	dots    [][3]float64
	basis   [][]float64 // basis[k][a]: charge on dot a per unit of component k
	pol     []float64
	next    []float64
}

// coupling is the interaction of cell i with neighbor j:
// E = sum_k sum_l P_i[k] * k[k][l] * P_j[l].
type coupling struct {
	j int
	k [][]float64
}

// system is the set of cells and their pairwise couplings.
type system struct {
	cells     []*cellState
	neighbors [][]coupling
	inputs    int
	stored    []int
}

// buildSystem resolves every cell's geometry and precomputes couplings
// between cells closer than p.RadiusOfEffect.
func buildSystem(layers []sim.Layer, architectures map[string]sim.CellArchitecture, p PhysicsSettings) (*system, error) {
	sys := &system{}
	for li, layer := range layers {
		arch, ok := architectures[layer.CellArchitectureID]
		if !ok {
			return nil, fmt.Errorf("%w: layer %d references %q", sim.ErrMissingArchitecture, li, layer.CellArchitectureID)
		}
		if err := arch.Validate(); err != nil {
			return nil, err
		}
		basis, err := chargeBasis(arch.DotCount)
		if err != nil {
			return nil, err
		}
		z := float64(li) * p.LayerSeparation
		for ci, cell := range layer.Cells {
			cs := &cellState{
				index:   sim.CellIndex{Layer: li, Cell: ci},
				typ:     cell.Typ,
				channel: cell.ClockChannel(),
				width:   arch.FeatureWidth(),
				input:   -1,
				dots:    placeDots(arch, cell, z),
				basis:   basis,
			}
			cs.pol = make([]float64, cs.width)
			cs.next = make([]float64, cs.width)
			switch cell.Typ {
			case sim.CellFixed:
				pol, err := sim.Polarization(cell.DotProbabilityDistribution)
				if err != nil {
					return nil, fmt.Errorf("fixed cell %s: %w", cs.index, err)
				}
				if len(pol) != cs.width {
					return nil, fmt.Errorf("fixed cell %s: %d-component polarization for width %d", cs.index, len(pol), cs.width)
				}
				copy(cs.pol, pol)
			case sim.CellInput:
				cs.input = sys.inputs
				sys.inputs++
			}
			if p.StoreAllCells || cell.Typ == sim.CellInput || cell.Typ == sim.CellOutput {
				sys.stored = append(sys.stored, len(sys.cells))
			}
			sys.cells = append(sys.cells, cs)
		}
	}
	sys.neighbors = make([][]coupling, len(sys.cells))
	for i, a := range sys.cells {
		for j, b := range sys.cells {
			if i == j || centerDistance(a, b) > p.RadiusOfEffect {
				continue
			}
			sys.neighbors[i] = append(sys.neighbors[i], coupling{j: j, k: couplingMatrix(a, b, p.RelativePermittivity)})
		}
	}
	return sys, nil
}

// chargeBasis returns, per polarization component, the dot charge deltas
// relative to the neutral (zero polarization) distribution.
func chargeBasis(dotCount int) ([][]float64, error) {
	width := dotCount / 4
	if width != 1 && width != 2 {
		return nil, fmt.Errorf("dot_count %d has no charge basis; supported: 4, 8", dotCount)
	}
	neutral, err := sim.DotDistribution(make([]float64, width))
	if err != nil {
		return nil, err
	}
	basis := make([][]float64, width)
	for k := range basis {
		unit := make([]float64, width)
		unit[k] = 1
		dist, err := sim.DotDistribution(unit)
		if err != nil {
			return nil, err
		}
		basis[k] = make([]float64, dotCount)
		for a := range dist {
			basis[k][a] = dist[a] - neutral[a]
		}
	}
	return basis, nil
}

// placeDots rotates the architecture's dot layout by the cell's rotation and
// translates it to the cell's position.
func placeDots(arch sim.CellArchitecture, cell sim.Cell, z float64) [][3]float64 {
	sin, cos := math.Sincos(cell.Rotation)
	out := make([][3]float64, len(arch.DotPositions))
	for a, d := range arch.DotPositions {
		out[a] = [3]float64{
			cell.Position[0] + d[0]*cos - d[1]*sin,
			cell.Position[1] + d[0]*sin + d[1]*cos,
			z,
		}
	}
	return out
}

func centerDistance(a, b *cellState) float64 {
	ca, cb := centroid(a.dots), centroid(b.dots)
	return dist3(ca, cb)
}

func centroid(dots [][3]float64) [3]float64 {
	var c [3]float64
	for _, d := range dots {
		c[0] += d[0]
		c[1] += d[1]
		c[2] += d[2]
	}
	n := float64(len(dots))
	return [3]float64{c[0] / n, c[1] / n, c[2] / n}
}

func dist3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// couplingMatrix computes the electrostatic interaction between the basis
// charges of a and b in eV.
func couplingMatrix(a, b *cellState, permittivity float64) [][]float64 {
	k := make([][]float64, a.width)
	for ka := range k {
		k[ka] = make([]float64, b.width)
		for kb := range k[ka] {
			e := 0.0
			for da, qa := range a.basis[ka] {
				for db, qb := range b.basis[kb] {
					r := dist3(a.dots[da], b.dots[db])
					if r == 0 {
						continue
					}
					e += qa * qb / r
				}
			}
			k[ka][kb] = coulombConstant / permittivity * e
		}
	}
	return k
}

// field returns the driving field on component k of cell i: the negative
// gradient of its interaction energy.
func (s *system) field(i, k int) float64 {
	h := 0.0
	for _, n := range s.neighbors[i] {
		pj := s.cells[n.j].pol
		for l, kl := range n.k[k] {
			h -= kl * pj[l]
		}
	}
	return h
}

// storedIndices lists the CellIndex of every stored cell in storage order.
func (s *system) storedIndices() []sim.CellIndex {
	out := make([]sim.CellIndex, len(s.stored))
	for i, ci := range s.stored {
		out[i] = s.cells[ci].index
	}
	return out
}

// clampNorm scales a polarization vector back into the unit ball.
func clampNorm(p []float64) {
	n := 0.0
	for _, v := range p {
		n += v * v
	}
	if n > 1 {
		n = math.Sqrt(n)
		for i := range p {
			p[i] /= n
		}
	}
}
