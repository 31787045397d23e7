package stitching

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"mosaicfuse/internal/models"
)

// DistanceTransform computes the exact Euclidean distance from every
// foreground pixel of m to the nearest background pixel inside m. Background
// pixels get 0.
//
// A mask without any background pixel gets rows+cols everywhere, which is
// larger than any distance that can occur inside the mask.
func DistanceTransform(m *models.Mask) *mat.Dense {
	rows, cols := m.Rows, m.Cols
	out := mat.NewDense(rows, cols, nil)
	grid := out.RawMatrix().Data

	// Stand-in for infinity: exceeds any squared in-plane distance and keeps
	// parabola intersections exact.
	far := float64(rows*rows + cols*cols + 1)

	hasBackground := false
	for i, fg := range m.Bits {
		if fg {
			grid[i] = far
		} else {
			hasBackground = true
		}
	}
	if !hasBackground {
		for i := range grid {
			grid[i] = float64(rows + cols)
		}
		return out
	}

	n := max(rows, cols)
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			f[r] = grid[r*cols+c]
		}
		squaredDistance1D(f[:rows], d[:rows], v, z)
		for r := 0; r < rows; r++ {
			grid[r*cols+c] = d[r]
		}
	}

	for r := 0; r < rows; r++ {
		row := grid[r*cols : (r+1)*cols]
		copy(f, row)
		squaredDistance1D(f[:cols], d[:cols], v, z)
		copy(row, d[:cols])
	}

	for i, sq := range grid {
		grid[i] = math.Sqrt(sq)
	}
	return out
}

// squaredDistance1D is the lower envelope of parabolas pass of Felzenszwalb
// and Huttenlocher. It writes min_q((p-q)^2 + f[q]) to d[p].
func squaredDistance1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}

	intersect := func(q, p int) float64 {
		fq, fp := f[q]+float64(q*q), f[p]+float64(p*p)
		return (fq - fp) / float64(2*q-2*p)
	}

	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(q, v[k])
		for s <= z[k] {
			k--
			s = intersect(q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}
