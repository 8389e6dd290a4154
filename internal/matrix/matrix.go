// Package matrix provides read-only expression matrix storage.
//
// A matrix holds observations (cells) in rows and genes in columns. Both a
// dense and a compressed-sparse-row representation are provided behind a
// single interface so that callers computing group statistics never branch
// on the storage layout.
package matrix

import "sort"

// Matrix is a read-only observations x genes expression matrix.
type Matrix interface {
	// Dims returns the number of observations and genes.
	Dims() (obs, genes int)

	// MaskedMoments computes the per-gene mean and variance over the rows
	// where mask is true. Variance uses the unbiased n/(n-1) estimator and
	// is zero when fewer than two rows are selected. Dense and sparse
	// implementations accumulate identically (sum and sum of squares), so
	// they produce the same values for the same data.
	MaskedMoments(mask []bool) (means, vars []float64)

	// MaskedDense materializes the rows where mask is true as a dense
	// submatrix. The result is a fresh copy owned by the caller.
	MaskedDense(mask []bool) *Dense

	// Row densifies a single observation row into dst, which must have
	// length >= the gene count. It returns dst[:genes].
	Row(i int, dst []float64) []float64
}

// Dense is a row-major dense matrix.
type Dense struct {
	rows, cols int
	data       []float64 // len rows*cols
}

// NewDense creates a dense matrix backed by data in row-major order.
// The slice is used directly, not copied.
func NewDense(rows, cols int, data []float64) *Dense {
	if len(data) != rows*cols {
		panic("matrix: dense data length does not match dimensions")
	}
	return &Dense{rows: rows, cols: cols, data: data}
}

// Dims returns the number of observations and genes.
func (d *Dense) Dims() (int, int) { return d.rows, d.cols }

// At returns the value at row i, column j.
func (d *Dense) At(i, j int) float64 { return d.data[i*d.cols+j] }

// Col copies column j into dst, which must have length >= rows.
func (d *Dense) Col(j int, dst []float64) []float64 {
	dst = dst[:d.rows]
	for i := 0; i < d.rows; i++ {
		dst[i] = d.data[i*d.cols+j]
	}
	return dst
}

// MaskedMoments computes per-gene mean and variance over masked rows.
func (d *Dense) MaskedMoments(mask []bool) ([]float64, []float64) {
	sums := make([]float64, d.cols)
	sqs := make([]float64, d.cols)
	n := 0
	for i := 0; i < d.rows; i++ {
		if !mask[i] {
			continue
		}
		n++
		row := d.data[i*d.cols : (i+1)*d.cols]
		for j, v := range row {
			sums[j] += v
			sqs[j] += v * v
		}
	}
	return momentsFromSums(sums, sqs, n)
}

// MaskedDense copies the masked rows into a new dense matrix.
func (d *Dense) MaskedDense(mask []bool) *Dense {
	n := countMask(mask)
	out := make([]float64, 0, n*d.cols)
	for i := 0; i < d.rows; i++ {
		if mask[i] {
			out = append(out, d.data[i*d.cols:(i+1)*d.cols]...)
		}
	}
	return NewDense(n, d.cols, out)
}

// Row returns row i.
func (d *Dense) Row(i int, dst []float64) []float64 {
	dst = dst[:d.cols]
	copy(dst, d.data[i*d.cols:(i+1)*d.cols])
	return dst
}

// CSR is a compressed-sparse-row matrix. Column indices within each row
// must be sorted ascending.
type CSR struct {
	rows, cols int
	indptr     []int // len rows+1
	indices    []int
	data       []float64
}

// NewCSR creates a CSR matrix from raw components. The slices are used
// directly, not copied.
func NewCSR(rows, cols int, indptr, indices []int, data []float64) *CSR {
	if len(indptr) != rows+1 {
		panic("matrix: csr indptr length must be rows+1")
	}
	if len(indices) != len(data) {
		panic("matrix: csr indices and data lengths differ")
	}
	return &CSR{rows: rows, cols: cols, indptr: indptr, indices: indices, data: data}
}

// Dims returns the number of observations and genes.
func (c *CSR) Dims() (int, int) { return c.rows, c.cols }

// NNZ returns the number of explicitly stored entries.
func (c *CSR) NNZ() int { return len(c.data) }

// At returns the value at row i, column j.
func (c *CSR) At(i, j int) float64 {
	start, end := c.indptr[i], c.indptr[i+1]
	idx := c.indices[start:end]
	k := sort.SearchInts(idx, j)
	if k < len(idx) && idx[k] == j {
		return c.data[start+k]
	}
	return 0
}

// MaskedMoments computes per-gene mean and variance over masked rows.
// Implicit zeros contribute to the counts but not to the sums, so only the
// stored entries are visited.
func (c *CSR) MaskedMoments(mask []bool) ([]float64, []float64) {
	sums := make([]float64, c.cols)
	sqs := make([]float64, c.cols)
	n := 0
	for i := 0; i < c.rows; i++ {
		if !mask[i] {
			continue
		}
		n++
		for k := c.indptr[i]; k < c.indptr[i+1]; k++ {
			v := c.data[k]
			sums[c.indices[k]] += v
			sqs[c.indices[k]] += v * v
		}
	}
	return momentsFromSums(sums, sqs, n)
}

// MaskedDense densifies the masked rows into a new dense matrix.
func (c *CSR) MaskedDense(mask []bool) *Dense {
	n := countMask(mask)
	out := make([]float64, n*c.cols)
	row := 0
	for i := 0; i < c.rows; i++ {
		if !mask[i] {
			continue
		}
		base := row * c.cols
		for k := c.indptr[i]; k < c.indptr[i+1]; k++ {
			out[base+c.indices[k]] = c.data[k]
		}
		row++
	}
	return NewDense(n, c.cols, out)
}

// Row densifies row i.
func (c *CSR) Row(i int, dst []float64) []float64 {
	dst = dst[:c.cols]
	for j := range dst {
		dst[j] = 0
	}
	for k := c.indptr[i]; k < c.indptr[i+1]; k++ {
		dst[c.indices[k]] = c.data[k]
	}
	return dst
}

// momentsFromSums converts per-gene sums and sums of squares over n rows
// into mean and unbiased variance vectors.
func momentsFromSums(sums, sqs []float64, n int) ([]float64, []float64) {
	means := make([]float64, len(sums))
	vars := make([]float64, len(sums))
	if n == 0 {
		return means, vars
	}
	nf := float64(n)
	for j := range sums {
		m := sums[j] / nf
		means[j] = m
		if n > 1 {
			v := (sqs[j]/nf - m*m) * nf / (nf - 1)
			if v < 0 { // guard tiny negative values from cancellation
				v = 0
			}
			vars[j] = v
		}
	}
	return means, vars
}

func countMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}
