package align

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Alignment is a one-hot [Rows x Cols] matrix stored row-major. Row i is set
// on the contiguous run of columns token i occupies.
type Alignment struct {
	Rows int
	Cols int
	Data []float32
}

// Build lays the plan's durations out over TotalFrames columns in token order.
func (p Plan) Build() Alignment {
	a := Alignment{
		Rows: len(p.Durations),
		Cols: p.TotalFrames,
		Data: make([]float32, len(p.Durations)*p.TotalFrames),
	}

	col := 0
	for i, d := range p.Durations {
		row := a.Data[i*a.Cols : (i+1)*a.Cols]
		for j := 0; j < d && col < a.Cols; j++ {
			row[col] = 1
			col++
		}
	}

	return a
}

// RowSum returns the number of frames assigned to token i.
func (a Alignment) RowSum(i int) int {
	n := 0
	for _, v := range a.Data[i*a.Cols : (i+1)*a.Cols] {
		if v != 0 {
			n++
		}
	}

	return n
}

// Owner returns the token that owns column j, or -1.
func (a Alignment) Owner(j int) int {
	for i := 0; i < a.Rows; i++ {
		if a.Data[i*a.Cols+j] != 0 {
			return i
		}
	}

	return -1
}

// Upsample expands token-rate features laid out as [a.Rows x dim] to frame
// rate: transpose(features) x a, giving [dim x a.Cols] row-major.
func Upsample(features []float32, dim int, a Alignment) ([]float32, error) {
	if dim < 1 || len(features) != a.Rows*dim {
		return nil, fmt.Errorf("%w: %d features for %d tokens x %d dims", ErrInvalidInput, len(features), a.Rows, dim)
	}

	if a.Rows == 0 || a.Cols == 0 {
		return nil, fmt.Errorf("%w: empty alignment %dx%d", ErrInvalidInput, a.Rows, a.Cols)
	}

	tokens := mat.NewDense(a.Rows, dim, toFloat64(features))
	aln := mat.NewDense(a.Rows, a.Cols, toFloat64(a.Data))

	var frames mat.Dense
	frames.Mul(tokens.T(), aln)

	out := make([]float32, 0, dim*a.Cols)
	for r := 0; r < dim; r++ {
		for _, v := range frames.RawRowView(r) {
			out = append(out, float32(v))
		}
	}

	return out, nil
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}

	return dst
}
