package matrixio

// DefaultMaxDim is the default cap on the dimension of a matrix
// assembled from coordinate (row,col,value) records.
const DefaultMaxDim = 1 << 12

// ReadOpts contains options for the matrix readers.
type ReadOpts struct {
	maxDim int
}

// ReadOpt is one reader option.
type ReadOpt func(*ReadOpts)

// WithMaxDim caps the dimension of a coordinate-format matrix:
// any row or column index at or above n is rejected.
// Nonpositive n selects DefaultMaxDim.
func WithMaxDim(n int) ReadOpt {
	return func(o *ReadOpts) { o.maxDim = n }
}

func readOpts(opts []ReadOpt) ReadOpts {
	o := ReadOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDim <= 0 {
		o.maxDim = DefaultMaxDim
	}
	return o
}
