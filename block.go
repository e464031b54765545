package mcastack

// Block is a (rows, channels) window on a View's buffer, stored row-major.
// It aliases the buffer: its contents are replaced when the iterator moves
// to the next chunk.
type Block struct {
	Rows     int
	Channels int
	Data     []float64
}

// Row returns the channels of row i.
func (b Block) Row(i int) []float64 {
	lo := i * b.Channels
	hi := lo + b.Channels
	return b.Data[lo:hi:hi]
}

// At returns the value of channel j in row i.
func (b Block) At(i, j int) float64 { return b.Data[i*b.Channels+j] }

// Set stores v as channel j of row i.
func (b Block) Set(i, j int, v float64) { b.Data[i*b.Channels+j] = v }

// walkPermuted visits every element of an array of the given shape in the C
// order of its axes rearranged by perm. fn receives the offset in the
// rearranged layout and the offset in the original layout.
func walkPermuted(shape, perm []int, fn func(out, in int)) {
	st := strides(shape)
	dims := make([]int, len(perm))
	steps := make([]int, len(perm))
	for k, axis := range perm {
		dims[k] = shape[axis]
		steps[k] = st[axis]
	}
	total := Size(dims)
	ctr := make([]int, len(dims))
	in := 0
	for out := 0; out < total; out++ {
		fn(out, in)
		for k := len(dims) - 1; k >= 0; k-- {
			ctr[k]++
			in += steps[k]
			if ctr[k] < dims[k] {
				break
			}
			in -= steps[k] * dims[k]
			ctr[k] = 0
		}
	}
}

// gather rearranges native, laid out in C order over shape, into dst along perm.
func gather(dst, native []float64, shape, perm []int) {
	walkPermuted(shape, perm, func(out, in int) { dst[out] = native[in] })
}

// scatter is the inverse of gather.
func scatter(native, src []float64, shape, perm []int) {
	walkPermuted(shape, perm, func(out, in int) { native[in] = src[out] })
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}
