package upscale

import (
	"math"
	"runtime"
	"sync"
)

type indexWeight struct {
	index  int
	weight float64
}

func precomputeWeights(dstSize, srcSize int, filter resampleFilter) [][]indexWeight {
	du := float64(srcSize) / float64(dstSize)
	scale := max(du, 1)
	ru := math.Ceil(scale * filter.Support)

	out := make([][]indexWeight, dstSize)
	tmp := make([]indexWeight, 0, dstSize*int(ru+2)*2)

	for v := range dstSize {
		fu := (float64(v)+0.5)*du - 0.5

		begin := max(int(math.Ceil(fu-ru)), 0)
		end := min(int(math.Floor(fu+ru)), srcSize-1)

		var sum float64
		for u := begin; u <= end; u++ {
			w := filter.Kernel((float64(u) - fu) / scale)
			if w != 0 {
				sum += w
				tmp = append(tmp, indexWeight{index: u, weight: w})
			}
		}
		if sum != 0 {
			for i := range tmp {
				tmp[i].weight /= sum
			}
		}

		out[v] = tmp
		tmp = tmp[len(tmp):]
	}

	return out
}

// resample resizes b to width x height with filter. Channels are filtered
// independently; the result is clipped to the representation range and
// requantized.
func resample(b *Buffer, width, height int, filter resampleFilter) *Buffer {
	if b.Width == width && b.Height == height {
		return b.Clone()
	}
	if b.Width != width && b.Height != height {
		return resampleVertical(resampleHorizontal(b, width, filter), height, filter)
	}
	if b.Width != width {
		return resampleHorizontal(b, width, filter)
	}
	return resampleVertical(b, height, filter)
}

func resampleHorizontal(b *Buffer, width int, filter resampleFilter) *Buffer {
	dst := NewBuffer(width, b.Height, b.Channels, b.Repr)
	weights := precomputeWeights(width, b.Width, filter)
	full := b.Repr.Max()
	parallel(0, b.Height, func(ys <-chan int) {
		acc := make([]float64, b.Channels)
		for y := range ys {
			for x := range weights {
				clear(acc)
				for _, w := range weights[x] {
					j := b.offset(w.index, y)
					for c := range acc {
						acc[c] += b.Pix[j+c] * w.weight
					}
				}
				j := dst.offset(x, y)
				for c, v := range acc {
					dst.Pix[j+c] = b.Repr.quantize(clip(v, 0, full))
				}
			}
		}
	})
	return dst
}

func resampleVertical(b *Buffer, height int, filter resampleFilter) *Buffer {
	dst := NewBuffer(b.Width, height, b.Channels, b.Repr)
	weights := precomputeWeights(height, b.Height, filter)
	full := b.Repr.Max()
	parallel(0, b.Width, func(xs <-chan int) {
		acc := make([]float64, b.Channels)
		for x := range xs {
			for y := range weights {
				clear(acc)
				for _, w := range weights[y] {
					j := b.offset(x, w.index)
					for c := range acc {
						acc[c] += b.Pix[j+c] * w.weight
					}
				}
				j := dst.offset(x, y)
				for c, v := range acc {
					dst.Pix[j+c] = b.Repr.quantize(clip(v, 0, full))
				}
			}
		}
	})
	return dst
}

type resampleFilter struct {
	Support float64
	Kernel  func(float64) float64
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

var lanczos = resampleFilter{
	Support: 3.0,
	Kernel: func(x float64) float64 {
		x = math.Abs(x)
		if x < 3.0 {
			return sinc(x) * sinc(x/3.0)
		}
		return 0
	},
}

// parallel processes the indices in [start, stop) in separate goroutines.
func parallel(start, stop int, fn func(<-chan int)) {
	count := stop - start
	if count < 1 {
		return
	}

	procs := min(runtime.GOMAXPROCS(0), count)

	c := make(chan int, count)
	for i := start; i < stop; i++ {
		c <- i
	}
	close(c)

	var wg sync.WaitGroup
	for range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(c)
		}()
	}
	wg.Wait()
}
