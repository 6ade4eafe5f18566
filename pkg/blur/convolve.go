package blur

import (
	"fmt"
	"runtime"
	"sync"

	"go-blur/pkg/bitmap"
)

const (
	defaultBandRows = 16

	// Float accumulation of box weights can land a hair below the exact
	// integer (e.g. 99.99999999999999 for a flat 100). A box sum is k/size²
	// of an integer k, so a true fraction is never this close to an integer.
	truncationSlack = 1e-6
)

// BorderPolicy selects the region copied from the output buffer back into
// the image after the windowed pass.
type BorderPolicy int

const (
	// BorderCompat copies [1, dim-1) regardless of the kernel radius.
	BorderCompat BorderPolicy = iota
	// BorderConsistent copies [M, dim-M), the region the window covers.
	BorderConsistent
)

func (p BorderPolicy) String() string {
	switch p {
	case BorderCompat:
		return "compat"
	case BorderConsistent:
		return "consistent"
	}
	return fmt.Sprintf("BorderPolicy(%d)", int(p))
}

// ParseBorder maps a config string to a BorderPolicy.
func ParseBorder(s string) (BorderPolicy, error) {
	switch s {
	case "", "compat":
		return BorderCompat, nil
	case "consistent":
		return BorderConsistent, nil
	}
	return 0, fmt.Errorf("blur: unknown border policy %q", s)
}

// Margin is the width of the edge band left untouched by the copy-back.
func (p BorderPolicy) Margin(radius int) int {
	if p == BorderConsistent {
		return radius
	}
	return 1
}

// Options configures Apply.
type Options struct {
	Workers  int // goroutines sharing the windowed pass; <1 means NumCPU
	BandRows int // rows per unit of work; <1 means a default
	Border   BorderPolicy
}

// Apply blurs img in place: the windowed pass reads only the original pixels
// and the result is copied back according to opts.Border. Channels are not
// separated; the window slides over the interleaved byte stream.
func Apply(img *bitmap.Image, k *Kernel, opts Options) {
	rows, stride := img.Height, img.Stride()
	out := Convolve(img.Pix, rows, stride, k, opts)
	CopyBack(img.Pix, out, rows, stride, opts.Border.Margin(k.Radius()))
}

type band struct {
	start, end int
}

// Convolve returns a copy of src in which every cell of
// [M, rows-M) x [M, stride-M) holds the truncated weighted sum of its
// neighborhood. Cells outside that region keep their source value.
func Convolve(src []byte, rows, stride int, k *Kernel, opts Options) []byte {
	out := make([]byte, len(src))
	copy(out, src)

	m := k.Radius()
	if rows-m <= m || stride-m <= m {
		return out
	}

	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	bandRows := opts.BandRows
	if bandRows < 1 {
		bandRows = defaultBandRows
	}

	bands := make(chan band, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range bands {
				convolveRows(out, src, stride, k, b)
			}
		}()
	}

	for start := m; start < rows-m; start += bandRows {
		bands <- band{start: start, end: min(start+bandRows, rows-m)}
	}
	close(bands)
	wg.Wait()

	return out
}

// convolveRows writes rows [b.start, b.end) of out. Distinct bands touch
// distinct output rows, so workers never share a cell.
func convolveRows(out, src []byte, stride int, k *Kernel, b band) {
	m := k.Radius()
	slack := k.slack()
	for x := b.start; x < b.end; x++ {
		for y := m; y < stride-m; y++ {
			sum := 0.0
			for i := -m; i <= m; i++ {
				line := src[(x+i)*stride+y-m : (x+i)*stride+y+m+1]
				weights := k.Weights[(i+m)*k.Size : (i+m+1)*k.Size]
				for j, w := range weights {
					sum += w * float64(line[j])
				}
			}
			out[x*stride+y] = truncate(sum, slack)
		}
	}
}

// slack is the rounding allowance truncate gets for k. Only box kernels get
// one; other kernels truncate their float sums exactly.
func (k *Kernel) slack() float64 {
	if k.Uniform {
		return truncationSlack
	}
	return 0
}

// truncate drops the fraction toward zero and keeps the low byte, the same
// wrap a narrowing integer cast gives. slack is added away from zero first.
func truncate(sum, slack float64) byte {
	if sum >= 0 {
		sum += slack
	} else {
		sum -= slack
	}
	return byte(int64(sum))
}

// CopyBack copies [margin, rows-margin) x [margin, stride-margin) of out into dst.
func CopyBack(dst, out []byte, rows, stride, margin int) {
	if margin < 0 {
		margin = 0
	}
	for x := margin; x < rows-margin; x++ {
		lo := x*stride + margin
		hi := x*stride + stride - margin
		if hi > lo {
			copy(dst[lo:hi], out[lo:hi])
		}
	}
}
