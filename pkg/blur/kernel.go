package blur

import (
	"errors"
	"fmt"
	"math"

	"github.com/knetic/govaluate"
)

var ErrInvalidKernelSize = errors.New("blur: kernel size must be odd and positive")

// Kernel is a square matrix of weights stored row-major.
type Kernel struct {
	Size    int
	Weights []float64
	// Uniform is set when every weight is 1/size².
	Uniform bool
}

// Radius is the number of cells on each side of the center.
func (k *Kernel) Radius() int {
	return (k.Size - 1) / 2
}

// At returns the weight at row i, column j.
func (k *Kernel) At(i, j int) float64 {
	return k.Weights[i*k.Size+j]
}

// Sum adds up every weight.
func (k *Kernel) Sum() float64 {
	sum := 0.0
	for _, w := range k.Weights {
		sum += w
	}
	return sum
}

// CheckSize reports ErrInvalidKernelSize unless size is odd and positive.
func CheckSize(size int) error {
	if size < 1 || size%2 == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKernelSize, size)
	}
	return nil
}

func newKernel(size int) (*Kernel, error) {
	if err := CheckSize(size); err != nil {
		return nil, err
	}
	return &Kernel{Size: size, Weights: make([]float64, size*size)}, nil
}

// Box creates a uniform averaging kernel: every weight is 1/size².
func Box(size int) (*Kernel, error) {
	k, err := newKernel(size)
	if err != nil {
		return nil, err
	}
	w := 1.0 / float64(size*size)
	for i := range k.Weights {
		k.Weights[i] = w
	}
	k.Uniform = true
	return k, nil
}

// Gaussian creates a normalized Gaussian kernel with sigma = size/3.
func Gaussian(size int) (*Kernel, error) {
	k, err := newKernel(size)
	if err != nil {
		return nil, err
	}
	sigma := float64(size) / 3.0
	center := size / 2
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			x := float64(i - center)
			y := float64(j - center)
			k.Weights[i*size+j] = math.Exp(-(x*x+y*y)/(2*sigma*sigma)) / (2 * math.Pi * sigma * sigma)
		}
	}
	if err := k.normalize(); err != nil {
		return nil, err
	}
	return k, nil
}

// FromExpression evaluates expr once per cell and normalizes the result.
// The expression sees i and j (offsets from the center, in [-radius, radius]),
// size and radius.
func FromExpression(size int, expr string) (*Kernel, error) {
	k, err := newKernel(size)
	if err != nil {
		return nil, err
	}
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, expressionFunctions())
	if err != nil {
		return nil, fmt.Errorf("blur: parse kernel expression %q: %w", expr, err)
	}
	m := k.Radius()
	params := map[string]interface{}{
		"size":   float64(size),
		"radius": float64(m),
	}
	for i := -m; i <= m; i++ {
		for j := -m; j <= m; j++ {
			params["i"] = float64(i)
			params["j"] = float64(j)
			v, err := e.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("blur: evaluate kernel expression at (%d,%d): %w", i, j, err)
			}
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("blur: kernel expression returned %T, want number", v)
			}
			k.Weights[(i+m)*size+(j+m)] = f
		}
	}
	if err := k.normalize(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Kernel) normalize() error {
	sum := k.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("blur: kernel weights sum to %v", sum)
	}
	for i := range k.Weights {
		k.Weights[i] /= sum
	}
	return nil
}

func expressionFunctions() map[string]govaluate.ExpressionFunction {
	unary := func(name string, fn func(float64) float64) govaluate.ExpressionFunction {
		return func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s expects 1 argument", name)
			}
			x, ok := args[0].(float64)
			if !ok {
				return nil, fmt.Errorf("%s: argument must be numeric", name)
			}
			return fn(x), nil
		}
	}
	return map[string]govaluate.ExpressionFunction{
		"exp":  unary("exp", math.Exp),
		"abs":  unary("abs", math.Abs),
		"sqrt": unary("sqrt", math.Sqrt),
	}
}
