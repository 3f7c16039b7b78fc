package forecast

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Params configures the boosted tree ensemble. Values are fixed per report;
// nothing is tuned at runtime.
type Params struct {
	NumTrees       int     `json:"num_trees" default:"300" validate:"gte=1,lte=5000"`
	LearningRate   float64 `json:"learning_rate" default:"0.05" validate:"gt=0,lte=1"`
	MaxDepth       int     `json:"max_depth" default:"6" validate:"gte=1,lte=16"`
	Lambda         float64 `json:"lambda" default:"1" validate:"gte=0"`
	MinChildWeight float64 `json:"min_child_weight" default:"1" validate:"gte=0"`
	Subsample      float64 `json:"subsample" default:"1" validate:"gt=0,lte=1"`
	Seed           uint64  `json:"seed" default:"42"`
}

var validate = validator.New()

// DefaultParams returns the report's hyperparameters: 300 trees, learning
// rate 0.05, depth 6.
func DefaultParams() Params {
	var p Params
	if err := defaults.Set(&p); err != nil {
		panic(fmt.Sprintf("forecast: default params: %v", err))
	}
	return p
}

// Validate checks the parameters are within the supported ranges.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

type node struct {
	Leaf      bool
	Value     float64
	Feature   int
	Threshold float64
	Left      int
	Right     int
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Model is a fitted gradient-boosted regression tree ensemble using the
// squared error objective.
type Model struct {
	params   Params
	base     float64
	trees    []tree
	features int
	gain     []float64
}

// Fit trains an ensemble on x (rows of equal width) against y.
func Fit(x [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, errors.New("fit: no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d rows but %d targets", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return nil, errors.New("fit: rows have no features")
	}
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), width)
		}
	}

	m := &Model{
		params:   p,
		base:     mean(y),
		features: width,
		gain:     make([]float64, width),
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.base
	}

	presorted := make([][]int, width)
	for f := 0; f < width; f++ {
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return x[idx[a]][f] < x[idx[b]][f]
		})
		presorted[f] = idx
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	b := &builder{
		x:      x,
		grad:   make([]float64, len(y)),
		params: p,
		goLeft: make([]bool, len(y)),
		gain:   m.gain,
	}

	for t := 0; t < p.NumTrees; t++ {
		for i := range y {
			b.grad[i] = y[i] - pred[i]
		}
		sorted := presorted
		if p.Subsample < 1 {
			sorted = subsample(presorted, len(y), p.Subsample, rng)
		}
		b.nodes = nil
		b.grow(sorted, 0)
		tr := tree{nodes: b.nodes}
		m.trees = append(m.trees, tr)
		for i := range pred {
			pred[i] += p.LearningRate * tr.predict(x[i])
		}
	}
	return m, nil
}

// Predict returns the model output for one feature vector.
func (m *Model) Predict(x []float64) float64 {
	out := m.base
	for i := range m.trees {
		out += m.params.LearningRate * m.trees[i].predict(x)
	}
	return out
}

// Trees returns the number of fitted trees.
func (m *Model) Trees() int {
	return len(m.trees)
}

// Importance returns the total split gain per feature, normalised to sum to 1.
// All zeros means the ensemble never split.
func (m *Model) Importance() []float64 {
	out := make([]float64, m.features)
	total := 0.0
	for _, g := range m.gain {
		total += g
	}
	if total == 0 {
		return out
	}
	for i, g := range m.gain {
		out[i] = g / total
	}
	return out
}

type builder struct {
	x      [][]float64
	grad   []float64
	params Params
	nodes  []node
	goLeft []bool
	gain   []float64
}

// grow builds the subtree for the rows in sorted (one row list per feature,
// each ordered by that feature) and returns its node index.
func (b *builder) grow(sorted [][]int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{})

	rows := sorted[0]
	sum := 0.0
	for _, i := range rows {
		sum += b.grad[i]
	}
	n := float64(len(rows))
	leaf := node{Leaf: true, Value: sum / (n + b.params.Lambda)}

	if depth >= b.params.MaxDepth || len(rows) < 2 {
		b.nodes[idx] = leaf
		return idx
	}
	feat, thr, gain, ok := b.bestSplit(sorted, sum, n)
	if !ok {
		b.nodes[idx] = leaf
		return idx
	}
	b.gain[feat] += gain

	for _, i := range rows {
		b.goLeft[i] = b.x[i][feat] <= thr
	}
	left := make([][]int, len(sorted))
	right := make([][]int, len(sorted))
	for f, list := range sorted {
		for _, i := range list {
			if b.goLeft[i] {
				left[f] = append(left[f], i)
			} else {
				right[f] = append(right[f], i)
			}
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = node{Feature: feat, Threshold: thr, Left: l, Right: r}
	return idx
}

func (b *builder) bestSplit(sorted [][]int, sum, n float64) (feat int, thr, gain float64, ok bool) {
	lambda := b.params.Lambda
	parent := sum * sum / (n + lambda)
	const eps = 1e-12

	for f, list := range sorted {
		gl, nl := 0.0, 0.0
		for k := 0; k < len(list)-1; k++ {
			i := list[k]
			gl += b.grad[i]
			nl++
			cur, next := b.x[i][f], b.x[list[k+1]][f]
			if next <= cur {
				continue
			}
			nr := n - nl
			if nl < b.params.MinChildWeight || nr < b.params.MinChildWeight {
				continue
			}
			gr := sum - gl
			g := gl*gl/(nl+lambda) + gr*gr/(nr+lambda) - parent
			if g > gain+eps {
				feat, thr, gain, ok = f, (cur+next)/2, g, true
			}
		}
	}
	return feat, thr, gain, ok
}

// subsample keeps each row with probability frac, preserving per-feature
// order. At least one row is always kept.
func subsample(presorted [][]int, rows int, frac float64, rng *rand.Rand) [][]int {
	keep := make([]bool, rows)
	kept := 0
	for i := range keep {
		if rng.Float64() < frac {
			keep[i] = true
			kept++
		}
	}
	if kept == 0 {
		keep[rng.IntN(rows)] = true
	}
	out := make([][]int, len(presorted))
	for f, list := range presorted {
		for _, i := range list {
			if keep[i] {
				out[f] = append(out[f], i)
			}
		}
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
